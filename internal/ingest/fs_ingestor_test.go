package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/internal/common"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestIngestDirectory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ing := NewFSIngestor(f.svc, testLogger())

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "jan.csv"), statementCSV)
	writeFile(t, filepath.Join(root, "nested", "copy-of-jan.csv"), statementCSV)
	writeFile(t, filepath.Join(root, "nested", "feb.csv"), statementCSV+"2024-02-01,10:00:00,5.00,0,利息\n")
	writeFile(t, filepath.Join(root, "notes.txt"), "ignore me")
	writeFile(t, filepath.Join(root, ".hidden", "mar.csv"), statementCSV+"2024-03-01,10:00:00,6.00,0,利息\n")
	writeFile(t, filepath.Join(root, "~$jan.csv"), "lock file")

	results, stats, err := ing.IngestDirectory(ctx, f.accountID, root, true)
	if err != nil {
		t.Fatalf("IngestDirectory failed: %v", err)
	}
	if stats.Matched != 3 {
		t.Errorf("Matched = %d, want 3", stats.Matched)
	}
	if stats.Succeeded != 3 || stats.Failed != 0 {
		t.Errorf("Succeeded/Failed = %d/%d, want 3/0", stats.Succeeded, stats.Failed)
	}
	if stats.Deduplicated != 1 {
		t.Errorf("Deduplicated = %d, want 1", stats.Deduplicated)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if f.queue.count() != 2 {
		t.Errorf("enqueued %d jobs, want 2", f.queue.count())
	}
}

func TestIngestPath_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ing := NewFSIngestor(f.svc, testLogger())
	dir := t.TempDir()

	pdf := filepath.Join(dir, "scan.pdf")
	writeFile(t, pdf, "%PDF-1.7")
	if _, err := ing.IngestPath(ctx, f.accountID, pdf); !errors.Is(err, common.ErrUnsupportedFormat) {
		t.Errorf("pdf error = %v, want ErrUnsupportedFormat", err)
	}

	big := filepath.Join(dir, "big.csv")
	writeFile(t, big, statementCSV)
	ing.MaxBytes = 8
	if _, err := ing.IngestPath(ctx, f.accountID, big); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("oversized error = %v, want ErrInvalidInput", err)
	}
	ing.MaxBytes = 0

	if _, err := ing.IngestPath(ctx, uuid.New(), big); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("unknown account error = %v, want ErrNotFound", err)
	}

	if _, _, err := ing.IngestDirectory(ctx, f.accountID, "  ", false); !errors.Is(err, common.ErrValidation) {
		t.Errorf("blank root error = %v, want ErrValidation", err)
	}
}

func TestInbox_AccountFor(t *testing.T) {
	root := t.TempDir()
	in := NewInbox(root, nil, testLogger())
	id := uuid.New()

	tests := []struct {
		name    string
		path    string
		want    uuid.UUID
		wantErr bool
	}{
		{name: "account dir", path: filepath.Join(root, id.String(), "jan.csv"), want: id},
		{name: "nested below account", path: filepath.Join(root, id.String(), "2024", "jan.csv"), want: id},
		{name: "file at root", path: filepath.Join(root, "jan.csv"), wantErr: true},
		{name: "non uuid dir", path: filepath.Join(root, "checking", "jan.csv"), wantErr: true},
		{name: "outside root", path: filepath.Join(filepath.Dir(root), "other", "jan.csv"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := in.AccountFor(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("AccountFor(%q) = %s, want error", tt.path, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("AccountFor(%q) failed: %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("AccountFor(%q) = %s, want %s", tt.path, got, tt.want)
			}
		})
	}
}
