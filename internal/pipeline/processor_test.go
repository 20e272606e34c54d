package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statements-ledger/constants"
	"github.com/joseph-ayodele/statements-ledger/internal/counterparty"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
	"github.com/joseph-ayodele/statements-ledger/internal/normalize"
	"github.com/joseph-ayodele/statements-ledger/internal/repository"
	"github.com/joseph-ayodele/statements-ledger/internal/storage"
)

const splitStatement = `交易日期,交易时间,收入金额,支出金额,交易摘要,对方户名,交易流水号
2024-01-02,09:15:00,1000.00,0,工资,上海某某科技有限公司,T001
2024-01-03,12:00:00,0,35.50,午餐,张三,T002
2024-01-04,18:30:00,0,20.00,打车,张三,T003
`

type harness struct {
	db        *repository.DB
	store     *storage.LocalStore
	files     repository.StatementFileRepository
	txns      repository.TransactionRepository
	cps       repository.CounterpartyRepository
	accountID uuid.UUID
	processor *Processor
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()
	dir := t.TempDir()

	db, err := repository.OpenSQLite(ctx, filepath.Join(dir, "ledger.db"), logger)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	store, err := storage.NewLocalStore(filepath.Join(dir, "uploads"), logger)
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}

	accounts := repository.NewAccountRepository(db, logger)
	owner := &entity.Person{FullName: "Test Owner"}
	if err := accounts.CreatePerson(ctx, owner); err != nil {
		t.Fatalf("CreatePerson failed: %v", err)
	}
	acct := &entity.Account{OwnerID: owner.ID, AccountName: "checking", AccountNumber: "6222000011112222"}
	if err := accounts.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	n, err := normalize.New(normalize.Options{}, logger)
	if err != nil {
		t.Fatalf("normalize.New failed: %v", err)
	}
	h := &harness{
		db:        db,
		store:     store,
		files:     repository.NewStatementFileRepository(db, logger),
		txns:      repository.NewTransactionRepository(db, logger),
		cps:       repository.NewCounterpartyRepository(db, logger),
		accountID: acct.ID,
	}
	h.processor = NewProcessor(logger, Config{}, h.files,
		NewReadStage(store, n, logger),
		NewPersistStage(counterparty.NewResolver(h.cps, counterparty.KeywordClassifier{}, logger), h.txns, 2, logger),
	)
	return h
}

// upload stores data and creates its PENDING record, the way the upload
// service does.
func (h *harness) upload(t *testing.T, name, data string) *entity.StatementFile {
	t.Helper()
	ctx := context.Background()
	sum := sha256.Sum256([]byte(data))
	hash := hex.EncodeToString(sum[:])
	ext := constants.NormalizeExt(filepath.Ext(name))

	path, _, err := h.store.Put(ctx, hash+"."+ext, []byte(data))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	f := &entity.StatementFile{
		AccountID:   h.accountID,
		Filename:    name,
		FileExt:     ext,
		MediaType:   constants.MediaTypes[ext],
		FileSize:    int64(len(data)),
		ContentHash: hash,
		StoragePath: path,
	}
	if err := h.files.Create(ctx, f); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return f
}

func TestProcessFile_EndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	f := h.upload(t, "statement.csv", splitStatement)

	res, err := h.processor.ProcessFile(ctx, f.ID)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if res.Status != constants.FileStatusSuccess {
		t.Fatalf("Status = %s, want SUCCESS", res.Status)
	}
	if res.ProcessedRows != 3 || res.InsertedRows != 3 || res.DroppedRows != 0 {
		t.Errorf("processed/inserted/dropped = %d/%d/%d", res.ProcessedRows, res.InsertedRows, res.DroppedRows)
	}
	if res.Counterparties != 2 {
		t.Errorf("Counterparties = %d, want 2", res.Counterparties)
	}

	stored, err := h.files.GetByID(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != constants.FileStatusSuccess || stored.Outcome == nil || stored.Outcome.ProcessedRows != 3 {
		t.Errorf("stored record = %+v", stored)
	}
	if stored.StartedAt == nil || stored.FinishedAt == nil {
		t.Error("lifecycle timestamps not recorded")
	}

	entries, err := h.txns.ListByAccount(ctx, h.accountID, nil, nil)
	if err != nil {
		t.Fatalf("ListByAccount failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	wantAmounts := []string{"1000", "-35.5", "-20"}
	for i, e := range entries {
		if e.AccountID != h.accountID {
			t.Errorf("entry %d belongs to %s", i, e.AccountID)
		}
		if !e.Amount.Equal(decimal.RequireFromString(wantAmounts[i])) {
			t.Errorf("entry %d amount = %s, want %s", i, e.Amount, wantAmounts[i])
		}
	}
	if entries[0].Type != constants.TransactionCredit || entries[0].CounterpartyType != constants.CounterpartyMerchant {
		t.Errorf("entry 0 type/counterparty = %s/%s", entries[0].Type, entries[0].CounterpartyType)
	}
	if entries[1].CounterpartyID != entries[2].CounterpartyID {
		t.Error("repeated counterparty name resolved to different entities")
	}
	if n, _ := h.cps.Count(ctx); n != 2 {
		t.Errorf("counterparties stored = %d, want 2", n)
	}
}

func TestProcessFile_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	f := h.upload(t, "statement.csv", splitStatement)
	if _, err := h.processor.ProcessFile(ctx, f.ID); err != nil {
		t.Fatalf("first ProcessFile failed: %v", err)
	}

	// Redelivery of the same job.
	res, err := h.processor.ProcessFile(ctx, f.ID)
	if err != nil {
		t.Fatalf("second ProcessFile failed: %v", err)
	}
	if !res.Skipped || res.Status != constants.FileStatusSuccess {
		t.Errorf("redelivery result = %+v, want skipped SUCCESS", res)
	}

	// An overlapping export of the same transactions under new bytes.
	again := h.upload(t, "statement-copy.csv", "导出时间 2024-02-01\n"+splitStatement)
	res, err = h.processor.ProcessFile(ctx, again.ID)
	if err != nil {
		t.Fatalf("overlapping ProcessFile failed: %v", err)
	}
	if res.ProcessedRows != 3 || res.InsertedRows != 0 || res.SkippedRows != 3 {
		t.Errorf("processed/inserted/skipped = %d/%d/%d, want 3/0/3", res.ProcessedRows, res.InsertedRows, res.SkippedRows)
	}
	if n, _ := h.txns.CountByAccount(ctx, h.accountID); n != 3 {
		t.Errorf("transactions = %d, want 3", n)
	}
}

func TestProcessFile_SyntheticIDsDeduplicate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	const noIDs = "交易时间,交易金额,借贷标志,摘要\n20240102153000,5,借,咖啡\n20240102153000,5,借,咖啡\n"

	first := h.upload(t, "a.csv", noIDs)
	res, err := h.processor.ProcessFile(ctx, first.ID)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if res.InsertedRows != 2 {
		t.Errorf("InsertedRows = %d, want 2", res.InsertedRows)
	}

	second := h.upload(t, "b.csv", "\n"+noIDs)
	res, err = h.processor.ProcessFile(ctx, second.ID)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if res.InsertedRows != 0 || res.SkippedRows != 2 {
		t.Errorf("inserted/skipped = %d/%d, want 0/2", res.InsertedRows, res.SkippedRows)
	}
}

func TestProcessFile_DropsAndWarnings(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	data := "交易时间,交易金额,借贷标志,交易流水号\n20240102153000,5,借,A1\nyesterday,7,贷,A2\n"
	f := h.upload(t, "drops.csv", data)

	res, err := h.processor.ProcessFile(ctx, f.ID)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if res.ProcessedRows != 1 || res.DroppedRows != 1 {
		t.Errorf("processed/dropped = %d/%d, want 1/1", res.ProcessedRows, res.DroppedRows)
	}
	stored, _ := h.files.GetByID(ctx, f.ID)
	if stored.Outcome == nil || len(stored.Outcome.Warnings) == 0 {
		t.Errorf("warnings not persisted: %+v", stored.Outcome)
	}
}

func TestProcessFile_MissingRecord(t *testing.T) {
	h := newHarness(t)
	res, err := h.processor.ProcessFile(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("ProcessFile returned error: %v", err)
	}
	if res.Error != FileNotFoundMessage {
		t.Errorf("Error = %q, want %q", res.Error, FileNotFoundMessage)
	}
}

func TestProcessFile_FailureMarksFailed(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, h *harness) *entity.StatementFile
		wantMsg string
	}{
		{
			name: "bytes missing from storage",
			prepare: func(t *testing.T, h *harness) *entity.StatementFile {
				f := h.upload(t, "gone.csv", splitStatement+"x")
				if err := h.store.Delete(context.Background(), f.StoragePath); err != nil {
					t.Fatal(err)
				}
				return f
			},
			wantMsg: "open statement",
		},
		{
			name: "corrupt workbook",
			prepare: func(t *testing.T, h *harness) *entity.StatementFile {
				return h.upload(t, "broken.xlsx", "this is not a zip archive")
			},
			wantMsg: "read statement",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			f := tt.prepare(t, h)

			res, err := h.processor.ProcessFile(ctx, f.ID)
			if err == nil {
				t.Fatal("expected error")
			}
			if res.Status != constants.FileStatusFailed {
				t.Errorf("Status = %s, want FAILED", res.Status)
			}
			stored, gerr := h.files.GetByID(ctx, f.ID)
			if gerr != nil {
				t.Fatalf("GetByID failed: %v", gerr)
			}
			if stored.Status != constants.FileStatusFailed {
				t.Errorf("stored status = %s, want FAILED", stored.Status)
			}
			if stored.ErrorMessage == nil || !strings.Contains(*stored.ErrorMessage, tt.wantMsg) {
				t.Errorf("ErrorMessage = %v, want it to mention %q", stored.ErrorMessage, tt.wantMsg)
			}

			// A failed file is terminal; redelivery does nothing.
			res, err = h.processor.ProcessFile(ctx, f.ID)
			if err != nil || !res.Skipped || res.Status != constants.FileStatusFailed {
				t.Errorf("redelivery = %+v, %v", res, err)
			}
		})
	}
}

// cancellingStore cancels the job context once the bytes are opened,
// simulating a deadline that expires mid-ingestion.
type cancellingStore struct {
	storage.BlobStore
	cancel context.CancelFunc
}

func (c *cancellingStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	rc, err := c.BlobStore.Open(ctx, path)
	c.cancel()
	return rc, err
}

func TestProcessFile_CancelledJobStillMarkedFailed(t *testing.T) {
	h := newHarness(t)
	f := h.upload(t, "statement.csv", splitStatement)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.processor.read.Store = &cancellingStore{BlobStore: h.store, cancel: cancel}

	_, err := h.processor.ProcessFile(ctx, f.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	stored, gerr := h.files.GetByID(context.Background(), f.ID)
	if gerr != nil {
		t.Fatalf("GetByID failed: %v", gerr)
	}
	if stored.Status != constants.FileStatusFailed {
		t.Errorf("stored status = %s, want FAILED", stored.Status)
	}
	if n, _ := h.txns.CountByAccount(context.Background(), h.accountID); n != 0 {
		t.Errorf("transactions = %d, want 0 after cancellation", n)
	}
}

// flakyFinalize fails the first failures MarkSuccess calls with err.
type flakyFinalize struct {
	repository.StatementFileRepository
	failures int
	err      error
	calls    int
}

func (f *flakyFinalize) MarkSuccess(ctx context.Context, id uuid.UUID, outcome entity.FileOutcome, at time.Time) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return f.StatementFileRepository.MarkSuccess(ctx, id, outcome, at)
}

func TestProcessFile_FinalizeRetry(t *testing.T) {
	transient := errors.New("database is locked")
	tests := []struct {
		name       string
		failures   int
		err        error
		wantErr    bool
		wantCalls  int
		wantStatus constants.FileStatus
	}{
		{name: "transient failure retried", failures: 1, err: transient, wantCalls: 2, wantStatus: constants.FileStatusSuccess},
		{name: "persistent failure", failures: 5, err: transient, wantErr: true, wantCalls: 2, wantStatus: constants.FileStatusProcessing},
		{name: "lost transition not retried", failures: 5, err: repository.ErrLostTransition, wantErr: true, wantCalls: 1, wantStatus: constants.FileStatusProcessing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			f := h.upload(t, "statement.csv", splitStatement)
			flaky := &flakyFinalize{StatementFileRepository: h.files, failures: tt.failures, err: tt.err}
			h.processor.files = flaky

			_, err := h.processor.ProcessFile(ctx, f.ID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want it to wrap %v", err, tt.err)
			}
			if flaky.calls != tt.wantCalls {
				t.Errorf("MarkSuccess calls = %d, want %d", flaky.calls, tt.wantCalls)
			}
			stored, gerr := h.files.GetByID(ctx, f.ID)
			if gerr != nil {
				t.Fatalf("GetByID failed: %v", gerr)
			}
			if stored.Status != tt.wantStatus {
				t.Errorf("stored status = %s, want %s", stored.Status, tt.wantStatus)
			}
			if n, _ := h.txns.CountByAccount(ctx, h.accountID); n != 3 {
				t.Errorf("transactions = %d, want the committed batch of 3", n)
			}
		})
	}
}
