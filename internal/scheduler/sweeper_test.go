package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/constants"
	"github.com/joseph-ayodele/statements-ledger/internal/async"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
	"github.com/joseph-ayodele/statements-ledger/internal/repository"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []async.Job
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sweepFixture struct {
	files     repository.StatementFileRepository
	accountID uuid.UUID
	now       time.Time
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()
	db, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "ledger.db"), logger)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	accounts := repository.NewAccountRepository(db, logger)
	owner := &entity.Person{FullName: "Test Owner"}
	if err := accounts.CreatePerson(ctx, owner); err != nil {
		t.Fatalf("CreatePerson failed: %v", err)
	}
	acct := &entity.Account{OwnerID: owner.ID, AccountName: "checking", AccountNumber: "1"}
	if err := accounts.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	return &sweepFixture{
		files:     repository.NewStatementFileRepository(db, logger),
		accountID: acct.ID,
		now:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// file inserts a record uploaded age before now; started, when non-zero,
// claims it that long before now.
func (f *sweepFixture) file(t *testing.T, hash string, age, started time.Duration) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	rec := &entity.StatementFile{
		AccountID:   f.accountID,
		Filename:    hash + ".csv",
		FileExt:     "csv",
		MediaType:   "text/csv",
		ContentHash: hash,
		StoragePath: hash + ".csv",
		UploadedAt:  f.now.Add(-age),
	}
	if err := f.files.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if started > 0 {
		ok, err := f.files.MarkProcessing(ctx, rec.ID, f.now.Add(-started))
		if err != nil || !ok {
			t.Fatalf("MarkProcessing = %v, %v", ok, err)
		}
	}
	return rec.ID
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	fx := newSweepFixture(t)

	oldPending := fx.file(t, "a", time.Hour, 0)
	_ = fx.file(t, "b", time.Minute, 0)
	stale := fx.file(t, "c", 2*time.Hour, time.Hour)
	busy := fx.file(t, "d", 2*time.Hour, time.Minute)

	q := &fakeQueue{}
	s := NewSweeper(fx.files, q, Config{PendingAfter: 10 * time.Minute, StaleAfter: 30 * time.Minute}, testLogger())
	s.now = func() time.Time { return fx.now }

	stats, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if stats.Requeued != 1 || stats.Abandoned != 1 {
		t.Errorf("stats = %+v, want 1 requeued and 1 abandoned", stats)
	}
	if len(q.jobs) != 1 || q.jobs[0].FileID != oldPending {
		t.Errorf("jobs = %+v, want only %s", q.jobs, oldPending)
	}

	got, err := fx.files.GetByID(ctx, stale)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != constants.FileStatusFailed || got.ErrorMessage == nil || *got.ErrorMessage != AbandonedMessage {
		t.Errorf("stale file = %s %v, want FAILED %q", got.Status, got.ErrorMessage, AbandonedMessage)
	}
	got, err = fx.files.GetByID(ctx, busy)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != constants.FileStatusProcessing {
		t.Errorf("recently started file = %s, want PROCESSING", got.Status)
	}
}

func TestRunOnce_QueueClosed(t *testing.T) {
	fx := newSweepFixture(t)
	fx.file(t, "a", time.Hour, 0)
	fx.file(t, "b", time.Hour, 0)

	q := &fakeQueue{err: async.ErrQueueClosed}
	s := NewSweeper(fx.files, q, Config{PendingAfter: time.Minute}, testLogger())
	s.now = func() time.Time { return fx.now }

	stats, err := s.RunOnce(context.Background())
	if !errors.Is(err, async.ErrQueueClosed) {
		t.Fatalf("RunOnce error = %v, want ErrQueueClosed", err)
	}
	if stats.Requeued != 0 {
		t.Errorf("Requeued = %d, want 0", stats.Requeued)
	}
}

func TestStartStop(t *testing.T) {
	fx := newSweepFixture(t)
	ctx := context.Background()

	bad := NewSweeper(fx.files, nil, Config{Schedule: "not a schedule"}, testLogger())
	if err := bad.Start(ctx); err == nil {
		t.Fatal("Start accepted an invalid schedule")
	}

	s := NewSweeper(fx.files, nil, Config{Schedule: "@every 1h"}, testLogger())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Error("second Start succeeded")
	}
	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(stopCtx); err != nil {
		t.Errorf("second Stop = %v, want nil", err)
	}
}
