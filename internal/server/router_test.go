package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/statements-ledger/internal/async"
	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
	"github.com/joseph-ayodele/statements-ledger/internal/export"
	"github.com/joseph-ayodele/statements-ledger/internal/ingest"
	"github.com/joseph-ayodele/statements-ledger/internal/repository"
	"github.com/joseph-ayodele/statements-ledger/internal/storage"
)

const statementCSV = "交易日期,交易时间,收入金额,支出金额,交易摘要\n2024-01-02,09:15:00,100.00,0,工资\n"

type nopQueue struct{ n int }

func (q *nopQueue) Enqueue(context.Context, async.Job) error {
	q.n++
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) HealthCheck(context.Context, time.Duration) error { return p.err }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, uuid.UUID) {
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
	acct := &entity.Account{OwnerID: owner.ID, AccountName: "checking", AccountNumber: "6222"}
	if err := accounts.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	files := repository.NewStatementFileRepository(db, logger)
	ing := ingest.NewService(accounts, files, store, &nopQueue{}, logger)
	exp := export.NewService(repository.NewTransactionRepository(db, logger), time.UTC, logger)
	api := NewAPI(ing, exp, db, logger)
	api.MaxUploadBytes = 1 << 16

	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return srv, acct.ID
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write part failed: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart failed: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, srv *httptest.Server, accountID, filename, content string) (*http.Response, map[string]any) {
	t.Helper()
	body, ct := multipartBody(t, "file", filename, content)
	resp, err := http.Post(srv.URL+"/accounts/"+accountID+"/statements", ct, body)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestUploadStatement(t *testing.T) {
	srv, accountID := newTestServer(t)

	resp, body := upload(t, srv, accountID.String(), "jan.csv", statementCSV)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%v)", resp.StatusCode, body)
	}
	fileID, _ := body["file_id"].(string)
	if _, err := uuid.Parse(fileID); err != nil {
		t.Fatalf("file_id %q is not a UUID", fileID)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	tests := []struct {
		name       string
		accountID  string
		filename   string
		content    string
		wantStatus int
		wantCode   string
	}{
		{name: "duplicate", accountID: accountID.String(), filename: "again.csv", content: statementCSV, wantStatus: http.StatusConflict, wantCode: "DUPLICATE_CONTENT"},
		{name: "unsupported format", accountID: accountID.String(), filename: "scan.pdf", content: "%PDF", wantStatus: http.StatusUnsupportedMediaType, wantCode: "UNSUPPORTED_FORMAT"},
		{name: "unknown account", accountID: uuid.NewString(), filename: "feb.csv", content: statementCSV + "x", wantStatus: http.StatusNotFound, wantCode: "ACCOUNT_NOT_FOUND"},
		{name: "bad account id", accountID: "nope", filename: "feb.csv", content: statementCSV, wantStatus: http.StatusBadRequest, wantCode: "INVALID_ACCOUNT_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := upload(t, srv, tt.accountID, tt.filename, tt.content)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%v)", resp.StatusCode, tt.wantStatus, body)
			}
			detail, _ := body["error"].(map[string]any)
			if detail["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", detail["code"], tt.wantCode)
			}
			if tt.name == "duplicate" && detail["existing_file_id"] != fileID {
				t.Errorf("existing_file_id = %v, want %s", detail["existing_file_id"], fileID)
			}
		})
	}
}

func TestUploadStatement_MissingPart(t *testing.T) {
	srv, accountID := newTestServer(t)
	body, ct := multipartBody(t, "attachment", "jan.csv", statementCSV)
	resp, err := http.Post(srv.URL+"/accounts/"+accountID.String()+"/statements", ct, body)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestFileLifecycle(t *testing.T) {
	srv, accountID := newTestServer(t)
	_, body := upload(t, srv, accountID.String(), "jan.csv", statementCSV)
	fileID := body["file_id"].(string)

	resp, err := http.Get(srv.URL + "/files/" + fileID)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	var rec map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&rec)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || rec["status"] != "PENDING" {
		t.Fatalf("GET /files = %d %v, want 200 PENDING", resp.StatusCode, rec["status"])
	}

	resp, err = http.Get(srv.URL + "/accounts/" + accountID.String() + "/files")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	var list struct {
		Files []map[string]any `json:"files"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list.Files) != 1 {
		t.Errorf("listed %d files, want 1", len(list.Files))
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/files/"+fileID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/files/" + fileID)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after delete = %d, want 404", resp.StatusCode)
	}
}

func TestTransactionsRoutes(t *testing.T) {
	srv, accountID := newTestServer(t)
	base := srv.URL + "/accounts/" + accountID.String()

	resp, err := http.Get(base + "/transactions?from=2024-01-01&to=2024-01-31")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	var out struct {
		Transactions []any `json:"transactions"`
		Count        int   `json:"count"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || out.Transactions == nil || out.Count != 0 {
		t.Errorf("GET transactions = %d %+v, want 200 with empty list", resp.StatusCode, out)
	}

	resp, err = http.Get(base + "/transactions?from=01/02/2024")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(base + "/transactions.xlsx")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("xlsx status = %d, want 200", resp.StatusCode)
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Error("xlsx body is not a zip container")
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown route = %d, want 404", resp.StatusCode)
	}
}

func TestGRPCHealthFollowsDatabase(t *testing.T) {
	ctx := context.Background()

	g := NewGRPC(fakePinger{}, time.Second, testLogger())
	if got := g.Check(ctx); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("healthy db status = %s, want SERVING", got)
	}
	resp, err := g.Health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Health.Check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("published status = %s, want SERVING", resp.GetStatus())
	}

	g.DB = fakePinger{err: errors.New("connection refused")}
	if got := g.Check(ctx); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("failing db status = %s, want NOT_SERVING", got)
	}
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/files/x", nil)
	req = req.WithContext(common.WithRequestID(req.Context(), "req-42"))
	writeError(rec, req, testLogger(), errors.New("driver exploded: secret dsn"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("secret")) {
		t.Error("internal error details leaked to the client")
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"request_id":"req-42"`)) {
		t.Errorf("body %s should carry the request id", rec.Body.String())
	}
}
