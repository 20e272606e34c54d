// Package server exposes the ledger over HTTP and a gRPC health endpoint.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/export"
	"github.com/joseph-ayodele/statements-ledger/internal/ingest"
)

// DefaultMaxUploadBytes bounds a multipart statement upload.
const DefaultMaxUploadBytes = 32 << 20

// Pinger reports database reachability.
type Pinger interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

// API holds the handlers' dependencies.
type API struct {
	Ingest         *ingest.Service
	Export         *export.Service
	DB             Pinger
	MaxUploadBytes int64
	logger         *slog.Logger
}

func NewAPI(ing *ingest.Service, exp *export.Service, db Pinger, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		Ingest:         ing,
		Export:         exp,
		DB:             db,
		MaxUploadBytes: DefaultMaxUploadBytes,
		logger:         logger,
	}
}

// Router wires every route onto a gorilla/mux router.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.requestContext)

	r.HandleFunc("/healthz", a.health).Methods(http.MethodGet)

	r.HandleFunc("/accounts/{account_id}/statements", a.uploadStatement).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{account_id}/files", a.listFiles).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{account_id}/transactions.xlsx", a.exportTransactions).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{account_id}/transactions", a.listTransactions).Methods(http.MethodGet)

	r.HandleFunc("/files/{file_id}", a.getFile).Methods(http.MethodGet)
	r.HandleFunc("/files/{file_id}", a.deleteFile).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Code: "ROUTE_NOT_FOUND", Message: "no such route"}})
	})
	return r
}

// requestContext attaches a request id and a request-scoped logger.
func (a *API) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		logger := a.logger.With("request_id", reqID)

		ctx := common.WithRequestID(r.Context(), reqID)
		ctx = common.WithTraceID(ctx, reqID)
		ctx = common.WithLogger(ctx, logger)
		w.Header().Set("X-Request-ID", reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.DB.HealthCheck(r.Context(), 2*time.Second); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
