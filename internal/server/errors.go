package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"

	"github.com/joseph-ayodele/statements-ledger/internal/common"
)

type errorDetail struct {
	Code           string     `json:"code"`
	Message        string     `json:"message"`
	ExistingFileID *uuid.UUID `json:"existing_file_id,omitempty"`
	RequestID      string     `json:"request_id,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// httpStatus maps the canonical status of err onto HTTP.
func httpStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.FailedPrecondition:
		return http.StatusConflict
	case codes.Unimplemented:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := common.StatusCode(err)
	status := httpStatus(code)
	detail := errorDetail{Code: code.String(), Message: err.Error()}

	var appErr *common.AppError
	if errors.As(err, &appErr) {
		detail.Code = appErr.Code
		detail.Message = appErr.Message
	}
	var dup *common.DuplicateContentError
	if errors.As(err, &dup) {
		detail.Code = "DUPLICATE_CONTENT"
		detail.ExistingFileID = &dup.ExistingFileID
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		detail.Code = "INTERNAL"
		detail.Message = "internal error"
		detail.RequestID = common.RequestIDFromContext(r.Context())
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func badRequest(w http.ResponseWriter, code, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
