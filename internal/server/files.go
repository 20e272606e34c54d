package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
	"github.com/joseph-ayodele/statements-ledger/internal/ingest"
)

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(mux.Vars(r)[name])
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s must be a UUID", name)
	}
	return id, nil
}

// uploadStatement accepts a multipart "file" part and answers 202 once the
// statement is stored; ingestion continues in the background.
func (a *API) uploadStatement(w http.ResponseWriter, r *http.Request) {
	logger := common.LoggerFromContext(r.Context(), a.logger)

	accountID, err := pathUUID(r, "account_id")
	if err != nil {
		badRequest(w, "INVALID_ACCOUNT_ID", err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	if err := r.ParseMultipartForm(a.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: errorDetail{
				Code:    "FILE_TOO_LARGE",
				Message: fmt.Sprintf("upload exceeds %d bytes", a.MaxUploadBytes),
			}})
			return
		}
		badRequest(w, "INVALID_MULTIPART", "expected multipart/form-data with a file part")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	part, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "MISSING_FILE", "multipart field \"file\" is required")
		return
	}
	defer part.Close()

	content, err := io.ReadAll(part)
	if err != nil {
		logger.Error("failed to read upload", "filename", header.Filename, "error", err)
		writeError(w, r, logger, err)
		return
	}

	res, err := a.Ingest.Upload(r.Context(), ingest.UploadRequest{
		AccountID: accountID,
		Filename:  header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Content:   content,
	})
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (a *API) getFile(w http.ResponseWriter, r *http.Request) {
	logger := common.LoggerFromContext(r.Context(), a.logger)
	fileID, err := pathUUID(r, "file_id")
	if err != nil {
		badRequest(w, "INVALID_FILE_ID", err.Error())
		return
	}
	f, err := a.Ingest.Get(r.Context(), fileID)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (a *API) deleteFile(w http.ResponseWriter, r *http.Request) {
	logger := common.LoggerFromContext(r.Context(), a.logger)
	fileID, err := pathUUID(r, "file_id")
	if err != nil {
		badRequest(w, "INVALID_FILE_ID", err.Error())
		return
	}
	if err := a.Ingest.Delete(r.Context(), fileID); err != nil {
		writeError(w, r, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listFiles(w http.ResponseWriter, r *http.Request) {
	logger := common.LoggerFromContext(r.Context(), a.logger)
	accountID, err := pathUUID(r, "account_id")
	if err != nil {
		badRequest(w, "INVALID_ACCOUNT_ID", err.Error())
		return
	}
	files, err := a.Ingest.ListByAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	if files == nil {
		files = []*entity.StatementFile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}
