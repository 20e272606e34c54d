package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/statements-ledger/internal/common"
	"github.com/joseph-ayodele/statements-ledger/internal/entity"
)

// dateRange parses optional from/to query values (YYYY-MM-DD).
func dateRange(r *http.Request) (from, to *time.Time, err error) {
	parse := func(key string) (*time.Time, error) {
		raw := strings.TrimSpace(r.URL.Query().Get(key))
		if raw == "" {
			return nil, nil
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be YYYY-MM-DD", key)
		}
		return &t, nil
	}
	if from, err = parse("from"); err != nil {
		return nil, nil, err
	}
	if to, err = parse("to"); err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, fmt.Errorf("to must not be before from")
	}
	return from, to, nil
}

func (a *API) listTransactions(w http.ResponseWriter, r *http.Request) {
	logger := common.LoggerFromContext(r.Context(), a.logger)
	accountID, err := pathUUID(r, "account_id")
	if err != nil {
		badRequest(w, "INVALID_ACCOUNT_ID", err.Error())
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		badRequest(w, "INVALID_DATE", err.Error())
		return
	}
	entries, err := a.Export.Transactions(r.Context(), accountID, from, to)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	if entries == nil {
		entries = []*entity.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": entries, "count": len(entries)})
}

func (a *API) exportTransactions(w http.ResponseWriter, r *http.Request) {
	logger := common.LoggerFromContext(r.Context(), a.logger)
	accountID, err := pathUUID(r, "account_id")
	if err != nil {
		badRequest(w, "INVALID_ACCOUNT_ID", err.Error())
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		badRequest(w, "INVALID_DATE", err.Error())
		return
	}
	xlsx, err := a.Export.TransactionsXLSX(r.Context(), accountID, from, to)
	if err != nil {
		logger.Error("export.xlsx.failed", "account_id", accountID, "err", err)
		writeError(w, r, logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "transactions-"+accountID.String()+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xlsx)
}
