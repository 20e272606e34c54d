package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-ledger/constants"
)

// AssignSyntheticIDs gives every row without a bank transaction id a
// deterministic one derived from its content. Identical lines within a file
// are told apart by their occurrence ordinal, so re-reading the same file
// yields the same ids. It returns how many ids were generated.
func AssignSyntheticIDs(accountID uuid.UUID, rows []Row) int {
	seen := make(map[string]int)
	n := 0
	for i := range rows {
		if rows[i].BankTransactionID != nil {
			continue
		}
		base := syntheticBase(accountID, &rows[i])
		occurrence := seen[base]
		seen[base] = occurrence + 1

		sum := sha256.Sum256([]byte(base + "|" + strconv.Itoa(occurrence)))
		id := constants.SyntheticTxnIDPrefix + hex.EncodeToString(sum[:])
		rows[i].BankTransactionID = &id
		n++
	}
	return n
}

func syntheticBase(accountID uuid.UUID, r *Row) string {
	return strings.Join([]string{
		accountID.String(),
		r.Timestamp.UTC().Format(time.RFC3339),
		r.Amount.String(),
		r.Description,
		deref(r.CounterpartyName),
		deref(r.CounterpartyAccount),
	}, "|")
}
