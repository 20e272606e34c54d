package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/statements-ledger/constants"
)

// AllowedExt checks if a file extension is an accepted statement format (csv/xls/xlsx).
func AllowedExt(ext string) bool {
	return constants.IsAllowedExt(ext)
}

// IsHidden checks if a file or directory is hidden (starts with '.').
// Office lock files ("~$report.xlsx") count as hidden too.
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$")
}
