package constants

import "strings"

// MaxFilenameLength bounds the original filename kept on an ingestion record.
const MaxFilenameLength = 255

// AllowedExtensions holds the statement container formats accepted at upload.
var AllowedExtensions = map[string]struct{}{
	"csv":  {},
	"xls":  {},
	"xlsx": {},
}

// MediaTypes maps an allowed extension to the media type recorded on upload
// when the client did not declare one.
var MediaTypes = map[string]string{
	"csv":  "text/csv",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// IsAllowedExt reports whether ext (with or without the dot) is an accepted statement format.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
