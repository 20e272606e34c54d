package constants

// FileStatus is the processing status of a statement_files row.
type FileStatus string

// Stable values (store these exact strings in DB).
const (
	FileStatusPending    FileStatus = "PENDING"    // uploaded, waiting for a worker
	FileStatusProcessing FileStatus = "PROCESSING" // claimed by a worker
	FileStatusSuccess    FileStatus = "SUCCESS"    // terminal
	FileStatusFailed     FileStatus = "FAILED"     // terminal, error_message set
)

// FileStatuses lists every status in lifecycle order.
var FileStatuses = []string{
	string(FileStatusPending),
	string(FileStatusProcessing),
	string(FileStatusSuccess),
	string(FileStatusFailed),
}

// Terminal reports whether no further transition is allowed from s.
func (s FileStatus) Terminal() bool {
	return s == FileStatusSuccess || s == FileStatusFailed
}
