package merge

import "errors"

var (
	// ErrNoOperationSelected indicates a file or /done arrived before an operation was chosen.
	ErrNoOperationSelected = errors.New("no operation selected")
	// ErrInsufficientFiles indicates the file count does not satisfy the operation.
	ErrInsufficientFiles = errors.New("insufficient files")
	// ErrMergeInProgress indicates the user already has a merge running.
	ErrMergeInProgress = errors.New("merge already in progress")
	// ErrSessionReset indicates the session was reset while a file was being ingested.
	ErrSessionReset = errors.New("session was reset")
	// ErrIngestFailed indicates a source file could not be copied into storage.
	ErrIngestFailed = errors.New("ingest failed")
	// ErrMergeProcessFailed indicates the merge process exited unsuccessfully.
	ErrMergeProcessFailed = errors.New("merge process failed")
	// ErrUploadFailed indicates a multipart upload could not be completed.
	ErrUploadFailed = errors.New("upload failed")
	// ErrNotAuthorized indicates the user has no active authorization.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrUnknownOperation indicates an operation tag outside the menu.
	ErrUnknownOperation = errors.New("unknown operation")
)
