package services

import "errors"

var (
	// Job errors
	ErrJobNotFound      = errors.New("job not found")
	ErrJobBusy          = errors.New("job already running")
	ErrSchedulerStopped = errors.New("scheduler not running")

	// Run errors
	ErrRunNotFound = errors.New("run not found")

	// Document errors
	ErrDocumentNotFound = errors.New("document not found")
	ErrUploadNotAllowed = errors.New("file type not allowed")
)
