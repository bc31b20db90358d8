package domain

import "errors"

var (
	ErrNotFound                = errors.New("resource not found")
	ErrContractNotFound        = errors.New("contract not found")
	ErrAnalysisNotFound        = errors.New("analysis not found")
	ErrBlobNotFound            = errors.New("blob not found")
	ErrUnsupportedFileType     = errors.New("unsupported file type")
	ErrFileTooLarge            = errors.New("file exceeds maximum allowed size")
	ErrEmptyFile               = errors.New("file is empty")
	ErrUploadFailed            = errors.New("file upload to storage failed")
	ErrInvalidStatusTransition = errors.New("invalid contract status transition")
	ErrAnalysisInProgress      = errors.New("analysis already in progress for this contract")
	ErrQueueFull               = errors.New("analysis queue is full")
	ErrQueueClosed             = errors.New("analysis queue is not running")
	ErrNoFieldsRequested       = errors.New("at least one field name is required")
)
