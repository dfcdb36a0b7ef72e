package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRange   = errors.New("invalid date range")
	ErrUnavailable    = errors.New("dates not available")
	ErrNoRate         = errors.New("no rate for requested stay")
	ErrConflict       = errors.New("conflict")
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrUpstream       = errors.New("hostaway request failed")
)
