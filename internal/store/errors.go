package store

import "errors"

var (
	ErrConflict         = errors.New("conflict")
	ErrNotFound         = errors.New("not found")
	ErrUnknownReference = errors.New("unknown client or service provider")
)
