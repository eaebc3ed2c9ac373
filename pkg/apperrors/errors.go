package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAmbiguousIdentifier = errors.New("identifier matches more than one record")
	ErrPayloadNotFound     = errors.New("data payload not found on storage")
	ErrUnmappedSystem      = errors.New("system has no configured endpoint")
	ErrInvalidRule         = errors.New("invalid relationship rule configuration")
)
