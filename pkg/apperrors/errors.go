package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrQuery             = errors.New("query failed")
	ErrEmptyResult       = errors.New("empty result")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnsupportedType   = errors.New("unsupported datasource type")
)
