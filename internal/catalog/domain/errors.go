package domain

import "errors"

var (
	ErrNotFound         = errors.New("catalog: not found")
	ErrUnknownSource    = errors.New("catalog: unknown source")
	ErrMissingProductID = errors.New("catalog: missing product id")
)
