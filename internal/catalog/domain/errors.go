package domain

import "errors"

var (
	ErrProductNotFound = errors.New("product not found")
	ErrSizeNotFound    = errors.New("size not found")
)
