package utils

import "errors"

var (
	ErrorRecordNotFound   = errors.New("record not found")
	ErrBusinessIdRequired = errors.New("business id is required")
	ErrLockNotObtained    = errors.New("could not obtain lock for business")
)
