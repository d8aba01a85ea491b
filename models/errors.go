package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for negative or non-numeric quantities, prices and rates.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedPrefix is returned when a configured prefix has 1 or 2 letters after normalisation.
	ErrMalformedPrefix = errors.New("malformed invoice number prefix")

	// ErrMixedTaxScheme is returned when a line item applies IGST together with CGST or SGST.
	ErrMixedTaxScheme = errors.New("igst cannot be combined with cgst/sgst")

	// ErrDuplicateInvoiceNumber is returned when a committed number already exists for the business.
	ErrDuplicateInvoiceNumber = errors.New("duplicate invoice number")

	ErrUnknownDocumentType  = errors.New("unknown document type")
	ErrDocumentCancelled    = errors.New("document is cancelled")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrDuplicateProductName = errors.New("product name already exists")
	ErrDuplicateCustomer    = errors.New("customer already exists")
	ErrResourceInUse        = errors.New("resource is used by documents")
)

// ValidationError wraps a sentinel error with details about the offending field.
type ValidationError struct {
	Err     error
	Details string
}

func (e *ValidationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Details)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalidInput(format string, args ...any) error {
	return &ValidationError{Err: ErrInvalidInput, Details: fmt.Sprintf(format, args...)}
}
