package utils

import (
	"context"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// same tag gin uses for request binding
		validate.SetTagName("binding")
	})
	return validate
}

// ValidateStruct runs the `binding` tags of s.
func ValidateStruct(s interface{}) error {
	return getValidator().Struct(s)
}

// ProcessValidationErrors maps field name to the failing tag.
func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		if err != nil {
			errorResponse["error"] = err.Error()
		}
		return errorResponse
	}
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

// ValidateUnique fails with errDuplicate when column already holds value for the business,
// ignoring the row with excludeId (use 0 on create).
func ValidateUnique[T any](ctx context.Context, businessId string, column string, value interface{}, excludeId int, errDuplicate error) error {
	var count int64
	var err error
	if excludeId > 0 {
		count, err = ResourceCountWhere[T](ctx, businessId, column+" = ? AND id <> ?", value, excludeId)
	} else {
		count, err = ResourceCountWhere[T](ctx, businessId, column+" = ?", value)
	}
	if err != nil {
		return err
	}
	if count > 0 {
		return errDuplicate
	}
	return nil
}
