// Package charge composes payment charges for the gateway: installment
// splitting, discount/fine/interest evaluation, net value per billing rail and
// assembly of the submission payload.
package charge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"edunexia/internal/common/validation"
)

// ErrArithmeticInconsistency means an installment plan does not add up to its
// total. It indicates a splitter bug; the charge must not be sent.
var ErrArithmeticInconsistency = errors.New("installment plan does not add up to the charge total")

// ValidationError names the single field that blocks a charge.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

var validate = validation.Validate

// fieldErrors flattens validator output into field -> message, keeping the
// first message per field. Slice indexes are dropped ("billingMethods[1]").
func fieldErrors(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return out
	}
	for _, fe := range verrs {
		field, _, _ := strings.Cut(fe.Field(), "[")
		if _, ok := out[field]; ok {
			continue
		}
		out[field] = messageFor(fe)
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "min":
		if fe.Kind().String() == "slice" {
			return "at least " + fe.Param() + " must be selected"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "unique":
		return "must not contain duplicates"
	default:
		return "is invalid"
	}
}

// firstInOrder returns the error for the earliest field in order.
func firstInOrder(order []string, errs map[string]string) error {
	for _, field := range order {
		if msg, ok := errs[field]; ok {
			return &ValidationError{Field: field, Message: msg}
		}
	}
	for field, msg := range errs {
		return &ValidationError{Field: field, Message: msg}
	}
	return nil
}
