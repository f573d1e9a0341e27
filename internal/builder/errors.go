package builder

import (
	"errors"
	"fmt"

	"github.com/roach88/cohortsql/internal/cohort"
)

// Error represents a failure to turn a criterion into SQL.
//
// Compile errors include:
//   - Malformed criterion: a required field is missing or a filter is invalid
//   - Unsupported column: an enclosing query asked for a column the variant
//     cannot produce
//   - Incompatible schema version: the variant does not exist in the target
//     CDM version
//   - Unknown variant: no builder is registered for the criterion
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Kind is the criterion variant involved.
	Kind cohort.Kind

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes builder errors.
type ErrorCode string

const (
	// ErrCodeMalformedCriterion indicates an invalid or incomplete criterion.
	ErrCodeMalformedCriterion ErrorCode = "MALFORMED_CRITERION"

	// ErrCodeUnsupportedColumn indicates a column the variant cannot produce.
	ErrCodeUnsupportedColumn ErrorCode = "UNSUPPORTED_COLUMN"

	// ErrCodeIncompatibleSchemaVersion indicates the variant is outside the
	// target CDM version.
	ErrCodeIncompatibleSchemaVersion ErrorCode = "INCOMPATIBLE_SCHEMA_VERSION"

	// ErrCodeUnknownVariant indicates no builder handles the criterion.
	ErrCodeUnknownVariant ErrorCode = "UNKNOWN_VARIANT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s (kind=%s)", e.Code, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsMalformedCriterion returns true if err is a malformed criterion error.
// Uses errors.As to handle wrapped errors.
func IsMalformedCriterion(err error) bool {
	return hasCode(err, ErrCodeMalformedCriterion)
}

// IsUnsupportedColumn returns true if err is an unsupported column error.
func IsUnsupportedColumn(err error) bool {
	return hasCode(err, ErrCodeUnsupportedColumn)
}

// IsIncompatibleSchemaVersion returns true if err is a version gate error.
func IsIncompatibleSchemaVersion(err error) bool {
	return hasCode(err, ErrCodeIncompatibleSchemaVersion)
}

// IsUnknownVariant returns true if err is an unknown variant error.
func IsUnknownVariant(err error) bool {
	return hasCode(err, ErrCodeUnknownVariant)
}

// NewMalformedError creates an Error for an invalid criterion.
func NewMalformedError(kind cohort.Kind, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeMalformedCriterion,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewUnsupportedColumnError creates an Error for a column the variant
// cannot produce.
func NewUnsupportedColumnError(kind cohort.Kind, column cohort.CriteriaColumn) *Error {
	return &Error{
		Code:    ErrCodeUnsupportedColumn,
		Kind:    kind,
		Message: fmt.Sprintf("column %s is not available", column),
		Details: map[string]string{"column": string(column)},
	}
}

// NewIncompatibleVersionError creates an Error for the version gate.
func NewIncompatibleVersionError(kind cohort.Kind, allowed, target string) *Error {
	return &Error{
		Code:    ErrCodeIncompatibleSchemaVersion,
		Kind:    kind,
		Message: fmt.Sprintf("requires CDM %s, target is %s", allowed, target),
		Details: map[string]string{
			"allowed": allowed,
			"target":  target,
		},
	}
}

// NewUnknownVariantError creates an Error for a criterion without a builder.
func NewUnknownVariantError(kind cohort.Kind, message string) *Error {
	return &Error{
		Code:    ErrCodeUnknownVariant,
		Kind:    kind,
		Message: message,
	}
}
