package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrAmountTooLarge    = errors.New("amount exceeds maximum allowed")
	ErrAmountTooSmall    = errors.New("amount below minimum allowed")
	ErrInvalidReference  = errors.New("invalid reference")
	ErrInvalidDuration   = errors.New("invalid loan duration")
	ErrCommentTooLong    = errors.New("comment exceeds limit")
	ErrInvalidIDFormat   = errors.New("invalid ID format")
	ErrInvalidMeetingDay = errors.New("meeting date is required")
)

// Validation constants
const (
	MaxAmount          = "1000000000" // 1 billion
	MinAmount          = "0.01"
	MaxReferenceLength = 64
	MaxCommentLength   = 2000
	MaxDurationWeeks   = 520
)

// ValidateAmount validates a monetary amount.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	minAmount, _ := decimal.NewFromString(MinAmount)
	if amount.LessThan(minAmount) {
		return fmt.Errorf("%w: minimum amount is %s", ErrAmountTooSmall, MinAmount)
	}

	maxAmount, _ := decimal.NewFromString(MaxAmount)
	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrAmountTooLarge, MaxAmount)
	}

	return nil
}

// ValidateReference validates an external payment reference such as an M-Pesa code.
func ValidateReference(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ErrMissingReference
	}

	if len(ref) > MaxReferenceLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidReference, MaxReferenceLength)
	}

	for _, r := range ref {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: contains whitespace", ErrInvalidReference)
		}
	}

	return nil
}

// ValidateID rejects empty or oversized identifiers.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" || len(id) > 64 {
		return ErrInvalidIDFormat
	}
	return nil
}

// ValidateDurationWeeks validates a requested loan term.
func ValidateDurationWeeks(weeks int) error {
	if weeks <= 0 || weeks > MaxDurationWeeks {
		return fmt.Errorf("%w: must be between 1 and %d weeks", ErrInvalidDuration, MaxDurationWeeks)
	}
	return nil
}

// ValidateComment limits free-text comments recorded in the audit trail.
func ValidateComment(comment string) error {
	if len(comment) > MaxCommentLength {
		return fmt.Errorf("%w: %d characters max", ErrCommentTooLong, MaxCommentLength)
	}
	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int, error) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}
