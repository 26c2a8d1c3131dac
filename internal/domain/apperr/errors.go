// Package apperr holds the error taxonomy shared by the approval engines.
// Structured errors carry context and unwrap to a sentinel, so callers can
// branch with errors.Is and still read the details with errors.As.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidState           = errors.New("invalid state")
	ErrPolicy                 = errors.New("policy violation")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrNotFound               = errors.New("not found")
	ErrAuthorization          = errors.New("not authorized")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

type Kind string

const (
	KindValidation             Kind = "validation"
	KindInvalidState           Kind = "invalid_state"
	KindPolicy                 Kind = "policy"
	KindInsufficientBalance    Kind = "insufficient_balance"
	KindNotFound               Kind = "not_found"
	KindAuthorization          Kind = "authorization"
	KindConcurrentModification Kind = "concurrent_modification"
	KindInternal               Kind = "internal"
)

// KindOf maps an error to its stable kind. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrPolicy):
		return KindPolicy
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAuthorization):
		return KindAuthorization
	case errors.Is(err, ErrConcurrentModification):
		return KindConcurrentModification
	default:
		return KindInternal
	}
}

type FieldIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type ValidationError struct {
	Issues []FieldIssue
}

// Validation builds a ValidationError for a single field.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Issues: []FieldIssue{{Field: field, Reason: reason}}}
}

func (e *ValidationError) Add(field, reason string) {
	e.Issues = append(e.Issues, FieldIssue{Field: field, Reason: reason})
}

func (e *ValidationError) HasIssues() bool {
	return e != nil && len(e.Issues) > 0
}

// OrNil returns nil when no issue was recorded.
func (e *ValidationError) OrNil() error {
	if !e.HasIssues() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+": "+issue.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

type InvalidStateError struct {
	Entity  string
	ID      string
	Current string
	Op      string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in status %s", e.Op, e.Entity, e.ID, e.Current)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

type PolicyError struct {
	Rule   string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy %s: %s", e.Rule, e.Reason)
}

func (e *PolicyError) Unwrap() error {
	return ErrPolicy
}

type InsufficientBalanceError struct {
	Category  string
	Available decimal.Decimal
	Requested decimal.Decimal
	Shortfall decimal.Decimal
}

func NewInsufficientBalance(category string, available, requested decimal.Decimal) *InsufficientBalanceError {
	return &InsufficientBalanceError{
		Category:  category,
		Available: available,
		Requested: requested,
		Shortfall: requested.Sub(available),
	}
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: available %s, requested %s, shortfall %s",
		e.Category, e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

type NotFoundError struct {
	Entity string
	ID     string
}

func NotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

type AuthorizationError struct {
	Role   string
	Action string
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("role %s may not %s: %s", e.Role, e.Action, e.Reason)
	}
	return fmt.Sprintf("role %s may not %s", e.Role, e.Action)
}

func (e *AuthorizationError) Unwrap() error {
	return ErrAuthorization
}

// IsClientError reports whether the caller can fix the failure by changing input or state.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindInternal, "":
		return false
	default:
		return true
	}
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
