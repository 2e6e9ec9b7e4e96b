// Package apperr defines the error taxonomy shared by the lifecycle, billing
// and ledger services. Every rejection carries the rule that fired so callers
// can render an actionable message.
package apperr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Error codes exposed to API clients.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeStateConflict     = "STATE_CONFLICT"
	CodeBillingNotSettled = "BILLING_NOT_SETTLED"
	CodeNotFound          = "RESOURCE_NOT_FOUND"
	CodePersistence       = "DATABASE_ERROR"
	CodeLedgerPosting     = "LEDGER_POSTING_FAILED"
)

// Rules referenced by ValidationError and StateConflictError.
const (
	RulePastDate         = "past_date"
	RuleBusinessHours    = "business_hours"
	RuleAmountRequired   = "amount_required"
	RuleAmountForbidden  = "amount_not_allowed"
	RuleNonPositive      = "non_positive_amount"
	RuleAmountPrecision  = "amount_precision"
	RuleOverpayment      = "exceeds_remaining_balance"
	RulePaymentMethod    = "unknown_payment_method"
	RuleVisitKind        = "unknown_visit_kind"
	RulePatientRequired  = "patient_required"
	RuleNotBillable      = "not_billable"
	RuleTerminalStatus   = "terminal_status"
	RuleGracePeriod      = "grace_period_elapsed"
	RuleConcurrentUpdate = "concurrent_update"
)

// ValidationError reports malformed or out-of-policy input. It is always
// raised before any write.
type ValidationError struct {
	Rule    string
	Field   string
	Message string
	Details map[string]any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// StateConflictError reports an operation that is not permitted from the
// current state of the target.
type StateConflictError struct {
	Rule    string
	Status  string
	Message string
	Details map[string]any
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict (%s): %s", e.Status, e.Message)
}

// BillingNotSettledError reports an attempt to execute a billable appointment
// whose invoice is not fully paid.
type BillingNotSettledError struct {
	AppointmentID uuid.UUID
	InvoiceID     uuid.UUID
	InvoiceStatus string
	Paid          decimal.Decimal
	Remaining     decimal.Decimal
}

func (e *BillingNotSettledError) Error() string {
	return fmt.Sprintf("appointment %s cannot be executed: invoice %s is %s (remaining %s)",
		e.AppointmentID, e.InvoiceID, e.InvoiceStatus, e.Remaining.StringFixed(2))
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// PersistenceError wraps an underlying storage failure. It is never retried
// here; the caller resubmits.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// LedgerPostingError is returned together with a payment that was recorded
// but could not be mirrored into the cash ledger.
type LedgerPostingError struct {
	PaymentID uuid.UUID
	Err       error
}

func (e *LedgerPostingError) Error() string {
	return fmt.Sprintf("payment %s recorded but ledger posting failed: %v", e.PaymentID, e.Err)
}

func (e *LedgerPostingError) Unwrap() error { return e.Err }

// Validation builds a ValidationError.
func Validation(rule, field, msg string, details map[string]any) error {
	return &ValidationError{Rule: rule, Field: field, Message: msg, Details: details}
}

// Conflict builds a StateConflictError.
func Conflict(rule, status, msg string, details map[string]any) error {
	return &StateConflictError{Rule: rule, Status: status, Message: msg, Details: details}
}

// NotFound builds a NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Persistence wraps err as a PersistenceError unless it already belongs to
// the taxonomy.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if Known(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// Known reports whether err is one of the typed errors of this package.
func Known(err error) bool {
	var (
		v  *ValidationError
		c  *StateConflictError
		b  *BillingNotSettledError
		nf *NotFoundError
		p  *PersistenceError
		l  *LedgerPostingError
	)
	return errors.As(err, &v) || errors.As(err, &c) || errors.As(err, &b) ||
		errors.As(err, &nf) || errors.As(err, &p) || errors.As(err, &l)
}

// IsValidation returns true if err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConflict returns true if err is a StateConflictError.
func IsConflict(err error) bool {
	var c *StateConflictError
	return errors.As(err, &c)
}

// IsBillingNotSettled returns true if err is a BillingNotSettledError.
func IsBillingNotSettled(err error) bool {
	var b *BillingNotSettledError
	return errors.As(err, &b)
}

// IsNotFound returns true if err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsPersistence returns true if err is a PersistenceError.
func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}

// IsLedgerPosting returns true if err is a LedgerPostingError.
func IsLedgerPosting(err error) bool {
	var l *LedgerPostingError
	return errors.As(err, &l)
}
