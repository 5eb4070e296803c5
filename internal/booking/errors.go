package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conflict reasons, in the order the validator checks them. A proposed
// interval is rejected with exactly one reason: the first check that fails.
var (
	ErrOutsideWorkingHours = errors.New("outside working hours")
	ErrTimeOffConflict     = errors.New("conflicts with approved time off")
	ErrBlockedTime         = errors.New("conflicts with blocked time")
	ErrDoubleBooking       = errors.New("overlaps another appointment")
)

// ConflictError is the typed rejection for an unbookable interval. Reason is
// one of the sentinel conflict errors above, so callers can branch with
// errors.Is. A requested time is never silently shifted.
type ConflictError struct {
	Reason  error
	StaffID uuid.UUID
	Start   time.Time
	End     time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot book %s to %s for staff %s: %v",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.StaffID, e.Reason)
}

func (e *ConflictError) Unwrap() error {
	return e.Reason
}

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}
