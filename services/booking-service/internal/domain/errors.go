package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyBooked = errors.New("slot already booked")
	ErrInvalidIndex  = errors.New("invalid slot index")
	ErrNotBooked     = errors.New("slot is not booked")
	ErrSlotTaken     = errors.New("slot no longer available, choose another")
	ErrActivePayment = errors.New("payment already exists for this booking")
	ErrSlotHeld      = errors.New("slot is held by a booking, cancel the booking instead")

	ErrScheduleExists      = errors.New("schedule already exists for this date")
	ErrScheduleHasBookings = errors.New("schedule has booked slots")
	ErrStaleState          = errors.New("record changed concurrently, retry")
)

// ValidationError is malformed or missing input (400).
type ValidationError struct {
	Msg    string
	Reason error
}

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Unwrap() error { return e.Reason }

func Invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError is a referenced entity that does not exist (404).
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found", e.Entity) }

func NotFound(entity, id string) error { return &NotFoundError{Entity: entity, ID: id} }

// ForbiddenError is an authenticated caller acting outside its rights (403).
type ForbiddenError struct{ Msg string }

func (e *ForbiddenError) Error() string { return e.Msg }

func Forbidden(msg string) error { return &ForbiddenError{Msg: msg} }

// ConflictError is a uniqueness or state clash (409).
type ConflictError struct {
	Msg    string
	Reason error
}

func (e *ConflictError) Error() string { return e.Msg }
func (e *ConflictError) Unwrap() error { return e.Reason }

func Conflict(reason error) error { return &ConflictError{Msg: reason.Error(), Reason: reason} }

// GatewayError is a failure or timeout of the payment provider (502).
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string { return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err) }
func (e *GatewayError) Unwrap() error { return e.Err }

// AlreadyBooked, InvalidIndex and NotBooked are the slot operation failures.
func AlreadyBooked() error { return Conflict(ErrAlreadyBooked) }
func NotBooked() error     { return Conflict(ErrNotBooked) }

func InvalidIndex(idx, n int) error {
	return &ValidationError{Msg: fmt.Sprintf("slot index %d out of range [0,%d)", idx, n), Reason: ErrInvalidIndex}
}
