package engine

import (
	"errors"
	"fmt"

	"github.com/talgya/steadfall/internal/resources"
)

// Class groups error codes by how callers should react.
type Class string

const (
	// ClassValidation: malformed input, rejected before any mutation.
	ClassValidation Class = "VALIDATION"
	// ClassPrecondition: state does not allow the command yet; safe to retry
	// after correcting state. Rejected before any mutation.
	ClassPrecondition Class = "PRECONDITION"
	// ClassNotFound: a referenced settlement/structure/item is absent.
	ClassNotFound Class = "NOT_FOUND"
	// ClassConflict: the actor does not own the target settlement.
	ClassConflict Class = "CONFLICT"
	// ClassInternal: persistence or notification failed after or around the
	// authoritative mutation.
	ClassInternal Class = "INTERNAL"
)

// Command rejection codes.
const (
	CodeBadRequest            = "BAD_REQUEST"
	CodePrerequisitesNotMet   = "PREREQUISITES_NOT_MET"
	CodeSlotOccupied          = "SLOT_OCCUPIED"
	CodeSlotReserved          = "SLOT_RESERVED"
	CodeSlotOutOfRange        = "SLOT_OUT_OF_RANGE"
	CodeAreaExhausted         = "AREA_EXHAUSTED"
	CodeTierTooLow            = "TIER_TOO_LOW"
	CodeUniqueConflict        = "UNIQUE_CONFLICT"
	CodeQueueFull             = "QUEUE_FULL"
	CodeInsufficientResources = "INSUFFICIENT_RESOURCES"
	CodeNotFound              = "NOT_FOUND"
	CodeNotOwner              = "NOT_OWNER"
	CodeNotCancellable        = "NOT_CANCELLABLE"
	CodeMaxLevel              = "MAX_LEVEL"
	CodeInternal              = "INTERNAL"
)

// Error is a structured command rejection: a stable code, a class for
// transport mapping, and a detail map rich enough to render a precise
// user-facing message (which resource is short and by how much, which
// prerequisite is missing, which slot is taken).
type Error struct {
	Class  Class
	Code   string
	msg    string
	Detail map[string]any
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on code only, so errors.Is works against sentinel-style checks.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newErr(class Class, code, msg string) *Error {
	return &Error{Class: class, Code: code, msg: msg, Detail: map[string]any{}}
}

func (e *Error) with(key string, value any) *Error {
	e.Detail[key] = value
	return e
}

func validationErr(msg string) *Error {
	return newErr(ClassValidation, CodeBadRequest, msg)
}

func notFoundErr(kind string, id any) *Error {
	return newErr(ClassNotFound, CodeNotFound, kind+" not found").with(kind+"_id", id)
}

func ownershipErr(settlementID, actorID uint64) *Error {
	return newErr(ClassConflict, CodeNotOwner, "settlement not owned by actor").
		with("settlement_id", settlementID).with("actor_id", actorID)
}

func internalErr(msg string, cause error) *Error {
	e := newErr(ClassInternal, CodeInternal, msg)
	e.cause = cause
	return e
}

// insufficientErr converts a ledger shortfall into a command rejection.
func insufficientErr(err error) *Error {
	e := newErr(ClassPrecondition, CodeInsufficientResources, "insufficient resources")
	var short *resources.InsufficientError
	if errors.As(err, &short) {
		detail := map[string]float64{}
		for i, v := range short.Shortfall {
			if v > 0 {
				detail[resources.Type(i).String()] = float64(v) / float64(resources.Milli)
			}
		}
		e.Detail["shortfall"] = detail
	}
	return e
}

// ErrorClass extracts the Class of an engine error, defaulting to INTERNAL.
func ErrorClass(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassInternal
}

// ErrorCode extracts the Code of an engine error, defaulting to INTERNAL.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ErrorDetail extracts the structured detail of an engine error.
func ErrorDetail(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return nil
}
