package triage

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package unwraps to exactly one of
// them so the transport layer can map failures with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func validationErrorf(format string, args ...interface{}) error {
	return &kindError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

func newConflict(msg string) error { return &kindError{kind: ErrConflict, msg: msg} }
func newNotFound(msg string) error { return &kindError{kind: ErrNotFound, msg: msg} }

var (
	ErrTemperatureOutOfRange     = validationErrorf("temperature is out of range")
	ErrHeartRateOutOfRange       = validationErrorf("heart rate cannot be negative")
	ErrRespiratoryRateOutOfRange = validationErrorf("respiratory rate cannot be negative")
	ErrBloodPressureOutOfRange   = validationErrorf("blood pressure is out of range")
	ErrInvalidLevel              = validationErrorf("invalid emergency level")

	ErrPhysicianBusy     = newConflict("physician is already attending a patient")
	ErrAlreadyAssigned   = newConflict("patient is already being attended by another physician")
	ErrNoAssignedDoctor  = newConflict("patient has no assigned physician")
	ErrNotAssignedDoctor = newConflict("only the assigned physician can register the attention")
	ErrNotInProgress     = newConflict("admission is not in progress")
	ErrAlreadyFinalized  = newConflict("admission is already finalized")

	ErrQueueEmpty        = newNotFound("no patients in the waiting list")
	ErrAdmissionNotFound = newNotFound("admission not found")
	ErrPatientNotFound   = newNotFound("patient not found")
)
