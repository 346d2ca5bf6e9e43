package prescription

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField       = errors.New("missing required field")
	ErrRevokedRecord      = errors.New("prescription revoked by admin")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrDecryptionFailure  = errors.New("prescription could not be decrypted")
	ErrInvalidSignature   = errors.New("prescription signature is invalid")
	ErrAppointmentExists  = errors.New("appointment already exists")
	ErrInvalidAppointment = errors.New("invalid appointment")
)

func newMissingFieldError(field string) error {
	return fmt.Errorf("%w: '%s' is required", ErrMissingField, field)
}

func newForbiddenError(actor Actor, action string) error {
	return fmt.Errorf("%w: role '%s' cannot %s", ErrForbidden, actor.Role, action)
}

func newNotFoundError(what, id string) error {
	return fmt.Errorf("%w: %s '%s'", ErrNotFound, what, id)
}
