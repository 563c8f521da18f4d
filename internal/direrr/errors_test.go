package direrr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageIncludesAttribution(t *testing.T) {
	err := NotFound("booking not found").WithBooking("bk-1")
	assert.Equal(t, `not_found: booking not found (booking=bk-1)`, err.Error())

	err = Conflict("guide double-booked").WithGuide("gd-1").WithRunKey("tour-1|2026-07-31|09:00")
	assert.Contains(t, err.Error(), "(guide=gd-1)")
	assert.Contains(t, err.Error(), "(run=tour-1|2026-07-31|09:00)")
}

func TestErrorWithCauseAppendsUnderlyingMessage(t *testing.T) {
	cause := errors.New("connection reset")
	err := Conflict("update failed").WithCause(cause)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, cause, err.Unwrap())
}

func TestAsMatchesWrappedKind(t *testing.T) {
	err := fmt.Errorf("update booking: %w", ConstraintViolation("capacity exceeded"))
	assert.True(t, As(err, KindConstraintViolated))
	assert.False(t, As(err, KindNotFound))
}

func TestAsFalseForPlainError(t *testing.T) {
	assert.False(t, As(errors.New("plain"), KindValidation))
}

func TestConstructorsSetKind(t *testing.T) {
	assert.Equal(t, KindDispatchFrozen, DispatchFrozen("key", "frozen").Kind)
	assert.Equal(t, KindUnimplemented, Unimplemented("nope").Kind)
	assert.Equal(t, KindValidation, Validation("bad").Kind)
}
