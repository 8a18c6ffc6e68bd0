package codeerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorWrappingAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(Storage, "failed to write entity", cause).WithSubject("entity-1")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "entity-1")
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, Is(err, Storage))
	assert.False(t, Is(err, Validation))
}

func TestIsOnPlainError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), Internal))
}
