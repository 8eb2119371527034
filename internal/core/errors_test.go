package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: x", ErrInvalidState), "InvalidState"},
		{fmt.Errorf("%w: x", ErrNotFound), "NotFound"},
		{ErrAlreadyConnected, "AlreadyConnected"},
		{ErrIncompatibleCapabilities, "IncompatibleCapabilities"},
		{WrapEngine("produce", errors.New("boom")), "EngineError"},
		{ErrNotAuthorized, "NotAuthorized"},
		{ErrBadRequest, "BadRequest"},
		{ErrRateLimited, "RateLimited"},
		{errors.New("other"), "Internal"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Code(tc.err), "%v", tc.err)
	}
}

func TestEngineErrorUnwraps(t *testing.T) {
	cause := errors.New("socket closed")
	err := fmt.Errorf("join: %w", WrapEngine("create router", cause))

	assert.ErrorIs(t, err, ErrEngine)
	assert.ErrorIs(t, err, cause)

	var ee *EngineError
	assert.ErrorAs(t, err, &ee)
	assert.Equal(t, "create router", ee.Op)
	assert.NoError(t, WrapEngine("noop", nil))
}
