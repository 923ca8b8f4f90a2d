package pkgerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(CodeRPCTimeout, "primary endpoint", cause)

	require.ErrorIs(t, err, cause)
	code, ok := CodeOf(err)
	require.True(t, ok)
	require.Equal(t, CodeRPCTimeout, code)
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout retryable", New(CodeRPCTimeout, "x"), true},
		{"rate limited retryable", New(CodeRPCRateLimited, "x"), true},
		{"connection failed retryable", New(CodeRPCConnectionFailed, "x"), true},
		{"invalid response not retryable", New(CodeRPCInvalidResponse, "x"), false},
		{"plain error not retryable", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}
