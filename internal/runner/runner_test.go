package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunSuccess(t *testing.T) {
	r := New(nil)
	res, err := r.Run(context.Background(), []string{"echo", "-n", "hello"}, 3)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "hello", string(res.Output))
}

func TestRunFailureExhaustsRetries(t *testing.T) {
	r := New(nil)
	res, err := r.Run(context.Background(), []string{"false"}, 2)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotEqual(t, 0, res.ExitCode)
}

func TestRunLaunchFailureReturnsNil(t *testing.T) {
	r := New(nil)
	res, err := r.Run(context.Background(), []string{"/no/such/binary-elastiq-test"}, 2)
	require.NoError(t, err)
	require.Nil(t, res)
}
