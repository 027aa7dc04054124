package master

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/ipc"
)

func TestStopReason_Message(t *testing.T) {
	assert.Equal(t, "finished via clock limit", StopClockLimit.Message())
	assert.Equal(t, "finished via spawn limit", StopSpawnLimit.Message())
	assert.Equal(t, "finished via timeout", StopTimeout.Message())
	assert.Equal(t, "finished via interrupt", StopInterrupt.Message())
}

func TestStopReason_TextRoundTrip(t *testing.T) {
	for r := range stopReasonNames {
		text, err := r.MarshalText()
		require.NoError(t, err)

		var got StopReason
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, r, got)
	}

	_, err := ParseStopReason("gremlins")
	assert.Error(t, err)
}

func TestStopReason_TerminateCause(t *testing.T) {
	tests := []struct {
		reason StopReason
		want   error
	}{
		{StopClockLimit, ipc.ErrTerminateShutdown},
		{StopSpawnLimit, ipc.ErrTerminateShutdown},
		{StopFailure, ipc.ErrTerminateShutdown},
		{StopTimeout, ipc.ErrTerminateTimeout},
		{StopInterrupt, ipc.ErrTerminateInterrupt},
	}
	for _, tt := range tests {
		t.Run(tt.reason.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reason.terminateCause())
		})
	}
}

func TestReasonFromCause(t *testing.T) {
	assert.Equal(t, StopTimeout, reasonFromCause(ErrWallClockTimeout))
	assert.Equal(t, StopTimeout, reasonFromCause(fmt.Errorf("wrapped: %w", ErrWallClockTimeout)))
	assert.Equal(t, StopInterrupt, reasonFromCause(ErrInterrupted))
	assert.Equal(t, StopInterrupt, reasonFromCause(errors.New("context canceled")))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "TERMINATED", StateTerminated.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestLaunchError(t *testing.T) {
	base := errors.New("no capacity")
	err := fmt.Errorf("spawn: %w", &LaunchError{Worker: 4, Err: base})

	assert.True(t, IsLaunchError(err))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "launch worker 4")
	assert.False(t, IsLaunchError(base))
}
