package calls

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession("+15551234567", "T1", "R1")
	ctx := context.Background()
	require.NoError(t, s.Transition(ctx, StatusDialing))
	require.NoError(t, s.Transition(ctx, StatusActive))
	return s
}

func TestSession_Lifecycle(t *testing.T) {
	s := NewSession("+15551234567", "T1", "R1")
	assert.Equal(t, StatusPending, s.Status())
	assert.Equal(t, "phone_user_+15551234567", s.Identity)
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.CreatedAt().IsZero())
	assert.True(t, s.JoinedAt().IsZero())

	ctx := context.Background()
	require.NoError(t, s.Transition(ctx, StatusDialing))
	require.NoError(t, s.Transition(ctx, StatusActive))
	joined := s.JoinedAt()
	require.False(t, joined.IsZero())

	require.NoError(t, s.Transition(ctx, StatusAutomating))
	require.NoError(t, s.Transition(ctx, StatusActive))
	assert.Equal(t, joined, s.JoinedAt(), "joined_at is set once")

	require.NoError(t, s.Transition(ctx, StatusHangup))
	ended := s.EndedAt()
	require.False(t, ended.IsZero())

	snap := s.Snapshot()
	assert.Equal(t, StatusHangup, snap.Status)
	require.NotNil(t, snap.EndedAt)
	assert.Equal(t, ended, *snap.EndedAt)
}

func TestSession_TerminalIsFinal(t *testing.T) {
	s := activeSession(t)
	ctx := context.Background()
	require.NoError(t, s.Transition(ctx, StatusTerminated))
	ended := s.EndedAt()

	for _, to := range []Status{StatusActive, StatusDialing, StatusHangup, StatusError, StatusVoicemail} {
		err := s.Transition(ctx, to)
		assert.True(t, errors.Is(err, ErrInvalidTransition), "to %s: %v", to, err)
	}
	assert.Equal(t, StatusTerminated, s.Status())
	assert.Equal(t, ended, s.EndedAt())
}

func TestSession_SameStatusIsNoop(t *testing.T) {
	s := activeSession(t)
	require.NoError(t, s.Transition(context.Background(), StatusActive))
	assert.True(t, s.Can(StatusActive))
}

func TestSession_VoicemailDoesNotReturnToActive(t *testing.T) {
	s := activeSession(t)
	ctx := context.Background()
	require.NoError(t, s.Transition(ctx, StatusVoicemail))
	assert.False(t, s.Can(StatusActive))
	assert.True(t, s.Can(StatusHangup))
}

func TestSession_TimeoutOnlyWhileDialing(t *testing.T) {
	s := NewSession("+15551234567", "T1", "R1")
	ctx := context.Background()
	assert.Error(t, s.Transition(ctx, StatusTimeout))
	require.NoError(t, s.Transition(ctx, StatusDialing))
	require.NoError(t, s.Transition(ctx, StatusTimeout))
	assert.WithinDuration(t, time.Now(), s.EndedAt(), time.Second)
	assert.True(t, s.Status().Terminal())
}
