package main

import (
	"bytes"
	"testing"
	"time"

	"outbound-caller/internal/actions"
	"outbound-caller/internal/calls"
	"outbound-caller/internal/outbound"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderOutcome(t *testing.T) {
	joined := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	renderOutcome(&buf, outbound.Outcome{
		Result:    outbound.ResultEnded,
		Status:    calls.StatusHangup,
		Reason:    calls.ReasonHangup,
		SessionID: "s-1",
		RoomID:    "call-abcd1234",
		Identity:  "phone_user_+15551234567",
		JoinedAt:  &joined,
	})

	out := buf.String()
	for _, want := range []string{"ENDED", "HANGUP", "s-1", "call-abcd1234", "2024-05-01T10:00:00Z"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Error")
}

func TestRenderActions(t *testing.T) {
	var buf bytes.Buffer
	renderActions(&buf, actions.New(actions.Deps{}).Commands())

	out := buf.String()
	for _, name := range []string{actions.EndCall, actions.DetectedVoicemail, actions.ScheduleCallback, actions.TransferToHuman} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "time, date")
}

func TestDialRejectsBadInputBeforeLoadingConfig(t *testing.T) {
	cases := map[string][]string{
		"no phone":         {"dial"},
		"invalid metadata": {"dial", "--metadata", "{not json"},
		"empty metadata":   {"dial", "--metadata", "{}"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			root := newRootCmd()
			root.SetArgs(args)
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			require.Error(t, root.Execute())
		})
	}
}

func TestTokenRequiresUser(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"token"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user")
}
