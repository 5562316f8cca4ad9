package outbound

import (
	"errors"
	"testing"

	"outbound-caller/internal/calls"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobMetadata(t *testing.T) {
	m, err := ParseJobMetadata(`{"phone_number":"555-123-4567","trunk_id":"ST_abc"}`)
	require.NoError(t, err)
	assert.Equal(t, JobMetadata{PhoneNumber: "+5551234567", TrunkID: "ST_abc"}, m)

	m, err = ParseJobMetadata(" +15551234567 ")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", m.PhoneNumber)
	assert.Empty(t, m.TrunkID)

	back, err := ParseJobMetadata(JobMetadata{PhoneNumber: "+15551234567", TrunkID: "T1"}.Encode())
	require.NoError(t, err)
	assert.Equal(t, "T1", back.TrunkID)
}

func TestParseJobMetadata_Invalid(t *testing.T) {
	for _, raw := range []string{"", `{"trunk_id":"T1"}`, `{"phone_number":`} {
		_, err := ParseJobMetadata(raw)
		var verr *calls.ValidationError
		assert.True(t, errors.As(err, &verr), "input %q: %v", raw, err)
	}
}
