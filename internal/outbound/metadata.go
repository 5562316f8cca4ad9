package outbound

import (
	"encoding/json"
	"strings"

	"outbound-caller/internal/calls"
)

// JobMetadata is attached to the agent dispatch so the voice pipeline knows
// who it is calling. Older dispatchers send a bare phone number instead of
// JSON.
type JobMetadata struct {
	PhoneNumber string `json:"phone_number"`
	TrunkID     string `json:"trunk_id,omitempty"`
}

func (m JobMetadata) Encode() string {
	raw, _ := json.Marshal(m)
	return string(raw)
}

// ParseJobMetadata accepts either form. The phone number is normalized.
func ParseJobMetadata(raw string) (JobMetadata, error) {
	raw = strings.TrimSpace(raw)

	var m JobMetadata
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return JobMetadata{}, &calls.ValidationError{Msg: "invalid job metadata"}
		}
	} else {
		m.PhoneNumber = raw
	}

	phone, err := calls.Normalize(m.PhoneNumber)
	if err != nil {
		return JobMetadata{}, err
	}
	m.PhoneNumber = phone
	m.TrunkID = strings.TrimSpace(m.TrunkID)
	return m, nil
}
