package telephony

import (
	"context"
	"errors"
	"fmt"

	"github.com/livekit/protocol/livekit"
	"github.com/twitchtv/twirp"
)

// AttrCallStatus is the provider-maintained participant attribute that tracks
// SIP call progress (dialing, active, automating, hangup, ...).
const AttrCallStatus = livekit.AttrSIPCallStatus

// ErrRoomNotFound is returned by roster reads when the room no longer exists.
var ErrRoomNotFound = errors.New("telephony: room not found")

// ErrParticipantNotFound is returned by RemoveParticipant when the identity
// already left the room.
var ErrParticipantNotFound = errors.New("telephony: participant not found")

// ControlPlane is the provider-agnostic surface the call lifecycle depends on.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Participant removal is only requested by the action dispatcher.
type ControlPlane interface {
	CreateCallParticipant(ctx context.Context, req CreateCallRequest) (CallAck, error)
	ListParticipants(ctx context.Context, roomID string) ([]Participant, error)
	RemoveParticipant(ctx context.Context, roomID, identity string) error
}

// JoinEvents delivers "participant joined" notifications for one identity.
type JoinEvents interface {
	SubscribeJoins(ctx context.Context, roomID, identity string) (Subscription, error)
}

// JoinPublisher fans a joined participant out to subscribers.
type JoinPublisher interface {
	PublishJoin(ctx context.Context, roomID string, p Participant) error
}

// Subscription is a filtered join-event stream. C is never closed by the
// sender while the subscription is open; Close is idempotent.
type Subscription interface {
	C() <-chan Participant
	Close() error
}

// AgentDispatcher asks the provider to start a voice agent in a room.
type AgentDispatcher interface {
	DispatchAgent(ctx context.Context, req AgentDispatchRequest) (dispatchID string, err error)
}

// Participant is a member of a session room as seen by the control plane.
type Participant struct {
	Identity   string            `json:"identity"`
	Name       string            `json:"name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// CallStatus returns the raw call-status attribute, if present.
func (p Participant) CallStatus() (string, bool) {
	v, ok := p.Attributes[AttrCallStatus]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// CreateCallRequest asks the provider to dial ToNumber over TrunkID and
// join the callee into RoomID as Identity.
type CreateCallRequest struct {
	RoomID      string `json:"room_id"`
	TrunkID     string `json:"trunk_id"`
	ToNumber    string `json:"to_number"`
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`

	// PlayDialtone plays ringback to the room while the call connects.
	PlayDialtone bool `json:"play_dialtone"`
}

// CallAck is the provider's acknowledgement of a submitted call.
type CallAck struct {
	ParticipantID string `json:"participant_id,omitempty"`
	SIPCallID     string `json:"sip_call_id,omitempty"`
}

type AgentDispatchRequest struct {
	AgentName string `json:"agent_name"`
	RoomID    string `json:"room_id"`
	Metadata  string `json:"metadata,omitempty"`
}

// FindParticipant returns the participant with identity, if listed.
func FindParticipant(ps []Participant, identity string) (Participant, bool) {
	for _, p := range ps {
		if p.Identity == identity {
			return p, true
		}
	}
	return Participant{}, false
}

// ErrorMessage extracts the provider's own message from err when the error
// came over the provider API, else err.Error().
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var terr twirp.Error
	if errors.As(err, &terr) {
		return terr.Msg()
	}
	return err.Error()
}

// removeError maps a provider "not found" on removal to ErrParticipantNotFound.
func removeError(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return ErrParticipantNotFound
	}
	return fmt.Errorf("telephony: remove participant: %w", err)
}

func isNotFound(err error) bool {
	var terr twirp.Error
	return errors.As(err, &terr) && terr.Code() == twirp.NotFound
}
