package telephony

import (
	"context"
	"errors"
	"fmt"

	"outbound-caller/internal/config"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// LiveKit adapts the LiveKit server API (SIP, room and agent dispatch
// services) to ControlPlane and AgentDispatcher.
//
// Keep this adapter free of business logic: it only translates between
// internal types and the protocol messages.
type LiveKit struct {
	sip    *lksdk.SIPClient
	rooms  *lksdk.RoomServiceClient
	agents *lksdk.AgentDispatchClient
}

func NewLiveKit(cfg config.LiveKitConfig) (*LiveKit, error) {
	if cfg.URL == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("telephony: livekit url, api key and secret are required")
	}
	return &LiveKit{
		sip:    lksdk.NewSIPClient(cfg.URL, cfg.APIKey, cfg.APISecret),
		rooms:  lksdk.NewRoomServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret),
		agents: lksdk.NewAgentDispatchServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret),
	}, nil
}

func (l *LiveKit) Name() string { return "livekit" }

// HealthCheck performs a cheap authenticated call against the room service.
func (l *LiveKit) HealthCheck(ctx context.Context) error {
	_, err := l.rooms.ListRooms(ctx, &livekit.ListRoomsRequest{Names: []string{"healthcheck"}})
	if err != nil {
		return fmt.Errorf("telephony: livekit health: %w", err)
	}
	return nil
}

func (l *LiveKit) CreateCallParticipant(ctx context.Context, req CreateCallRequest) (CallAck, error) {
	info, err := l.sip.CreateSIPParticipant(ctx, &livekit.CreateSIPParticipantRequest{
		SipTrunkId:          req.TrunkID,
		SipCallTo:           req.ToNumber,
		RoomName:            req.RoomID,
		ParticipantIdentity: req.Identity,
		ParticipantName:     req.DisplayName,
		PlayDialtone:        req.PlayDialtone,
	})
	if err != nil {
		return CallAck{}, fmt.Errorf("telephony: create sip participant: %w", err)
	}
	return CallAck{ParticipantID: info.GetParticipantId(), SIPCallID: info.GetSipCallId()}, nil
}

func (l *LiveKit) ListParticipants(ctx context.Context, roomID string) ([]Participant, error) {
	res, err := l.rooms.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: roomID})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("telephony: list participants: %w", err)
	}
	out := make([]Participant, 0, len(res.GetParticipants()))
	for _, p := range res.GetParticipants() {
		out = append(out, fromParticipantInfo(p))
	}
	return out, nil
}

func (l *LiveKit) RemoveParticipant(ctx context.Context, roomID, identity string) error {
	_, err := l.rooms.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{Room: roomID, Identity: identity})
	return removeError(err)
}

func (l *LiveKit) DispatchAgent(ctx context.Context, req AgentDispatchRequest) (string, error) {
	d, err := l.agents.CreateDispatch(ctx, &livekit.CreateAgentDispatchRequest{
		AgentName: req.AgentName,
		Room:      req.RoomID,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return "", fmt.Errorf("telephony: create agent dispatch: %w", err)
	}
	return d.GetId(), nil
}

func fromParticipantInfo(p *livekit.ParticipantInfo) Participant {
	attrs := make(map[string]string, len(p.GetAttributes()))
	for k, v := range p.GetAttributes() {
		attrs[k] = v
	}
	return Participant{Identity: p.GetIdentity(), Name: p.GetName(), Attributes: attrs}
}
