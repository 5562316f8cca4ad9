package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/livekit"
	"github.com/twitchtv/twirp"
)

func TestParticipantCallStatus(t *testing.T) {
	p := Participant{Identity: "phone_user_+1", Attributes: map[string]string{AttrCallStatus: "active"}}
	if s, ok := p.CallStatus(); !ok || s != "active" {
		t.Fatalf("expected active, got %q %v", s, ok)
	}
	if _, ok := (Participant{}).CallStatus(); ok {
		t.Fatalf("expected absent status")
	}
	p.Attributes[AttrCallStatus] = ""
	if _, ok := p.CallStatus(); ok {
		t.Fatalf("expected empty status to read as absent")
	}
}

func TestErrorMessage_UsesProviderMessage(t *testing.T) {
	err := fmt.Errorf("telephony: create sip participant: %w", twirp.NewError(twirp.InvalidArgument, "trunk not found"))
	if got := ErrorMessage(err); got != "trunk not found" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := ErrorMessage(errors.New("boom")); got != "boom" {
		t.Fatalf("unexpected message %q", got)
	}
	if ErrorMessage(nil) != "" {
		t.Fatalf("expected empty message for nil")
	}
	if !isNotFound(twirp.NotFoundError("room")) {
		t.Fatalf("expected not found")
	}
}

func TestRemoveError_MapsNotFound(t *testing.T) {
	if err := removeError(twirp.NewError(twirp.NotFound, "participant not found")); !errors.Is(err, ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
	err := removeError(twirp.NewError(twirp.Unavailable, "down"))
	if err == nil || errors.Is(err, ErrParticipantNotFound) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
	if removeError(nil) != nil {
		t.Fatalf("expected nil")
	}
}

func TestMemoryJoinHub_FiltersByRoomAndIdentity(t *testing.T) {
	hub := NewMemoryJoinHub()
	ctx := context.Background()

	sub, err := hub.SubscribeJoins(ctx, "room-a", "phone_user_+1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	_ = hub.PublishJoin(ctx, "room-b", Participant{Identity: "phone_user_+1"})
	_ = hub.PublishJoin(ctx, "room-a", Participant{Identity: "agent"})
	select {
	case p := <-sub.C():
		t.Fatalf("unexpected delivery %+v", p)
	default:
	}

	_ = hub.PublishJoin(ctx, "room-a", Participant{Identity: "phone_user_+1"})
	// a second publish must not block on the full buffer
	_ = hub.PublishJoin(ctx, "room-a", Participant{Identity: "phone_user_+1"})
	select {
	case p := <-sub.C():
		if p.Identity != "phone_user_+1" {
			t.Fatalf("unexpected identity %q", p.Identity)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected join delivery")
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = sub.Close()
	if hub.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", hub.Subscribers())
	}
}

func TestMemoryControlPlane_Roster(t *testing.T) {
	m := NewMemoryControlPlane()
	ctx := context.Background()

	if _, err := m.ListParticipants(ctx, "nope"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}

	if _, err := m.CreateCallParticipant(ctx, CreateCallRequest{RoomID: "r", Identity: "phone_user_+1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	ps, err := m.ListParticipants(ctx, "r")
	if err != nil || len(ps) != 0 {
		t.Fatalf("expected empty roster, got %v %v", ps, err)
	}

	m.Join("r", Participant{Identity: "phone_user_+1"})
	m.SetAttribute("r", "phone_user_+1", AttrCallStatus, "active")
	ps, _ = m.ListParticipants(ctx, "r")
	p, ok := FindParticipant(ps, "phone_user_+1")
	if !ok {
		t.Fatalf("expected participant listed")
	}
	if s, _ := p.CallStatus(); s != "active" {
		t.Fatalf("expected active, got %q", s)
	}

	if err := m.RemoveParticipant(ctx, "r", "phone_user_+1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	ps, _ = m.ListParticipants(ctx, "r")
	if len(ps) != 0 {
		t.Fatalf("expected participant removed")
	}
	if got := m.Removed(); len(got) != 1 || got[0] != "phone_user_+1" {
		t.Fatalf("unexpected removals %v", got)
	}
}

func TestWebhookHandler_RejectsUnsigned(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewMemoryJoinHub()
	h := NewWebhookHandler("key", "secret-secret-secret-secret-secret", hub)

	r := gin.New()
	r.POST("/webhooks/livekit", h.Handle)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/livekit", strings.NewReader(`{"event":"participant_joined"}`))
	req.Header.Set("Content-Type", "application/webhook+json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestWebhookHandler_PublishesParticipantJoined(t *testing.T) {
	hub := NewMemoryJoinHub()
	h := WebhookHandler{Publisher: hub}
	ctx := context.Background()

	sub, _ := hub.SubscribeJoins(ctx, "call-1", "phone_user_+15551234567")
	defer sub.Close()

	err := h.dispatch(ctx, &livekit.WebhookEvent{
		Event: "room_started",
		Room:  &livekit.Room{Name: "call-1"},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	err = h.dispatch(ctx, &livekit.WebhookEvent{
		Event: "participant_joined",
		Room:  &livekit.Room{Name: "call-1"},
		Participant: &livekit.ParticipantInfo{
			Identity:   "phone_user_+15551234567",
			Attributes: map[string]string{AttrCallStatus: "active"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	select {
	case p := <-sub.C():
		if s, _ := p.CallStatus(); s != "active" {
			t.Fatalf("expected attributes carried, got %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected join published")
	}
}
