package telephony

import (
	"context"
	"net/http"

	"outbound-caller/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
)

const eventParticipantJoined = "participant_joined"

// WebhookHandler verifies LiveKit webhooks and republishes participant joins
// to the join bus.
//
// No business logic here.
type WebhookHandler struct {
	Keys      auth.KeyProvider
	Publisher JoinPublisher
}

func NewWebhookHandler(apiKey, apiSecret string, pub JoinPublisher) WebhookHandler {
	return WebhookHandler{Keys: auth.NewSimpleKeyProvider(apiKey, apiSecret), Publisher: pub}
}

func (h WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Keys == nil || h.Publisher == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook receiver not configured"})
		return
	}

	ev, err := webhook.ReceiveWebhookEvent(c.Request, h.Keys)
	if err != nil {
		log.Warn("livekit webhook rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook"})
		return
	}

	if err := h.dispatch(c.Request.Context(), ev); err != nil {
		log.Error("join publish failed", "event", ev.GetEvent(), "room", ev.GetRoom().GetName(), "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "publish failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// dispatch ignores every event other than participant joins.
func (h WebhookHandler) dispatch(ctx context.Context, ev *livekit.WebhookEvent) error {
	if ev.GetEvent() != eventParticipantJoined || ev.GetParticipant() == nil || ev.GetRoom() == nil {
		return nil
	}
	return h.Publisher.PublishJoin(ctx, ev.GetRoom().GetName(), fromParticipantInfo(ev.GetParticipant()))
}
