package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"outbound-caller/internal/audit"
	"outbound-caller/internal/auth"
	"outbound-caller/internal/callbacks"
	"outbound-caller/internal/calls"
	"outbound-caller/internal/handoff"
	"outbound-caller/internal/outbound"
	"outbound-caller/internal/rbac"
	"outbound-caller/internal/reporting"
	"outbound-caller/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Sessions *outbound.Manager
	Audit    *audit.Service

	Callbacks *callbacks.Service
	Handoff   handoff.Queue
	Reports   *reporting.Service

	// LoginDisabled turns Login into a 404. Set in production, where tokens
	// come from the identity proxy or the operator CLI.
	LoginDisabled bool
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

var knownRoles = map[string]bool{
	rbac.RoleAdmin:      true,
	rbac.RoleDispatcher: true,
	rbac.RoleViewer:     true,
	rbac.RoleAgent:      true,
}

// Login issues a JWT token pair. Hidden roles are never self-issued.
//
// NOTE: credentials are not checked, so the route is disabled in production.
func (h Handlers) Login(c *gin.Context) {
	if h.LoginDisabled {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	if !knownRoles[req.Role] {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	if rbac.IsHiddenRole(req.Role) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role cannot be requested"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type startCallRequest struct {
	Phone          string `json:"phone"`
	TrunkID        string `json:"trunk_id,omitempty"`
	Room           string `json:"room,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// StartCall dispatches an outbound call and returns immediately.
// RBAC: dispatcher or admin.
func (h Handlers) StartCall(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.TimeoutSeconds < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "timeout_seconds must be >= 0"})
		return
	}

	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())

	started, err := h.Sessions.Start(c.Request.Context(), outbound.StartRequest{
		PhoneNumber: req.Phone,
		TrunkID:     req.TrunkID,
		RoomID:      req.Room,
		Timeout:     time.Duration(req.TimeoutSeconds) * time.Second,
		ActorUserID: uid,
		ActorRole:   role,
	})
	if err != nil {
		logger.FromGin(c).Warn("call start rejected", "err", err)
		status, msg := startError(err)
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusAccepted, started)
}

func startError(err error) (int, string) {
	var verr *calls.ValidationError
	var perr *calls.ProviderError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Msg
	case errors.Is(err, calls.ErrSessionActive):
		return http.StatusConflict, "a call to this number is already live in the room"
	case errors.As(err, &perr):
		return http.StatusBadGateway, perr.Msg
	case errors.Is(err, outbound.ErrShuttingDown):
		return http.StatusServiceUnavailable, "shutting down"
	}
	return http.StatusInternalServerError, "call start failed"
}

func (h Handlers) GetCall(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	v, err := h.Sessions.Get(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, v)
}

// ListActions returns the command table for the agent's tool registration.
func (h Handlers) ListActions(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	d, _, err := h.Sessions.Dispatcher(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": d.Commands()})
}

// InvokeAction runs one agent command. Command failures are reported in
// the result text with a 200, never as an HTTP error.
// RBAC: agent or admin.
func (h Handlers) InvokeAction(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	d, s, err := h.Sessions.Dispatcher(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	args := map[string]string{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "arguments must be a JSON object of strings"})
			return
		}
	}

	name := strings.TrimSpace(c.Param("name"))
	result := d.Invoke(c.Request.Context(), name, args)

	if h.Audit != nil {
		uid, _ := auth.UserID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		sub := audit.Subject{SessionID: s.ID, RoomID: s.RoomID, Identity: s.Identity}
		if err := h.Audit.LogAction(c.Request.Context(), sub, uid, role, name, result); err != nil {
			logger.FromGin(c).Warn("audit action failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// --- Human handoff ---

const maxHandoffWait = 25 * time.Second

// NextHandoff pops the oldest transfer request, waiting up to ?wait seconds.
// 204 when nothing arrived. RBAC: dispatcher or admin.
func (h Handlers) NextHandoff(c *gin.Context) {
	if h.Handoff == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "handoff not configured"})
		return
	}
	wait := time.Duration(0)
	if raw := c.Query("wait"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "wait must be a non-negative integer"})
			return
		}
		wait = min(time.Duration(n)*time.Second, maxHandoffWait)
	}

	r, err := h.Handoff.Dequeue(c.Request.Context(), wait)
	if errors.Is(err, handoff.ErrEmpty) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		logger.FromGin(c).Error("handoff dequeue failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "handoff dequeue failed"})
		return
	}
	c.JSON(http.StatusOK, r)
}

// --- Callbacks ---

// ListCallbacks returns callback intents recorded for ?phone.
func (h Handlers) ListCallbacks(c *gin.Context) {
	if h.Callbacks == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "callbacks not configured"})
		return
	}
	phone, err := calls.Normalize(c.Query("phone"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone required"})
		return
	}
	items, err := h.Callbacks.ForPhone(c.Request.Context(), phone)
	if err != nil {
		logger.FromGin(c).Error("list callbacks failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list callbacks failed"})
		return
	}
	if items == nil {
		items = []callbacks.Intent{}
	}
	c.JSON(http.StatusOK, gin.H{"callbacks": items})
}

// --- Reports ---

// Summary aggregates outcomes between ?from and ?to (RFC 3339). The range
// defaults to the last 24 hours.
func (h Handlers) Summary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reports not configured"})
		return
	}
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	var err error
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
		from = to.Add(-24 * time.Hour)
	}
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
	}

	out, err := h.Reports.Summary(c.Request.Context(), reporting.SummaryRequest{Range: reporting.TimeRange{From: from, To: to}})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("summary failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}
