package main

import (
	"context"
	"net/http"
	"time"

	"outbound-caller/internal/app"
	"outbound-caller/internal/auth"
	"outbound-caller/internal/httpapi"
	"outbound-caller/internal/rbac"
	"outbound-caller/internal/telephony"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, rt *app.App, am *auth.Manager) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := rt.Ready(ctx); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(rt.Metrics.Handler()))

	// Provider webhooks (public, signature-verified).
	wh := telephony.NewWebhookHandler(rt.Config.LiveKit.APIKey, rt.Config.LiveKit.APISecret, rt.Joins)
	r.POST("/webhooks/livekit", wh.Handle)

	h := httpapi.Handlers{
		Auth:      am,
		Sessions:  rt.Manager,
		Audit:     rt.Audit,
		Callbacks: rt.Callbacks,
		Handoff:   rt.Handoff,
		Reports:   rt.Reports,

		LoginDisabled: rt.Config.IsProduction(),
	}

	// NOTE: placeholder login without credential checks; 404 in production.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(am))
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
		})

		// CALLS routes
		calls := v1.Group("/calls")
		{
			calls.POST("", rbac.RequireAnyRole(rbac.RoleDispatcher), h.StartCall)
			calls.GET("/:id", rbac.RequireAnyRole(rbac.RoleDispatcher, rbac.RoleViewer, rbac.RoleAgent), h.GetCall)

			// The voice agent registers and invokes its tools here.
			calls.GET("/:id/actions", rbac.RequireAnyRole(rbac.RoleAgent), h.ListActions)
			calls.POST("/:id/actions/:name", rbac.RequireAnyRole(rbac.RoleAgent), h.InvokeAction)
		}

		v1.GET("/callbacks", rbac.RequireAnyRole(rbac.RoleDispatcher, rbac.RoleViewer), h.ListCallbacks)
		v1.GET("/handoffs/next", rbac.RequireAnyRole(rbac.RoleDispatcher), h.NextHandoff)
		v1.GET("/reports/summary", rbac.RequireAnyRole(rbac.RoleDispatcher, rbac.RoleViewer), h.Summary)
	}
}
