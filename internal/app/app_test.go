package app

import (
	"context"
	"log/slog"
	"testing"

	"outbound-caller/internal/calls"
	"outbound-caller/internal/config"
	"outbound-caller/internal/handoff"
	"outbound-caller/internal/telephony"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	c := config.Config{
		App:     config.AppConfig{Env: "local", Port: 8080},
		Auth:    config.AuthConfig{JWTSecret: "secret"},
		LiveKit: config.LiveKitConfig{URL: "http://localhost:7880", APIKey: "key", APISecret: "secret"},
		Dialer:  config.DialerConfig{OutboundTrunkID: "ST_default"},
	}
	if err := c.Validate(); err != nil {
		panic(err)
	}
	return c
}

func TestNew_WithoutStoresIsProcessLocal(t *testing.T) {
	a, err := New(context.Background(), testConfig(), slog.Default())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.IsType(t, &telephony.MemoryJoinHub{}, a.Joins)
	assert.IsType(t, &calls.MemoryLeases{}, a.Leases)
	assert.IsType(t, &handoff.MemoryQueue{}, a.Handoff)
	require.NotNil(t, a.Manager)
	require.NotNil(t, a.Orchestrator)
	assert.Same(t, a.Leases, a.Orchestrator.Leases)
}

func TestActionDeps(t *testing.T) {
	a, err := New(context.Background(), testConfig(), slog.Default())
	require.NoError(t, err)
	defer a.Close()

	deps := a.ActionDeps()
	assert.NotNil(t, deps.Remover)
	assert.NotNil(t, deps.Callbacks)
	assert.NotNil(t, deps.Handoff)
	assert.Same(t, a.Audit, deps.Audit)
	assert.Equal(t, a.Config.Dialer.VoicemailGrace, deps.VoicemailGrace)
}

func TestNew_RequiresLiveKit(t *testing.T) {
	cfg := testConfig()
	cfg.LiveKit.APISecret = ""
	_, err := New(context.Background(), cfg, slog.Default())
	assert.Error(t, err)
}
