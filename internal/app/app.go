// Package app assembles the call runtime from configuration. Both the API
// process and the operator CLI build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"outbound-caller/internal/actions"
	"outbound-caller/internal/audit"
	"outbound-caller/internal/callbacks"
	"outbound-caller/internal/calls"
	"outbound-caller/internal/config"
	"outbound-caller/internal/handoff"
	"outbound-caller/internal/metrics"
	"outbound-caller/internal/outbound"
	"outbound-caller/internal/reporting"
	"outbound-caller/internal/telephony"
	"outbound-caller/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

// JoinBus carries participant joins from the webhook receiver to waiting
// sessions.
type JoinBus interface {
	telephony.JoinEvents
	telephony.JoinPublisher
}

type App struct {
	Config config.Config
	Log    *slog.Logger

	// DB and Redis are nil when not configured.
	DB    *sql.DB
	Redis *redis.Client

	LiveKit   *telephony.LiveKit
	Joins     JoinBus
	Leases    calls.Leases
	Handoff   handoff.Queue
	Audit     *audit.Service
	Callbacks *callbacks.Service
	Reports   *reporting.Service
	Metrics   *metrics.Collector

	Orchestrator *outbound.Orchestrator
	Manager      *outbound.Manager
}

// New connects the optional stores and builds the runtime. Without a
// database, callbacks and audit events are kept in memory; without Redis,
// joins, leases and handoffs are process-local.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}

	lk, err := telephony.NewLiveKit(cfg.LiveKit)
	if err != nil {
		return nil, err
	}
	a.LiveKit = lk

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Orchestrator = &outbound.Orchestrator{
		Dialer: calls.NewDialer(lk, log, a.Metrics),
		Waiter: &calls.JoinWaiter{
			Roster:  lk,
			Events:  a.Joins,
			Timeout: cfg.Dialer.JoinTimeout,
			Slice:   cfg.Dialer.JoinPollSlice,
			Log:     log,
		},
		Monitor: &calls.Monitor{
			Roster:   lk,
			Interval: cfg.Dialer.MonitorInterval,
			Log:      log,
			Metrics:  a.Metrics,
		},
		Leases:  a.Leases,
		Audit:   a.Audit,
		Metrics: a.Metrics,
		Log:     log,
	}
	if rl, ok := a.Leases.(*calls.RedisLeases); ok {
		a.Orchestrator.LeaseRenewal = rl.RenewEvery()
	}

	a.Manager = outbound.NewManager(a.Orchestrator, outbound.ManagerConfig{
		DefaultTrunkID: cfg.Dialer.OutboundTrunkID,
		AgentName:      cfg.LiveKit.AgentName,
		Agents:         lk,
		Actions:        a.ActionDeps(),
		Retention:      cfg.Dialer.SessionRetention,
		Audit:          a.Audit,
		Metrics:        a.Metrics,
		Log:            log,
	})
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config

	if cfg.HasDB() {
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.DB = db

		auditRepo := audit.NewPostgresRepo(db)
		if err := auditRepo.Migrate(ctx); err != nil {
			return fmt.Errorf("audit schema: %w", err)
		}
		cbRepo := callbacks.NewPostgresRepo(db)
		if err := cbRepo.Migrate(ctx); err != nil {
			return fmt.Errorf("callbacks schema: %w", err)
		}
		a.Audit = audit.NewService(auditRepo)
		a.Reports = reporting.NewService(auditRepo)
		a.Callbacks = callbacks.NewService(cbRepo)
	} else {
		a.Log.Info("no database configured, keeping callbacks and audit events in memory")
		auditRepo := audit.NewMemoryRepo()
		a.Audit = audit.NewService(auditRepo)
		a.Reports = reporting.NewService(auditRepo)
		a.Callbacks = callbacks.NewService(callbacks.NewMemoryRepo())
	}

	if cfg.HasRedis() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb
		a.Joins = telephony.NewRedisJoinBus(rdb, a.Log)
		a.Leases = calls.NewRedisLeases(rdb, cfg.Dialer.LeaseTTL)
		a.Handoff = handoff.NewRedisQueue(rdb, handoff.DefaultQueueKey)
	} else {
		a.Log.Info("no redis configured, joins, leases and handoffs are process-local")
		a.Joins = telephony.NewMemoryJoinHub()
		a.Leases = calls.NewMemoryLeases()
		a.Handoff = handoff.NewMemoryQueue()
	}
	return nil
}

// ActionDeps returns the collaborators each session's dispatcher gets.
func (a *App) ActionDeps() actions.Deps {
	return actions.Deps{
		Remover:        a.LiveKit,
		Callbacks:      a.Callbacks,
		Handoff:        a.Handoff,
		Audit:          a.Audit,
		Metrics:        a.Metrics,
		VoicemailGrace: a.Config.Dialer.VoicemailGrace,
		Log:            a.Log,
	}
}

// Ready checks every configured dependency.
func (a *App) Ready(ctx context.Context) error {
	var errs []error
	if err := a.LiveKit.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("livekit: %w", err))
	}
	if a.DB != nil {
		if err := utils.HealthCheck(ctx, a.DB, 2*time.Second); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis ping failed: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the store connections. Sessions must be shut down first.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
