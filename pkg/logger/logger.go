package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// Options controls logger construction.
type Options struct {
	Env string

	// SentryDSN enables error fan-out to Sentry when non-empty.
	SentryDSN string
}

// New returns a production-friendly structured logger.
// No business logic should depend on logging implementation details.
func New(opts Options) (*slog.Logger, error) {
	level := slog.LevelInfo
	if opts.Env == "local" || opts.Env == "dev" {
		level = slog.LevelDebug
	}

	h := slog.Handler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if opts.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: opts.SentryDSN, Environment: opts.Env}); err != nil {
			return nil, fmt.Errorf("sentry init failed: %w", err)
		}
		h = slogmulti.Fanout(h, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
	}
	return slog.New(h), nil
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// ShutdownFlush drains buffered error reports before exit.
func ShutdownFlush(ctx context.Context, timeout time.Duration) error {
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return ctx.Err()
	}
	// Flush is a no-op when Sentry was never initialized.
	sentry.Flush(timeout)
	return nil
}
