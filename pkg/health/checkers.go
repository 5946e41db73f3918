package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports the database unreachable when Ping fails.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// ConnectedCheck fails while connected reports false for longer than grace.
// It is meant for long-lived subscriptions that reconnect on their own.
func ConnectedCheck(connected func() bool, grace time.Duration) CheckFunc {
	var downSince time.Time
	return func(context.Context) error {
		if connected() {
			downSince = time.Time{}
			return nil
		}
		now := time.Now()
		if downSince.IsZero() {
			downSince = now
		}
		if d := now.Sub(downSince); d > grace {
			return errors.Errorf("disconnected for %s", d.Round(time.Second))
		}
		return nil
	}
}

// GoroutineCountCheck fails when the goroutine count exceeds threshold.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}
