package postgres

import (
	"context"
	"fmt"
	"iter"

	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/liafood/backoffice/internal/changefeed"
)

// ChangeChannel is the NOTIFY channel fed by the table triggers.
const ChangeChannel = "backoffice_changes"

var _ changefeed.Subscriber = (*Changefeed)(nil)

// Changefeed streams row changes using LISTEN/NOTIFY. Every subscription
// takes one connection out of the pool and closes it when iteration stops.
type Changefeed struct {
	pool *pgxpool.Pool
}

// NewChangefeed returns a Changefeed on the given pool.
func NewChangefeed(pool *pgxpool.Pool) *Changefeed {
	return &Changefeed{pool: pool}
}

// Subscribe implements changefeed.Subscriber. Nothing happens until the
// sequence is ranged over. Malformed payloads are logged and skipped; a
// connection failure is yielded once and ends the sequence.
func (c *Changefeed) Subscribe(ctx context.Context, tables ...string) iter.Seq2[changefeed.Event, error] {
	seq := func(yield func(changefeed.Event, error) bool) {
		pooled, err := c.pool.Acquire(ctx)
		if err != nil {
			yield(changefeed.Event{}, fmt.Errorf("acquiring listen connection: %w", err))
			return
		}
		// LISTEN state must not leak back into the pool.
		conn := pooled.Hijack()
		defer conn.Close(context.WithoutCancel(ctx))

		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ChangeChannel}.Sanitize()); err != nil {
			yield(changefeed.Event{}, fmt.Errorf("listening on %s: %w", ChangeChannel, err))
			return
		}

		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					yield(changefeed.Event{}, fmt.Errorf("waiting for notification: %w", err))
				}
				return
			}
			ev, err := changefeed.Decode([]byte(n.Payload))
			if err != nil {
				zctx.From(ctx).Warn("Skipping malformed change notification",
					zap.String("payload", n.Payload), zap.Error(err))
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
	return changefeed.Filter(seq, tables...)
}
