package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/liafood/backoffice/internal/changefeed"
)

// streamEvents relays row changes as server-sent events. The default
// subscription is the orders table, which drives new-order notifications.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) error {
	tables := []string{changefeed.TableOrders}
	if v := r.URL.Query().Get("tables"); v != "" {
		tables = strings.Split(v, ",")
		for i, t := range tables {
			switch t = strings.TrimSpace(t); t {
			case changefeed.TableProducts, changefeed.TableClients, changefeed.TableOrders, changefeed.TableInvoices:
				tables[i] = t
			default:
				return invalidInput(errors.Errorf("unknown table %q", t))
			}
		}
	}

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return errors.Wrap(err, "clear write deadline")
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := make(chan changefeed.Event)
	go func() {
		defer close(events)
		for ev, err := range h.events.Subscribe(ctx, tables...) {
			if err != nil {
				zctx.From(ctx).Warn("Event subscription failed", zap.Error(err))
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	hd := w.Header()
	hd.Set("Content-Type", "text/event-stream")
	hd.Set("Cache-Control", "no-cache")
	hd.Set("Connection", "keep-alive")
	hd.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(": connected\n\n")); err != nil {
		return nil
	}
	if err := rc.Flush(); err != nil {
		return nil
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	for {
		var frame []byte
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.Reset()
			ev.Encode(e)
			frame = sseFrame(ev, e.Bytes())
		case <-ticker.C:
			frame = []byte(": keepalive\n\n")
		}
		// Write errors mean the client went away.
		if _, err := w.Write(frame); err != nil {
			return nil
		}
		if err := rc.Flush(); err != nil {
			return nil
		}
	}
}

// sseFrame renders "event: orders.insert" followed by the JSON payload.
func sseFrame(ev changefeed.Event, data []byte) []byte {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(ev.Table)
	b.WriteByte('.')
	b.WriteString(strings.ToLower(string(ev.Op)))
	b.WriteString("\ndata: ")
	b.Write(data)
	b.WriteString("\n\n")
	return []byte(b.String())
}
