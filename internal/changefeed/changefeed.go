// Package changefeed describes row change notifications pushed by the
// database, consumed as lazy, cancelable sequences.
package changefeed

import (
	"context"
	"iter"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Table names that emit change events.
const (
	TableProducts = "products"
	TableClients  = "clients"
	TableOrders   = "orders"
	TableInvoices = "invoices"
)

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Event is a single row change.
type Event struct {
	Table string
	Op    Op
	ID    string
}

// Subscriber opens change subscriptions. The returned sequence ends when ctx
// is cancelled, when the consumer stops iterating, or after yielding a
// non-nil error. Implementations release their resources in all three cases.
type Subscriber interface {
	Subscribe(ctx context.Context, tables ...string) iter.Seq2[Event, error]
}

// Decode parses a notification payload of the form
// {"table":"orders","op":"INSERT","id":"..."}.
func Decode(payload []byte) (Event, error) {
	var ev Event
	d := jx.DecodeBytes(payload)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "table":
			v, err := d.Str()
			ev.Table = v
			return err
		case "op":
			v, err := d.Str()
			ev.Op = Op(v)
			return err
		case "id":
			v, err := d.Str()
			ev.ID = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return Event{}, errors.Wrap(err, "decode change event")
	}
	if ev.Table == "" || ev.ID == "" {
		return Event{}, errors.New("change event without table or id")
	}
	switch ev.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return Event{}, errors.Errorf("unknown change op %q", ev.Op)
	}
	return ev, nil
}

// Encode renders an event in the notification payload format.
func (ev Event) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("table")
	e.Str(ev.Table)
	e.FieldStart("op")
	e.Str(string(ev.Op))
	e.FieldStart("id")
	e.Str(ev.ID)
	e.ObjEnd()
}

// Filter returns a sequence yielding only events of the given tables. An
// empty table list passes everything through.
func Filter(seq iter.Seq2[Event, error], tables ...string) iter.Seq2[Event, error] {
	if len(tables) == 0 {
		return seq
	}
	return func(yield func(Event, error) bool) {
		for ev, err := range seq {
			if err == nil && !slices.Contains(tables, ev.Table) {
				continue
			}
			if !yield(ev, err) {
				return
			}
		}
	}
}
