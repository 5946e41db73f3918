package changefeed

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"table":"orders","op":"INSERT","id":"o-1","extra":[1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, Event{Table: TableOrders, Op: OpInsert, ID: "o-1"}, ev)
}

func TestDecode_Invalid(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`{"table":"orders","op":"INSERT"}`,
		`{"table":"orders","op":"TRUNCATE","id":"x"}`,
		`{"op":"UPDATE","id":"x"}`,
	} {
		_, err := Decode([]byte(payload))
		assert.Error(t, err, payload)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ev := Event{Table: TableProducts, Op: OpDelete, ID: "p-9"}
	var e jx.Encoder
	ev.Encode(&e)

	got, err := Decode(e.Bytes())
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestHub_SubscribeFiltersAndStops(t *testing.T) {
	hub := NewHub(8)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan Event, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev, err := range hub.Subscribe(ctx, TableOrders) {
			require.NoError(t, err)
			received <- ev
			if ev.ID == "last" {
				return
			}
		}
	}()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(Event{Table: TableProducts, Op: OpUpdate, ID: "ignored"})
	hub.Publish(Event{Table: TableOrders, Op: OpInsert, ID: "first"})
	hub.Publish(Event{Table: TableOrders, Op: OpUpdate, ID: "last"})

	<-done
	assert.Equal(t, "first", (<-received).ID)
	assert.Equal(t, "last", (<-received).ID)
	assert.Equal(t, 0, hub.Subscribers())
}

func TestHub_ContextCancelUnsubscribes(t *testing.T) {
	hub := NewHub(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range hub.Subscribe(ctx) {
		}
	}()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 0, hub.Subscribers())

	// Publishing with no subscribers must not block.
	hub.Publish(Event{Table: TableOrders, Op: OpInsert, ID: "x"})
}

type staticSource struct {
	events []Event
	err    error
}

func (s staticSource) Subscribe(_ context.Context, tables ...string) iter.Seq2[Event, error] {
	return Filter(func(yield func(Event, error) bool) {
		for _, ev := range s.events {
			if !yield(ev, nil) {
				return
			}
		}
		if s.err != nil {
			yield(Event{}, s.err)
		}
	}, tables...)
}

func TestHub_Relay(t *testing.T) {
	hub := NewHub(8)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, stop := iter.Pull2(hub.Subscribe(ctx))
	defer stop()

	lost := errors.New("connection lost")
	src := staticSource{
		events: []Event{{Table: TableOrders, Op: OpInsert, ID: "o-1"}},
		err:    lost,
	}

	relayed := make(chan error, 1)
	go func() {
		// Wait until the pulled subscription is registered.
		for hub.Subscribers() == 0 {
			time.Sleep(time.Millisecond)
		}
		relayed <- hub.Relay(ctx, src)
	}()

	ev, err, ok := sub()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, "o-1", ev.ID)

	require.ErrorIs(t, <-relayed, lost)
	assert.False(t, hub.Connected())
}
