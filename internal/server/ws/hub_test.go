package ws

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

type fakeBus struct {
	stream     []domain.StreamMessage
	streamErr  error
	subscribed chan []byte
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if b.subscribed == nil {
		b.subscribed = make(chan []byte)
	}
	return b.subscribed, nil
}

func (b *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.stream = append(b.stream, domain.StreamMessage{Payload: payload})
	return nil
}

func (b *fakeBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	if b.streamErr != nil {
		return nil, b.streamErr
	}
	if count > len(b.stream) {
		count = len(b.stream)
	}
	return b.stream[:count], nil
}

func testHub(bus domain.EventBus) *Hub {
	return NewHub(bus, slog.New(slog.DiscardHandler), Config{
		ISIN:    "DE000TEST0001",
		Mode:    "serve",
		Channel: "ledger:events",
		Stream:  "ledger:events:stream",
	})
}

func TestCatchupCount(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 0},
		{"catchup=50", 50},
		{"catchup=0", 0},
		{"catchup=-3", 0},
		{"catchup=junk", 0},
		{"catchup=99999", maxCatchup},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/ws?"+tt.query, nil)
		assert.Equal(t, tt.want, catchupCount(r), tt.query)
	}
}

func TestQueueBacklogFillsSendBuffer(t *testing.T) {
	bus := &fakeBus{stream: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"seq":1}`)},
		{ID: "2-0", Payload: []byte(`{"seq":2}`)},
		{ID: "3-0", Payload: []byte(`{"seq":3}`)},
	}}
	h := testHub(bus)
	c := &client{hub: h, send: make(chan []byte, sendBufferSize)}

	h.queueBacklog(context.Background(), c, 2)

	require.Len(t, c.send, 2)
	assert.Equal(t, []byte(`{"seq":1}`), <-c.send)
	assert.Equal(t, []byte(`{"seq":2}`), <-c.send)
}

func TestQueueBacklogSurvivesStreamFailure(t *testing.T) {
	bus := &fakeBus{streamErr: assert.AnError}
	h := testHub(bus)
	c := &client{hub: h, send: make(chan []byte, sendBufferSize)}

	assert.NotPanics(t, func() { h.queueBacklog(context.Background(), c, 10) })
	assert.Empty(t, c.send)
}

func TestQueueBacklogNoStreamConfigured(t *testing.T) {
	h := NewHub(&fakeBus{}, slog.New(slog.DiscardHandler), Config{Channel: "ledger:events"})
	c := &client{hub: h, send: make(chan []byte, sendBufferSize)}

	h.queueBacklog(context.Background(), c, 10)
	assert.Empty(t, c.send)
}

func TestHubDropAfterShutdownDoesNotBlock(t *testing.T) {
	h := testHub(&fakeBus{})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- h.Run(ctx) }()

	c := &client{hub: h, send: make(chan []byte, 1)}
	select {
	case h.register <- c:
	case <-time.After(2 * time.Second):
		t.Fatal("register blocked")
	}

	cancel()
	select {
	case err := <-runDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// The read pump detaches via drop when its connection dies; after
	// shutdown nobody serves the unregister channel, so drop must return on
	// the done signal instead of blocking.
	dropDone := make(chan struct{})
	go func() {
		h.drop(c)
		close(dropDone)
	}()
	select {
	case <-dropDone:
	case <-time.After(2 * time.Second):
		t.Fatal("drop blocked after hub shutdown")
	}
}

func TestHubRegisterAndBroadcast(t *testing.T) {
	h := testHub(&fakeBus{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := &client{hub: h, send: make(chan []byte, 4)}
	h.register <- c

	h.broadcast <- []byte(`{"seq":1}`)

	select {
	case msg := <-c.send:
		assert.Equal(t, []byte(`{"seq":1}`), msg)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast not delivered")
	}
}
