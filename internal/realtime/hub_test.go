package realtime

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

func newHub(t *testing.T) *Hub {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return NewHub(log)
}

func TestHubSendRoutesByChannel(t *testing.T) {
	h := newHub(t)
	client := h.NewClient("t-1", uuid.New())

	msg := Message{Channel: "t-1", Event: EventNewMessage, Data: "hi"}
	if err := h.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := <-client.Outbound
	if got.Event != EventNewMessage || got.Data != "hi" {
		t.Fatalf("unexpected delivery: %+v", got)
	}
}

func TestHubSendToMissingTransport(t *testing.T) {
	h := newHub(t)
	if err := h.Send(Message{Channel: "nobody", Event: EventToast}); !errors.Is(err, apperrors.ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
	if err := h.Send(Message{Event: EventToast}); !errors.Is(err, apperrors.ErrTransportClosed) {
		t.Fatalf("empty channel should read as closed, got %v", err)
	}
}

func TestHubSendDropsWhenBufferFull(t *testing.T) {
	h := newHub(t)
	client := h.NewClient("t-1", uuid.New())

	for i := 0; i < outboundBuffer; i++ {
		if err := h.Send(Message{Channel: "t-1", Event: EventStreamToken, Data: i}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	// Nothing is reading; the next send must not block or error.
	if err := h.Send(Message{Channel: "t-1", Event: EventStreamToken, Data: "overflow"}); err != nil {
		t.Fatalf("overflow send should be dropped silently, got %v", err)
	}
	if len(client.Outbound) != outboundBuffer {
		t.Fatalf("dropped frame leaked into the buffer: %d", len(client.Outbound))
	}
}

func TestHubCloseClient(t *testing.T) {
	h := newHub(t)
	client := h.NewClient("t-1", uuid.New())

	h.CloseClient(client)
	if h.Len() != 0 {
		t.Fatalf("closed client should be unregistered, Len=%d", h.Len())
	}
	select {
	case <-client.Done():
	default:
		t.Fatal("done channel should be closed")
	}
	// Closing twice is a no-op, not a panic.
	h.CloseClient(client)
	h.CloseClient(nil)
}

func TestHubRebindReplacesClient(t *testing.T) {
	h := newHub(t)
	sessionID := uuid.New()
	old := h.NewClient("t-1", sessionID)
	// A reconnect registers a fresh client under the same transport id
	// before the stale one is torn down.
	fresh := h.NewClient("t-1", sessionID)

	if err := h.Send(Message{Channel: "t-1", Event: EventConnected}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fresh.Outbound) != 1 || len(old.Outbound) != 0 {
		t.Fatal("delivery should reach the fresh client only")
	}

	// Tearing down the stale client must not unregister the fresh one.
	h.CloseClient(old)
	if _, ok := h.Client("t-1"); !ok {
		t.Fatal("fresh client lost after closing the stale one")
	}
	h.CloseClient(fresh)
	if h.Len() != 0 {
		t.Fatalf("expected empty hub, Len=%d", h.Len())
	}
}

func TestHubDeliverBackpressuresNonTokenFrames(t *testing.T) {
	h := newHub(t)
	client := h.NewClient("t-1", uuid.New())
	for i := 0; i < outboundBuffer; i++ {
		client.Outbound <- Message{Event: EventStreamToken}
	}

	// A token frame on a full buffer is dropped, nothing more.
	if err := h.Deliver(Message{Channel: "t-1", Event: EventStreamToken}); err != nil {
		t.Fatalf("token frame should drop silently, got %v", err)
	}
	if len(client.Outbound) != outboundBuffer {
		t.Fatalf("dropped token leaked into the buffer: %d", len(client.Outbound))
	}

	// An ask prompt must wait for the reader instead.
	delivered := make(chan error, 1)
	go func() {
		delivered <- h.Deliver(Message{Channel: "t-1", Event: EventAsk})
	}()
	select {
	case err := <-delivered:
		t.Fatalf("ask frame must not resolve before the buffer drains: %v", err)
	default:
	}
	<-client.Outbound
	if err := <-delivered; err != nil {
		t.Fatalf("Deliver after drain: %v", err)
	}
	for len(client.Outbound) > 1 {
		<-client.Outbound
	}
	if got := <-client.Outbound; got.Event != EventAsk {
		t.Fatalf("expected the ask frame at the tail, got %v", got.Event)
	}
}

func TestHubSendOrBlockOnClosedClient(t *testing.T) {
	h := newHub(t)
	client := h.NewClient("t-1", uuid.New())
	for i := 0; i < outboundBuffer; i++ {
		client.Outbound <- Message{Event: EventStreamToken}
	}
	h.CloseClient(client)
	if err := h.SendOrBlock(Message{Channel: "t-1", Event: EventAsk}); !errors.Is(err, apperrors.ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
}
