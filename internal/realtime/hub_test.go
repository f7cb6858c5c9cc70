package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbd888/agentdex/internal/listing"
	"github.com/mbd888/agentdex/internal/logging"
)

func testHub() *Hub {
	return NewHub(logging.Discard())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func refreshEvent(chain string, src listing.Source) *Event {
	r := listing.Refresh{Chain: chain, Source: src, Count: 3, At: time.Now()}
	return &Event{Type: EventListingRefreshed, Chain: chain, Timestamp: r.At, Data: r}
}

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true, Chains: []string{"base"}}}

	if !h.shouldSend(client, refreshEvent("sepolia", listing.SourceOnChain)) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventMetadataCleared},
	}}

	if !h.shouldSend(client, &Event{Type: EventMetadataCleared}) {
		t.Error("Should receive metadata_cleared events")
	}
	if h.shouldSend(client, refreshEvent("base", listing.SourceOnChain)) {
		t.Error("Should NOT receive listing_refreshed events")
	}
}

func TestShouldSend_ChainFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{Chains: []string{"base-sepolia"}}}

	if !h.shouldSend(client, refreshEvent("base-sepolia", listing.SourceOnChain)) {
		t.Error("Should match subscribed chain")
	}
	if h.shouldSend(client, refreshEvent("base", listing.SourceOnChain)) {
		t.Error("Should NOT match other chains")
	}
	if !h.shouldSend(client, &Event{Type: EventMetadataCleared}) {
		t.Error("Chain-less events should reach chain subscribers")
	}
}

func TestShouldSend_SourceFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{Sources: []listing.Source{listing.SourceOnChain}}}

	if !h.shouldSend(client, refreshEvent("base", listing.SourceOnChain)) {
		t.Error("Should receive on-chain refreshes")
	}
	if h.shouldSend(client, refreshEvent("base", listing.SourceSample)) {
		t.Error("Should NOT receive sample refreshes")
	}
	if !h.shouldSend(client, &Event{Type: EventMetadataCleared, Data: MetadataCleared{Removed: 2}}) {
		t.Error("Source filter should only apply to refreshes")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	if !h.shouldSend(client, refreshEvent("base", listing.SourceCache)) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://dex.example/"})

	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://api.example/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	if !check(req("")) {
		t.Error("non-browser clients should be allowed")
	}
	if !check(req("http://api.example")) {
		t.Error("same host should be allowed")
	}
	if !check(req("https://dex.example")) {
		t.Error("configured origin should be allowed")
	}
	if check(req("https://evil.example")) {
		t.Error("unknown origin should be rejected")
	}
	if !originChecker([]string{"*"})(req("https://evil.example")) {
		t.Error("wildcard should allow any origin")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(refreshEvent("base", listing.SourceOnChain))
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.ListingRefreshed(listing.Refresh{Chain: "base", Source: listing.SourceOnChain, Count: 7, At: time.Now()})

	select {
	case msg := <-client.send:
		var got struct {
			Type  EventType       `json:"type"`
			Chain string          `json:"chain"`
			Data  listing.Refresh `json:"data"`
		}
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != EventListingRefreshed || got.Chain != "base" || got.Data.Count != 7 {
			t.Errorf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_BroadcastMetadataCleared(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventMetadataCleared}},
	}
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.BroadcastMetadataCleared("17899", 1)

	select {
	case msg := <-client.send:
		var got struct {
			Data MetadataCleared `json:"data"`
		}
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Data.AgentID != "17899" || got.Data.Removed != 1 {
			t.Errorf("unexpected payload %+v", got.Data)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants base-sepolia
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{Chains: []string{"base-sepolia"}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Another chain's refresh (should be filtered out)
	h.Broadcast(refreshEvent("base", listing.SourceOnChain))
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive base refresh")
	default:
		// Good - filtered out
	}

	// Subscribed chain (should be received)
	h.Broadcast(refreshEvent("base-sepolia", listing.SourceSample))

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive base-sepolia refresh")
	}
}

func TestHandleWebSocket_EndToEnd(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for h.Stats()["connectedClients"].(int) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := conn.WriteJSON(Subscription{Chains: []string{"base"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	h.ListingRefreshed(listing.Refresh{Chain: "sepolia", Source: listing.SourceOnChain, At: time.Now()})
	h.ListingRefreshed(listing.Refresh{Chain: "base", Source: listing.SourceOnChain, Count: 2, At: time.Now()})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != EventListingRefreshed || got.Chain != "base" {
		t.Errorf("unexpected event %+v", got)
	}
}
