package events

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/circletel/circletel/internal/auth"
	"github.com/gorilla/websocket"
)

func TestBusPublishSubscribe(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Publish(WebhookProcessed, map[string]string{"id": "w-1"})
	select {
	case ev := <-ch:
		if ev.Type != WebhookProcessed || ev.ID == "" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(JobCompleted, nil)
	b.Publish(JobCompleted, nil)
	if len(ch) != 1 {
		t.Errorf("buffered = %d, want 1", len(ch))
	}
}

func TestBusCancelAndClose(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	if b.Subscribers() != 0 {
		t.Errorf("subscribers = %d", b.Subscribers())
	}

	ch2, cancel2 := b.Subscribe(1)
	b.Close()
	if _, ok := <-ch2; ok {
		t.Error("channel should be closed after Close")
	}
	cancel2()
	b.Publish(JobFailed, nil)
}

func newFeedServer(t *testing.T) (*httptest.Server, *Bus, *auth.SupabaseProvider) {
	t.Helper()
	provider := auth.NewSupabaseProvider(strings.Repeat("s", 32), "authenticated")
	bus := NewBus()
	srv := httptest.NewServer(NewFeed(bus, provider, nil, slog.Default()))
	t.Cleanup(srv.Close)
	return srv, bus, provider
}

func TestFeedRejectsNonAdmin(t *testing.T) {
	srv, _, provider := newFeedServer(t)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status %d", resp.StatusCode)
	}

	tok, err := provider.IssueToken("u-1", "user@example.com", "user", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	resp, err = http.Get(srv.URL + "?token=" + tok)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("non-admin: status %d", resp.StatusCode)
	}
}

func TestFeedStreamsEvents(t *testing.T) {
	srv, bus, provider := newFeedServer(t)
	tok, err := provider.IssueToken("admin-1", "admin@example.com", "admin", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("feed never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	bus.Publish(WebhookFailed, map[string]string{"reference": "INV-1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != WebhookFailed {
		t.Errorf("type = %q", ev.Type)
	}
}
