package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KafClaw/KafMarket/internal/bus"
	"github.com/KafClaw/KafMarket/internal/config"
)

func TestSlackNotifierPostsRenderedEvent(t *testing.T) {
	var mu sync.Mutex
	var texts, channels []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat.postMessage") {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		mu.Lock()
		texts = append(texts, r.FormValue("text"))
		channels = append(channels, r.FormValue("channel"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": "C123", "ts": "1700000.001"})
	}))
	defer api.Close()

	n, err := NewSlackNotifier(config.SlackConfig{Token: "xoxb-test", Channel: "#deals", APIBase: api.URL + "/api"}, api.Client())
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	evt := &bus.Event{
		Type:     bus.EventProposalUpdated,
		EntityID: "prop_1",
		Data:     map[string]any{"rfp_id": "rfp_1", "status": "accepted"},
	}
	if err := n.Post(context.Background(), evt); err != nil {
		t.Fatalf("post: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(texts))
	}
	if channels[0] != "#deals" {
		t.Fatalf("unexpected channel %q", channels[0])
	}
	if !strings.Contains(texts[0], "prop_1") || !strings.Contains(texts[0], "accepted") {
		t.Fatalf("unexpected text %q", texts[0])
	}
}

func TestSlackNotifierSubscribesToNotableEvents(t *testing.T) {
	posted := make(chan string, 4)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		posted <- r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1"}`))
	}))
	defer api.Close()

	n, err := NewSlackNotifier(config.SlackConfig{Token: "xoxb-test", Channel: "C1", APIBase: api.URL}, api.Client())
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	b := bus.NewEventBus(10)
	n.Register(b)

	b.Publish(&bus.Event{Type: bus.EventMessageSent, EntityID: "msg_1"})
	b.Publish(&bus.Event{Type: bus.EventRfpCreated, EntityID: "rfp_1", ActorID: "agent_a", Data: map[string]any{"title": "Evaluate", "capability_type": "ip_evaluation"}})
	b.Drain(context.Background())

	select {
	case text := <-posted:
		if !strings.Contains(text, "rfp_1") {
			t.Fatalf("unexpected text %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected rfp notification")
	}
	select {
	case text := <-posted:
		t.Fatalf("message events should not be posted, got %q", text)
	default:
	}
}

func TestNewSlackNotifierRequiresToken(t *testing.T) {
	if _, err := NewSlackNotifier(config.SlackConfig{Channel: "#x"}, nil); err == nil {
		t.Fatal("expected error without token")
	}
	if _, err := NewSlackNotifier(config.SlackConfig{Token: "t"}, nil); err == nil {
		t.Fatal("expected error without channel")
	}
}

func TestRenderFallback(t *testing.T) {
	got := Render(&bus.Event{Type: "custom.thing", EntityID: "x_1"})
	if got != "custom.thing x_1" {
		t.Fatalf("unexpected fallback %q", got)
	}
}
