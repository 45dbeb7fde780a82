// Package notify posts marketplace activity to an operator Slack channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/KafClaw/KafMarket/internal/bus"
	"github.com/KafClaw/KafMarket/internal/config"
)

// notified lists the events worth a human's attention.
var notified = []string{
	bus.EventAgentRegistered,
	bus.EventRfpCreated,
	bus.EventRfpUpdated,
	bus.EventProposalCreated,
	bus.EventProposalUpdated,
}

// SlackNotifier renders events as one-line Slack messages.
type SlackNotifier struct {
	api     *slack.Client
	channel string
}

// NewSlackNotifier builds a notifier from config. APIBase overrides the
// Slack endpoint (tests, proxies).
func NewSlackNotifier(cfg config.SlackConfig, client *http.Client) (*SlackNotifier, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("missing slack token")
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		return nil, errors.New("missing slack channel")
	}
	base := strings.TrimSpace(cfg.APIBase)
	if base == "" {
		base = "https://slack.com/api"
	}
	base = strings.TrimRight(base, "/") + "/"
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &SlackNotifier{
		api:     slack.New(token, slack.OptionHTTPClient(client), slack.OptionAPIURL(base)),
		channel: channel,
	}, nil
}

// Register subscribes the notifier to the events it renders.
func (n *SlackNotifier) Register(b *bus.EventBus) {
	for _, typ := range notified {
		b.Subscribe(typ, n.Handle)
	}
}

// Handle is an EventBus callback.
func (n *SlackNotifier) Handle(ctx context.Context, evt *bus.Event) {
	if err := n.Post(ctx, evt); err != nil {
		slog.Warn("Slack notify failed", "type", evt.Type, "entity", evt.EntityID, "error", err)
	}
}

// Post sends one event, retrying when Slack rate-limits.
func (n *SlackNotifier) Post(ctx context.Context, evt *bus.Event) error {
	text := Render(evt)
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
		if err == nil {
			return nil
		}
		lastErr = err
		var rle *slack.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rle.RetryAfter):
		}
	}
	return lastErr
}

// Render formats an event for humans.
func Render(evt *bus.Event) string {
	str := func(k string) string {
		if v, ok := evt.Data[k].(string); ok {
			return v
		}
		return ""
	}
	switch evt.Type {
	case bus.EventAgentRegistered:
		return fmt.Sprintf(":wave: agent *%s* registered (%s)", str("name"), evt.EntityID)
	case bus.EventRfpCreated:
		return fmt.Sprintf(":mega: new RFP *%s* for `%s` by %s (%s)", str("title"), str("capability_type"), evt.ActorID, evt.EntityID)
	case bus.EventRfpUpdated:
		return fmt.Sprintf(":memo: RFP %s is now *%s*", evt.EntityID, str("status"))
	case bus.EventProposalCreated:
		return fmt.Sprintf(":inbox_tray: %s bid on RFP %s (%s)", evt.ActorID, str("rfp_id"), evt.EntityID)
	case bus.EventProposalUpdated:
		return fmt.Sprintf(":handshake: proposal %s on RFP %s is now *%s*", evt.EntityID, str("rfp_id"), str("status"))
	}
	return fmt.Sprintf("%s %s", evt.Type, evt.EntityID)
}
