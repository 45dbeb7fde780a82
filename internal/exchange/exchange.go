// Package exchange owns negotiation sessions: who takes part and the ordered
// message log only parties may read or append to.
package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/KafClaw/KafMarket/internal/bus"
	"github.com/KafClaw/KafMarket/internal/market"
	"github.com/KafClaw/KafMarket/internal/store"
)

// Exchange is the session service.
type Exchange struct {
	store  *store.Store
	events bus.Publisher
	now    func() time.Time
	newID  func(prefix string) string
}

func New(st *store.Store, events bus.Publisher) *Exchange {
	if events == nil {
		events = bus.Discard
	}
	return &Exchange{
		store:  st,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  market.NewID,
	}
}

// Parties returns the party list for a new session: creator first unless
// already listed, blanks dropped, first occurrence of each id kept.
func Parties(creatorID string, partyIDs []string) []string {
	out := make([]string, 0, len(partyIDs)+1)
	seen := make(map[string]struct{}, len(partyIDs)+1)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	creatorListed := false
	for _, id := range partyIDs {
		if strings.TrimSpace(id) == creatorID {
			creatorListed = true
			break
		}
	}
	if !creatorListed {
		add(creatorID)
	}
	for _, id := range partyIDs {
		add(strings.TrimSpace(id))
	}
	return out
}

// CreateSession opens a session. An initialMessage other than null or {} is
// stored as the creator's first message in the same transaction; if either
// insert fails neither row persists.
func (x *Exchange) CreateSession(ctx context.Context, creatorID string, partyIDs []string, initialMessage market.Document) (*market.Session, error) {
	now := x.now()
	session := &market.Session{
		ID:        x.newID(market.PrefixSession),
		Parties:   Parties(creatorID, partyIDs),
		Status:    market.SessionActive,
		CreatedAt: now,
	}
	var first *market.Message
	if !initialMessage.IsZero() && !initialMessage.IsEmptyObject() {
		first = &market.Message{
			ID:        x.newID(market.PrefixMessage),
			SessionID: session.ID,
			Sender:    creatorID,
			Payload:   initialMessage,
			CreatedAt: now,
		}
	}
	err := x.store.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertSession(ctx, session); err != nil {
			return err
		}
		if first == nil {
			return nil
		}
		return tx.InsertMessage(ctx, first)
	})
	if err != nil {
		return nil, err
	}
	x.publish(bus.EventSessionCreated, creatorID, session.ID, map[string]any{"parties": session.Parties})
	if first != nil {
		x.publish(bus.EventMessageSent, creatorID, first.ID, map[string]any{"session_id": session.ID})
	}
	return session, nil
}

// GetSession returns the session to one of its parties.
func (x *Exchange) GetSession(ctx context.Context, sessionID, callerID string) (*market.Session, error) {
	var session *market.Session
	err := x.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		session, err = partySession(ctx, tx, sessionID, callerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions returns every session callerID takes part in.
func (x *Exchange) ListSessions(ctx context.Context, callerID string) ([]*market.Session, error) {
	var out []*market.Session
	err := x.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListSessionsForParty(ctx, callerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage appends payload to the session log as callerID.
func (x *Exchange) SendMessage(ctx context.Context, sessionID, callerID string, payload market.Document) (*market.Message, error) {
	msg := &market.Message{
		ID:        x.newID(market.PrefixMessage),
		SessionID: sessionID,
		Sender:    callerID,
		Payload:   payload,
		CreatedAt: x.now(),
	}
	err := x.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := partySession(ctx, tx, sessionID, callerID); err != nil {
			return err
		}
		return tx.InsertMessage(ctx, msg)
	})
	if err != nil {
		return nil, err
	}
	x.publish(bus.EventMessageSent, callerID, msg.ID, map[string]any{"session_id": sessionID})
	return msg, nil
}

// ListMessages returns the session log oldest first.
func (x *Exchange) ListMessages(ctx context.Context, sessionID, callerID string) ([]*market.Message, error) {
	var out []*market.Message
	err := x.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := partySession(ctx, tx, sessionID, callerID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListMessages(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func partySession(ctx context.Context, tx *store.Tx, sessionID, callerID string) (*market.Session, error) {
	session, err := tx.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasParty(callerID) {
		return nil, market.Forbidden("not a party of this session")
	}
	return session, nil
}

func (x *Exchange) publish(eventType, actorID, entityID string, data map[string]any) {
	x.events.Publish(&bus.Event{
		ID:       market.NewID("evt"),
		Type:     eventType,
		ActorID:  actorID,
		EntityID: entityID,
		Data:     data,
	})
}
