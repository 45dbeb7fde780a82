// Package markettest provides fixtures shared by package tests.
package markettest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/KafClaw/KafMarket/internal/bus"
	"github.com/KafClaw/KafMarket/internal/market"
	"github.com/KafClaw/KafMarket/internal/store"
)

// NewStore opens a throwaway database under t.TempDir.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.DriverModernc, filepath.Join(t.TempDir(), "market.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// SeedAgent inserts an agent with the given id.
func SeedAgent(t *testing.T, st *store.Store, id string) *market.Agent {
	t.Helper()
	a := &market.Agent{
		ID:         id,
		DID:        "did:test:" + id,
		Name:       id,
		Type:       market.AgentPublisher,
		APIKeyHash: "hash-" + id,
		CreatedAt:  time.Now().UTC(),
	}
	ctx := context.Background()
	if err := st.InTx(ctx, func(tx *store.Tx) error { return tx.InsertAgent(ctx, a) }); err != nil {
		t.Fatalf("seed agent %s: %v", id, err)
	}
	return a
}

// SeedCapability gives agentID a capability of capType with domains.
func SeedCapability(t *testing.T, st *store.Store, agentID, capType string, domains ...string) *market.Capability {
	t.Helper()
	if domains == nil {
		domains = []string{}
	}
	c := &market.Capability{
		ID:        market.NewID(market.PrefixCapability),
		AgentID:   agentID,
		Type:      capType,
		Domains:   domains,
		CreatedAt: time.Now().UTC(),
	}
	ctx := context.Background()
	if err := st.InTx(ctx, func(tx *store.Tx) error { return tx.InsertCapability(ctx, c) }); err != nil {
		t.Fatalf("seed capability for %s: %v", agentID, err)
	}
	return c
}

// Recorder is a bus.Publisher that keeps every event.
type Recorder struct {
	Events []*bus.Event
}

func (r *Recorder) Publish(evt *bus.Event) { r.Events = append(r.Events, evt) }

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Type)
	}
	return out
}
