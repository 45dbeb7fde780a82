// Package catalog manages the capabilities agents advertise.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/KafClaw/KafMarket/internal/bus"
	"github.com/KafClaw/KafMarket/internal/market"
	"github.com/KafClaw/KafMarket/internal/matcher"
	"github.com/KafClaw/KafMarket/internal/store"
)

const maxTypeLen = 64

// Catalog is owner-only capability management plus the public listing.
type Catalog struct {
	store  *store.Store
	events bus.Publisher
}

func New(st *store.Store, events bus.Publisher) *Catalog {
	if events == nil {
		events = bus.Discard
	}
	return &Catalog{store: st, events: events}
}

// CapabilityInput creates a capability.
type CapabilityInput struct {
	Type        string          `json:"type"`
	InputSchema market.Document `json:"input_schema"`
	Price       market.Document `json:"price"`
	Domains     []string        `json:"domains"`
}

// CapabilityPatch updates a capability. Empty documents and a nil domain
// list leave the stored value unchanged.
type CapabilityPatch struct {
	InputSchema market.Document `json:"input_schema"`
	Price       market.Document `json:"price"`
	Domains     []string        `json:"domains"`
}

func (in CapabilityInput) validate() error {
	in.Type = strings.TrimSpace(in.Type)
	if in.Type == "" {
		return market.InvalidInput("type is required")
	}
	if len(in.Type) > maxTypeLen {
		return market.InvalidInput("type must be at most %d characters", maxTypeLen)
	}
	if err := in.InputSchema.RequireObject("input_schema"); err != nil {
		return err
	}
	return in.Price.RequireObject("price")
}

func requireOwner(callerID, ownerID string) error {
	if callerID != ownerID {
		return market.Forbidden("capabilities can only be managed by their owner")
	}
	return nil
}

// Create adds a capability to ownerID's profile.
func (c *Catalog) Create(ctx context.Context, callerID, ownerID string, in CapabilityInput) (*market.Capability, error) {
	if err := requireOwner(callerID, ownerID); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	capability := &market.Capability{
		ID:          market.NewID(market.PrefixCapability),
		AgentID:     ownerID,
		Type:        strings.TrimSpace(in.Type),
		InputSchema: in.InputSchema,
		Price:       in.Price,
		Domains:     in.Domains,
		CreatedAt:   time.Now().UTC(),
	}
	if capability.Domains == nil {
		capability.Domains = []string{}
	}
	if err := c.store.InTx(ctx, func(tx *store.Tx) error {
		return tx.InsertCapability(ctx, capability)
	}); err != nil {
		return nil, err
	}
	c.publish(bus.EventCapabilityCreated, capability)
	return capability, nil
}

// ListOwn returns ownerID's capabilities.
func (c *Catalog) ListOwn(ctx context.Context, callerID, ownerID string) ([]*market.Capability, error) {
	if err := requireOwner(callerID, ownerID); err != nil {
		return nil, err
	}
	var out []*market.Capability
	err := c.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListCapabilities(ctx, store.CapabilityFilter{AgentID: ownerID})
		return err
	})
	if out == nil {
		out = []*market.Capability{}
	}
	return out, err
}

// Update applies patch to one of ownerID's capabilities.
func (c *Catalog) Update(ctx context.Context, callerID, ownerID, capabilityID string, patch CapabilityPatch) (*market.Capability, error) {
	if err := requireOwner(callerID, ownerID); err != nil {
		return nil, err
	}
	if err := patch.InputSchema.RequireObject("input_schema"); err != nil {
		return nil, err
	}
	if err := patch.Price.RequireObject("price"); err != nil {
		return nil, err
	}
	var updated *market.Capability
	err := c.store.InTx(ctx, func(tx *store.Tx) error {
		existing, err := ownedCapability(ctx, tx, ownerID, capabilityID)
		if err != nil {
			return err
		}
		if !patch.InputSchema.IsZero() {
			existing.InputSchema = patch.InputSchema
		}
		if !patch.Price.IsZero() {
			existing.Price = patch.Price
		}
		if patch.Domains != nil {
			existing.Domains = patch.Domains
		}
		if err := tx.UpdateCapability(ctx, existing); err != nil {
			return err
		}
		updated = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.publish(bus.EventCapabilityUpdated, updated)
	return updated, nil
}

// Delete removes one of ownerID's capabilities.
func (c *Catalog) Delete(ctx context.Context, callerID, ownerID, capabilityID string) error {
	if err := requireOwner(callerID, ownerID); err != nil {
		return err
	}
	var removed *market.Capability
	err := c.store.InTx(ctx, func(tx *store.Tx) error {
		existing, err := ownedCapability(ctx, tx, ownerID, capabilityID)
		if err != nil {
			return err
		}
		removed = existing
		return tx.DeleteCapability(ctx, capabilityID)
	})
	if err != nil {
		return err
	}
	c.publish(bus.EventCapabilityDeleted, removed)
	return nil
}

// ListPublic is the unauthenticated catalog. domain is a substring match
// over an entry's tags.
func (c *Catalog) ListPublic(ctx context.Context, capabilityType, domain string) ([]market.PublicCapability, error) {
	var caps []*market.Capability
	err := c.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		caps, err = tx.ListCapabilities(ctx, store.CapabilityFilter{Type: capabilityType, Domain: domain})
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]market.PublicCapability, 0, len(caps))
	for _, capability := range caps {
		out = append(out, capability.Public())
	}
	return out, nil
}

// Match lists the agents eligible to supply capabilityType under
// domainFilters, as public agent cards sorted by id.
func (c *Catalog) Match(ctx context.Context, capabilityType string, domainFilters []string) ([]market.PublicAgent, error) {
	capabilityType = strings.TrimSpace(capabilityType)
	if capabilityType == "" {
		return nil, market.InvalidInput("capability_type is required")
	}
	var out []market.PublicAgent
	err := c.store.InTx(ctx, func(tx *store.Tx) error {
		ids, err := matcher.New(tx).Match(ctx, capabilityType, domainFilters)
		if err != nil {
			return err
		}
		out = make([]market.PublicAgent, 0, len(ids))
		for _, id := range ids {
			agent, err := tx.GetAgent(ctx, id)
			if err != nil {
				return err
			}
			out = append(out, agent.Public())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ownedCapability hides other agents' capabilities behind NotFound.
func ownedCapability(ctx context.Context, tx *store.Tx, ownerID, capabilityID string) (*market.Capability, error) {
	existing, err := tx.GetCapability(ctx, capabilityID)
	if err != nil {
		return nil, err
	}
	if existing.AgentID != ownerID {
		return nil, market.NotFound("capability", capabilityID)
	}
	return existing, nil
}

func (c *Catalog) publish(eventType string, capability *market.Capability) {
	c.events.Publish(&bus.Event{
		ID:       market.NewID("evt"),
		Type:     eventType,
		ActorID:  capability.AgentID,
		EntityID: capability.ID,
		Data:     map[string]any{"type": capability.Type, "domains": capability.Domains},
	})
}
