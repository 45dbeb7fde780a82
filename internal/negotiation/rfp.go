// Package negotiation runs the RFP and proposal lifecycles: who may create,
// view and transition them, and in which states.
package negotiation

import (
	"context"
	"strings"
	"time"

	"github.com/KafClaw/KafMarket/internal/bus"
	"github.com/KafClaw/KafMarket/internal/market"
	"github.com/KafClaw/KafMarket/internal/matcher"
	"github.com/KafClaw/KafMarket/internal/store"
)

// Field limits.
const (
	MaxTitleLen          = 512
	MaxDescriptionLen    = 10000
	MaxCapabilityTypeLen = 64
	MaxDeliveryAtLen     = 128
	MaxContentLen        = 5000
)

// Scope selects which RFPs ListRfps returns.
type Scope string

const (
	// ScopeAll is created plus matched.
	ScopeAll     Scope = ""
	ScopeCreated Scope = "created"
	ScopeMatched Scope = "matched"
)

// ParseScope rejects unknown scopes.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeAll, ScopeCreated, ScopeMatched:
		return Scope(s), nil
	}
	return "", market.InvalidInput("scope must be created or matched")
}

// Engine is the negotiation service.
type Engine struct {
	store  *store.Store
	events bus.Publisher
	now    func() time.Time
}

func NewEngine(st *store.Store, events bus.Publisher) *Engine {
	if events == nil {
		events = bus.Discard
	}
	return &Engine{store: st, events: events, now: func() time.Time { return time.Now().UTC() }}
}

// RfpInput creates an RFP.
type RfpInput struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	CapabilityType string          `json:"capability_type"`
	DomainFilters  []string        `json:"domain_filters"`
	Budget         market.Document `json:"budget"`
	DeadlineAt     *time.Time      `json:"deadline_at"`
}

func (in *RfpInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.CapabilityType = strings.TrimSpace(in.CapabilityType)
	switch {
	case in.Title == "":
		return market.InvalidInput("title is required")
	case len(in.Title) > MaxTitleLen:
		return market.InvalidInput("title must be at most %d characters", MaxTitleLen)
	case len(in.Description) > MaxDescriptionLen:
		return market.InvalidInput("description must be at most %d characters", MaxDescriptionLen)
	case in.CapabilityType == "":
		return market.InvalidInput("capability_type is required")
	case len(in.CapabilityType) > MaxCapabilityTypeLen:
		return market.InvalidInput("capability_type must be at most %d characters", MaxCapabilityTypeLen)
	}
	return in.Budget.RequireObject("budget")
}

// RfpUpdate changes status and/or deadline. Empty fields are left alone.
type RfpUpdate struct {
	Status     string     `json:"status"`
	DeadlineAt *time.Time `json:"deadline_at"`
}

// CreateRfp publishes a new open RFP owned by creatorID.
func (e *Engine) CreateRfp(ctx context.Context, creatorID string, in RfpInput) (*market.Rfp, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	rfp := &market.Rfp{
		ID:             market.NewID(market.PrefixRfp),
		CreatorAgentID: creatorID,
		Title:          in.Title,
		Description:    in.Description,
		CapabilityType: in.CapabilityType,
		DomainFilters:  in.DomainFilters,
		Budget:         in.Budget,
		DeadlineAt:     in.DeadlineAt,
		Status:         market.RfpOpen,
		CreatedAt:      e.now(),
	}
	if rfp.DomainFilters == nil {
		rfp.DomainFilters = []string{}
	}
	if err := e.store.InTx(ctx, func(tx *store.Tx) error {
		return tx.InsertRfp(ctx, rfp)
	}); err != nil {
		return nil, err
	}
	e.publish(bus.EventRfpCreated, creatorID, rfp.ID, map[string]any{
		"title":           rfp.Title,
		"capability_type": rfp.CapabilityType,
		"domain_filters":  rfp.DomainFilters,
	})
	return rfp, nil
}

// GetRfp returns the RFP to its creator or to a currently eligible supplier.
func (e *Engine) GetRfp(ctx context.Context, rfpID, callerID string) (*market.Rfp, error) {
	var rfp *market.Rfp
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		rfp, err = tx.GetRfp(ctx, rfpID)
		if err != nil {
			return err
		}
		return requireViewer(ctx, matcher.New(tx), rfp, callerID)
	})
	if err != nil {
		return nil, err
	}
	return rfp, nil
}

// UpdateRfp lets the creator close or cancel an open RFP and move its
// deadline.
func (e *Engine) UpdateRfp(ctx context.Context, rfpID, callerID string, upd RfpUpdate) (*market.Rfp, error) {
	var next market.RfpStatus
	if upd.Status != "" {
		var err error
		if next, err = market.ParseRfpStatus(upd.Status); err != nil {
			return nil, err
		}
	}
	var rfp *market.Rfp
	var changed bool
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		rfp, err = tx.GetRfp(ctx, rfpID)
		if err != nil {
			return err
		}
		if rfp.CreatorAgentID != callerID {
			return market.Forbidden("only the creator can update this rfp")
		}
		if next != "" && next != rfp.Status {
			if !rfp.Status.CanTransition(next) {
				return market.InvalidState("rfp is " + string(rfp.Status) + " and cannot become " + string(next))
			}
			rfp.Status = next
			changed = true
		} else if next != "" && rfp.Status.Terminal() {
			return market.InvalidState("rfp is already " + string(rfp.Status))
		}
		if upd.DeadlineAt != nil {
			rfp.DeadlineAt = upd.DeadlineAt
			changed = true
		}
		if !changed {
			return nil
		}
		return tx.UpdateRfp(ctx, rfp)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		e.publish(bus.EventRfpUpdated, callerID, rfp.ID, map[string]any{"status": string(rfp.Status)})
	}
	return rfp, nil
}

// ListRfps returns RFPs the caller created, RFPs matching the caller's
// capabilities, or both, newest first. status optionally narrows the result.
func (e *Engine) ListRfps(ctx context.Context, callerID string, scope Scope, status string) ([]*market.Rfp, error) {
	var st market.RfpStatus
	if status != "" {
		var err error
		if st, err = market.ParseRfpStatus(status); err != nil {
			return nil, err
		}
	}
	var out []*market.Rfp
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		var created, matched []*market.Rfp
		var err error
		if scope == ScopeAll || scope == ScopeCreated {
			if created, err = tx.ListRfps(ctx, store.RfpFilter{CreatorID: callerID, Status: st}); err != nil {
				return err
			}
		}
		if scope == ScopeAll || scope == ScopeMatched {
			if matched, err = matchedRfps(ctx, tx, callerID, st); err != nil {
				return err
			}
		}
		out = mergeNewestFirst(created, matched)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func matchedRfps(ctx context.Context, tx *store.Tx, agentID string, status market.RfpStatus) ([]*market.Rfp, error) {
	caps, err := tx.ListCapabilities(ctx, store.CapabilityFilter{AgentID: agentID})
	if err != nil {
		return nil, err
	}
	candidates, err := tx.ListRfps(ctx, store.RfpFilter{
		ExcludeCreator:  agentID,
		Status:          status,
		CapabilityTypes: matcher.CapabilityTypes(caps),
	})
	if err != nil {
		return nil, err
	}
	return matcher.MatchedRfps(agentID, caps, candidates), nil
}

// mergeNewestFirst merges two newest-first lists. The lists are disjoint:
// one holds the caller's RFPs, the other excludes them.
func mergeNewestFirst(a, b []*market.Rfp) []*market.Rfp {
	out := make([]*market.Rfp, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if newer(a[i], b[j]) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

func newer(x, y *market.Rfp) bool {
	if !x.CreatedAt.Equal(y.CreatedAt) {
		return x.CreatedAt.After(y.CreatedAt)
	}
	return x.ID > y.ID
}

// RfpSummary gives the creator the RFP with all proposals.
func (e *Engine) RfpSummary(ctx context.Context, rfpID, callerID string) (*market.RfpSummary, error) {
	var summary *market.RfpSummary
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		rfp, err := tx.GetRfp(ctx, rfpID)
		if err != nil {
			return err
		}
		if rfp.CreatorAgentID != callerID {
			return market.Forbidden("only the creator can view the summary")
		}
		proposals, err := tx.ListProposals(ctx, rfpID, "")
		if err != nil {
			return err
		}
		summary = &market.RfpSummary{Rfp: rfp, ProposalCount: len(proposals), Proposals: proposals}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// requireViewer admits the creator and currently eligible suppliers.
func requireViewer(ctx context.Context, m *matcher.Matcher, rfp *market.Rfp, callerID string) error {
	if rfp.CreatorAgentID == callerID {
		return nil
	}
	ok, err := m.IsEligibleSupplier(ctx, callerID, rfp)
	if err != nil {
		return err
	}
	if !ok {
		return market.Forbidden("not the creator or a matched supplier")
	}
	return nil
}

func (e *Engine) publish(eventType, actorID, entityID string, data map[string]any) {
	e.events.Publish(&bus.Event{
		ID:       market.NewID("evt"),
		Type:     eventType,
		ActorID:  actorID,
		EntityID: entityID,
		Data:     data,
	})
}
