// Package matcher decides which agents can serve a capability request and
// which RFPs an agent is eligible to bid on.
package matcher

import (
	"context"
	"slices"
	"strings"

	"github.com/KafClaw/KafMarket/internal/market"
	"github.com/KafClaw/KafMarket/internal/store"
)

// CapabilitySource is the read view of the capability index.
type CapabilitySource interface {
	ListCapabilities(ctx context.Context, f store.CapabilityFilter) ([]*market.Capability, error)
}

// Matcher answers match queries against one CapabilitySource. Results are
// memoized for the Matcher's lifetime, so bind it to a single transaction.
type Matcher struct {
	src  CapabilitySource
	memo map[string][]string
}

func New(src CapabilitySource) *Matcher {
	return &Matcher{src: src, memo: make(map[string][]string)}
}

// Match returns the sorted, distinct ids of agents owning a capability of
// capabilityType. With domain filters, only agents whose capability of that
// type carries at least one of the filter tags are kept.
func (m *Matcher) Match(ctx context.Context, capabilityType string, domainFilters []string) ([]string, error) {
	key := memoKey(capabilityType, domainFilters)
	if ids, ok := m.memo[key]; ok {
		return ids, nil
	}
	caps, err := m.src.ListCapabilities(ctx, store.CapabilityFilter{Type: capabilityType})
	if err != nil {
		return nil, err
	}
	ids := MatchCapabilities(caps, capabilityType, domainFilters)
	m.memo[key] = ids
	return ids, nil
}

// IsEligibleSupplier reports whether agentID is in Match(rfp's type, rfp's filters).
func (m *Matcher) IsEligibleSupplier(ctx context.Context, agentID string, rfp *market.Rfp) (bool, error) {
	ids, err := m.Match(ctx, rfp.CapabilityType, rfp.DomainFilters)
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearch(ids, agentID)
	return found, nil
}

// Reset drops memoized results. Call after capability writes made through
// the same transaction.
func (m *Matcher) Reset() {
	clear(m.memo)
}

// MatchCapabilities is the pure form of Match over an explicit capability set.
func MatchCapabilities(caps []*market.Capability, capabilityType string, domainFilters []string) []string {
	seen := make(map[string]struct{})
	for _, c := range caps {
		if c.Type != capabilityType {
			continue
		}
		if len(domainFilters) > 0 && !intersects(c.Domains, domainFilters) {
			continue
		}
		seen[c.AgentID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// MatchedRfps filters rfps down to those agentID could bid on given its own
// capabilities: the RFP's type is one of the agent's types and, when the RFP
// has domain filters, one of them is among the agent's domains for that
// type. RFPs created by agentID are excluded. Input order is kept.
func MatchedRfps(agentID string, caps []*market.Capability, rfps []*market.Rfp) []*market.Rfp {
	var out []*market.Rfp
	for _, r := range rfps {
		if r.CreatorAgentID == agentID {
			continue
		}
		if slices.Contains(MatchCapabilities(caps, r.CapabilityType, r.DomainFilters), agentID) {
			out = append(out, r)
		}
	}
	return out
}

// CapabilityTypes returns the distinct types among caps, sorted.
func CapabilityTypes(caps []*market.Capability) []string {
	types := make([]string, 0, len(caps))
	for _, c := range caps {
		types = append(types, c.Type)
	}
	slices.Sort(types)
	return slices.Compact(types)
}

func intersects(tags, filters []string) bool {
	for _, t := range tags {
		if slices.Contains(filters, t) {
			return true
		}
	}
	return false
}

func memoKey(capabilityType string, filters []string) string {
	sorted := slices.Clone(filters)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return capabilityType + "\x00" + strings.Join(sorted, "\x00")
}
