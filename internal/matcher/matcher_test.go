package matcher

import (
	"context"
	"slices"
	"testing"

	"github.com/KafClaw/KafMarket/internal/market"
	"github.com/KafClaw/KafMarket/internal/store"
)

type fakeSource struct {
	caps  []*market.Capability
	calls int
}

func (f *fakeSource) ListCapabilities(_ context.Context, filter store.CapabilityFilter) ([]*market.Capability, error) {
	f.calls++
	var out []*market.Capability
	for _, c := range f.caps {
		if filter.Type == "" || c.Type == filter.Type {
			out = append(out, c)
		}
	}
	return out, nil
}

func fixture() []*market.Capability {
	return []*market.Capability{
		{AgentID: "agent_s1", Type: "ip_evaluation", Domains: []string{"anime", "games"}},
		{AgentID: "agent_s2", Type: "ip_evaluation", Domains: []string{"film"}},
		{AgentID: "agent_s3", Type: "ip_evaluation"},
		{AgentID: "agent_s3", Type: "translation", Domains: []string{"anime"}},
		{AgentID: "agent_s1", Type: "ip_evaluation", Domains: []string{"Film"}},
	}
}

func TestMatchWithoutFiltersReturnsAllOwners(t *testing.T) {
	got := MatchCapabilities(fixture(), "ip_evaluation", nil)
	want := []string{"agent_s1", "agent_s2", "agent_s3"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestMatchWithFiltersIsExactAndCaseSensitive(t *testing.T) {
	got := MatchCapabilities(fixture(), "ip_evaluation", []string{"film"})
	if !slices.Equal(got, []string{"agent_s2"}) {
		t.Fatalf("expected only agent_s2, got %v", got)
	}
	got = MatchCapabilities(fixture(), "ip_evaluation", []string{"anime"})
	if !slices.Equal(got, []string{"agent_s1"}) {
		t.Fatalf("domain on another capability type must not count, got %v", got)
	}
	if got := MatchCapabilities(fixture(), "ip_evaluation", []string{"anim"}); len(got) != 0 {
		t.Fatalf("substring must not match, got %v", got)
	}
}

func TestMatchUnknownTypeIsEmpty(t *testing.T) {
	if got := MatchCapabilities(fixture(), "legal_review", nil); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestMatchIsIdempotentAndMonotone(t *testing.T) {
	caps := fixture()
	filters := []string{"games", "film"}
	first := MatchCapabilities(caps, "ip_evaluation", filters)
	second := MatchCapabilities(caps, "ip_evaluation", filters)
	if !slices.Equal(first, second) {
		t.Fatalf("match not idempotent: %v vs %v", first, second)
	}
	unfiltered := MatchCapabilities(caps, "ip_evaluation", nil)
	for _, id := range first {
		if !slices.Contains(unfiltered, id) {
			t.Fatalf("filtered result %s missing from unfiltered set", id)
		}
	}
	wider := MatchCapabilities(caps, "ip_evaluation", append(filters, "anime"))
	for _, id := range first {
		if !slices.Contains(wider, id) {
			t.Fatalf("adding a filter tag dropped %s", id)
		}
	}
}

func TestEligibilityEqualsMembership(t *testing.T) {
	src := &fakeSource{caps: fixture()}
	m := New(src)
	ctx := context.Background()
	rfp := &market.Rfp{CapabilityType: "ip_evaluation", DomainFilters: []string{"film"}}

	ids, err := m.Match(ctx, rfp.CapabilityType, rfp.DomainFilters)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	for _, agent := range []string{"agent_s1", "agent_s2", "agent_s3", "agent_x"} {
		ok, err := m.IsEligibleSupplier(ctx, agent, rfp)
		if err != nil {
			t.Fatalf("eligible: %v", err)
		}
		if ok != slices.Contains(ids, agent) {
			t.Fatalf("eligibility for %s disagrees with match %v", agent, ids)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected memoized lookups, got %d source calls", src.calls)
	}

	m.Reset()
	if _, err := m.Match(ctx, rfp.CapabilityType, []string{"film", "film"}); err != nil {
		t.Fatalf("match: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected fresh lookup after reset, got %d calls", src.calls)
	}
}

func TestMatchedRfps(t *testing.T) {
	caps := []*market.Capability{
		{AgentID: "agent_s1", Type: "ip_evaluation", Domains: []string{"anime"}},
		{AgentID: "agent_s1", Type: "translation"},
	}
	rfps := []*market.Rfp{
		{ID: "rfp_1", CreatorAgentID: "agent_c", CapabilityType: "ip_evaluation", DomainFilters: []string{"anime"}},
		{ID: "rfp_2", CreatorAgentID: "agent_c", CapabilityType: "ip_evaluation", DomainFilters: []string{"film"}},
		{ID: "rfp_3", CreatorAgentID: "agent_c", CapabilityType: "translation", DomainFilters: []string{"anime"}},
		{ID: "rfp_4", CreatorAgentID: "agent_s1", CapabilityType: "translation"},
		{ID: "rfp_5", CreatorAgentID: "agent_c", CapabilityType: "translation"},
	}
	got := MatchedRfps("agent_s1", caps, rfps)
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	if !slices.Equal(ids, []string{"rfp_1", "rfp_5"}) {
		t.Fatalf("unexpected matched rfps %v", ids)
	}
}

func TestCapabilityTypes(t *testing.T) {
	got := CapabilityTypes(fixture())
	if !slices.Equal(got, []string{"ip_evaluation", "translation"}) {
		t.Fatalf("unexpected types %v", got)
	}
}
