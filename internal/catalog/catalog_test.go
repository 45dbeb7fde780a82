package catalog

import (
	"context"
	"testing"

	"github.com/KafClaw/KafMarket/internal/market"
	"github.com/KafClaw/KafMarket/internal/markettest"
)

func TestCreateAndListOwn(t *testing.T) {
	st := markettest.NewStore(t)
	markettest.SeedAgent(t, st, "agent_a")
	rec := &markettest.Recorder{}
	c := New(st, rec)
	ctx := context.Background()

	created, err := c.Create(ctx, "agent_a", "agent_a", CapabilityInput{
		Type:    "ip_evaluation",
		Price:   market.ObjectDocument(map[string]any{"currency": "CNY", "amount": 5000.0}),
		Domains: []string{"anime"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.AgentID != "agent_a" || created.Type != "ip_evaluation" {
		t.Fatalf("unexpected capability %+v", created)
	}

	own, err := c.ListOwn(ctx, "agent_a", "agent_a")
	if err != nil {
		t.Fatalf("list own: %v", err)
	}
	if len(own) != 1 || own[0].ID != created.ID {
		t.Fatalf("unexpected own list %+v", own)
	}
	if got := rec.Types(); len(got) != 1 || got[0] != "capability.created" {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestOwnerOnly(t *testing.T) {
	st := markettest.NewStore(t)
	markettest.SeedAgent(t, st, "agent_a")
	markettest.SeedAgent(t, st, "agent_b")
	c := New(st, nil)
	ctx := context.Background()

	if _, err := c.Create(ctx, "agent_b", "agent_a", CapabilityInput{Type: "x"}); !market.IsForbidden(err) {
		t.Fatalf("expected forbidden create, got %v", err)
	}
	if _, err := c.ListOwn(ctx, "agent_b", "agent_a"); !market.IsForbidden(err) {
		t.Fatalf("expected forbidden list, got %v", err)
	}
	capA, err := c.Create(ctx, "agent_a", "agent_a", CapabilityInput{Type: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.Update(ctx, "agent_b", "agent_b", capA.ID, CapabilityPatch{Domains: []string{"y"}}); !market.IsNotFound(err) {
		t.Fatalf("foreign capability should be not found, got %v", err)
	}
	if err := c.Delete(ctx, "agent_b", "agent_a", capA.ID); !market.IsForbidden(err) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	st := markettest.NewStore(t)
	markettest.SeedAgent(t, st, "agent_a")
	c := New(st, nil)
	ctx := context.Background()

	cases := []CapabilityInput{
		{Type: ""},
		{Type: "   "},
		{Type: string(make([]byte, 65))},
		{Type: "x", Price: market.RawDocument([]byte(`[1,2]`))},
		{Type: "x", InputSchema: market.RawDocument([]byte(`"schema"`))},
	}
	for i, in := range cases {
		if _, err := c.Create(ctx, "agent_a", "agent_a", in); !market.IsInvalidInput(err) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func TestUpdateKeepsUnsetFields(t *testing.T) {
	st := markettest.NewStore(t)
	markettest.SeedAgent(t, st, "agent_a")
	c := New(st, nil)
	ctx := context.Background()

	created, err := c.Create(ctx, "agent_a", "agent_a", CapabilityInput{
		Type:    "translation",
		Price:   market.ObjectDocument(map[string]any{"amount": 1.0}),
		Domains: []string{"en"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := c.Update(ctx, "agent_a", "agent_a", created.ID, CapabilityPatch{Domains: []string{"en", "zh"}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.Domains) != 2 {
		t.Fatalf("domains not updated: %v", updated.Domains)
	}
	if m, ok := updated.Price.Object(); !ok || m["amount"] != 1.0 {
		t.Fatalf("price should be unchanged, got %+v", updated.Price)
	}

	if err := c.Delete(ctx, "agent_a", "agent_a", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.Delete(ctx, "agent_a", "agent_a", created.ID); !market.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestListPublicFilters(t *testing.T) {
	st := markettest.NewStore(t)
	markettest.SeedAgent(t, st, "agent_a")
	markettest.SeedAgent(t, st, "agent_b")
	markettest.SeedCapability(t, st, "agent_a", "ip_evaluation", "suspense", "anime")
	markettest.SeedCapability(t, st, "agent_b", "ip_evaluation", "romance")
	markettest.SeedCapability(t, st, "agent_b", "translation", "suspense")
	c := New(st, nil)
	ctx := context.Background()

	all, err := c.ListPublic(ctx, "", "")
	if err != nil {
		t.Fatalf("list public: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	byType, _ := c.ListPublic(ctx, "ip_evaluation", "")
	if len(byType) != 2 {
		t.Fatalf("expected 2 ip_evaluation entries, got %d", len(byType))
	}
	both, _ := c.ListPublic(ctx, "ip_evaluation", "susp")
	if len(both) != 1 || both[0].AgentID != "agent_a" {
		t.Fatalf("unexpected type+domain result %+v", both)
	}
}

func TestMatch(t *testing.T) {
	st := markettest.NewStore(t)
	markettest.SeedAgent(t, st, "agent_s1")
	markettest.SeedAgent(t, st, "agent_s2")
	markettest.SeedCapability(t, st, "agent_s1", "ip_evaluation", "悬疑")
	markettest.SeedCapability(t, st, "agent_s2", "ip_evaluation", "romance")
	c := New(st, nil)
	ctx := context.Background()

	all, err := c.Match(ctx, "ip_evaluation", nil)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(all) != 2 || all[0].ID != "agent_s1" || all[1].ID != "agent_s2" {
		t.Fatalf("unexpected match %+v", all)
	}
	filtered, err := c.Match(ctx, "ip_evaluation", []string{"悬疑"})
	if err != nil {
		t.Fatalf("match filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "agent_s1" {
		t.Fatalf("unexpected filtered match %+v", filtered)
	}
	if _, err := c.Match(ctx, " ", nil); !market.IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
