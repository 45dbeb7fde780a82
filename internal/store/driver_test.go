//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/KafClaw/KafMarket/internal/market"
)

func TestCgoDriverInMemory(t *testing.T) {
	st, err := Open(DriverCgo, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite3: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	err = st.InTx(ctx, func(tx *Tx) error {
		seedAgent(t, tx, "agent_a")
		seedAgent(t, tx, "agent_b")
		if err := tx.InsertRfp(ctx, &market.Rfp{ID: "rfp_1", CreatorAgentID: "agent_a", Title: "t", CapabilityType: "x", Status: market.RfpOpen, CreatedAt: now}); err != nil {
			return err
		}
		p := &market.Proposal{ID: "prop_1", RfpID: "rfp_1", SupplierAgentID: "agent_b", Status: market.ProposalPending, CreatedAt: now}
		if err := tx.InsertProposal(ctx, p); err != nil {
			return err
		}
		p.ID = "prop_2"
		if err := tx.InsertProposal(ctx, p); !market.IsConflict(err) {
			t.Fatalf("expected conflict from sqlite3 driver, got %v", err)
		}
		stats, err := tx.Stats(ctx)
		if err != nil {
			return err
		}
		if stats.Agents != 2 || stats.Proposals != 1 {
			t.Fatalf("unexpected stats %+v", stats)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}
