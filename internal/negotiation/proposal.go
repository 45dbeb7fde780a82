package negotiation

import (
	"context"

	"github.com/KafClaw/KafMarket/internal/bus"
	"github.com/KafClaw/KafMarket/internal/market"
	"github.com/KafClaw/KafMarket/internal/matcher"
	"github.com/KafClaw/KafMarket/internal/store"
)

// ProposalInput is a supplier's bid.
type ProposalInput struct {
	Price      market.Document `json:"price"`
	DeliveryAt string          `json:"delivery_at"`
	Content    string          `json:"content"`
}

func (in ProposalInput) validate() error {
	if len(in.DeliveryAt) > MaxDeliveryAtLen {
		return market.InvalidInput("delivery_at must be at most %d characters", MaxDeliveryAtLen)
	}
	if len(in.Content) > MaxContentLen {
		return market.InvalidInput("content must be at most %d characters", MaxContentLen)
	}
	return in.Price.RequireObject("price")
}

// CreateProposal submits supplierID's bid on rfpID. Checks run in order:
// the RFP exists, is open, is not the supplier's own, the supplier is
// eligible, and has not bid already.
func (e *Engine) CreateProposal(ctx context.Context, rfpID, supplierID string, in ProposalInput) (*market.Proposal, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var proposal *market.Proposal
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		rfp, err := tx.GetRfp(ctx, rfpID)
		if err != nil {
			return err
		}
		if rfp.Status != market.RfpOpen {
			return market.InvalidState("rfp is not open for proposals")
		}
		if rfp.CreatorAgentID == supplierID {
			return market.InvalidState("creator cannot submit a proposal to its own rfp")
		}
		eligible, err := matcher.New(tx).IsEligibleSupplier(ctx, supplierID, rfp)
		if err != nil {
			return err
		}
		if !eligible {
			return market.Forbidden("your capabilities do not match this rfp")
		}
		proposal = &market.Proposal{
			ID:              market.NewID(market.PrefixProposal),
			RfpID:           rfpID,
			SupplierAgentID: supplierID,
			Status:          market.ProposalPending,
			Price:           in.Price,
			DeliveryAt:      in.DeliveryAt,
			Content:         in.Content,
			CreatedAt:       e.now(),
		}
		return tx.InsertProposal(ctx, proposal)
	})
	if err != nil {
		return nil, err
	}
	e.publish(bus.EventProposalCreated, supplierID, proposal.ID, map[string]any{"rfp_id": rfpID})
	return proposal, nil
}

// ListProposals returns every proposal to the RFP creator and only their own
// to an eligible supplier. Newest first.
func (e *Engine) ListProposals(ctx context.Context, rfpID, callerID string) ([]*market.Proposal, error) {
	var out []*market.Proposal
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		rfp, err := tx.GetRfp(ctx, rfpID)
		if err != nil {
			return err
		}
		if err := requireViewer(ctx, matcher.New(tx), rfp, callerID); err != nil {
			return err
		}
		supplierFilter := callerID
		if rfp.CreatorAgentID == callerID {
			supplierFilter = ""
		}
		out, err = tx.ListProposals(ctx, rfpID, supplierFilter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetProposal is visible to the RFP creator and the proposal's supplier.
func (e *Engine) GetProposal(ctx context.Context, proposalID, callerID string) (*market.Proposal, error) {
	var proposal *market.Proposal
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		proposal, err = tx.GetProposal(ctx, proposalID)
		if err != nil {
			return err
		}
		rfp, err := tx.GetRfp(ctx, proposal.RfpID)
		if err != nil {
			return err
		}
		if rfp.CreatorAgentID != callerID && proposal.SupplierAgentID != callerID {
			return market.Forbidden("not the creator or supplier")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

// UpdateProposalStatus applies a role-checked transition: the RFP creator
// may accept or reject, the supplier may withdraw. Only pending proposals
// move.
func (e *Engine) UpdateProposalStatus(ctx context.Context, proposalID, callerID, status string) (*market.Proposal, error) {
	next, err := market.ParseProposalStatus(status)
	if err != nil {
		return nil, err
	}
	var proposal *market.Proposal
	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		proposal, err = tx.GetProposal(ctx, proposalID)
		if err != nil {
			return err
		}
		rfp, err := tx.GetRfp(ctx, proposal.RfpID)
		if err != nil {
			return err
		}
		switch callerID {
		case rfp.CreatorAgentID:
			if next != market.ProposalAccepted && next != market.ProposalRejected {
				return market.InvalidInput("creator can only set accepted or rejected")
			}
		case proposal.SupplierAgentID:
			if next != market.ProposalWithdrawn {
				return market.InvalidInput("supplier can only set withdrawn")
			}
		default:
			return market.Forbidden("not the supplier or the rfp creator")
		}
		if !proposal.Status.CanTransition(next) {
			return market.InvalidState("proposal is already " + string(proposal.Status))
		}
		proposal.Status = next
		return tx.UpdateProposalStatus(ctx, proposal.ID, next)
	})
	if err != nil {
		return nil, err
	}
	e.publish(bus.EventProposalUpdated, callerID, proposal.ID, map[string]any{
		"rfp_id": proposal.RfpID,
		"status": string(proposal.Status),
	})
	return proposal, nil
}
