package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/KafClaw/KafMarket/internal/market"
)

const proposalColumns = `id, rfp_id, supplier_agent_id, status, price, delivery_at, content, created_at`

// InsertProposal stores p. A second proposal by the same supplier on the
// same RFP fails with a Conflict error.
func (t *Tx) InsertProposal(ctx context.Context, p *market.Proposal) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO proposals (`+proposalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RfpID, p.SupplierAgentID, string(p.Status), p.Price, p.DeliveryAt, p.Content, formatTime(p.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return market.Conflict("supplier already submitted a proposal for this rfp", err)
		}
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

func (t *Tx) GetProposal(ctx context.Context, id string) (*market.Proposal, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id)
	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, market.NotFound("proposal", id)
	}
	return p, err
}

// ListProposals returns proposals for an RFP newest first, optionally only
// those of one supplier.
func (t *Tx) ListProposals(ctx context.Context, rfpID, supplierID string) ([]*market.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE rfp_id = ?`
	args := []any{rfpID}
	if supplierID != "" {
		query += " AND supplier_agent_id = ?"
		args = append(args, supplierID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	out := []*market.Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *Tx) UpdateProposalStatus(ctx context.Context, id string, status market.ProposalStatus) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE proposals SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update proposal status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return market.NotFound("proposal", id)
	}
	return nil
}

func scanProposal(r rowScanner) (*market.Proposal, error) {
	var p market.Proposal
	var status, created string
	if err := r.Scan(&p.ID, &p.RfpID, &p.SupplierAgentID, &status, &p.Price, &p.DeliveryAt, &p.Content, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan proposal: %w", err)
	}
	p.Status = market.ProposalStatus(status)
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("proposal %s created_at: %w", p.ID, err)
	}
	return &p, nil
}
