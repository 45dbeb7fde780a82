package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/KafClaw/KafMarket/internal/market"
)

const rfpColumns = `id, creator_agent_id, title, description, capability_type, domain_filters, budget, deadline_at, status, created_at`

// RfpFilter narrows ListRfps.
type RfpFilter struct {
	CreatorID       string
	ExcludeCreator  string
	Status          market.RfpStatus
	CapabilityTypes []string
}

func (t *Tx) InsertRfp(ctx context.Context, r *market.Rfp) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO rfps (`+rfpColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatorAgentID, r.Title, r.Description, r.CapabilityType,
		encodeTags(r.DomainFilters), r.Budget, formatNullTime(r.DeadlineAt),
		string(r.Status), formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert rfp: %w", err)
	}
	return nil
}

func (t *Tx) GetRfp(ctx context.Context, id string) (*market.Rfp, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+rfpColumns+` FROM rfps WHERE id = ?`, id)
	r, err := scanRfp(row)
	if err == sql.ErrNoRows {
		return nil, market.NotFound("rfp", id)
	}
	return r, err
}

// UpdateRfp persists status and deadline.
func (t *Tx) UpdateRfp(ctx context.Context, r *market.Rfp) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE rfps SET status = ?, deadline_at = ? WHERE id = ?`,
		string(r.Status), formatNullTime(r.DeadlineAt), r.ID)
	if err != nil {
		return fmt.Errorf("update rfp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return market.NotFound("rfp", r.ID)
	}
	return nil
}

// ListRfps returns matching RFPs newest first.
func (t *Tx) ListRfps(ctx context.Context, f RfpFilter) ([]*market.Rfp, error) {
	query := `SELECT ` + rfpColumns + ` FROM rfps WHERE 1=1`
	var args []any
	if f.CreatorID != "" {
		query += " AND creator_agent_id = ?"
		args = append(args, f.CreatorID)
	}
	if f.ExcludeCreator != "" {
		query += " AND creator_agent_id != ?"
		args = append(args, f.ExcludeCreator)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.CapabilityTypes != nil {
		if len(f.CapabilityTypes) == 0 {
			return nil, nil
		}
		query += " AND capability_type IN (" + placeholders(len(f.CapabilityTypes)) + ")"
		for _, ct := range f.CapabilityTypes {
			args = append(args, ct)
		}
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rfps: %w", err)
	}
	defer rows.Close()

	var out []*market.Rfp
	for rows.Next() {
		r, err := scanRfp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRfp(rs rowScanner) (*market.Rfp, error) {
	var r market.Rfp
	var filters, status, created string
	var deadline sql.NullString
	if err := rs.Scan(&r.ID, &r.CreatorAgentID, &r.Title, &r.Description, &r.CapabilityType,
		&filters, &r.Budget, &deadline, &status, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan rfp: %w", err)
	}
	r.Status = market.RfpStatus(status)
	var err error
	if r.DomainFilters, err = decodeTags(filters); err != nil {
		return nil, err
	}
	if r.DeadlineAt, err = parseNullTime(deadline); err != nil {
		return nil, fmt.Errorf("rfp %s deadline_at: %w", r.ID, err)
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("rfp %s created_at: %w", r.ID, err)
	}
	return &r, nil
}
