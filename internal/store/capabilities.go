package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/KafClaw/KafMarket/internal/market"
)

const capabilityColumns = `id, agent_id, type, input_schema, price, domains, created_at`

// CapabilityFilter narrows ListCapabilities. Empty fields match everything.
// Domain is a substring match against the stored tag list.
type CapabilityFilter struct {
	AgentID string
	Type    string
	Domain  string
}

func (t *Tx) InsertCapability(ctx context.Context, c *market.Capability) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO capabilities (`+capabilityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AgentID, c.Type, c.InputSchema, c.Price, encodeTags(c.Domains), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert capability: %w", err)
	}
	return nil
}

func (t *Tx) GetCapability(ctx context.Context, id string) (*market.Capability, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+capabilityColumns+` FROM capabilities WHERE id = ?`, id)
	c, err := scanCapability(row)
	if err == sql.ErrNoRows {
		return nil, market.NotFound("capability", id)
	}
	return c, err
}

func (t *Tx) ListCapabilities(ctx context.Context, f CapabilityFilter) ([]*market.Capability, error) {
	query := `SELECT ` + capabilityColumns + ` FROM capabilities WHERE 1=1`
	var args []any
	if f.AgentID != "" {
		query += " AND agent_id = ?"
		args = append(args, f.AgentID)
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, f.Type)
	}
	if f.Domain != "" {
		query += " AND instr(domains, ?) > 0"
		args = append(args, f.Domain)
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	defer rows.Close()

	var out []*market.Capability
	for rows.Next() {
		c, err := scanCapability(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCapability rewrites the mutable fields of c.
func (t *Tx) UpdateCapability(ctx context.Context, c *market.Capability) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE capabilities SET input_schema = ?, price = ?, domains = ? WHERE id = ?`,
		c.InputSchema, c.Price, encodeTags(c.Domains), c.ID)
	if err != nil {
		return fmt.Errorf("update capability: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return market.NotFound("capability", c.ID)
	}
	return nil
}

func (t *Tx) DeleteCapability(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM capabilities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete capability: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return market.NotFound("capability", id)
	}
	return nil
}

func scanCapability(r rowScanner) (*market.Capability, error) {
	var c market.Capability
	var domains, created string
	if err := r.Scan(&c.ID, &c.AgentID, &c.Type, &c.InputSchema, &c.Price, &domains, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan capability: %w", err)
	}
	var err error
	if c.Domains, err = decodeTags(domains); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("capability %s created_at: %w", c.ID, err)
	}
	return &c, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
