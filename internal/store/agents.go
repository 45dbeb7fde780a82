package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/KafClaw/KafMarket/internal/market"
)

const agentColumns = `id, did, name, type, api_key_hash, created_at`

func (t *Tx) InsertAgent(ctx context.Context, a *market.Agent) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO agents (`+agentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.DID, a.Name, string(a.Type), a.APIKeyHash, formatTime(a.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return market.Conflict("agent did already registered", err)
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (t *Tx) GetAgent(ctx context.Context, id string) (*market.Agent, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, market.NotFound("agent", id)
	}
	return a, err
}

// GetAgentByKeyHash resolves a hashed credential. Returns nil, nil when no
// agent holds it.
func (t *Tx) GetAgentByKeyHash(ctx context.Context, hash string) (*market.Agent, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE api_key_hash = ?`, hash)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (t *Tx) ListAgents(ctx context.Context) ([]*market.Agent, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*market.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(r rowScanner) (*market.Agent, error) {
	var a market.Agent
	var typ, created string
	if err := r.Scan(&a.ID, &a.DID, &a.Name, &typ, &a.APIKeyHash, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	a.Type = market.AgentType(typ)
	var err error
	if a.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("agent %s created_at: %w", a.ID, err)
	}
	return &a, nil
}
