package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/KafClaw/KafMarket/internal/market"
)

// InsertSession stores the session and its ordered party list.
func (t *Tx) InsertSession(ctx context.Context, s *market.Session) error {
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO sessions (id, status, created_at) VALUES (?, ?, ?)`,
		s.ID, string(s.Status), formatTime(s.CreatedAt)); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	for i, agentID := range s.Parties {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO session_parties (session_id, agent_id, position) VALUES (?, ?, ?)`,
			s.ID, agentID, i); err != nil {
			return fmt.Errorf("insert session party: %w", err)
		}
	}
	return nil
}

func (t *Tx) GetSession(ctx context.Context, id string) (*market.Session, error) {
	var s market.Session
	var status, created string
	err := t.tx.QueryRowContext(ctx, `SELECT id, status, created_at FROM sessions WHERE id = ?`, id).
		Scan(&s.ID, &status, &created)
	if err == sql.ErrNoRows {
		return nil, market.NotFound("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.Status = market.SessionStatus(status)
	if s.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("session %s created_at: %w", s.ID, err)
	}
	if s.Parties, err = t.sessionParties(ctx, s.ID); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *Tx) sessionParties(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT agent_id FROM session_parties WHERE session_id = ? ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session parties: %w", err)
	}
	defer rows.Close()

	parties := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session party: %w", err)
		}
		parties = append(parties, id)
	}
	return parties, rows.Err()
}

// ListSessionsForParty returns every session agentID participates in,
// newest first.
func (t *Tx) ListSessionsForParty(ctx context.Context, agentID string) ([]*market.Session, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT s.id FROM sessions s
		JOIN session_parties p ON p.session_id = s.id
		WHERE p.agent_id = ?
		ORDER BY s.created_at DESC, s.id DESC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	out := make([]*market.Session, 0, len(ids))
	for _, id := range ids {
		s, err := t.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// InsertMessage appends m and fills in its insertion sequence.
func (t *Tx) InsertMessage(ctx context.Context, m *market.Message) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, sender, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Sender, m.Payload, formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if m.Seq, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("message seq: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages oldest first; equal timestamps
// keep insertion order.
func (t *Tx) ListMessages(ctx context.Context, sessionID string) ([]*market.Message, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT seq, id, session_id, sender, payload, created_at FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC, seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []*market.Message{}
	for rows.Next() {
		var m market.Message
		var created string
		if err := rows.Scan(&m.Seq, &m.ID, &m.SessionID, &m.Sender, &m.Payload, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("message %s created_at: %w", m.ID, err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
