// Package identity issues agent credentials and resolves presented
// credentials back to agents.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/KafClaw/KafMarket/internal/bus"
	"github.com/KafClaw/KafMarket/internal/market"
	"github.com/KafClaw/KafMarket/internal/store"
)

// KeyPrefix marks marketplace API keys.
const KeyPrefix = "sk_"

// Gate authenticates agents and registers new ones.
type Gate struct {
	store     *store.Store
	header    string
	didPrefix string
	events    bus.Publisher
}

// NewGate creates a gate. header is only used in error messages; the HTTP
// layer reads the credential itself.
func NewGate(st *store.Store, header, didPrefix string, events bus.Publisher) *Gate {
	if events == nil {
		events = bus.Discard
	}
	return &Gate{store: st, header: header, didPrefix: didPrefix, events: events}
}

// RegisterInput describes a new agent.
type RegisterInput struct {
	Name string `json:"name"`
	Type string `json:"type"`
	DID  string `json:"did"`
}

// Registration is returned once; the plaintext key is never stored.
type Registration struct {
	market.Agent
	APIKey string `json:"api_key"`
}

// Register creates an agent and its API key.
func (g *Gate) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, market.InvalidInput("name is required")
	}
	if len(name) > 256 {
		return nil, market.InvalidInput("name must be at most 256 characters")
	}
	typ, err := market.ParseAgentType(in.Type)
	if err != nil {
		return nil, err
	}
	key, err := NewAPIKey()
	if err != nil {
		return nil, err
	}

	agent := market.Agent{
		ID:         market.NewID(market.PrefixAgent),
		Name:       name,
		Type:       typ,
		APIKeyHash: HashKey(key),
		CreatedAt:  time.Now().UTC(),
	}
	agent.DID = strings.TrimSpace(in.DID)
	if agent.DID == "" {
		agent.DID = g.didPrefix + agent.ID
	}

	if err := g.store.InTx(ctx, func(tx *store.Tx) error {
		return tx.InsertAgent(ctx, &agent)
	}); err != nil {
		return nil, err
	}
	g.events.Publish(&bus.Event{
		ID:       market.NewID("evt"),
		Type:     bus.EventAgentRegistered,
		ActorID:  agent.ID,
		EntityID: agent.ID,
		Data:     map[string]any{"name": agent.Name, "type": string(agent.Type), "did": agent.DID},
	})
	return &Registration{Agent: agent, APIKey: key}, nil
}

// Authenticate resolves a presented credential. An empty credential is
// Unauthenticated; an unknown one is Unauthorized.
func (g *Gate) Authenticate(ctx context.Context, credential string) (*market.Agent, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, market.Unauthenticated("Missing API Key. Use header: " + g.header)
	}
	var agent *market.Agent
	err := g.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		agent, err = tx.GetAgentByKeyHash(ctx, HashKey(credential))
		return err
	})
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, market.Unauthorized("Invalid API Key")
	}
	return agent, nil
}

// PublicAgent returns the public card of any agent.
func (g *Gate) PublicAgent(ctx context.Context, agentID string) (*market.PublicAgent, error) {
	var card market.PublicAgent
	err := g.store.InTx(ctx, func(tx *store.Tx) error {
		a, err := tx.GetAgent(ctx, agentID)
		if err != nil {
			return err
		}
		card = a.Public()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// NewAPIKey returns sk_ followed by 32 random bytes, base64url encoded.
func NewAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashKey is the stored form of an API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
