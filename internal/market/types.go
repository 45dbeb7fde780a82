// Package market holds the marketplace entities, their status machines and
// the error kinds shared by every service.
package market

import "time"

// Agent is a registered marketplace participant.
type Agent struct {
	ID         string    `json:"id"`
	DID        string    `json:"did"`
	Name       string    `json:"name"`
	Type       AgentType `json:"type"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// PublicAgent is the agent card visible to anyone.
type PublicAgent struct {
	ID   string    `json:"id"`
	DID  string    `json:"did"`
	Name string    `json:"name"`
	Type AgentType `json:"type"`
}

func (a *Agent) Public() PublicAgent {
	return PublicAgent{ID: a.ID, DID: a.DID, Name: a.Name, Type: a.Type}
}

// Capability is something an agent offers. Type is the matching key.
type Capability struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	Type        string    `json:"type"`
	InputSchema Document  `json:"input_schema"`
	Price       Document  `json:"price"`
	Domains     []string  `json:"domains"`
	CreatedAt   time.Time `json:"created_at"`
}

// PublicCapability is a catalog entry.
type PublicCapability struct {
	AgentID     string   `json:"agent_id"`
	Type        string   `json:"type"`
	InputSchema Document `json:"input_schema"`
	Price       Document `json:"price"`
	Domains     []string `json:"domains"`
}

func (c *Capability) Public() PublicCapability {
	return PublicCapability{
		AgentID:     c.AgentID,
		Type:        c.Type,
		InputSchema: c.InputSchema,
		Price:       c.Price,
		Domains:     c.Domains,
	}
}

// Rfp is a request for proposal published by a demand-side agent.
type Rfp struct {
	ID             string     `json:"id"`
	CreatorAgentID string     `json:"creator_agent_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	CapabilityType string     `json:"capability_type"`
	DomainFilters  []string   `json:"domain_filters"`
	Budget         Document   `json:"budget"`
	DeadlineAt     *time.Time `json:"deadline_at"`
	Status         RfpStatus  `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Proposal is a supplier's bid against an Rfp.
type Proposal struct {
	ID              string         `json:"id"`
	RfpID           string         `json:"rfp_id"`
	SupplierAgentID string         `json:"supplier_agent_id"`
	Status          ProposalStatus `json:"status"`
	Price           Document       `json:"price"`
	DeliveryAt      string         `json:"delivery_at,omitempty"`
	Content         string         `json:"content,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// RfpSummary is the creator's overview of an Rfp and its bids.
type RfpSummary struct {
	Rfp           *Rfp        `json:"rfp"`
	ProposalCount int         `json:"proposal_count"`
	Proposals     []*Proposal `json:"proposals"`
}

// Session is a negotiation channel between parties.
type Session struct {
	ID        string        `json:"id"`
	Parties   []string      `json:"parties"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// HasParty reports whether agentID participates in the session.
func (s *Session) HasParty(agentID string) bool {
	for _, p := range s.Parties {
		if p == agentID {
			return true
		}
	}
	return false
}

// Message is one entry in a session. Seq is the insertion order.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Sender    string    `json:"sender"`
	Payload   Document  `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	Seq       int64     `json:"-"`
}
