package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/KafClaw/KafMarket/internal/catalog"
	"github.com/KafClaw/KafMarket/internal/identity"
	"github.com/KafClaw/KafMarket/internal/market"
	"github.com/KafClaw/KafMarket/internal/negotiation"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

// handleWellKnown is the agent self-onboarding discovery document.
func (s *Server) handleWellKnown(w http.ResponseWriter, r *http.Request) {
	base := strings.TrimRight(s.cfg.Gateway.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"register_url":     base + "/v1/agents/register",
		"capabilities_url": base + "/v1/capabilities",
		"match_url":        base + "/v1/match",
		"rpc_url":          base + "/a2a/v1",
		"api_key_header":   s.cfg.Auth.APIKeyHeader,
		"agent_self_onboarding": "POST register_url without credentials to obtain an api_key (returned once); " +
			"send it in the " + s.cfg.Auth.APIKeyHeader + " header on authenticated requests.",
	})
}

// Agents

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in identity.RegisterInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	reg, err := s.gate.Register(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, caller *market.Agent) {
	writeJSON(w, http.StatusOK, caller)
}

func (s *Server) handlePublicAgent(w http.ResponseWriter, r *http.Request) {
	card, err := s.gate.PublicAgent(r.Context(), r.PathValue("agent_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// Capabilities

func (s *Server) handleCreateCapability(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	var in catalog.CapabilityInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.catalog.Create(r.Context(), caller.ID, r.PathValue("agent_id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleListOwnCapabilities(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	caps, err := s.catalog.ListOwn(r.Context(), caller.ID, r.PathValue("agent_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

func (s *Server) handleUpdateCapability(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	var patch catalog.CapabilityPatch
	if err := decodeBody(w, r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.catalog.Update(r.Context(), caller.ID, r.PathValue("agent_id"), r.PathValue("cap_id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCapability(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	if err := s.catalog.Delete(r.Context(), caller.ID, r.PathValue("agent_id"), r.PathValue("cap_id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePublicCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	caps, err := s.catalog.ListPublic(r.Context(), q.Get("type"), q.Get("domain"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

// handleMatch accepts repeated or comma-separated domain parameters.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	capabilityType := q.Get("capability_type")
	var filters []string
	for _, v := range q["domain"] {
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				filters = append(filters, d)
			}
		}
	}
	agents, err := s.catalog.Match(r.Context(), capabilityType, filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if filters == nil {
		filters = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"capability_type": strings.TrimSpace(capabilityType),
		"domain_filters":  filters,
		"agents":          agents,
	})
}

// Sessions

type sessionCreateBody struct {
	PartyIDs       []string        `json:"party_ids"`
	InitialMessage market.Document `json:"initial_message"`
}

type messageBody struct {
	Payload market.Document `json:"payload"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	var body sessionCreateBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.exchange.CreateSession(r.Context(), caller.ID, body.PartyIDs, body.InitialMessage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	sessions, err := s.exchange.ListSessions(r.Context(), caller.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	session, err := s.exchange.GetSession(r.Context(), r.PathValue("session_id"), caller.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	var body messageBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Payload.IsZero() {
		s.writeError(w, r, market.InvalidInput("payload is required"))
		return
	}
	msg, err := s.exchange.SendMessage(r.Context(), r.PathValue("session_id"), caller.ID, body.Payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	msgs, err := s.exchange.ListMessages(r.Context(), r.PathValue("session_id"), caller.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// RFPs and proposals

type proposalStatusBody struct {
	Status string `json:"status"`
}

func (s *Server) handleCreateRfp(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	var in negotiation.RfpInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	rfp, err := s.negotiation.CreateRfp(r.Context(), caller.ID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rfp)
}

func (s *Server) handleListRfps(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	q := r.URL.Query()
	scope, err := negotiation.ParseScope(q.Get("scope"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rfps, err := s.negotiation.ListRfps(r.Context(), caller.ID, scope, q.Get("status"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rfps)
}

func (s *Server) handleGetRfp(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	rfp, err := s.negotiation.GetRfp(r.Context(), r.PathValue("rfp_id"), caller.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rfp)
}

func (s *Server) handleUpdateRfp(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	var upd negotiation.RfpUpdate
	if err := decodeBody(w, r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	rfp, err := s.negotiation.UpdateRfp(r.Context(), r.PathValue("rfp_id"), caller.ID, upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rfp)
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	var in negotiation.ProposalInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.negotiation.CreateProposal(r.Context(), r.PathValue("rfp_id"), caller.ID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	ps, err := s.negotiation.ListProposals(r.Context(), r.PathValue("rfp_id"), caller.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) handleRfpSummary(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	summary, err := s.negotiation.RfpSummary(r.Context(), r.PathValue("rfp_id"), caller.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	p, err := s.negotiation.GetProposal(r.Context(), r.PathValue("proposal_id"), caller.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProposal(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	var body proposalStatusBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.negotiation.UpdateProposalStatus(r.Context(), r.PathValue("proposal_id"), caller.ID, body.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleRPC always answers 200; failures travel in the envelope.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request, caller *market.Agent) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, market.InvalidInput("request body too large"))
		return
	}
	resp := s.rpc.Handle(r.Context(), caller.ID, body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := resp.WriteTo(w); err != nil {
		s.logger.Warn("rpc response write failed", "error", err)
	}
}
