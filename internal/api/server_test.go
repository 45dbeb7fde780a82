package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/KafClaw/KafMarket/internal/config"
	"github.com/KafClaw/KafMarket/internal/market"
	"github.com/KafClaw/KafMarket/internal/markettest"
)

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	events *markettest.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Gateway.PublicURL = "https://market.example.com/"
	rec := &markettest.Recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(cfg, markettest.NewStore(t), rec, logger, "test")
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, events: rec}
}

// do sends a request and decodes the JSON response into out when non-nil.
func (ts *testServer) do(method, path, key string, body any, out any) int {
	ts.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			ts.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	if err != nil {
		ts.t.Fatalf("new request: %v", err)
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			ts.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type registered struct {
	ID     string `json:"id"`
	DID    string `json:"did"`
	APIKey string `json:"api_key"`
}

func (ts *testServer) register(name string) registered {
	ts.t.Helper()
	var reg registered
	if code := ts.do("POST", "/v1/agents/register", "", map[string]any{"name": name, "type": "studio"}, &reg); code != http.StatusOK {
		ts.t.Fatalf("register %s: status %d", name, code)
	}
	if reg.APIKey == "" || reg.ID == "" {
		ts.t.Fatalf("register %s: missing id or key %+v", name, reg)
	}
	return reg
}

func TestAuthFailures(t *testing.T) {
	ts := newTestServer(t)
	var detail map[string]string

	if code := ts.do("GET", "/v1/agents/me", "", nil, &detail); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", code)
	}
	if detail["detail"] != "Missing API Key. Use header: X-API-Key" {
		t.Fatalf("unexpected detail %q", detail["detail"])
	}
	if code := ts.do("GET", "/v1/agents/me", "sk_bogus", nil, &detail); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad key, got %d", code)
	}
	if detail["detail"] != "Invalid API Key" {
		t.Fatalf("unexpected detail %q", detail["detail"])
	}
}

func TestRegisterAndMe(t *testing.T) {
	ts := newTestServer(t)
	reg := ts.register("Studio One")

	var me map[string]any
	if code := ts.do("GET", "/v1/agents/me", reg.APIKey, nil, &me); code != http.StatusOK {
		t.Fatalf("me: status %d", code)
	}
	if me["id"] != reg.ID || me["did"] != "did:kafmarket:agent:"+reg.ID {
		t.Fatalf("unexpected me %v", me)
	}
	if _, leaked := me["api_key"]; leaked {
		t.Fatalf("me must not expose the key")
	}

	var card map[string]any
	if code := ts.do("GET", "/v1/agents/"+reg.ID+"/public", "", nil, &card); code != http.StatusOK || card["name"] != "Studio One" {
		t.Fatalf("public card: %d %v", code, card)
	}
	if code := ts.do("GET", "/v1/agents/agent_missing/public", "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code := ts.do("POST", "/v1/agents/register", "", `{"name":`, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", code)
	}
}

func TestNegotiationFlow(t *testing.T) {
	ts := newTestServer(t)
	supplier := ts.register("Supplier")
	buyer := ts.register("Buyer")
	outsider := ts.register("Outsider")

	capBody := map[string]any{"type": "ip_evaluation", "domains": []string{"悬疑"}, "price": map[string]any{"amount": 100}}
	if code := ts.do("POST", "/v1/agents/"+supplier.ID+"/capabilities", buyer.APIKey, capBody, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 creating capability for another agent, got %d", code)
	}
	if code := ts.do("POST", "/v1/agents/"+supplier.ID+"/capabilities", supplier.APIKey, capBody, nil); code != http.StatusOK {
		t.Fatalf("create capability: %d", code)
	}

	var match struct {
		Agents []struct {
			ID string `json:"id"`
		} `json:"agents"`
	}
	if code := ts.do("GET", "/v1/match?capability_type=ip_evaluation&domain="+url.QueryEscape("悬疑"), "", nil, &match); code != http.StatusOK {
		t.Fatalf("match: %d", code)
	}
	if len(match.Agents) != 1 || match.Agents[0].ID != supplier.ID {
		t.Fatalf("unexpected match %+v", match)
	}

	var rfp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	rfpBody := map[string]any{
		"title":           "Evaluate a thriller",
		"capability_type": "ip_evaluation",
		"domain_filters":  []string{"悬疑"},
		"budget":          map[string]any{"currency": "CNY", "max": 8000},
		"status":          "closed",
	}
	if code := ts.do("POST", "/v1/rfps", buyer.APIKey, rfpBody, &rfp); code != http.StatusOK || rfp.Status != "open" {
		t.Fatalf("create rfp: %d %+v", code, rfp)
	}
	if code := ts.do("GET", "/v1/rfps/"+rfp.ID, outsider.APIKey, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider view, got %d", code)
	}

	var proposal struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	propBody := map[string]any{"price": map[string]any{"amount": 5000}, "content": "two weeks"}
	if code := ts.do("POST", "/v1/rfps/"+rfp.ID+"/proposals", supplier.APIKey, propBody, &proposal); code != http.StatusOK || proposal.Status != "pending" {
		t.Fatalf("create proposal: %d %+v", code, proposal)
	}
	if code := ts.do("POST", "/v1/rfps/"+rfp.ID+"/proposals", supplier.APIKey, propBody, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate proposal, got %d", code)
	}
	if code := ts.do("POST", "/v1/rfps/"+rfp.ID+"/proposals", outsider.APIKey, propBody, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for ineligible supplier, got %d", code)
	}

	if code := ts.do("PATCH", "/v1/proposals/"+proposal.ID, supplier.APIKey, map[string]string{"status": "accepted"}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for supplier accepting, got %d", code)
	}
	if code := ts.do("PATCH", "/v1/proposals/"+proposal.ID, buyer.APIKey, map[string]string{"status": "accepted"}, &proposal); code != http.StatusOK || proposal.Status != "accepted" {
		t.Fatalf("accept: %d %+v", code, proposal)
	}
	if code := ts.do("PATCH", "/v1/proposals/"+proposal.ID, supplier.APIKey, map[string]string{"status": "withdrawn"}, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 withdrawing accepted proposal, got %d", code)
	}

	var summary struct {
		ProposalCount int `json:"proposal_count"`
	}
	if code := ts.do("GET", "/v1/rfps/"+rfp.ID+"/summary", buyer.APIKey, nil, &summary); code != http.StatusOK || summary.ProposalCount != 1 {
		t.Fatalf("summary: %d %+v", code, summary)
	}

	if code := ts.do("PATCH", "/v1/rfps/"+rfp.ID, buyer.APIKey, map[string]string{"status": "cancelled"}, nil); code != http.StatusOK {
		t.Fatalf("cancel: %d", code)
	}
	if code := ts.do("PATCH", "/v1/rfps/"+rfp.ID, buyer.APIKey, map[string]string{"status": "open"}, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 reopening, got %d", code)
	}
	if code := ts.do("GET", "/v1/rfps?scope=bogus", buyer.APIKey, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad scope, got %d", code)
	}

	var matched []map[string]any
	if code := ts.do("GET", "/v1/rfps?scope=matched", supplier.APIKey, nil, &matched); code != http.StatusOK || len(matched) != 1 {
		t.Fatalf("matched rfps: %d %v", code, matched)
	}
}

func TestSessionsAndRPC(t *testing.T) {
	ts := newTestServer(t)
	a := ts.register("A")
	b := ts.register("B")

	var session struct {
		ID      string   `json:"id"`
		Parties []string `json:"parties"`
	}
	if code := ts.do("POST", "/v1/sessions", a.APIKey, map[string]any{"party_ids": []string{}}, &session); code != http.StatusOK {
		t.Fatalf("create session: %d", code)
	}
	if len(session.Parties) != 1 || session.Parties[0] != a.ID {
		t.Fatalf("unexpected parties %v", session.Parties)
	}
	if code := ts.do("GET", "/v1/sessions/"+session.ID+"/messages", b.APIKey, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-party, got %d", code)
	}
	if code := ts.do("POST", "/v1/sessions/"+session.ID+"/messages", a.APIKey, map[string]any{}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without payload, got %d", code)
	}
	if code := ts.do("POST", "/v1/sessions/"+session.ID+"/messages", a.APIKey, `{"payload":{"note":"hi","n":1}}`, nil); code != http.StatusOK {
		t.Fatalf("send: %d", code)
	}
	var msgs []map[string]any
	if code := ts.do("GET", "/v1/sessions/"+session.ID+"/messages", a.APIKey, nil, &msgs); code != http.StatusOK || len(msgs) != 1 {
		t.Fatalf("list messages: %d %v", code, msgs)
	}

	var rpcResp map[string]any
	code := ts.do("POST", "/a2a/v1", a.APIKey, `{"id":"x1","method":"message/send","params":{"payload":{"a":1}}}`, &rpcResp)
	if code != http.StatusOK || rpcResp["id"] != "x1" {
		t.Fatalf("rpc: %d %v", code, rpcResp)
	}
	rpcErr := rpcResp["error"].(map[string]any)
	if rpcErr["code"] != float64(-32602) || rpcErr["message"] != "Missing session_id" {
		t.Fatalf("unexpected rpc error %v", rpcErr)
	}
	if code := ts.do("POST", "/a2a/v1", "", `{"id":1,"method":"capabilities/list"}`, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for rpc without key, got %d", code)
	}
}

func TestDiscoveryEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]any
	if code := ts.do("GET", "/healthz", "", nil, &health); code != http.StatusOK || health["ok"] != true {
		t.Fatalf("healthz: %d %v", code, health)
	}
	var doc map[string]any
	if code := ts.do("GET", "/.well-known/a2a.json", "", nil, &doc); code != http.StatusOK {
		t.Fatalf("well-known: %d", code)
	}
	if doc["register_url"] != "https://market.example.com/v1/agents/register" {
		t.Fatalf("unexpected register_url %v", doc["register_url"])
	}
	var catalog []any
	if code := ts.do("GET", "/v1/capabilities?type=none", "", nil, &catalog); code != http.StatusOK || len(catalog) != 0 {
		t.Fatalf("catalog: %d %v", code, catalog)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{market.Unauthenticated("x"), http.StatusUnauthorized},
		{market.Unauthorized("x"), http.StatusUnauthorized},
		{market.Forbidden("x"), http.StatusForbidden},
		{market.NotFound("rfp", "rfp_1"), http.StatusNotFound},
		{market.InvalidState("x"), http.StatusConflict},
		{market.Conflict("x", nil), http.StatusConflict},
		{market.InvalidInput("x"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", market.Forbidden("x")), http.StatusForbidden},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRPCEchoesIDBytes(t *testing.T) {
	ts := newTestServer(t)
	a := ts.register("A")

	id := `{ "trace" : "a<b>&c" }`
	req, err := http.NewRequest("POST", ts.srv.URL+"/a2a/v1", bytes.NewBufferString(`{"id":`+id+`,"method":"message/send","params":{}}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-API-Key", a.APIKey)
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("rpc: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":` + id + `,"error":{"code":-32602,"message":"Missing session_id","data":{"id":` + id + `}}}` + "\n"
	if string(body) != want {
		t.Fatalf("unexpected body:\n got %s\nwant %s", body, want)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}
