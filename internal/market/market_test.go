package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRfpTransitions(t *testing.T) {
	if !RfpOpen.CanTransition(RfpClosed) || !RfpOpen.CanTransition(RfpCancelled) {
		t.Fatal("open should move to closed and cancelled")
	}
	for _, from := range []RfpStatus{RfpClosed, RfpCancelled} {
		if !from.Terminal() {
			t.Fatalf("%s should be terminal", from)
		}
		for _, to := range []RfpStatus{RfpOpen, RfpClosed, RfpCancelled} {
			if from.CanTransition(to) {
				t.Fatalf("unexpected transition %s -> %s", from, to)
			}
		}
	}
	if _, err := ParseRfpStatus("archived"); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
}

func TestProposalTransitions(t *testing.T) {
	for _, to := range []ProposalStatus{ProposalAccepted, ProposalRejected, ProposalWithdrawn} {
		if !ProposalPending.CanTransition(to) {
			t.Fatalf("pending should move to %s", to)
		}
		if !to.Terminal() {
			t.Fatalf("%s should be terminal", to)
		}
		if to.CanTransition(ProposalPending) {
			t.Fatalf("%s should not return to pending", to)
		}
	}
	if _, err := ParseProposalStatus("Accepted"); err == nil {
		t.Fatal("status parsing should be case-sensitive")
	}
}

func TestParseAgentTypeDefaultsToPublisher(t *testing.T) {
	typ, err := ParseAgentType("")
	if err != nil || typ != AgentPublisher {
		t.Fatalf("expected publisher, got %q err=%v", typ, err)
	}
	if _, err := ParseAgentType("robot"); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestErrorKinds(t *testing.T) {
	cause := fmt.Errorf("UNIQUE constraint failed")
	err := fmt.Errorf("create proposal: %w", Conflict("proposal already exists", cause))
	if KindOf(err) != ErrConflict {
		t.Fatalf("expected conflict kind, got %v", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatal("conflict should keep its cause")
	}
	if Reason(err) != "proposal already exists" {
		t.Fatalf("unexpected reason %q", Reason(err))
	}
	if KindOf(errors.New("disk full")) != nil {
		t.Fatal("plain errors are unclassified")
	}
	if Reason(errors.New("disk full")) != "internal error" {
		t.Fatal("unclassified errors must not leak detail")
	}
	if !IsNotFound(NotFound("rfp", "rfp_1")) {
		t.Fatal("expected not found")
	}
}

func TestDocumentVariants(t *testing.T) {
	var obj Document
	if err := json.Unmarshal([]byte(`{"currency":"CNY","amount":5000}`), &obj); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	if obj.Kind() != DocumentObject {
		t.Fatalf("expected object kind, got %v", obj.Kind())
	}
	m, _ := obj.Object()
	if m["currency"] != "CNY" {
		t.Fatalf("unexpected object %v", m)
	}

	raw := []byte(`[1, 2,  "three"]`)
	var arr Document
	if err := json.Unmarshal(raw, &arr); err != nil {
		t.Fatalf("unmarshal array: %v", err)
	}
	if arr.Kind() != DocumentRaw {
		t.Fatalf("expected raw kind, got %v", arr.Kind())
	}
	out, err := json.Marshal(arr)
	if err != nil {
		t.Fatalf("marshal raw: %v", err)
	}
	if string(out) != `[1,2,"three"]` {
		t.Fatalf("raw document lost content: %s", out)
	}
	if string(arr.Bytes()) != string(raw) {
		t.Fatalf("raw bytes should pass through verbatim, got %s", arr.Bytes())
	}
	if err := arr.RequireObject("price"); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input for non-object price, got %v", err)
	}

	var empty Document
	if err := json.Unmarshal([]byte(`null`), &empty); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !empty.IsZero() {
		t.Fatal("null should be empty")
	}
	v, _ := empty.Value()
	if v != nil {
		t.Fatalf("empty document should store NULL, got %v", v)
	}
}

func TestDocumentScanRoundTrip(t *testing.T) {
	var d Document
	if err := d.Scan(`{"a":1}`); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if d.Kind() != DocumentObject {
		t.Fatalf("expected object, got %v", d.Kind())
	}
	if err := d.Scan(42); err == nil {
		t.Fatal("expected error scanning int")
	}
}

func TestNewIDFormat(t *testing.T) {
	id := NewID(PrefixRfp)
	if !strings.HasPrefix(id, "rfp_") || len(id) != len("rfp_")+24 {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID(PrefixRfp) == id {
		t.Fatal("ids should be unique")
	}
}

func TestSessionHasParty(t *testing.T) {
	s := &Session{Parties: []string{"agent_a", "agent_b"}}
	if !s.HasParty("agent_b") || s.HasParty("agent_c") {
		t.Fatal("party membership mismatch")
	}
}

func TestDocumentObjectKeepsOriginalBytes(t *testing.T) {
	in := `{"z":1,"n":12345678901234567891,"a":1.0}`
	var d Document
	if err := json.Unmarshal([]byte(in), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	v, err := d.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != in {
		t.Fatalf("stored %v, want %s", v, in)
	}

	var back Document
	if err := back.Scan(v); err != nil {
		t.Fatalf("scan: %v", err)
	}
	out, err := back.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != in {
		t.Fatalf("round trip changed the object: %s", out)
	}
	if back.Kind() != DocumentObject {
		t.Fatalf("expected object kind, got %v", back.Kind())
	}
	if m, _ := back.Object(); m["z"] != 1.0 {
		t.Fatalf("object not decoded for inspection: %v", m)
	}

	nested, err := json.Marshal(struct {
		Payload Document `json:"payload"`
	}{back})
	if err != nil {
		t.Fatalf("marshal nested: %v", err)
	}
	if !strings.Contains(string(nested), `"n":12345678901234567891`) {
		t.Fatalf("large integer lost precision: %s", nested)
	}
}

func TestDocumentEmptyObject(t *testing.T) {
	d, err := ParseDocument([]byte(` {} `))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.IsZero() || !d.IsEmptyObject() {
		t.Fatalf("expected empty object, got kind %v", d.Kind())
	}
	if string(d.Bytes()) != "{}" {
		t.Fatalf("unexpected bytes %s", d.Bytes())
	}
	if ObjectDocument(map[string]any{"k": "v"}).IsEmptyObject() {
		t.Fatal("non-empty object reported empty")
	}
}
