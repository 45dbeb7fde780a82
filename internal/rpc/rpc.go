// Package rpc is the JSON-RPC 2.0 front over the session exchange and the
// public capability catalog.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/KafClaw/KafMarket/internal/catalog"
	"github.com/KafClaw/KafMarket/internal/exchange"
	"github.com/KafClaw/KafMarket/internal/market"
)

// Error codes. The negative application code collapses not-found and
// access-denied.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeSessionDenied  = -32001
)

const (
	MethodCapabilitiesList = "capabilities/list"
	MethodSessionCreate    = "session/create"
	MethodMessageSend      = "message/send"
)

// Request is the inbound envelope. ID is kept as raw bytes so it echoes
// back unchanged.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response carries either Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    ErrorData `json:"data"`
}

// ErrorData repeats the request id for callers that read it from there.
type ErrorData struct {
	ID json.RawMessage `json:"id"`
}

type sessionCreateParams struct {
	PartyIDs       []string        `json:"party_ids"`
	InitialMessage market.Document `json:"initial_message"`
}

type sessionCreateResult struct {
	SessionID string               `json:"session_id"`
	Parties   []string             `json:"parties"`
	Status    market.SessionStatus `json:"status"`
}

type messageSendParams struct {
	SessionID string          `json:"session_id"`
	Payload   market.Document `json:"payload"`
}

type messageSendResult struct {
	MessageID string `json:"message_id"`
	SessionID string `json:"session_id"`
}

// Adapter dispatches envelopes for an authenticated caller.
type Adapter struct {
	catalog  *catalog.Catalog
	exchange *exchange.Exchange
}

func NewAdapter(c *catalog.Catalog, x *exchange.Exchange) *Adapter {
	return &Adapter{catalog: c, exchange: x}
}

// Handle decodes body and runs it. It always returns a response; malformed
// JSON yields a parse error with a null id.
func (a *Adapter) Handle(ctx context.Context, callerID string, body []byte) *Response {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return errorResponse(nil, CodeParseError, "Parse error")
	}
	return a.Call(ctx, callerID, &req)
}

// Call runs one decoded request.
func (a *Adapter) Call(ctx context.Context, callerID string, req *Request) *Response {
	switch req.Method {
	case MethodCapabilitiesList:
		return a.capabilitiesList(ctx, req)
	case MethodSessionCreate:
		return a.sessionCreate(ctx, callerID, req)
	case MethodMessageSend:
		return a.messageSend(ctx, callerID, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found: "+req.Method)
	}
}

func (a *Adapter) capabilitiesList(ctx context.Context, req *Request) *Response {
	caps, err := a.catalog.ListPublic(ctx, "", "")
	if err != nil {
		return internalError(req, err)
	}
	return result(req.ID, caps)
}

func (a *Adapter) sessionCreate(ctx context.Context, callerID string, req *Request) *Response {
	var p sessionCreateParams
	if err := decodeParams(req.Params, &p); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params")
	}
	session, err := a.exchange.CreateSession(ctx, callerID, p.PartyIDs, p.InitialMessage)
	if err != nil {
		return internalError(req, err)
	}
	return result(req.ID, sessionCreateResult{
		SessionID: session.ID,
		Parties:   session.Parties,
		Status:    session.Status,
	})
}

func (a *Adapter) messageSend(ctx context.Context, callerID string, req *Request) *Response {
	var p messageSendParams
	if err := decodeParams(req.Params, &p); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params")
	}
	if p.SessionID == "" {
		return errorResponse(req.ID, CodeInvalidParams, "Missing session_id")
	}
	if p.Payload.IsZero() {
		p.Payload = market.ObjectDocument(map[string]any{})
	}
	msg, err := a.exchange.SendMessage(ctx, p.SessionID, callerID, p.Payload)
	switch {
	case err == nil:
		return result(req.ID, messageSendResult{MessageID: msg.ID, SessionID: msg.SessionID})
	case market.IsNotFound(err), market.IsForbidden(err):
		return errorResponse(req.ID, CodeSessionDenied, "Session not found or access denied")
	default:
		return internalError(req, err)
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

func result(id json.RawMessage, v any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: v}
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message, Data: ErrorData{ID: id}},
	}
}

func internalError(req *Request, err error) *Response {
	if market.IsInvalidInput(err) {
		return errorResponse(req.ID, CodeInvalidParams, market.Reason(err))
	}
	slog.Warn("rpc call failed", "method", req.Method, "error", err)
	return errorResponse(req.ID, CodeInternalError, "Internal error")
}

// WriteTo writes the envelope as one JSON line. The request id is copied
// byte for byte at both positions; encoding/json would compact it and
// escape HTML characters.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	id := []byte(r.ID)
	if len(bytes.TrimSpace(id)) == 0 {
		id = []byte("null")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"jsonrpc":"2.0","id":`)
	buf.Write(id)
	if r.Error != nil {
		fmt.Fprintf(&buf, `,"error":{"code":%d,"message":`, r.Error.Code)
		if err := encodeValue(&buf, r.Error.Message); err != nil {
			return 0, err
		}
		buf.WriteString(`,"data":{"id":`)
		buf.Write(id)
		buf.WriteString(`}}`)
	} else {
		buf.WriteString(`,"result":`)
		if err := encodeValue(&buf, r.Result); err != nil {
			return 0, err
		}
	}
	buf.WriteString("}\n")
	return buf.WriteTo(w)
}

func encodeValue(buf *bytes.Buffer, v any) error {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode rpc response: %w", err)
	}
	buf.Write(bytes.TrimRight(b.Bytes(), "\n"))
	return nil
}
