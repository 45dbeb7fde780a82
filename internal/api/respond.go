package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/KafClaw/KafMarket/internal/market"
)

type authedHandler func(w http.ResponseWriter, r *http.Request, caller *market.Agent)

// authed resolves the credential header before calling h.
func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		credential := strings.TrimSpace(r.Header.Get(s.cfg.Auth.APIKeyHeader))
		caller, err := s.gate.Authenticate(r.Context(), credential)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		h(w, r, caller)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// statusFor maps an error kind to its HTTP status. Unclassified errors are
// internal.
func statusFor(err error) int {
	switch market.KindOf(err) {
	case market.ErrUnauthenticated, market.ErrUnauthorized:
		return http.StatusUnauthorized
	case market.ErrForbidden:
		return http.StatusForbidden
	case market.ErrNotFound:
		return http.StatusNotFound
	case market.ErrInvalidState, market.ErrConflict:
		return http.StatusConflict
	case market.ErrInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"detail": market.Reason(err)})
}

// decodeBody reads a JSON object into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return market.InvalidInput("request body too large")
	}
	return market.InvalidInput("invalid JSON body: %v", err)
}
