// Package api exposes the engine over the wire protocol launchers and
// game servers speak: the authserver and sessionserver route families,
// the instance metadata document, plus a small management API for
// accounts and profiles.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/mcauthd/yggdrasil"
)

// Server bundles the engine with the HTTP plumbing.
type Server struct {
	engine *yggdrasil.Engine
	log    *slog.Logger
}

// NewServer wraps an engine for HTTP serving.
func NewServer(e *yggdrasil.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: e, log: log}
}

// wireError is the protocol's error envelope.
type wireError struct {
	Error        string `json:"error"`
	ErrorMessage string `json:"errorMessage"`
	Cause        string `json:"cause,omitempty"`
}

// writeError maps an engine error onto the protocol envelope. Opaque
// verification failures and absent profiles answer 204 with no body,
// which is what game servers expect for "not verified".
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, yggdrasil.ErrNotVerified) || errors.Is(err, yggdrasil.ErrProfileNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var status int
	var name string
	switch yggdrasil.KindOf(err) {
	case yggdrasil.KindBadOperation:
		status, name = http.StatusBadRequest, "IllegalArgumentException"
	case yggdrasil.KindForbidden:
		status, name = http.StatusForbidden, "ForbiddenOperationException"
	case yggdrasil.KindNotFound:
		status, name = http.StatusNotFound, "IllegalArgumentException"
	case yggdrasil.KindTooManyRequests:
		status, name = http.StatusTooManyRequests, "ForbiddenOperationException"
	default:
		// Internal details never cross the wire; the trace id pairs the
		// response with the server log line.
		trace := uuid.NewString()
		s.log.Error("api: internal error", "method", r.Method, "path", r.URL.Path, "trace", trace, "err", err)
		writeJSON(w, http.StatusInternalServerError, wireError{
			Error:        "InternalServerError",
			ErrorMessage: "An internal error occurred (trace " + trace + ").",
		})
		return
	}

	writeJSON(w, status, wireError{Error: name, ErrorMessage: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const maxBodySize = 1 << 20

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return yggdrasil.ErrMissingField
	}
	return nil
}

// bearerToken extracts the access token from the Authorization header
// used by the management API.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

// clientIP strips the port from the request's remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
