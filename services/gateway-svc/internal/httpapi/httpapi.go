// Package httpapi is the client-facing HTTP surface: a thin
// JSON-RPC proxy handler that hands admitted requests to the dispatcher,
// plus a handful of REST stub endpoints sharing the same admission path.
// Routing uses the standard library's method-and-path ServeMux patterns
// (Go 1.22+); no example repo in this project's corpus pulled in an HTTP
// router dependency for a surface this thin, so the router itself stays
// on net/http (see DESIGN.md).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"gateway/pkg/apperror"
	"gateway/pkg/logger"
	"gateway/services/gateway-svc/internal/dispatcher"
	"gateway/services/gateway-svc/internal/identitycache"
)

const maxBodyBytes = 1 << 20 // 1 MiB, generous for a JSON-RPC envelope

// Server wires the dispatcher and identity cache into the external HTTP
// contract.
type Server struct {
	dispatcher     *dispatcher.Dispatcher
	identity       *identitycache.Cache
	requestTimeout time.Duration
}

// NewServer constructs the external HTTP surface. requestTimeout bounds
// the whole-request wall-clock budget applied at handler entry; zero
// disables the budget.
func NewServer(d *dispatcher.Dispatcher, identity *identitycache.Cache, requestTimeout time.Duration) *Server {
	return &Server{dispatcher: d, identity: identity, requestTimeout: requestTimeout}
}

// withBudget derives a request-scoped context bounded by requestTimeout.
func (s *Server) withBudget(r *http.Request) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return r.Context(), func() {}
	}
	return context.WithTimeout(r.Context(), s.requestTimeout)
}

// Routes returns the mux for the client-facing HTTP surface.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/", s.handleRPC)
	mux.HandleFunc("POST /v1/json-rpc", s.handleRPC)
	mux.HandleFunc("GET /v1/{projectId}/balances", s.handleBalances)
	mux.HandleFunc("GET /v1/{projectId}/history", s.handleHistory)
	mux.HandleFunc("POST /v1/{projectId}/swap/quote", s.handleSwapQuote)
	mux.HandleFunc("GET /v1/{projectId}/onramp/url", s.handleOnrampURL)
	mux.HandleFunc("GET /v1/{projectId}/identity", s.handleIdentity)
	return mux
}

// handleRPC implements the JSON-RPC proxy surface: required query
// params chainId/projectId, optional providerId pin and archive flag.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chainID := q.Get("chainId")
	projectID := q.Get("projectId")
	if chainID == "" || projectID == "" {
		writeError(w, apperror.New(apperror.CodeMissingParam, apperror.KindInput,
			"chainId and projectId are required query parameters"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperror.Wrap(err, apperror.CodeMalformedRequest, apperror.KindInput, "failed to read request body"))
		return
	}

	in := dispatcher.Input{
		RequestID:        requestID(r),
		RawChainID:       chainID,
		ProjectID:        projectID,
		PinnedProviderID: q.Get("providerId"),
		ClientIP:         clientIP(r),
		CountryCode:      r.Header.Get("X-Country-Code"),
		Archive:          q.Get("archive") == "true",
		Body:             body,
	}

	ctx, cancel := s.withBudget(r)
	defer cancel()

	out, aerr := s.dispatcher.Dispatch(ctx, in)
	if aerr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			writeError(w, apperror.ErrRequestTimeout)
			return
		}
		writeError(w, aerr)
		return
	}

	if out.MediaType == "" {
		out.MediaType = "application/json"
	}
	w.Header().Set("Content-Type", out.MediaType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Body); err != nil {
		logger.Log.Warn("failed writing proxy response", "error", err, "request_id", in.RequestID)
	}
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := splitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func splitHostPort(addr string) (string, string, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, "", nil
	}
	return addr[:idx], addr[idx+1:], nil
}

// errorResponse is the machine-readable error body rendered for every
// non-2xx response ("a short stable message and a machine-readable
// code").
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field,omitempty"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, aerr *apperror.Error) {
	resp := errorResponse{}
	resp.Error.Code = string(aerr.Code)
	resp.Error.Message = aerr.Message
	resp.Error.Field = aerr.Field

	if aerr.Code == apperror.CodeRateLimited {
		if secs, ok := aerr.Details["retryAfterSeconds"].(int); ok && secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(aerr.HTTPStatus())
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Log.Warn("failed to encode error response", "error", err)
	}
}

