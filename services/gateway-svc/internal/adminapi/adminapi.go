// Package adminapi is the internal-only control-plane RPC surface for
// operators, served over Connect: a token exchange plus JWT-bearer
// authenticated procedures for registry reload, weight inspection,
// provider pin/unpin, and rate-limit bucket diagnostics.
//
// The service is hand-authored rather than generated: its message types
// are plain Go structs carried by a JSON codec, since the admin
// vocabulary is a handful of flat request/response shapes with no
// cross-service schema to share.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"

	"gateway/pkg/config"
	"gateway/pkg/logger"
	"gateway/pkg/passhash"
	"gateway/pkg/ratelimit"
	"gateway/services/gateway-svc/internal/registry"
	"gateway/services/gateway-svc/internal/store"
	"gateway/services/gateway-svc/internal/weightstore"
)

// Procedure paths, in the <package>.<Service>/<Method> shape Connect
// routes on.
const (
	ProcedureToken          = "/admin.v1.AdminService/Token"
	ProcedureReloadRegistry = "/admin.v1.AdminService/ReloadRegistry"
	ProcedureGetWeights     = "/admin.v1.AdminService/GetWeights"
	ProcedurePinProvider    = "/admin.v1.AdminService/PinProvider"
	ProcedureUnpinProvider  = "/admin.v1.AdminService/UnpinProvider"
	ProcedureGetRateLimit   = "/admin.v1.AdminService/GetRateLimit"
)

// OverlayStore is the subset of the control-plane store the reload
// operation needs, satisfied by *store.Store.
type OverlayStore interface {
	ListProviderOverlay(ctx context.Context) ([]*store.ProviderOverlay, error)
}

// Server implements the admin service.
type Server struct {
	jwt          *passhash.JWTManager
	registry     *registry.Registry
	weights      *weightstore.Store
	limiter      ratelimit.Limiter
	baseSeeds    []config.ProviderSeed
	overlay      OverlayStore // nil if no control-plane database is configured
	passwordHash string       // argon2id-encoded operator password; empty disables Token
}

// New constructs the admin service. overlay may be nil, in which case
// reload simply re-applies baseSeeds with no overlay adjustments.
func New(jwt *passhash.JWTManager, reg *registry.Registry, weights *weightstore.Store, limiter ratelimit.Limiter, baseSeeds []config.ProviderSeed, overlay OverlayStore, passwordHash string) *Server {
	return &Server{jwt: jwt, registry: reg, weights: weights, limiter: limiter, baseSeeds: baseSeeds, overlay: overlay, passwordHash: passwordHash}
}

// Routes mounts every procedure on a mux: Token public, everything else
// behind the bearer-JWT interceptor.
func (s *Server) Routes() *http.ServeMux {
	codec := connect.WithCodec(jsonCodec{})
	auth := connect.WithInterceptors(s.authInterceptor())

	mux := http.NewServeMux()
	mux.Handle(ProcedureToken, connect.NewUnaryHandler(ProcedureToken, s.Token, codec))
	mux.Handle(ProcedureReloadRegistry, connect.NewUnaryHandler(ProcedureReloadRegistry, s.ReloadRegistry, codec, auth))
	mux.Handle(ProcedureGetWeights, connect.NewUnaryHandler(ProcedureGetWeights, s.GetWeights, codec, auth))
	mux.Handle(ProcedurePinProvider, connect.NewUnaryHandler(ProcedurePinProvider, s.PinProvider, codec, auth))
	mux.Handle(ProcedureUnpinProvider, connect.NewUnaryHandler(ProcedureUnpinProvider, s.UnpinProvider, codec, auth))
	mux.Handle(ProcedureGetRateLimit, connect.NewUnaryHandler(ProcedureGetRateLimit, s.GetRateLimit, codec, auth))
	return mux
}

// authInterceptor rejects any procedure reached without a valid bearer
// JWT issued by Token.
func (s *Server) authInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			token, ok := strings.CutPrefix(req.Header().Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("missing bearer token"))
			}
			claims, err := s.jwt.ValidateToken(token)
			if err != nil || claims.TokenType == "refresh" {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid or expired token"))
			}
			return next(ctx, req)
		}
	}
}

// TokenRequest exchanges the operator password for a bearer JWT.
type TokenRequest struct {
	Operator string `json:"operator"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// Token verifies the operator password against the configured argon2id
// hash and issues the bearer JWT the other procedures require. Disabled
// unless a password hash is configured.
func (s *Server) Token(ctx context.Context, req *connect.Request[TokenRequest]) (*connect.Response[TokenResponse], error) {
	if s.passwordHash == "" {
		return nil, connect.NewError(connect.CodePermissionDenied, errors.New("token exchange is not configured"))
	}
	if req.Msg.Operator == "" || req.Msg.Password == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("operator and password are required"))
	}

	ok, err := passhash.VerifyPassword(req.Msg.Password, s.passwordHash)
	if err != nil {
		logger.Log.Error("admin token exchange: malformed password hash in config", "error", err)
		return nil, connect.NewError(connect.CodeInternal, errors.New("token exchange misconfigured"))
	}
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid credentials"))
	}

	token, err := s.jwt.GenerateAccessToken(req.Msg.Operator, req.Msg.Operator, "operator")
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, errors.New("failed to issue token"))
	}
	return connect.NewResponse(&TokenResponse{
		Token:     token,
		ExpiresIn: s.jwt.GetAccessTokenExpiry(),
	}), nil
}

type ReloadRegistryRequest struct{}

type ReloadRegistryResponse struct {
	Status    string `json:"status"`
	Providers int    `json:"providers"`
}

// ReloadRegistry rebuilds the registry snapshot from the configured
// provider seeds layered with the control-plane overlay rows (disabled
// providers zeroed, weight overrides applied), then swaps it in
// atomically.
func (s *Server) ReloadRegistry(ctx context.Context, _ *connect.Request[ReloadRegistryRequest]) (*connect.Response[ReloadRegistryResponse], error) {
	var rows []*store.ProviderOverlay
	if s.overlay != nil {
		var err error
		rows, err = s.overlay.ListProviderOverlay(ctx)
		if err != nil {
			logger.Log.Warn("admin reload: overlay fetch failed, reloading with base seeds only", "error", err)
		}
	}

	s.registry.Reload(s.baseSeeds)

	for _, row := range rows {
		switch {
		case !row.Enabled:
			s.weights.Set(row.ProviderID, row.ChainID, 0)
		case row.WeightOverride != nil:
			s.weights.Set(row.ProviderID, row.ChainID, *row.WeightOverride)
		}
	}

	return connect.NewResponse(&ReloadRegistryResponse{
		Status:    "reloaded",
		Providers: len(s.baseSeeds),
	}), nil
}

type GetWeightsRequest struct{}

type GetWeightsResponse struct {
	// Weights is keyed "provider|chain".
	Weights map[string]float64 `json:"weights"`
}

// GetWeights dumps the weight store.
func (s *Server) GetWeights(ctx context.Context, _ *connect.Request[GetWeightsRequest]) (*connect.Response[GetWeightsResponse], error) {
	return connect.NewResponse(&GetWeightsResponse{Weights: s.weights.Snapshot()}), nil
}

// PinRequest identifies one (provider, chain) pair to pin or unpin.
type PinRequest struct {
	ProviderID string `json:"providerId"`
	ChainID    string `json:"chainId"`
}

type PinResponse struct {
	ProviderID string  `json:"providerId"`
	ChainID    string  `json:"chainId"`
	Weight     float64 `json:"weight"`
}

func (r *PinRequest) validate() error {
	if r.ProviderID == "" || r.ChainID == "" {
		return errors.New("providerId and chainId are required")
	}
	return nil
}

// PinProvider forces a provider's weight for one chain to 1, outside the
// feedback loop's cadence.
func (s *Server) PinProvider(ctx context.Context, req *connect.Request[PinRequest]) (*connect.Response[PinResponse], error) {
	if err := req.Msg.validate(); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	s.weights.Pin(req.Msg.ProviderID, req.Msg.ChainID)
	return connect.NewResponse(&PinResponse{ProviderID: req.Msg.ProviderID, ChainID: req.Msg.ChainID, Weight: 1}), nil
}

// UnpinProvider forces the weight to 0, pulling the provider out of
// selection until the feedback loop restores it.
func (s *Server) UnpinProvider(ctx context.Context, req *connect.Request[PinRequest]) (*connect.Response[PinResponse], error) {
	if err := req.Msg.validate(); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	s.weights.Unpin(req.Msg.ProviderID, req.Msg.ChainID)
	return connect.NewResponse(&PinResponse{ProviderID: req.Msg.ProviderID, ChainID: req.Msg.ChainID, Weight: 0}), nil
}

type GetRateLimitRequest struct {
	ProjectID string `json:"projectId"`
}

type GetRateLimitResponse struct {
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// GetRateLimit reports a project's current bucket state, for support
// diagnostics.
func (s *Server) GetRateLimit(ctx context.Context, req *connect.Request[GetRateLimitRequest]) (*connect.Response[GetRateLimitResponse], error) {
	if req.Msg.ProjectID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("projectId is required"))
	}

	info, err := s.limiter.GetInfo(ctx, "project:"+req.Msg.ProjectID)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("rate limit backend unavailable"))
	}
	return connect.NewResponse(&GetRateLimitResponse{
		Limit:      info.Limit,
		Remaining:  info.Remaining,
		ResetAt:    info.ResetAt,
		RetryAfter: info.RetryAfter,
	}), nil
}

// jsonCodec lets Connect carry the admin service's plain Go structs:
// the default codecs assume protobuf messages, which a hand-authored
// service has none of.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
