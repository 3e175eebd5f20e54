package httpapi

import (
	"encoding/json"
	"net/http"

	"gateway/pkg/apperror"
	"gateway/pkg/logger"
	"gateway/services/gateway-svc/internal/dispatcher"
)

// admitREST runs the shared Admit stage ("each applies the same
// Admit stage ... before calling its narrow stub body") for one REST
// request, keyed by the path's {projectId} and the route name used for
// rate-limit metrics and the optional feature denylist check.
func (s *Server) admitREST(r *http.Request, route, feature string) *apperror.Error {
	ctx, cancel := s.withBudget(r)
	defer cancel()
	_, aerr := s.dispatcher.Admit(ctx, dispatcher.AdmitInput{
		ProjectID:   r.PathValue("projectId"),
		ClientIP:    clientIP(r),
		CountryCode: r.Header.Get("X-Country-Code"),
		ChainID:     r.URL.Query().Get("chainId"),
		Feature:     feature,
		Route:       route,
	})
	return aerr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warn("failed to encode REST response", "error", err)
	}
}

// handleBalances is a narrow stub: the actual balance computation
// lives with the balances aggregator; the handler only shapes admission and the
// response envelope.
func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if aerr := s.admitREST(r, "balances", "balances"); aerr != nil {
		writeError(w, aerr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chainId": r.URL.Query().Get("chainId"),
		"address": r.URL.Query().Get("address"),
		"balances": []any{},
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if aerr := s.admitREST(r, "history", "history"); aerr != nil {
		writeError(w, aerr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chainId":      r.URL.Query().Get("chainId"),
		"address":      r.URL.Query().Get("address"),
		"transactions": []any{},
	})
}

func (s *Server) handleSwapQuote(w http.ResponseWriter, r *http.Request) {
	if aerr := s.admitREST(r, "swap_quote", "swap"); aerr != nil {
		writeError(w, aerr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quote": nil,
	})
}

func (s *Server) handleOnrampURL(w http.ResponseWriter, r *http.Request) {
	if aerr := s.admitREST(r, "onramp", "onramp"); aerr != nil {
		writeError(w, aerr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url": "",
	})
}

// handleIdentity reads through the identity/name cache.
func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	if aerr := s.admitREST(r, "identity", "identity"); aerr != nil {
		writeError(w, aerr)
		return
	}

	chainID := r.URL.Query().Get("chainId")
	address := r.URL.Query().Get("address")
	if chainID == "" || address == "" {
		writeError(w, apperror.New(apperror.CodeMissingParam, apperror.KindInput,
			"chainId and address are required query parameters"))
		return
	}

	identity, err := s.identity.Lookup(r.Context(), chainID, address)
	if err != nil {
		writeError(w, apperror.Wrap(err, apperror.CodeInternal, apperror.KindInternal, "identity resolution failed"))
		return
	}
	if identity == nil {
		writeJSON(w, http.StatusOK, map[string]any{"chainId": chainID, "address": address})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chainId": chainID, "address": address, "name": identity.Name, "avatar": identity.Avatar})
}
