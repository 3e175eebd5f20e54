// Package selector implements weighted provider selection for one
// (chain, method) request: weighted random sampling without replacement,
// normal candidates before backup, with an optional deterministic
// tie-break for tests.
package selector

import (
	"math/rand"
	"sort"

	"gateway/pkg/apperror"
	"gateway/services/gateway-svc/internal/registry"
	"gateway/services/gateway-svc/internal/weightstore"
)

// Selector draws an ordered candidate list from the registry, weighted by
// the weight store's current (provider, chain) values.
type Selector struct {
	registry      *registry.Registry
	weights       *weightstore.Store
	deterministic bool
}

// New constructs a Selector. deterministic is a config-only flag (never a
// runtime toggle) used by tests to get a reproducible tie-break ordering
// when weights are exactly equal.
func New(reg *registry.Registry, weights *weightstore.Store, deterministic bool) *Selector {
	return &Selector{
		registry:      reg,
		weights:       weights,
		deterministic: deterministic,
	}
}

// candidate pairs a registry provider with its current weight.
type candidate struct {
	provider *registry.Provider
	weight   float64
}

// Select returns the ordered candidate list for (chainID, method, archive):
// zero-weight entries are dropped; the remainder is weighted-sampled
// without replacement, normal class exhausted before backup. If the pinned
// provider id is non-empty, the result is that single provider alone (or
// empty if it does not support the chain/method) with no fallback — E2E
// scenario 6.
func (s *Selector) Select(chainID, method string, archive bool, pinnedProviderID string) ([]*registry.Provider, *apperror.Error) {
	all := s.registry.Resolve(chainID, method, archive)
	if len(all) == 0 {
		if s.registry.SupportsChain(chainID) {
			return nil, apperror.New(apperror.CodeMethodUnsupported, apperror.KindInput,
				"method not supported on this chain").WithDetails("chainId", chainID).WithDetails("method", method)
		}
		return nil, apperror.ErrNoProviderForChain.WithDetails("chainId", chainID).WithDetails("method", method)
	}

	if pinnedProviderID != "" {
		for _, p := range all {
			if p.ID == pinnedProviderID {
				return []*registry.Provider{p}, nil
			}
		}
		return nil, apperror.ErrNoProviderForChain.WithDetails("chainId", chainID).WithDetails("providerId", pinnedProviderID)
	}

	var normal, backup []candidate
	for _, p := range all {
		w := s.weights.Get(p.ID, chainID)
		if w <= 0 {
			continue
		}
		c := candidate{provider: p, weight: w}
		if p.Priority == registry.PriorityBackup {
			backup = append(backup, c)
		} else {
			normal = append(normal, c)
		}
	}

	if len(normal) == 0 && len(backup) == 0 {
		return nil, apperror.ErrNoProviderForChain.WithDetails("chainId", chainID).WithDetails("method", method)
	}

	out := make([]*registry.Provider, 0, len(normal)+len(backup))
	out = append(out, s.drawWithoutReplacement(normal)...)
	out = append(out, s.drawWithoutReplacement(backup)...)
	return out, nil
}

// drawWithoutReplacement repeatedly picks u in [0, sum_of_remaining_weights),
// maps it to an index via cumulative sum, and removes that entry, until the
// pool is exhausted.
func (s *Selector) drawWithoutReplacement(pool []candidate) []*registry.Provider {
	if len(pool) == 0 {
		return nil
	}

	if s.deterministic {
		return s.drawDeterministic(pool)
	}

	remaining := make([]candidate, len(pool))
	copy(remaining, pool)

	out := make([]*registry.Provider, 0, len(remaining))
	for len(remaining) > 0 {
		total := 0.0
		for _, c := range remaining {
			total += c.weight
		}

		idx := 0
		if total > 0 {
			// The package-level source is safe for concurrent selections.
			u := rand.Float64() * total //nolint:gosec // selection weighting, not a security boundary
			cum := 0.0
			for i, c := range remaining {
				cum += c.weight
				if u < cum {
					idx = i
					break
				}
				idx = i
			}
		}

		out = append(out, remaining[idx].provider)
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return out
}

// drawDeterministic orders candidates by weight descending, then provider id
// ascending when weights are exactly equal; used in tests.
func (s *Selector) drawDeterministic(pool []candidate) []*registry.Provider {
	sorted := make([]candidate, len(pool))
	copy(sorted, pool)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].weight != sorted[j].weight {
			return sorted[i].weight > sorted[j].weight
		}
		return sorted[i].provider.ID < sorted[j].provider.ID
	})

	out := make([]*registry.Provider, len(sorted))
	for i, c := range sorted {
		out[i] = c.provider
	}
	return out
}
