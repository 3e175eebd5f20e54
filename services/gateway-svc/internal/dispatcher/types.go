// Package dispatcher implements the per-request state machine:
// Admit → CacheLookup → Select → Forward → Classify → {Return | Retry |
// Fail}. It is THE CORE orchestrator, wiring together the registry,
// selector, rate limiter, project/response caches, and the health
// feedback loop's recorder.
package dispatcher

import "gateway/pkg/config"

// Input is one inbound JSON-RPC proxy request.
type Input struct {
	RequestID        string
	RawChainID       string
	Method           string // extracted from Body for routing/caching; informational once Body is parsed
	ProjectID        string
	PinnedProviderID string
	ClientIP         string
	CountryCode      string
	Archive          bool
	Body             []byte // raw JSON-RPC request envelope
}

// Output is a successful terminal result: the upstream's response bytes,
// returned to the client verbatim.
type Output struct {
	Body      []byte
	MediaType string
	CacheHit  bool
}

// Config bundles the dispatcher's admission configuration.
type Config struct {
	MaxRetries        int
	ValidateProjectID bool
	BlockedCountries  []string
}

// FromAppConfig derives the dispatcher's Config from the layered
// application configuration.
func FromAppConfig(cfg *config.Config) Config {
	return Config{
		MaxRetries:        cfg.Selector.MaxRetries,
		ValidateProjectID: cfg.Admission.ValidateProjectID,
		BlockedCountries:  cfg.Admission.OFACBlockedCountries,
	}
}
