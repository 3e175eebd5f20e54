package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Standard attribute keys shared across dispatcher spans.
const (
	AttrChainID       = "gateway.chain_id"
	AttrProjectID     = "gateway.project_id"
	AttrMethod        = "gateway.method"
	AttrProvider      = "gateway.provider"
	AttrProviderClass = "gateway.provider_class"
	AttrAttempt       = "gateway.attempt"
	AttrCacheTier     = "gateway.cache_tier"
	AttrCacheHit      = "gateway.cache_hit"
	AttrOutcome       = "gateway.outcome"
	AttrErrorKind     = "gateway.error_kind"
)

// ChainAttributes returns attributes identifying a request's chain and project.
func ChainAttributes(chainID, projectID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrChainID, chainID),
		attribute.String(AttrProjectID, projectID),
	}
}

// DispatchAttributes returns attributes describing one dispatch attempt.
func DispatchAttributes(method, provider, class string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrMethod, method),
		attribute.String(AttrProvider, provider),
		attribute.String(AttrProviderClass, class),
		attribute.Int(AttrAttempt, attempt),
	}
}

// CacheAttributes returns attributes describing a cache lookup.
func CacheAttributes(tier string, hit bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCacheTier, tier),
		attribute.Bool(AttrCacheHit, hit),
	}
}

// OutcomeAttributes returns attributes describing a dispatch's terminal outcome.
func OutcomeAttributes(outcome, errorKind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrOutcome, outcome),
		attribute.String(AttrErrorKind, errorKind),
	}
}
