// Package chainid validates and parses CAIP-2 chain identifiers
// (namespace:reference, e.g. "eip155:1", "solana:mainnet-beta").
package chainid

import (
	"strings"

	"gateway/pkg/apperror"
)

// ChainID is a validated CAIP-2 identifier split into its two segments.
type ChainID struct {
	Namespace string
	Reference string
}

func (c ChainID) String() string {
	return c.Namespace + ":" + c.Reference
}

const maxSegmentLength = 64

// Parse validates raw against the CAIP-2 grammar and splits it into
// namespace/reference. Malformed ids are rejected without dispatch, per the
// admission stage's first check.
func Parse(raw string) (ChainID, *apperror.Error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return ChainID{}, apperror.New(apperror.CodeMalformedChainID, apperror.KindInput,
			"chain id must be of the form namespace:reference").WithField("chainId").WithDetails("value", raw)
	}

	namespace, reference := parts[0], parts[1]
	if !isValidSegment(namespace) || !isValidSegment(reference) {
		return ChainID{}, apperror.New(apperror.CodeMalformedChainID, apperror.KindInput,
			"chain id segments must be alphanumeric (plus - and _), 1-64 chars").WithField("chainId").WithDetails("value", raw)
	}

	return ChainID{Namespace: namespace, Reference: reference}, nil
}

func isValidSegment(s string) bool {
	if s == "" || len(s) > maxSegmentLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
