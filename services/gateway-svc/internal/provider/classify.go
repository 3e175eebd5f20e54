package provider

import "gateway/pkg/apperror"

// Outcome is the Classify-stage verdict for one Forward attempt.
type Outcome int

const (
	// OutcomeSuccess: return the response to the client and, if eligible,
	// populate the response cache.
	OutcomeSuccess Outcome = iota
	// OutcomeProviderError: count against this provider and retry the
	// next candidate (5xx/4xx/timeout/connection error, or a JSON-RPC
	// server-error-range envelope).
	OutcomeProviderError
	// OutcomeClientVisibleError: a JSON-RPC error outside the server-error
	// range (e.g. invalid params) — the caller's bug, returned unchanged.
	OutcomeClientVisibleError
)

// Classify maps one provider attempt to its Outcome.
// httpStatus is the upstream HTTP status (0 if transportErr is non-nil,
// meaning the request never got an HTTP response at all — timeout or
// connection error). rpc is the decoded JSON-RPC envelope, nil if the
// body was not valid JSON-RPC or the transport failed outright.
func Classify(httpStatus int, transportErr error, rpc *Response) (Outcome, *apperror.Error) {
	if transportErr != nil {
		return OutcomeProviderError, apperror.Wrap(transportErr, apperror.CodeAllProvidersFailed,
			apperror.KindAvailability, "provider connection error").WithSeverity(apperror.SeverityWarning)
	}

	if httpStatus >= 500 || httpStatus == 0 {
		return OutcomeProviderError, apperror.New(apperror.CodeAllProvidersFailed, apperror.KindAvailability,
			"provider returned server error").WithDetails("httpStatus", httpStatus).WithSeverity(apperror.SeverityWarning)
	}

	if httpStatus >= 400 {
		return OutcomeProviderError, apperror.New(apperror.CodeAllProvidersFailed, apperror.KindAvailability,
			"provider returned client error (auth/quota)").WithDetails("httpStatus", httpStatus).WithSeverity(apperror.SeverityWarning)
	}

	// httpStatus is 2xx from here.
	if rpc == nil {
		return OutcomeProviderError, apperror.New(apperror.CodeUpstreamRPCError, apperror.KindAvailability,
			"provider returned a non-JSON-RPC body").WithSeverity(apperror.SeverityWarning)
	}

	if rpc.Error == nil {
		return OutcomeSuccess, nil
	}

	if rpc.Error.IsServerErrorRange() {
		return OutcomeProviderError, apperror.New(apperror.CodeUpstreamRPCError, apperror.KindAvailability,
			"provider returned a JSON-RPC server error").WithDetails("code", rpc.Error.Code).WithSeverity(apperror.SeverityWarning)
	}

	// Any other JSON-RPC error code (e.g. invalid params) is the caller's
	// bug, not this provider's fault; pass it through unchanged.
	return OutcomeClientVisibleError, nil
}
