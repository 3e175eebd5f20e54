// Package apperror provides a structured way to handle gateway errors
// with specific codes, kinds, HTTP/gRPC status mapping, and severity.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents a specific application error code.
type ErrorCode string

const (
	CodeMalformedChainID   ErrorCode = "MALFORMED_CHAIN_ID"
	CodeMalformedRequest   ErrorCode = "MALFORMED_REQUEST"
	CodeMissingParam       ErrorCode = "MISSING_PARAM"
	CodeUnknownProject     ErrorCode = "UNKNOWN_PROJECT"
	CodeProjectDisabled    ErrorCode = "PROJECT_DISABLED"
	CodeOverQuota          ErrorCode = "OVER_QUOTA"
	CodeCountryBlocked     ErrorCode = "COUNTRY_BLOCKED"
	CodeFeatureDenied      ErrorCode = "FEATURE_DENIED"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeNoProviderForChain ErrorCode = "NO_PROVIDER_FOR_CHAIN"
	CodeMethodUnsupported  ErrorCode = "METHOD_UNSUPPORTED"
	CodeAllProvidersFailed ErrorCode = "ALL_PROVIDERS_FAILED"
	CodeRequestTimeout     ErrorCode = "REQUEST_TIMEOUT"
	CodeUpstreamRPCError   ErrorCode = "UPSTREAM_RPC_ERROR"
	CodeCacheUnavailable   ErrorCode = "CACHE_UNAVAILABLE"
	CodeStoreUnavailable   ErrorCode = "STORE_UNAVAILABLE"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
	CodeUnauthenticated    ErrorCode = "UNAUTHENTICATED"
	CodeNotFound           ErrorCode = "NOT_FOUND"
)

// Kind groups error codes into the gateway's error taxonomy: Input,
// Authorization, Capacity, Availability, Timeout, Upstream, Internal.
type Kind int

const (
	KindInput Kind = iota
	KindAuthorization
	KindCapacity
	KindAvailability
	KindTimeout
	KindUpstream
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindAuthorization:
		return "authorization"
	case KindCapacity:
		return "capacity"
	case KindAvailability:
		return "availability"
	case KindTimeout:
		return "timeout"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Severity indicates the criticality level of an error.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "error"
	}
}

// Error is the gateway's typed error: a code, kind, message, optional
// field/details, underlying cause, and severity.
type Error struct {
	Code     ErrorCode
	Kind     Kind
	Message  string
	Field    string
	Details  map[string]any
	Cause    error
	Severity Severity
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error's kind/code to the client-facing status code.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeMalformedChainID, CodeMalformedRequest, CodeMissingParam:
		return http.StatusBadRequest
	case CodeUnknownProject, CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeOverQuota:
		return http.StatusPaymentRequired
	case CodeProjectDisabled, CodeCountryBlocked, CodeFeatureDenied:
		return http.StatusForbidden
	case CodeMethodUnsupported, CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNoProviderForChain, CodeAllProvidersFailed, CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case CodeRequestTimeout:
		return http.StatusGatewayTimeout
	case CodeUpstreamRPCError:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// GRPCStatus lets the internal admin/health surface (served over grpc)
// report this error through google.golang.org/grpc/status.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.grpcCode(), e.Message)
}

func (e *Error) grpcCode() codes.Code {
	switch e.Kind {
	case KindInput:
		return codes.InvalidArgument
	case KindAuthorization:
		return codes.PermissionDenied
	case KindCapacity:
		return codes.ResourceExhausted
	case KindAvailability:
		return codes.Unavailable
	case KindTimeout:
		return codes.DeadlineExceeded
	case KindUpstream:
		return codes.Aborted
	default:
		return codes.Internal
	}
}

func New(code ErrorCode, kind Kind, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message, Details: make(map[string]any), Severity: SeverityError}
}

func NewWarning(code ErrorCode, kind Kind, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message, Details: make(map[string]any), Severity: SeverityWarning}
}

// Wrap creates a new Error that wraps an existing cause, adding a code/kind.
func Wrap(cause error, code ErrorCode, kind Kind, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message, Cause: cause, Details: make(map[string]any), Severity: SeverityError}
}

// clone copies the error so the With* modifiers never mutate a shared
// predefined error value.
func (e *Error) clone() *Error {
	c := *e
	c.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		c.Details[k] = v
	}
	return &c
}

func (e *Error) WithDetails(key string, value any) *Error {
	c := e.clone()
	c.Details[key] = value
	return c
}

func (e *Error) WithField(field string) *Error {
	c := e.clone()
	c.Field = field
	return c
}

func (e *Error) WithSeverity(s Severity) *Error {
	c := e.clone()
	c.Severity = s
	return c
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf extracts the ErrorCode from err, defaulting to CodeInternal.
func CodeOf(err error) ErrorCode {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// KindOf extracts the Kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// ToGRPC converts any error into a grpc status error for the internal
// admin/health surface.
func ToGRPC(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.GRPCStatus().Err()
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, err.Error())
}

// IsWarning reports whether err carries SeverityWarning.
func IsWarning(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Severity == SeverityWarning
	}
	return false
}

// Predefined errors for the common admission/dispatch failure modes.
var (
	ErrNoProviderForChain = New(CodeNoProviderForChain, KindAvailability, "no provider for chain")
	ErrAllProvidersFailed = New(CodeAllProvidersFailed, KindAvailability, "all providers failed")
	ErrRateLimited        = New(CodeRateLimited, KindCapacity, "rate limit exceeded")
	ErrUnknownProject     = New(CodeUnknownProject, KindAuthorization, "unknown project id")
	ErrRequestTimeout     = New(CodeRequestTimeout, KindTimeout, "request timed out")
)
