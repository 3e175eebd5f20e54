package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"gateway/pkg/apperror"
	"gateway/pkg/cache"
	"gateway/pkg/logger"
	"gateway/pkg/metrics"
	"gateway/pkg/ratelimit"
	"gateway/pkg/telemetry"
	"gateway/services/gateway-svc/internal/chainid"
	"gateway/services/gateway-svc/internal/healthfeedback"
	"gateway/services/gateway-svc/internal/projectcache"
	"gateway/services/gateway-svc/internal/provider"
	"gateway/services/gateway-svc/internal/registry"
	"gateway/services/gateway-svc/internal/responsecache"
	"gateway/services/gateway-svc/internal/selector"
	"gateway/services/gateway-svc/internal/store"
)

// AuditSink persists one terminal dispatch outcome. Satisfied by
// *store.Store; a narrow interface so tests can stub it out.
type AuditSink interface {
	InsertDispatchAudit(ctx context.Context, a *store.DispatchAudit) error
}

// Dispatcher owns the full per-request state machine. It holds no
// per-request state itself — every field is a shared, concurrency-safe
// collaborator.
type Dispatcher struct {
	cfg Config

	selector      *selector.Selector
	projectCache  *projectcache.Cache
	responseCache *responsecache.Cache
	limiter       ratelimit.Limiter
	client        *provider.Client
	recorder      *healthfeedback.Recorder
	auditSink     AuditSink
	metrics       *metrics.Metrics

	rateLimitAllowList  []string
	rateLimitSkipChains []string

	// auditTimeout bounds the async audit write so a slow store never
	// leaks goroutines.
	auditTimeout time.Duration
}

// Deps bundles the Dispatcher's collaborators.
type Deps struct {
	Selector            *selector.Selector
	ProjectCache        *projectcache.Cache
	ResponseCache       *responsecache.Cache
	Limiter             ratelimit.Limiter
	Client              *provider.Client
	Recorder            *healthfeedback.Recorder
	AuditSink           AuditSink // nil disables the audit write entirely
	RateLimitAllowList  []string
	RateLimitSkipChains []string
}

// New constructs a Dispatcher.
func New(cfg Config, deps Deps) *Dispatcher {
	return &Dispatcher{
		cfg:                 cfg,
		selector:            deps.Selector,
		projectCache:        deps.ProjectCache,
		responseCache:       deps.ResponseCache,
		limiter:             deps.Limiter,
		client:              deps.Client,
		recorder:            deps.Recorder,
		auditSink:           deps.AuditSink,
		metrics:             metrics.Get(),
		rateLimitAllowList:  deps.RateLimitAllowList,
		rateLimitSkipChains: deps.RateLimitSkipChains,
		auditTimeout:        5 * time.Second,
	}
}

// Dispatch runs one JSON-RPC proxy request through Admit → CacheLookup →
// Select → Forward → Classify → {Return | Retry | Fail}.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) (*Output, *apperror.Error) {
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "dispatcher.Dispatch")
	defer span.End()
	telemetry.SetAttributes(ctx, attribute.String("request.id", in.RequestID), attribute.String("project.id", in.ProjectID))

	chain, cerr := chainid.Parse(in.RawChainID)
	if cerr != nil {
		telemetry.SetError(ctx, cerr)
		return nil, cerr
	}
	chainStr := chain.String()
	telemetry.SetAttributes(ctx, attribute.String("chain.id", chainStr))

	telemetry.AddEvent(ctx, "admit")
	project, aerr := d.Admit(ctx, AdmitInput{
		ProjectID:   in.ProjectID,
		ClientIP:    in.ClientIP,
		CountryCode: in.CountryCode,
		ChainID:     chainStr,
		Route:       "rpc",
	})
	if aerr != nil {
		telemetry.SetError(ctx, aerr)
		d.audit(in, chainStr, "", "", "denied", start)
		return nil, aerr
	}
	_ = project // validated but not otherwise needed on the RPC hot path

	var req provider.Request
	if err := json.Unmarshal(in.Body, &req); err != nil {
		d.audit(in, chainStr, "", "", "malformed", start)
		aerr := apperror.Wrap(err, apperror.CodeMalformedRequest, apperror.KindInput, "request body is not valid JSON-RPC")
		telemetry.SetError(ctx, aerr)
		return nil, aerr
	}
	if req.Method == "" {
		d.audit(in, chainStr, "", "", "malformed", start)
		return nil, apperror.New(apperror.CodeMissingParam, apperror.KindInput, "missing method").WithField("method")
	}
	telemetry.SetAttributes(ctx, attribute.String("rpc.method", req.Method))

	var cacheKey string
	if d.responseCache.Cacheable(req.Method) {
		telemetry.AddEvent(ctx, "cache_lookup")
		cacheKey = cache.BuildResponseCacheKey(chainStr, req.Method, req.Params)
		if entry, hit := d.responseCache.Get(ctx, cacheKey); hit {
			telemetry.AddEvent(ctx, "cache_hit")
			d.metrics.RecordDispatch("cache_hit", chainStr, 0, time.Since(start))
			d.audit(in, chainStr, req.Method, "", "cache_hit", start)
			return &Output{Body: entry.Body, MediaType: entry.MediaType, CacheHit: true}, nil
		}
	}

	telemetry.AddEvent(ctx, "select")
	candidates, serr := d.selector.Select(chainStr, req.Method, in.Archive, in.PinnedProviderID)
	if serr != nil {
		telemetry.SetError(ctx, serr)
		d.metrics.RecordDispatch("no_provider", chainStr, 0, time.Since(start))
		d.audit(in, chainStr, req.Method, "", "no_provider", start)
		return nil, serr
	}
	for _, c := range candidates {
		class := "normal"
		if c.Priority == registry.PriorityBackup {
			class = "backup"
		}
		d.metrics.RecordSelectorDraw(chainStr, class)
	}

	telemetry.AddEvent(ctx, "forward")
	out, providerID, retries, ferr := d.forward(ctx, candidates, chainStr, in.Body, req.Method)

	duration := time.Since(start)
	if ferr != nil {
		telemetry.SetError(ctx, ferr)
		d.metrics.RecordDispatch("fail", chainStr, retries, duration)
		d.audit(in, chainStr, req.Method, providerID, "fail", start)
		return nil, ferr
	}

	if out.providerErr == nil && cacheKey != "" {
		d.responseCache.Put(ctx, cacheKey, req.Method, &responsecache.Entry{Body: out.Body, MediaType: out.MediaType})
	}

	telemetry.AddEvent(ctx, "return")
	d.metrics.RecordDispatch("success", chainStr, retries, duration)
	d.audit(in, chainStr, req.Method, providerID, "success", start)
	return &Output{Body: out.Body, MediaType: out.MediaType}, nil
}

type forwardResult struct {
	Body        []byte
	MediaType   string
	providerErr *apperror.Error // non-nil when this was a client-visible passthrough, not eligible for caching
}

// forward implements the Select → Forward → Classify → {Return | Retry |
// Fail} loop: at most cfg.MaxRetries attempts are made, walking the
// candidate list linearly so a provider already attempted is never
// reselected within the same request.
func (d *Dispatcher) forward(ctx context.Context, candidates []*registry.Provider, chainStr string, body []byte, method string) (*forwardResult, string, int, *apperror.Error) {
	retries := 0
	var lastProviderID string

	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, lastProviderID, retries, apperror.ErrRequestTimeout
			}
			return nil, lastProviderID, retries, apperror.New(apperror.CodeRequestTimeout, apperror.KindTimeout, "request canceled")
		}
		if retries >= d.cfg.MaxRetries {
			break
		}

		lastProviderID = p.ID
		res, transportErr := d.client.Forward(ctx, p, chainStr, body)
		retries++

		var rpc *provider.Response
		var status int
		if res != nil {
			rpc = res.RPC
			status = res.HTTPStatus
		}
		outcome, classifyErr := provider.Classify(status, transportErr, rpc)
		switch outcome {
		case provider.OutcomeSuccess:
			d.recorder.RecordSuccess(p.ID, chainStr)
			return &forwardResult{Body: res.Body, MediaType: res.MediaType}, p.ID, retries, nil
		case provider.OutcomeClientVisibleError:
			// Not this provider's fault; the caller's bug is returned
			// unchanged and not counted as a provider failure.
			return &forwardResult{Body: res.Body, MediaType: res.MediaType, providerErr: classifyErr}, p.ID, retries, nil
		default: // OutcomeProviderError
			d.recorder.RecordFailure(p.ID, chainStr)
			telemetry.AddEvent(ctx, "retry", attribute.String("provider.id", p.ID))
			logger.Log.Warn("provider attempt failed, retrying next candidate",
				"provider_id", p.ID, "chain_id", chainStr, "method", method, "error", classifyErr)
		}
	}

	return nil, lastProviderID, retries, apperror.ErrAllProvidersFailed.WithDetails("chainId", chainStr).WithDetails("method", method)
}

// audit persists one terminal outcome off the hot path, bounded by
// auditTimeout and detached from the request's own context so a client
// disconnect never drops the audit row.
func (d *Dispatcher) audit(in Input, chainID, method, providerID, outcome string, start time.Time) {
	if d.auditSink == nil {
		return
	}
	entry := &store.DispatchAudit{
		RequestID:  in.RequestID,
		ProjectID:  in.ProjectID,
		ChainID:    chainID,
		Method:     method,
		Outcome:    outcome,
		ProviderID: providerID,
		LatencyMS:  time.Since(start).Milliseconds(),
		Timestamp:  start,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.auditTimeout)
		defer cancel()
		if err := d.auditSink.InsertDispatchAudit(ctx, entry); err != nil {
			logger.WithRequest(in.RequestID, in.ProjectID, chainID).Warn("dispatch audit write failed", "error", err)
		}
	}()
}
