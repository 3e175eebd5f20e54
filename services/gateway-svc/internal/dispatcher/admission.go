package dispatcher

import (
	"context"

	"gateway/pkg/apperror"
	"gateway/pkg/logger"
	"gateway/pkg/ratelimit"
	"gateway/services/gateway-svc/internal/store"
)

// AdmitInput is the subset of a request needed by the shared admission
// checks, reusable by both the RPC proxy and the REST
// stub handlers.
type AdmitInput struct {
	ProjectID   string
	ClientIP    string
	CountryCode string
	ChainID     string // used for the skip-quota-chain rate-limit bypass
	Feature     string // non-empty to additionally enforce a feature denylist check
	Route       string // rate-limit bucket route label, e.g. "rpc", "balances"
}

// Admit runs the project/country/rate-limit checks common to every
// admitted surface. On success it returns the resolved
// project record (nil if project validation is disabled).
func (d *Dispatcher) Admit(ctx context.Context, in AdmitInput) (*store.Project, *apperror.Error) {
	var project *store.Project

	if d.cfg.ValidateProjectID {
		p, err := d.projectCache.Fetch(ctx, in.ProjectID)
		if err != nil {
			return nil, err
		}
		project = p

		switch project.Status {
		case store.ProjectStatusDisabled:
			return nil, apperror.New(apperror.CodeProjectDisabled, apperror.KindAuthorization,
				"project is disabled").WithDetails("projectId", in.ProjectID)
		case store.ProjectStatusOverQuota:
			return nil, apperror.New(apperror.CodeOverQuota, apperror.KindCapacity,
				"project is over quota").WithDetails("projectId", in.ProjectID)
		case store.ProjectStatusInvalid:
			return nil, apperror.ErrUnknownProject.WithDetails("projectId", in.ProjectID)
		}

		if in.Feature != "" && project.DenylistsFeature(in.Feature) {
			return nil, apperror.New(apperror.CodeFeatureDenied, apperror.KindAuthorization,
				"feature is denylisted for this project").WithDetails("feature", in.Feature)
		}
	}

	if isCountryBlocked(in.CountryCode, d.cfg.BlockedCountries) {
		return nil, apperror.New(apperror.CodeCountryBlocked, apperror.KindAuthorization,
			"client country is blocked").WithDetails("country", in.CountryCode)
	}

	if !d.rateLimitBypassed(in) {
		metadata := map[string]string{
			"x-project-id":    in.ProjectID,
			"x-forwarded-for": in.ClientIP,
		}
		route := in.Route
		if route == "" {
			route = "rpc"
		}
		key := ratelimit.DefaultKeyExtractor(ctx, route, metadata)
		allowed, err := d.limiter.Allow(ctx, key)
		if err != nil {
			// Fail open: a rate-limiter backend failure never blocks dispatch.
			logger.Log.Warn("rate limiter unavailable, failing open",
				"route", route, "project_id", in.ProjectID, "error", err)
		} else if !allowed {
			d.metrics.RecordRateLimit(route, false)
			denied := apperror.ErrRateLimited.WithDetails("projectId", in.ProjectID)
			if info, ierr := d.limiter.GetInfo(ctx, key); ierr == nil && info != nil {
				denied = denied.WithDetails("retryAfterSeconds", int(info.RetryAfter.Seconds())+1)
			}
			return project, denied
		} else {
			d.metrics.RecordRateLimit(route, true)
		}
	}

	return project, nil
}

func (d *Dispatcher) rateLimitBypassed(in AdmitInput) bool {
	if ratelimit.IsAllowListed(in.ClientIP, d.rateLimitAllowList) {
		return true
	}
	if in.ChainID != "" && ratelimit.IsSkipQuotaChain(in.ChainID, d.rateLimitSkipChains) {
		return true
	}
	return false
}

func isCountryBlocked(country string, blocked []string) bool {
	if country == "" {
		return false
	}
	for _, c := range blocked {
		if c == country {
			return true
		}
	}
	return false
}
