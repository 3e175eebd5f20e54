package healthfeedback

import (
	"context"
	"time"

	"gateway/pkg/config"
	"gateway/pkg/logger"
	"gateway/pkg/metrics"
	"gateway/services/gateway-svc/internal/registry"
	"gateway/services/gateway-svc/internal/weightstore"
)

// Loop is the periodic re-weighting task. It is idempotent; a
// missed cycle is acceptable — and holds a read-write handle to the weight
// store only, never to the dispatcher.
type Loop struct {
	registry *registry.Registry
	weights  *weightstore.Store
	recorder *Recorder
	cfg      config.HealthFeedbackConfig
}

// NewLoop constructs the feedback loop.
func NewLoop(reg *registry.Registry, weights *weightstore.Store, recorder *Recorder, cfg config.HealthFeedbackConfig) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	return &Loop{registry: reg, weights: weights, recorder: recorder, cfg: cfg}
}

// Run blocks, executing RunOnce every cfg.Interval until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.RunOnce()
		}
	}
}

// RunOnce executes a single re-weighting cycle over every (provider,
// chain) pair known to the registry. It is safe to call directly
// from tests and from Run.
func (l *Loop) RunOnce() {
	start := time.Now()

	for _, p := range l.registry.All() {
		for chainID := range p.Chains {
			l.reweight(p.ID, chainID)
		}
	}

	d := time.Since(start)
	metrics.Get().RecordHealthFeedbackCycle(d)
	logger.Log.Debug("health feedback cycle complete", "duration", d)
}

// reweight computes and writes the weight for one (provider, chain) pair.
func (l *Loop) reweight(providerID, chainID string) {
	win := l.recorder.Query(providerID, chainID, l.cfg.Window)

	if win.Total() == 0 {
		if !win.LastObserved.IsZero() && time.Since(win.LastObserved) > l.cfg.StaleAfter {
			// Zero out a provider that has gone quiet for longer than the
			// stale threshold; a fresh success restores it next cycle.
			l.weights.Set(providerID, chainID, 0)
			metrics.Get().SetProviderWeight(providerID, chainID, 0)
		}
		return
	}

	rate := float64(win.Successes) / float64(win.Total())
	l.weights.Set(providerID, chainID, rate)
	metrics.Get().SetProviderWeight(providerID, chainID, l.weights.Get(providerID, chainID))
}
