package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// PassStats summarizes one apply pass.
type PassStats struct {
	Applied int
	Failed  int
	Skipped int
}

// Orchestrator pushes desired state to every registered provider. A single
// goroutine runs every pass, so translators never see concurrent applies, and
// the limiter spaces applies so the blaster is not flooded.
type Orchestrator struct {
	providers map[Kind]ResourceProvider
	limiter   *rate.Limiter
	interval  time.Duration

	mu           sync.Mutex
	lastVersions map[ResourceKey]int64    // last applied desired version
	forced       map[ResourceKey]struct{} // resend regardless of version
	trigger      chan struct{}
}

// NewOrchestrator creates an orchestrator. A zero interval means five minutes;
// a non-positive rate means two applies per second.
func NewOrchestrator(interval time.Duration, rateLimitRPS float64) *Orchestrator {
	if interval == 0 {
		interval = 5 * time.Minute
	}
	if rateLimitRPS <= 0 {
		rateLimitRPS = 2.0
	}
	burst := max(int(rateLimitRPS), 1)

	return &Orchestrator{
		providers:    make(map[Kind]ResourceProvider),
		limiter:      rate.NewLimiter(rate.Limit(rateLimitRPS), burst),
		interval:     interval,
		lastVersions: make(map[ResourceKey]int64),
		forced:       make(map[ResourceKey]struct{}),
		trigger:      make(chan struct{}, 1),
	}
}

// Register adds a resource provider. Call before Run.
func (o *Orchestrator) Register(provider ResourceProvider) {
	o.providers[provider.Kind()] = provider
}

// Trigger schedules a pass. Triggers arriving while one is queued collapse.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// TriggerLight forces a light to be applied on the next pass even if its
// desired version hasn't changed.
func (o *Orchestrator) TriggerLight(lightID string) {
	o.force(ResourceKey{Kind: KindLight, ID: lightID})
}

func (o *Orchestrator) force(key ResourceKey) {
	o.mu.Lock()
	o.forced[key] = struct{}{}
	o.mu.Unlock()
	o.Trigger()
}

// Forget drops all version tracking so every stored light is applied again on
// the next pass. Used after the translators lose their memory.
func (o *Orchestrator) Forget() {
	o.mu.Lock()
	o.lastVersions = make(map[ResourceKey]int64)
	o.mu.Unlock()
	o.Trigger()
}

// LastVersion returns the last applied desired version for key.
func (o *Orchestrator) LastVersion(key ResourceKey) int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastVersions[key]
}

// Run serves triggers and the periodic tick until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().Dur("periodic_interval", o.interval).Float64("rate_limit", float64(o.limiter.Limit())).Msg("Orchestrator started")

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Orchestrator stopping")
			return nil
		case <-o.trigger:
		case <-ticker.C:
		}

		stats := o.Pass(ctx)
		if stats.Applied > 0 || stats.Failed > 0 {
			log.Debug().
				Int("applied", stats.Applied).
				Int("failed", stats.Failed).
				Int("skipped", stats.Skipped).
				Msg("Apply pass finished")
		}
	}
}

// Pass applies every dirty or forced resource once. Run calls it; it is
// exported for callers that drive passes themselves.
func (o *Orchestrator) Pass(ctx context.Context) PassStats {
	forced, last := o.snapshot()

	var stats PassStats
	for kind, provider := range o.providers {
		work, err := o.collect(ctx, provider, forced, last[kind])
		if err != nil {
			log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to list dirty resources")
			continue
		}

		for _, r := range work {
			if ctx.Err() != nil {
				return stats
			}
			applied, err := o.applyOne(ctx, r)
			switch {
			case err != nil:
				stats.Failed++
				log.Error().Err(err).Str("kind", string(kind)).Str("id", r.Key().ID).Msg("Apply failed")
			case applied:
				stats.Applied++
				o.mu.Lock()
				o.lastVersions[r.Key()] = r.DesiredVersion()
				o.mu.Unlock()
			default:
				stats.Skipped++
			}
		}
	}
	return stats
}

// snapshot takes the forced set and splits lastVersions by kind.
func (o *Orchestrator) snapshot() (map[ResourceKey]struct{}, map[Kind]map[string]int64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	forced := o.forced
	o.forced = make(map[ResourceKey]struct{})

	last := make(map[Kind]map[string]int64)
	for key, ver := range o.lastVersions {
		if last[key.Kind] == nil {
			last[key.Kind] = make(map[string]int64)
		}
		last[key.Kind][key.ID] = ver
	}
	return forced, last
}

// collect merges the provider's dirty resources with the forced ones of its kind.
func (o *Orchestrator) collect(ctx context.Context, provider ResourceProvider, forced map[ResourceKey]struct{}, last map[string]int64) ([]Resource, error) {
	work, err := provider.ListDirty(ctx, last)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(work))
	for _, r := range work {
		seen[r.Key().ID] = true
	}

	for key := range forced {
		if key.Kind != provider.Kind() || seen[key.ID] {
			continue
		}
		r, err := provider.Get(ctx, key.ID)
		if err != nil {
			log.Warn().Err(err).Str("id", key.ID).Msg("Skipping forced resource")
			continue
		}
		work = append(work, r)
	}
	return work, nil
}

// applyOne waits for the limiter, reloads and applies. It reports false when
// there was nothing stored to apply.
func (o *Orchestrator) applyOne(ctx context.Context, r Resource) (bool, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return false, err
	}
	if err := r.Load(ctx); err != nil {
		return false, err
	}
	if !r.NeedsApply() {
		return false, nil
	}
	if err := r.Apply(ctx); err != nil {
		return false, err
	}
	return true, nil
}
