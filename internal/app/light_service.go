package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/config"
	"github.com/dokzlo13/irlightd/internal/control"
	"github.com/dokzlo13/irlightd/internal/driver"
	"github.com/dokzlo13/irlightd/internal/eventbus"
	"github.com/dokzlo13/irlightd/internal/ir"
	"github.com/dokzlo13/irlightd/internal/ledger"
	"github.com/dokzlo13/irlightd/internal/reconcile"
	"github.com/dokzlo13/irlightd/internal/reconcile/light"
	"github.com/dokzlo13/irlightd/internal/stores"
	"github.com/dokzlo13/irlightd/internal/transmitter"
)

// LightService wraps everything between desired state and the IR blaster:
// transmitter, drivers, orchestrator and event bus.
type LightService struct {
	cfg    *config.Config
	ledger *ledger.Ledger

	Transmitter  transmitter.Transmitter
	Lights       *driver.Registry
	Orchestrator *reconcile.Orchestrator
	Bus          *eventbus.Bus
	Controller   *control.Controller
}

// NewLightService creates a new LightService with all components initialized but not running.
// delayer may be nil for real sleeps.
func NewLightService(cfg *config.Config, storeRegistry *stores.Registry, l *ledger.Ledger, tx transmitter.Transmitter, delayer ir.Delayer) (*LightService, error) {
	// Every frame goes through the ledger
	sender := ledger.Recording(tx, l)

	lights, err := driver.NewRegistry(cfg.Lights, sender, delayer)
	if err != nil {
		return nil, fmt.Errorf("failed to set up lights: %w", err)
	}

	// Initialize event bus
	bus := eventbus.NewWithConfig(cfg.EventBus.Workers, cfg.EventBus.QueueSize)

	orchestrator := reconcile.NewOrchestrator(
		cfg.Reconciler.PeriodicInterval.Duration(),
		cfg.Reconciler.RateLimitRPS,
	)
	orchestrator.Register(light.NewProvider(storeRegistry.Lights(), lights, l, bus))

	return &LightService{
		cfg:          cfg,
		ledger:       l,
		Transmitter:  tx,
		Lights:       lights,
		Orchestrator: orchestrator,
		Bus:          bus,
		Controller:   control.New(lights, storeRegistry.Lights(), orchestrator, bus),
	}, nil
}

// StartBackground starts the orchestrator and ledger cleanup, then triggers a
// first pass so stored state is restored after a restart.
func (s *LightService) StartBackground(ctx context.Context) {
	for _, l := range s.Lights.List() {
		log.Info().
			Str("light", l.ID).
			Str("name", l.Name).
			Str("kind", string(l.Kind())).
			Msg("Light configured")
	}

	go func() {
		if err := s.Orchestrator.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Orchestrator error")
		}
	}()

	if days := s.cfg.Ledger.RetentionDays; days > 0 {
		retention := time.Duration(days) * 24 * time.Hour
		go s.ledger.RunCleanup(ctx, s.cfg.Ledger.CleanupInterval.Duration(), retention)
	}

	s.Orchestrator.Trigger()
}

// Close releases all resources.
func (s *LightService) Close() {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		s.Bus.Close(ctx)
	}
	if s.Transmitter != nil {
		if err := s.Transmitter.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close transmitter")
		}
	}
}
