package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/api"
	"github.com/dokzlo13/irlightd/internal/config"
	"github.com/dokzlo13/irlightd/internal/db"
	"github.com/dokzlo13/irlightd/internal/ir"
	"github.com/dokzlo13/irlightd/internal/kv"
	"github.com/dokzlo13/irlightd/internal/ledger"
	"github.com/dokzlo13/irlightd/internal/state"
	"github.com/dokzlo13/irlightd/internal/stores"
	"github.com/dokzlo13/irlightd/internal/transmitter"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger

	// State store (generic JSON store)
	Store  *state.Store
	Stores *stores.Registry

	// High-level services
	Lights *LightService
	Lua    *LuaService // nil without a script
	Events *EventService
	Health *HealthService
	API    *APIService
}

// Option adjusts how services are built.
type Option func(*options)

type options struct {
	transmitter transmitter.Transmitter
	delayer     ir.Delayer
}

// WithTransmitter replaces the configured transmitter.
func WithTransmitter(tx transmitter.Transmitter) Option {
	return func(o *options) { o.transmitter = tx }
}

// WithDelayer replaces the inter-command sleep.
func WithDelayer(d ir.Delayer) Option {
	return func(o *options) { o.delayer = d }
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, opts ...Option) (*Services, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize ledger
	s.Ledger = ledger.New(database.DB)

	// Initialize generic state store
	s.Store = state.NewStore(database.DB)
	s.Stores = stores.NewRegistry(s.Store)

	tx := o.transmitter
	if tx == nil {
		tx, err = transmitter.New(cfg.Transmitter)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	s.Lights, err = NewLightService(cfg, s.Stores, s.Ledger, tx, o.delayer)
	if err != nil {
		tx.Close()
		s.Close()
		return nil, err
	}

	// Scripting is optional
	var scenes api.Scenes
	if cfg.Script != "" {
		s.Lua = NewLuaService(cfg, s.Lights.Controller, kv.NewBucket(database.DB, "script"))
		s.Events = NewEventService(s.Lua, s.Lights.Bus)
		scenes = s.Lua
	}

	s.Health = NewHealthService(cfg)
	s.API = NewAPIService(cfg, s.Lights, scenes, s.Ledger)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	if s.Lua != nil {
		if n, err := kv.DeleteExpired(ctx, s.DB.DB); err != nil {
			log.Warn().Err(err).Msg("Failed to drop expired script keys")
		} else if n > 0 {
			log.Info().Int64("deleted", n).Msg("Dropped expired script keys")
		}

		// Load Lua script before starting worker
		if err := s.Lua.LoadScript(); err != nil {
			return err
		}
		// Register event handlers after the script subscribed
		s.Events.Start(ctx)
		s.Lua.Start(ctx)
	} else {
		log.Info().Msg("No script configured, scenes disabled")
	}

	s.Lights.StartBackground(ctx)
	s.Health.Start(ctx)
	s.API.Start(ctx)

	s.Health.SetReady(true)
	return nil
}

// ClearState clears all resource state.
func (s *Services) ClearState(ctx context.Context) error {
	return s.Stores.Clear(ctx)
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	if s.Health != nil {
		s.Health.SetReady(false)
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.Lights != nil {
		s.Lights.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
