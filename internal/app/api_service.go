package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/api"
	"github.com/dokzlo13/irlightd/internal/config"
	"github.com/dokzlo13/irlightd/internal/ledger"
)

// APIService wraps the REST API server.
type APIService struct {
	cfg    *config.Config
	server *api.Server
}

// NewAPIService creates a new APIService. scenes is nil without a script.
func NewAPIService(cfg *config.Config, lights *LightService, scenes api.Scenes, l *ledger.Ledger) *APIService {
	server := api.NewServer(cfg.API, lights.Controller, scenes, lights.Bus, l)
	return &APIService{
		cfg:    cfg,
		server: server,
	}
}

// Start begins the API server if enabled.
func (s *APIService) Start(ctx context.Context) {
	if !s.cfg.API.Enabled {
		log.Debug().Msg("API server disabled")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.GetShutdownTimeout()); err != nil {
			log.Error().Err(err).Msg("API server error")
		}
	}()
}
