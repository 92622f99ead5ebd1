package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/eventbus"
)

// EventService handles event bus subscriptions and dispatches events to the script.
type EventService struct {
	luaSvc *LuaService
	bus    *eventbus.Bus
}

// NewEventService creates a new EventService.
func NewEventService(luaSvc *LuaService, bus *eventbus.Bus) *EventService {
	return &EventService{
		luaSvc: luaSvc,
		bus:    bus,
	}
}

// Start sets up all event handlers. Must run after the script is loaded.
func (s *EventService) Start(ctx context.Context) {
	s.setupSceneHandler(ctx)

	// Forward only what the script subscribed to
	for _, t := range s.luaSvc.Runtime.EventTypes() {
		s.bus.Subscribe(t, func(event eventbus.Event) {
			s.luaSvc.Dispatch(ctx, event)
		})
		log.Debug().Str("event_type", string(t)).Msg("Forwarding events to Lua")
	}
}

// setupSceneHandler runs scenes requested through the bus. The bus worker
// blocks until the scene has finished on the Lua worker.
func (s *EventService) setupSceneHandler(ctx context.Context) {
	s.bus.Subscribe(eventbus.EventTypeScene, func(event eventbus.Event) {
		name, _ := event.Data["name"].(string)
		args, _ := event.Data["args"].(map[string]interface{})

		if err := s.luaSvc.RunScene(ctx, name, args); err != nil {
			log.Error().Err(err).Str("scene", name).Msg("Scene failed")
		}
	})
}
