package notification

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/domain"
)

// Service drains the outbound event queue into the configured sinks.
// Delivery failures are logged and dropped; the queue is best effort by
// design.
type Service struct {
	log     zerolog.Logger
	discord *DiscordService
	events  <-chan domain.Event
}

// NewService creates a new notification service consuming from events
func NewService(log zerolog.Logger, webhookURL string, events <-chan domain.Event) *Service {
	var discord *DiscordService
	if webhookURL != "" {
		discord = NewDiscordService(log, webhookURL)
	}

	return &Service{
		log:     log.With().Str("module", "notification").Logger(),
		discord: discord,
		events:  events,
	}
}

// Run consumes events until the channel closes or the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.events:
			if !ok {
				return
			}
			s.dispatch(ctx, event)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, event domain.Event) {
	if s.discord == nil {
		return
	}
	if err := s.discord.SendEvent(ctx, event); err != nil {
		s.log.Error().Err(err).Msg("failed to deliver notification")
	}
}
