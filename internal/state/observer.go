package state

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/database"
	"github.com/varoOP/moonsync/internal/domain"
)

type ObserverState struct {
	log  zerolog.Logger
	repo *database.ObserverRepo
}

func NewObserverState(log zerolog.Logger, repo *database.ObserverRepo) *ObserverState {
	return &ObserverState{
		log:  log.With().Str("module", "state").Str("entity", "observer").Logger(),
		repo: repo,
	}
}

// IDs returns the observer ids whose latest history row still exists.
func (s *ObserverState) IDs(ctx context.Context, corporationID int64) (map[int64]struct{}, error) {
	return s.repo.LiveIDs(ctx, corporationID)
}

// Latest returns the most recent history row for an observer.
func (s *ObserverState) Latest(ctx context.Context, observerID, corporationID int64) (*domain.ObserverHistoryRow, error) {
	return s.repo.LatestHistory(ctx, observerID, corporationID)
}

// Set appends a history row when the observer changed, reappeared, or
// disappeared. Unlike structures, every field participates in the diff, so a
// bumped last_updated alone writes a row. Returns the inserted row id, or 0
// when nothing was written.
func (s *ObserverState) Set(ctx context.Context, o domain.Observer, nowExists bool, now time.Time) (int64, error) {
	latest, err := s.repo.LatestHistory(ctx, o.ObserverID, o.CorporationID)
	if err != nil {
		return 0, err
	}

	if !nowExists {
		if latest == nil || !latest.Exists {
			return 0, nil
		}
		tombstone := domain.ObserverHistoryRow{
			Exists:    false,
			Timestamp: now,
			Observer:  latest.Observer,
		}
		id, err := s.repo.InsertHistory(ctx, tombstone)
		if err != nil {
			return 0, err
		}
		s.log.Info().Int64("observer_id", o.ObserverID).Msg("observer disappeared")
		return id, nil
	}

	if latest != nil && latest.Exists {
		changed := latest.ChangedFields(o)
		if len(changed) == 0 {
			return 0, nil
		}
		s.log.Info().Int64("observer_id", o.ObserverID).Strs("changed", changed).Msg("observer changed")
	}

	row := domain.ObserverHistoryRow{
		Exists:    true,
		Timestamp: now,
		Observer:  o,
	}

	return s.repo.InsertHistory(ctx, row)
}
