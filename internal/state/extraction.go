package state

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/database"
	"github.com/varoOP/moonsync/internal/domain"
)

type ExtractionState struct {
	log  zerolog.Logger
	repo *database.ExtractionRepo
}

func NewExtractionState(log zerolog.Logger, repo *database.ExtractionRepo) *ExtractionState {
	return &ExtractionState{
		log:  log.With().Str("module", "state").Str("entity", "extraction").Logger(),
		repo: repo,
	}
}

// IDs returns the structure ids whose latest extraction history row still
// exists.
func (s *ExtractionState) IDs(ctx context.Context, corporationID int64) (map[int64]struct{}, error) {
	return s.repo.LiveIDs(ctx, corporationID)
}

// Latest returns the most recent extraction history row for a structure.
func (s *ExtractionState) Latest(ctx context.Context, structureID int64) (*domain.ExtractionHistoryRow, error) {
	return s.repo.LatestHistory(ctx, structureID)
}

// Set appends a history row when the extraction materially changed,
// reappeared, or disappeared (tombstone). Returns whether a row was written.
func (s *ExtractionState) Set(ctx context.Context, structureID int64, e domain.ScheduledExtraction, nowExists bool, now time.Time) (bool, error) {
	latest, err := s.repo.LatestHistory(ctx, structureID)
	if err != nil {
		return false, err
	}

	if !nowExists {
		if latest == nil || !latest.Exists {
			return false, nil
		}
		tombstone := domain.ExtractionHistoryRow{
			Exists:              false,
			Timestamp:           now,
			ScheduledExtraction: latest.ScheduledExtraction,
		}
		if err := s.repo.InsertHistory(ctx, tombstone); err != nil {
			return false, err
		}
		s.log.Info().Int64("structure_id", structureID).Msg("extraction disappeared")
		return true, nil
	}

	if latest != nil && latest.Exists {
		changed := latest.ChangedFields(e)
		if len(changed) == 0 {
			return false, nil
		}
		s.log.Info().Int64("structure_id", structureID).Strs("changed", changed).Msg("extraction changed")
	}

	row := domain.ExtractionHistoryRow{
		Exists:              true,
		Timestamp:           now,
		ScheduledExtraction: e,
	}
	if err := s.repo.InsertHistory(ctx, row); err != nil {
		return false, err
	}

	return true, nil
}

// Add is the change-detection variant the fetch pass uses: same diff test
// as Set, but it never writes tombstones. Disappearances are handled
// separately so the rollover pass sees them explicitly.
func (s *ExtractionState) Add(ctx context.Context, structureID int64, e domain.ScheduledExtraction, nowExists bool, now time.Time) (bool, error) {
	if !nowExists {
		return false, nil
	}

	latest, err := s.repo.LatestHistory(ctx, structureID)
	if err != nil {
		return false, err
	}

	if latest != nil && latest.Exists {
		if len(latest.ChangedFields(e)) == 0 {
			return false, nil
		}
	}

	row := domain.ExtractionHistoryRow{
		Exists:              true,
		Timestamp:           now,
		ScheduledExtraction: e,
	}
	if err := s.repo.InsertHistory(ctx, row); err != nil {
		return false, err
	}

	return true, nil
}
