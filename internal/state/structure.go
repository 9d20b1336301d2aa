// Package state implements the diff-and-append change tracking shared by
// the three history stores. Re-feeding an identical snapshot never grows a
// history table.
package state

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/database"
	"github.com/varoOP/moonsync/internal/domain"
)

type StructureState struct {
	log  zerolog.Logger
	repo *database.StructureRepo
}

func NewStructureState(log zerolog.Logger, repo *database.StructureRepo) *StructureState {
	return &StructureState{
		log:  log.With().Str("module", "state").Str("entity", "structure").Logger(),
		repo: repo,
	}
}

// IDs returns the structure ids whose latest history row still exists.
func (s *StructureState) IDs(ctx context.Context, corporationID int64) (map[int64]struct{}, error) {
	return s.repo.LiveIDs(ctx, corporationID)
}

// Latest returns the most recent history row for a structure.
func (s *StructureState) Latest(ctx context.Context, structureID int64) (*domain.StructureHistoryRow, error) {
	return s.repo.LatestHistory(ctx, structureID)
}

// Set appends a history row when the snapshot materially changed, when the
// structure reappeared, or when it disappeared (tombstone). Returns whether
// a row was written.
func (s *StructureState) Set(ctx context.Context, structureID int64, snap domain.StructureSnapshot, nowExists bool, now time.Time) (bool, error) {
	latest, err := s.repo.LatestHistory(ctx, structureID)
	if err != nil {
		return false, err
	}

	if !nowExists {
		if latest == nil || !latest.Exists {
			return false, nil
		}
		tombstone := domain.StructureHistoryRow{
			Exists:            false,
			Timestamp:         now,
			StructureSnapshot: latest.StructureSnapshot,
		}
		if err := s.repo.InsertHistory(ctx, tombstone); err != nil {
			return false, err
		}
		s.log.Info().Int64("structure_id", structureID).Msg("structure disappeared")
		return true, nil
	}

	if latest != nil && latest.Exists {
		changed := latest.ChangedFields(snap)
		if len(changed) == 0 {
			return false, nil
		}
		s.log.Info().Int64("structure_id", structureID).Strs("changed", changed).Msg("structure changed")
	}

	row := domain.StructureHistoryRow{
		Exists:            true,
		Timestamp:         now,
		StructureSnapshot: snap,
	}
	if err := s.repo.InsertHistory(ctx, row); err != nil {
		return false, err
	}

	return true, nil
}
