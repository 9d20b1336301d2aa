package database

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/domain"
)

const extractionHistoryColumns = `id, "exists", timestamp, character_id, corporation_id, structure_id, moon_id, extraction_start_time, chunk_arrival_time, natural_decay_time`

// ExtractionRepo persists extraction history rows and the scheduled /
// completed extraction mirrors the rollover pass maintains.
type ExtractionRepo struct {
	log zerolog.Logger
	db  *DB
}

func NewExtractionRepo(log zerolog.Logger, db *DB) *ExtractionRepo {
	return &ExtractionRepo{
		log: log.With().Str("repo", "extraction").Logger(),
		db:  db,
	}
}

// LatestHistory returns the most recent history row for a structure's
// extraction, or nil when none has been recorded.
func (r *ExtractionRepo) LatestHistory(ctx context.Context, structureID int64) (*domain.ExtractionHistoryRow, error) {
	query := `SELECT ` + extractionHistoryColumns + ` FROM extraction_history WHERE structure_id = ? ORDER BY id DESC LIMIT 1`

	row := r.db.handler.QueryRowContext(ctx, query, structureID)
	h, err := scanExtractionHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "error querying latest extraction history")
	}

	return h, nil
}

// LiveIDs returns the structure ids whose latest extraction history row
// still exists.
func (r *ExtractionRepo) LiveIDs(ctx context.Context, corporationID int64) (map[int64]struct{}, error) {
	query := `
		SELECT h.structure_id
		FROM extraction_history h
		JOIN (
			SELECT structure_id, MAX(id) AS max_id
			FROM extraction_history
			WHERE corporation_id = ?
			GROUP BY structure_id
		) m ON h.structure_id = m.structure_id AND h.id = m.max_id
		WHERE h."exists" = 1`

	rows, err := r.db.handler.QueryContext(ctx, query, corporationID)
	if err != nil {
		return nil, errors.Wrap(err, "error querying live extraction ids")
	}
	defer rows.Close()

	result := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		result[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return result, nil
}

// InsertHistory appends an extraction history row.
func (r *ExtractionRepo) InsertHistory(ctx context.Context, row domain.ExtractionHistoryRow) error {
	queryBuilder := r.db.squirrel.
		Insert("extraction_history").
		Columns(`"exists"`, "timestamp", "character_id", "corporation_id", "structure_id", "moon_id", "extraction_start_time", "chunk_arrival_time", "natural_decay_time").
		Values(row.Exists, timeArg(row.Timestamp), row.CharacterID, row.CorporationID, row.StructureID, row.MoonID, timeArg(row.ExtractionStartTime), timeArg(row.ChunkArrivalTime), timeArg(row.NaturalDecayTime))

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("InsertHistory")

	_, err = r.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error executing query")
	}

	return nil
}

// ScheduledByCorporation returns every scheduled extraction belonging to a
// corporation, keyed by structure id.
func (r *ExtractionRepo) ScheduledByCorporation(ctx context.Context, corporationID int64) (map[int64]domain.ScheduledExtraction, error) {
	query := `SELECT structure_id, timestamp, character_id, corporation_id, moon_id, extraction_start_time, chunk_arrival_time, natural_decay_time FROM scheduled_extraction WHERE corporation_id = ?`

	rows, err := r.db.handler.QueryContext(ctx, query, corporationID)
	if err != nil {
		return nil, errors.Wrap(err, "error querying scheduled extractions")
	}
	defer rows.Close()

	result := make(map[int64]domain.ScheduledExtraction)
	for rows.Next() {
		var (
			e                     domain.ScheduledExtraction
			ts, start, chunk, nat sql.NullString
		)
		if err := rows.Scan(&e.StructureID, &ts, &e.CharacterID, &e.CorporationID, &e.MoonID, &start, &chunk, &nat); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		e.Timestamp = scanTime(ts)
		e.ExtractionStartTime = scanTime(start)
		e.ChunkArrivalTime = scanTime(chunk)
		e.NaturalDecayTime = scanTime(nat)
		result[e.StructureID] = e
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return result, nil
}

// CompletedByStructure returns the completed extraction for a structure, or
// nil when none is stored.
func (r *ExtractionRepo) CompletedByStructure(ctx context.Context, structureID int64) (*domain.CompletedExtraction, error) {
	query := `SELECT structure_id, timestamp, character_id, corporation_id, moon_id, extraction_start_time, chunk_arrival_time, natural_decay_time, belt_decay_time FROM completed_extraction WHERE structure_id = ?`

	var (
		e                           domain.CompletedExtraction
		ts, start, chunk, nat, belt sql.NullString
	)

	err := r.db.handler.QueryRowContext(ctx, query, structureID).
		Scan(&e.StructureID, &ts, &e.CharacterID, &e.CorporationID, &e.MoonID, &start, &chunk, &nat, &belt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "error querying completed extraction")
	}

	e.Timestamp = scanTime(ts)
	e.ExtractionStartTime = scanTime(start)
	e.ChunkArrivalTime = scanTime(chunk)
	e.NaturalDecayTime = scanTime(nat)
	e.BeltDecayTime = scanTime(belt)

	return &e, nil
}

// UpsertScheduled replaces the scheduled extraction for a structure.
func (r *ExtractionRepo) UpsertScheduled(ctx context.Context, e domain.ScheduledExtraction) error {
	queryBuilder := r.db.squirrel.
		Replace("scheduled_extraction").
		Columns("structure_id", "timestamp", "character_id", "corporation_id", "moon_id", "extraction_start_time", "chunk_arrival_time", "natural_decay_time").
		Values(e.StructureID, timeArg(e.Timestamp), e.CharacterID, e.CorporationID, e.MoonID, timeArg(e.ExtractionStartTime), timeArg(e.ChunkArrivalTime), timeArg(e.NaturalDecayTime))

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = r.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error executing query")
	}

	return nil
}

// UpsertCompleted replaces the completed extraction for a structure.
func (r *ExtractionRepo) UpsertCompleted(ctx context.Context, e domain.CompletedExtraction) error {
	queryBuilder := r.db.squirrel.
		Replace("completed_extraction").
		Columns("structure_id", "timestamp", "character_id", "corporation_id", "moon_id", "extraction_start_time", "chunk_arrival_time", "natural_decay_time", "belt_decay_time").
		Values(e.StructureID, timeArg(e.Timestamp), e.CharacterID, e.CorporationID, e.MoonID, timeArg(e.ExtractionStartTime), timeArg(e.ChunkArrivalTime), timeArg(e.NaturalDecayTime), timeArg(e.BeltDecayTime))

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = r.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error executing query")
	}

	return nil
}

// DeleteScheduled removes the scheduled extraction for a structure.
func (r *ExtractionRepo) DeleteScheduled(ctx context.Context, structureID int64) error {
	return r.deleteByStructure(ctx, "scheduled_extraction", structureID)
}

// DeleteCompleted removes the completed extraction for a structure.
func (r *ExtractionRepo) DeleteCompleted(ctx context.Context, structureID int64) error {
	return r.deleteByStructure(ctx, "completed_extraction", structureID)
}

func (r *ExtractionRepo) deleteByStructure(ctx context.Context, table string, structureID int64) error {
	queryBuilder := r.db.squirrel.
		Delete(table).
		Where(sq.Eq{"structure_id": structureID})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = r.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error executing query")
	}

	return nil
}

// DeleteForMissingStructures drops scheduled and completed extractions whose
// structure is no longer reported by the corporation.
func (r *ExtractionRepo) DeleteForMissingStructures(ctx context.Context, corporationID int64, keep []int64) error {
	for _, table := range []string{"scheduled_extraction", "completed_extraction"} {
		queryBuilder := r.db.squirrel.
			Delete(table).
			Where(sq.Eq{"corporation_id": corporationID})

		if len(keep) > 0 {
			queryBuilder = queryBuilder.Where(sq.NotEq{"structure_id": keep})
		}

		query, args, err := queryBuilder.ToSql()
		if err != nil {
			return errors.Wrap(err, "error building query")
		}

		if _, err := r.db.handler.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrapf(err, "error cleaning %s", table)
		}
	}

	return nil
}

// BeltLifetimeModifier returns the configured modifier for a structure, or
// 1.0 when none is set.
func (r *ExtractionRepo) BeltLifetimeModifier(ctx context.Context, structureID int64) (float64, error) {
	query := `SELECT belt_lifetime_modifier FROM structure_modifiers WHERE structure_id = ?`

	var modifier float64
	err := r.db.handler.QueryRowContext(ctx, query, structureID).Scan(&modifier)
	if err == sql.ErrNoRows {
		return 1.0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "error querying belt lifetime modifier")
	}

	return modifier, nil
}

// UpsertModifier sets the belt lifetime modifier for a structure.
func (r *ExtractionRepo) UpsertModifier(ctx context.Context, m domain.StructureModifier) error {
	queryBuilder := r.db.squirrel.
		Replace("structure_modifiers").
		Columns("structure_id", "belt_lifetime_modifier").
		Values(m.StructureID, m.BeltLifetimeModifier)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = r.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error executing query")
	}

	return nil
}

func scanExtractionHistory(row rowScanner) (*domain.ExtractionHistoryRow, error) {
	var (
		h                     domain.ExtractionHistoryRow
		ts, start, chunk, nat sql.NullString
	)

	err := row.Scan(&h.ID, &h.Exists, &ts, &h.CharacterID, &h.CorporationID, &h.StructureID, &h.MoonID, &start, &chunk, &nat)
	if err != nil {
		return nil, err
	}

	h.Timestamp = scanTime(ts)
	h.ExtractionStartTime = scanTime(start)
	h.ChunkArrivalTime = scanTime(chunk)
	h.NaturalDecayTime = scanTime(nat)

	return &h, nil
}
