package database

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/domain"
)

const structureHistoryColumns = `id, "exists", timestamp, character_id, corporation_id, system_id, type_id, structure_id, name, state, state_timer_start, state_timer_end, fuel_expires, unanchors_at, has_moon_drill`

// StructureRepo persists structure history rows and the live structure
// mirror
type StructureRepo struct {
	log zerolog.Logger
	db  *DB
}

// NewStructureRepo creates a new structure repository
func NewStructureRepo(log zerolog.Logger, db *DB) *StructureRepo {
	return &StructureRepo{
		log: log.With().Str("repo", "structure").Logger(),
		db:  db,
	}
}

// LatestHistory returns the most recent history row for a structure, or nil
// when the structure has never been seen.
func (r *StructureRepo) LatestHistory(ctx context.Context, structureID int64) (*domain.StructureHistoryRow, error) {
	query := `SELECT ` + structureHistoryColumns + ` FROM structure_history WHERE structure_id = ? ORDER BY id DESC LIMIT 1`

	row := r.db.handler.QueryRowContext(ctx, query, structureID)
	h, err := scanStructureHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "error querying latest structure history")
	}

	return h, nil
}

// LiveIDs returns the structure ids whose latest history row still exists.
func (r *StructureRepo) LiveIDs(ctx context.Context, corporationID int64) (map[int64]struct{}, error) {
	query := `
		SELECT h.structure_id
		FROM structure_history h
		JOIN (
			SELECT structure_id, MAX(id) AS max_id
			FROM structure_history
			WHERE corporation_id = ?
			GROUP BY structure_id
		) m ON h.structure_id = m.structure_id AND h.id = m.max_id
		WHERE h."exists" = 1`

	rows, err := r.db.handler.QueryContext(ctx, query, corporationID)
	if err != nil {
		return nil, errors.Wrap(err, "error querying live structure ids")
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

// InsertHistory appends a history row. Callers decide whether a row is
// warranted; this never updates in place.
func (r *StructureRepo) InsertHistory(ctx context.Context, row domain.StructureHistoryRow) error {
	queryBuilder := r.db.squirrel.
		Insert("structure_history").
		Columns(`"exists"`, "timestamp", "character_id", "corporation_id", "system_id", "type_id", "structure_id", "name", "state", "state_timer_start", "state_timer_end", "fuel_expires", "unanchors_at", "has_moon_drill").
		Values(row.Exists, timeArg(row.Timestamp), row.CharacterID, row.CorporationID, row.SystemID, row.TypeID, row.StructureID, row.Name, row.State, timeArg(row.StateTimerStart), timeArg(row.StateTimerEnd), timeArg(row.FuelExpires), timeArg(row.UnanchorsAt), row.HasMoonDrill)

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

// UpsertLive replaces the live mirror row for a structure.
func (r *StructureRepo) UpsertLive(ctx context.Context, s domain.StructureSnapshot, now time.Time) error {
	queryBuilder := r.db.squirrel.
		Replace("structure").
		Columns("structure_id", "timestamp", "character_id", "corporation_id", "system_id", "type_id", "name", "state", "state_timer_start", "state_timer_end", "fuel_expires", "unanchors_at", "has_moon_drill").
		Values(s.StructureID, timeArg(now), s.CharacterID, s.CorporationID, s.SystemID, s.TypeID, s.Name, s.State, timeArg(s.StateTimerStart), timeArg(s.StateTimerEnd), timeArg(s.FuelExpires), timeArg(s.UnanchorsAt), s.HasMoonDrill)

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

// DeleteLiveNotIn removes live mirror rows for structures the corporation no
// longer reports.
func (r *StructureRepo) DeleteLiveNotIn(ctx context.Context, corporationID int64, keep []int64) error {
	queryBuilder := r.db.squirrel.
		Delete("structure").
		Where(sq.Eq{"corporation_id": corporationID})

	if len(keep) > 0 {
		queryBuilder = queryBuilder.Where(sq.NotEq{"structure_id": keep})
	}

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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStructureHistory(row rowScanner) (*domain.StructureHistoryRow, error) {
	var (
		h                                                  domain.StructureHistoryRow
		ts, timerStart, timerEnd, fuelExpires, unanchorsAt sql.NullString
		state                                              sql.NullString
	)

	err := row.Scan(&h.ID, &h.Exists, &ts, &h.CharacterID, &h.CorporationID, &h.SystemID, &h.TypeID, &h.StructureID, &h.Name, &state, &timerStart, &timerEnd, &fuelExpires, &unanchorsAt, &h.HasMoonDrill)
	if err != nil {
		return nil, err
	}

	h.Timestamp = scanTime(ts)
	h.State = state.String
	h.StateTimerStart = scanTime(timerStart)
	h.StateTimerEnd = scanTime(timerEnd)
	h.FuelExpires = scanTime(fuelExpires)
	h.UnanchorsAt = scanTime(unanchorsAt)

	return &h, nil
}
