package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/domain"
)

// cursorEpoch is the refresh time assumed for corporations that have never
// been polled, so they always sort first.
var cursorEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// CursorRepo persists the last-refresh timestamp per corporation that
// drives scheduler ordering.
type CursorRepo struct {
	log zerolog.Logger
	db  *DB
}

func NewCursorRepo(log zerolog.Logger, db *DB) *CursorRepo {
	return &CursorRepo{
		log: log.With().Str("repo", "cursor").Logger(),
		db:  db,
	}
}

// RefreshTimes returns the last refresh time for each given corporation.
// Corporations without a stored cursor get the epoch default.
func (r *CursorRepo) RefreshTimes(ctx context.Context, corporationIDs []int64) (map[int64]time.Time, error) {
	result := make(map[int64]time.Time, len(corporationIDs))
	for _, id := range corporationIDs {
		result[id] = cursorEpoch
	}

	query := `SELECT corporation_id, timestamp FROM refresh_cursor`

	rows, err := r.db.handler.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "error querying refresh cursors")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id int64
			ts sql.NullString
		)
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		if _, ok := result[id]; ok {
			result[id] = scanTime(ts)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return result, nil
}

// Set records a completed refresh for a corporation.
func (r *CursorRepo) Set(ctx context.Context, cursor domain.RefreshCursor) error {
	queryBuilder := r.db.squirrel.
		Replace("refresh_cursor").
		Columns("corporation_id", "character_id", "timestamp").
		Values(cursor.CorporationID, cursor.CharacterID, timeArg(cursor.Timestamp))

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
