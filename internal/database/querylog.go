package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Query log kinds, one per polled endpoint.
const (
	QueryKindStructures      = "structures"
	QueryKindExtractions     = "extractions"
	QueryKindObservers       = "observers"
	QueryKindObserverRecords = "observer_records"
)

// QueryLogRepo keeps the raw JSON of every poll for operator forensics.
type QueryLogRepo struct {
	log zerolog.Logger
	db  *DB
}

func NewQueryLogRepo(log zerolog.Logger, db *DB) *QueryLogRepo {
	return &QueryLogRepo{
		log: log.With().Str("repo", "querylog").Logger(),
		db:  db,
	}
}

// Insert stores the raw response body of a poll.
func (r *QueryLogRepo) Insert(ctx context.Context, kind string, corporationID, characterID int64, body []byte, now time.Time) error {
	queryBuilder := r.db.squirrel.
		Insert("query_log").
		Columns("kind", "timestamp", "corporation_id", "character_id", "json").
		Values(kind, timeArg(now), corporationID, characterID, string(body))

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
