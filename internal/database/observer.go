package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/domain"
)

const observerHistoryColumns = `id, "exists", timestamp, observer_id, corporation_id, observer_type, last_updated`

// ObserverRepo persists mining observer history and the per-character
// mined-quantity ledger attached to it.
type ObserverRepo struct {
	log zerolog.Logger
	db  *DB
}

func NewObserverRepo(log zerolog.Logger, db *DB) *ObserverRepo {
	return &ObserverRepo{
		log: log.With().Str("repo", "observer").Logger(),
		db:  db,
	}
}

// LatestHistory returns the most recent history row for an observer, or nil
// when the observer has never been seen.
func (r *ObserverRepo) LatestHistory(ctx context.Context, observerID, corporationID int64) (*domain.ObserverHistoryRow, error) {
	query := `SELECT ` + observerHistoryColumns + ` FROM observer_history WHERE observer_id = ? AND corporation_id = ? ORDER BY id DESC LIMIT 1`

	row := r.db.handler.QueryRowContext(ctx, query, observerID, corporationID)
	h, err := scanObserverHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "error querying latest observer history")
	}

	return h, nil
}

// LiveIDs returns the observer ids whose latest history row still exists.
func (r *ObserverRepo) LiveIDs(ctx context.Context, corporationID int64) (map[int64]struct{}, error) {
	query := `
		SELECT h.observer_id
		FROM observer_history h
		JOIN (
			SELECT observer_id, MAX(id) AS max_id
			FROM observer_history
			WHERE corporation_id = ?
			GROUP BY observer_id
		) m ON h.observer_id = m.observer_id AND h.id = m.max_id
		WHERE h."exists" = 1`

	rows, err := r.db.handler.QueryContext(ctx, query, corporationID)
	if err != nil {
		return nil, errors.Wrap(err, "error querying live observer ids")
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

// InsertHistory appends an observer history row and returns its id so the
// record ledger can reference it.
func (r *ObserverRepo) InsertHistory(ctx context.Context, row domain.ObserverHistoryRow) (int64, error) {
	queryBuilder := r.db.squirrel.
		Insert("observer_history").
		Columns(`"exists"`, "timestamp", "observer_id", "corporation_id", "observer_type", "last_updated").
		Values(row.Exists, timeArg(row.Timestamp), row.ObserverID, row.CorporationID, row.ObserverType, timeArg(row.LastUpdated))

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "error building query")
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("InsertHistory")

	result, err := r.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "error executing query")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "error retrieving inserted id")
	}

	return id, nil
}

// InsertRecords appends the per-character mining records for an observer
// history row in a single transaction.
func (r *ObserverRepo) InsertRecords(ctx context.Context, records []domain.ObserverRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.handler.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "error beginning transaction")
	}
	defer tx.Rollback()

	for _, rec := range records {
		queryBuilder := r.db.squirrel.
			Insert("observer_record_history").
			Columns("observer_history_id", "observer_id", "corporation_id", "character_id", "recorded_corporation_id", "type_id", "quantity", "last_updated").
			Values(rec.ObserverHistoryID, rec.ObserverID, rec.CorporationID, rec.CharacterID, rec.RecordedCorporationID, rec.TypeID, rec.Quantity, timeArg(rec.LastUpdated))

		query, args, err := queryBuilder.ToSql()
		if err != nil {
			return errors.Wrap(err, "error building query")
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrap(err, "error inserting observer record")
		}
	}

	return tx.Commit()
}

func scanObserverHistory(row rowScanner) (*domain.ObserverHistoryRow, error) {
	var (
		h               domain.ObserverHistoryRow
		ts, lastUpdated sql.NullString
		observerType    sql.NullString
	)

	err := row.Scan(&h.ID, &h.Exists, &ts, &h.ObserverID, &h.CorporationID, &observerType, &lastUpdated)
	if err != nil {
		return nil, err
	}

	h.Timestamp = scanTime(ts)
	h.ObserverType = observerType.String
	h.LastUpdated = scanTime(lastUpdated)

	return &h, nil
}
