package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/domain"
)

// CredentialsRepo persists the access tokens the scheduler polls with.
type CredentialsRepo struct {
	log zerolog.Logger
	db  *DB
}

func NewCredentialsRepo(log zerolog.Logger, db *DB) *CredentialsRepo {
	return &CredentialsRepo{
		log: log.With().Str("repo", "credentials").Logger(),
		db:  db,
	}
}

// Available returns enabled credentials with a still-valid token, ordered
// so the most capable token per corporation sorts first: director, then
// accountant, then station manager, with the earliest-expiring token
// breaking ties.
func (r *CredentialsRepo) Available(ctx context.Context, now time.Time) ([]domain.PeriodicCredentials, error) {
	query := `
		SELECT character_id, timestamp, corporation_id, is_enabled, is_director_role, is_accountant_role, is_station_manager_role, access_token, access_token_expiry
		FROM periodic_credentials
		WHERE is_enabled = 1 AND access_token_expiry > ?
		ORDER BY is_director_role DESC, is_accountant_role DESC, is_station_manager_role DESC, access_token_expiry ASC`

	rows, err := r.db.handler.QueryContext(ctx, query, timeArg(now))
	if err != nil {
		return nil, errors.Wrap(err, "error querying credentials")
	}
	defer rows.Close()

	var result []domain.PeriodicCredentials
	for rows.Next() {
		var (
			c          domain.PeriodicCredentials
			ts, expiry sql.NullString
		)
		if err := rows.Scan(&c.CharacterID, &ts, &c.CorporationID, &c.IsEnabled, &c.IsDirectorRole, &c.IsAccountantRole, &c.IsStationManagerRole, &c.AccessToken, &expiry); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		c.Timestamp = scanTime(ts)
		c.AccessTokenExpiry = scanTime(expiry)
		result = append(result, c)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return result, nil
}

// Upsert replaces the stored credentials for a character.
func (r *CredentialsRepo) Upsert(ctx context.Context, c domain.PeriodicCredentials) error {
	queryBuilder := r.db.squirrel.
		Replace("periodic_credentials").
		Columns("character_id", "timestamp", "corporation_id", "is_enabled", "is_director_role", "is_accountant_role", "is_station_manager_role", "access_token", "access_token_expiry").
		Values(c.CharacterID, timeArg(c.Timestamp), c.CorporationID, c.IsEnabled, c.IsDirectorRole, c.IsAccountantRole, c.IsStationManagerRole, c.AccessToken, timeArg(c.AccessTokenExpiry))

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
