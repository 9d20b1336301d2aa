package database

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/domain"
)

// UniverseRepo persists the reference entities the poller backfills before
// writing dependent rows: corporations, characters, systems, moons, types.
type UniverseRepo struct {
	log zerolog.Logger
	db  *DB
}

func NewUniverseRepo(log zerolog.Logger, db *DB) *UniverseRepo {
	return &UniverseRepo{
		log: log.With().Str("repo", "universe").Logger(),
		db:  db,
	}
}

// ExistingIDs returns which of the given ids already have a row in the
// table. The poller uses it to fetch only the missing references.
func (r *UniverseRepo) existingIDs(ctx context.Context, table, column string, ids []int64) (map[int64]struct{}, error) {
	result := make(map[int64]struct{}, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	queryBuilder := r.db.squirrel.
		Select(column).
		From(table)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "error querying %s", table)
	}
	defer rows.Close()

	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		if _, ok := wanted[id]; ok {
			result[id] = struct{}{}
		}
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return result, nil
}

func (r *UniverseRepo) ExistingCorporations(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	return r.existingIDs(ctx, "corporations", "corporation_id", ids)
}

func (r *UniverseRepo) ExistingCharacters(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	return r.existingIDs(ctx, "characters", "character_id", ids)
}

func (r *UniverseRepo) ExistingSystems(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	return r.existingIDs(ctx, "universe_systems", "system_id", ids)
}

func (r *UniverseRepo) ExistingMoons(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	return r.existingIDs(ctx, "universe_moons", "moon_id", ids)
}

func (r *UniverseRepo) ExistingTypes(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	return r.existingIDs(ctx, "universe_types", "type_id", ids)
}

func (r *UniverseRepo) InsertCorporation(ctx context.Context, c domain.Corporation) error {
	queryBuilder := r.db.squirrel.
		Replace("corporations").
		Columns("corporation_id", "alliance_id", "name", "ticker").
		Values(c.CorporationID, nullableID(c.AllianceID), c.Name, c.Ticker)

	query, args, err := queryBuilder.ToSql()
	return r.exec(ctx, query, args, err)
}

func (r *UniverseRepo) InsertCharacter(ctx context.Context, c domain.Character) error {
	queryBuilder := r.db.squirrel.
		Replace("characters").
		Columns("character_id", "corporation_id", "alliance_id", "name").
		Values(c.CharacterID, c.CorporationID, nullableID(c.AllianceID), c.Name)

	query, args, err := queryBuilder.ToSql()
	return r.exec(ctx, query, args, err)
}

func (r *UniverseRepo) InsertSystem(ctx context.Context, s domain.System) error {
	queryBuilder := r.db.squirrel.
		Replace("universe_systems").
		Columns("system_id", "constellation_id", "name").
		Values(s.SystemID, s.ConstellationID, s.Name)

	query, args, err := queryBuilder.ToSql()
	return r.exec(ctx, query, args, err)
}

func (r *UniverseRepo) InsertMoon(ctx context.Context, m domain.Moon) error {
	queryBuilder := r.db.squirrel.
		Replace("universe_moons").
		Columns("moon_id", "system_id", "name").
		Values(m.MoonID, m.SystemID, m.Name)

	query, args, err := queryBuilder.ToSql()
	return r.exec(ctx, query, args, err)
}

func (r *UniverseRepo) InsertType(ctx context.Context, t domain.Type) error {
	queryBuilder := r.db.squirrel.
		Replace("universe_types").
		Columns("type_id", "group_id", "market_group_id", "name").
		Values(t.TypeID, t.GroupID, nullableID(t.MarketGroupID), t.Name)

	query, args, err := queryBuilder.ToSql()
	return r.exec(ctx, query, args, err)
}

func (r *UniverseRepo) exec(ctx context.Context, query string, args []interface{}, buildErr error) error {
	if buildErr != nil {
		return errors.Wrap(buildErr, "error building query")
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("exec")

	if _, err := r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "error executing query")
	}

	return nil
}

// nullableID maps the zero id to NULL for optional reference columns.
func nullableID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}
