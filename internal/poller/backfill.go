package poller

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/database"
	"github.com/varoOP/moonsync/internal/domain"
	"github.com/varoOP/moonsync/internal/esi"
)

// Backfiller fetches referenced foreign entities before dependent rows are
// written, because the store enforces referential existence. A failed
// lookup is logged and skipped; the dependent write surfaces the constraint
// error on its own.
type Backfiller struct {
	log      zerolog.Logger
	client   *esi.Client
	universe *database.UniverseRepo
}

func NewBackfiller(log zerolog.Logger, client *esi.Client, universe *database.UniverseRepo) *Backfiller {
	return &Backfiller{
		log:      log.With().Str("module", "backfill").Logger(),
		client:   client,
		universe: universe,
	}
}

func (b *Backfiller) Corporations(ctx context.Context, ids map[int64]struct{}) error {
	missing, err := b.missing(ctx, ids, b.universe.ExistingCorporations)
	if err != nil {
		return err
	}

	for _, id := range missing {
		var rec struct {
			AllianceID int64  `json:"alliance_id"`
			Name       string `json:"name"`
			Ticker     string `json:"ticker"`
		}
		if !b.fetch(ctx, b.client.CorporationURL(id), &rec) {
			continue
		}
		corp := domain.Corporation{CorporationID: id, AllianceID: rec.AllianceID, Name: rec.Name, Ticker: rec.Ticker}
		if err := b.universe.InsertCorporation(ctx, corp); err != nil {
			return err
		}
	}

	return nil
}

func (b *Backfiller) Characters(ctx context.Context, ids map[int64]struct{}) error {
	missing, err := b.missing(ctx, ids, b.universe.ExistingCharacters)
	if err != nil {
		return err
	}

	for _, id := range missing {
		var rec struct {
			CorporationID int64  `json:"corporation_id"`
			AllianceID    int64  `json:"alliance_id"`
			Name          string `json:"name"`
		}
		if !b.fetch(ctx, b.client.CharacterURL(id), &rec) {
			continue
		}
		char := domain.Character{CharacterID: id, CorporationID: rec.CorporationID, AllianceID: rec.AllianceID, Name: rec.Name}
		if err := b.universe.InsertCharacter(ctx, char); err != nil {
			return err
		}
	}

	return nil
}

func (b *Backfiller) Systems(ctx context.Context, ids map[int64]struct{}) error {
	missing, err := b.missing(ctx, ids, b.universe.ExistingSystems)
	if err != nil {
		return err
	}

	for _, id := range missing {
		var rec struct {
			ConstellationID int64  `json:"constellation_id"`
			Name            string `json:"name"`
		}
		if !b.fetch(ctx, b.client.SystemURL(id), &rec) {
			continue
		}
		system := domain.System{SystemID: id, ConstellationID: rec.ConstellationID, Name: rec.Name}
		if err := b.universe.InsertSystem(ctx, system); err != nil {
			return err
		}
	}

	return nil
}

// Moons resolves the moon's system first, since moons reference systems.
func (b *Backfiller) Moons(ctx context.Context, ids map[int64]struct{}) error {
	missing, err := b.missing(ctx, ids, b.universe.ExistingMoons)
	if err != nil {
		return err
	}

	for _, id := range missing {
		var rec struct {
			SystemID int64  `json:"system_id"`
			Name     string `json:"name"`
		}
		if !b.fetch(ctx, b.client.MoonURL(id), &rec) {
			continue
		}
		if err := b.Systems(ctx, map[int64]struct{}{rec.SystemID: {}}); err != nil {
			return err
		}
		moon := domain.Moon{MoonID: id, SystemID: rec.SystemID, Name: rec.Name}
		if err := b.universe.InsertMoon(ctx, moon); err != nil {
			return err
		}
	}

	return nil
}

func (b *Backfiller) Types(ctx context.Context, ids map[int64]struct{}) error {
	missing, err := b.missing(ctx, ids, b.universe.ExistingTypes)
	if err != nil {
		return err
	}

	for _, id := range missing {
		var rec struct {
			GroupID       int64  `json:"group_id"`
			MarketGroupID int64  `json:"market_group_id"`
			Name          string `json:"name"`
		}
		if !b.fetch(ctx, b.client.TypeURL(id), &rec) {
			continue
		}
		typ := domain.Type{TypeID: id, GroupID: rec.GroupID, MarketGroupID: rec.MarketGroupID, Name: rec.Name}
		if err := b.universe.InsertType(ctx, typ); err != nil {
			return err
		}
	}

	return nil
}

type existingFunc func(ctx context.Context, ids []int64) (map[int64]struct{}, error)

func (b *Backfiller) missing(ctx context.Context, ids map[int64]struct{}, existing existingFunc) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	wanted := make([]int64, 0, len(ids))
	for id := range ids {
		if id > 0 {
			wanted = append(wanted, id)
		}
	}

	have, err := existing(ctx, wanted)
	if err != nil {
		return nil, err
	}

	var missing []int64
	for _, id := range wanted {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}

	return missing, nil
}

// fetch resolves a public reference endpoint into dest. Failures are not
// fatal to the poll cycle.
func (b *Backfiller) fetch(ctx context.Context, url string, dest interface{}) bool {
	status, data, err := b.client.Get(ctx, url, "", nil)
	if err != nil {
		b.log.Warn().Err(err).Str("url", url).Msg("backfill fetch failed")
		return false
	}
	if status != http.StatusOK && status != http.StatusNotModified {
		b.log.Warn().Str("url", url).Int("status", status).Msg("backfill fetch failed")
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		b.log.Warn().Err(err).Str("url", url).Msg("backfill decode failed")
		return false
	}
	return true
}
