// Package poller keeps the local store synchronized with the upstream API:
// it fetches structures, extractions and mining observers per corporation,
// feeds them through the change-history stores, rolls finished extractions
// into completed records, and emits domain events.
package poller

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/database"
	"github.com/varoOP/moonsync/internal/domain"
	"github.com/varoOP/moonsync/internal/esi"
	"github.com/varoOP/moonsync/internal/events"
	"github.com/varoOP/moonsync/internal/state"
)

type Poller struct {
	log      zerolog.Logger
	client   *esi.Client
	backfill *Backfiller

	structures  *state.StructureState
	extractions *state.ExtractionState
	observers   *state.ObserverState

	structureRepo  *database.StructureRepo
	extractionRepo *database.ExtractionRepo
	observerRepo   *database.ObserverRepo
	queryLog       *database.QueryLogRepo

	queue *events.Queue
}

func NewPoller(
	log zerolog.Logger,
	client *esi.Client,
	backfill *Backfiller,
	structures *state.StructureState,
	extractions *state.ExtractionState,
	observers *state.ObserverState,
	structureRepo *database.StructureRepo,
	extractionRepo *database.ExtractionRepo,
	observerRepo *database.ObserverRepo,
	queryLog *database.QueryLogRepo,
	queue *events.Queue,
) *Poller {
	return &Poller{
		log:            log.With().Str("module", "poller").Logger(),
		client:         client,
		backfill:       backfill,
		structures:     structures,
		extractions:    extractions,
		observers:      observers,
		structureRepo:  structureRepo,
		extractionRepo: extractionRepo,
		observerRepo:   observerRepo,
		queryLog:       queryLog,
		queue:          queue,
	}
}

// RunCorporation executes one full poll cycle for a corporation. Each fetch
// is wrapped individually so one failing endpoint does not block the others.
func (p *Poller) RunCorporation(ctx context.Context, now time.Time, cred domain.PeriodicCredentials) {
	log := p.log.With().Int64("corporation_id", cred.CorporationID).Logger()

	if cred.CanReadStructures() {
		if err := p.runStructures(ctx, now, cred); err != nil {
			log.Error().Err(err).Msg("structures fetch failed")
		}
		if err := p.runExtractions(ctx, now, cred); err != nil {
			log.Error().Err(err).Msg("extractions fetch failed")
		}
	}

	if cred.CanReadObservers() {
		if err := p.runObservers(ctx, now, cred); err != nil {
			log.Error().Err(err).Msg("observers fetch failed")
		}
	}
}

func (p *Poller) runStructures(ctx context.Context, now time.Time, cred domain.PeriodicCredentials) error {
	corporationID := cred.CorporationID

	records, err := p.client.Pages(ctx, p.client.StructuresURL(corporationID), cred.AccessToken, nil)
	if err != nil {
		return err
	}

	p.logQuery(ctx, database.QueryKindStructures, corporationID, cred.CharacterID, records, now)

	previous, err := p.structures.IDs(ctx, corporationID)
	if err != nil {
		return err
	}

	if err := p.backfill.Corporations(ctx, map[int64]struct{}{corporationID: {}}); err != nil {
		return err
	}

	current := make(map[int64]domain.StructureSnapshot, len(records))
	typeIDs := make(map[int64]struct{})

	for _, raw := range records {
		snap, err := parseStructure(raw, cred.CharacterID, corporationID)
		if err != nil {
			p.log.Warn().Err(err).Msg("skipping malformed structure record")
			continue
		}
		current[snap.StructureID] = snap
		typeIDs[snap.TypeID] = struct{}{}
	}

	if err := p.backfill.Types(ctx, typeIDs); err != nil {
		return err
	}

	for _, snap := range current {
		changed, err := p.structures.Set(ctx, snap.StructureID, snap, true, now)
		if err != nil {
			return err
		}
		if changed {
			p.queue.Publish(domain.StructureStateChanged{
				TS:              now,
				StructureID:     snap.StructureID,
				CorporationID:   corporationID,
				SystemID:        snap.SystemID,
				Exists:          true,
				State:           snap.State,
				StateTimerStart: snap.StateTimerStart,
				StateTimerEnd:   snap.StateTimerEnd,
				FuelExpires:     snap.FuelExpires,
			})
		}
	}

	// Tombstone structures the corporation no longer reports. A vanished
	// drill also tombstones its extraction so the rollover pass sees it.
	for structureID := range previous {
		if _, ok := current[structureID]; ok {
			continue
		}

		latest, err := p.structures.Latest(ctx, structureID)
		if err != nil {
			return err
		}

		if latest != nil && latest.HasMoonDrill {
			if _, err := p.extractions.Set(ctx, structureID, domain.ScheduledExtraction{}, false, now); err != nil {
				return err
			}
		}

		changed, err := p.structures.Set(ctx, structureID, domain.StructureSnapshot{}, false, now)
		if err != nil {
			return err
		}
		if changed && latest != nil {
			p.queue.Publish(domain.StructureStateChanged{
				TS:              now,
				StructureID:     structureID,
				CorporationID:   corporationID,
				SystemID:        latest.SystemID,
				Exists:          false,
				State:           latest.State,
				StateTimerStart: latest.StateTimerStart,
				StateTimerEnd:   latest.StateTimerEnd,
				FuelExpires:     latest.FuelExpires,
			})
		}
	}

	// Reconcile the live mirror and drop extractions whose structure is gone.
	keep := make([]int64, 0, len(current))
	for id := range current {
		keep = append(keep, id)
	}

	if err := p.extractionRepo.DeleteForMissingStructures(ctx, corporationID, keep); err != nil {
		return err
	}
	if err := p.structureRepo.DeleteLiveNotIn(ctx, corporationID, keep); err != nil {
		return err
	}

	for _, snap := range current {
		if err := p.structureRepo.UpsertLive(ctx, snap, now); err != nil {
			return err
		}
	}

	return nil
}

func (p *Poller) runExtractions(ctx context.Context, now time.Time, cred domain.PeriodicCredentials) error {
	corporationID := cred.CorporationID

	records, err := p.client.Pages(ctx, p.client.ExtractionsURL(corporationID), cred.AccessToken, nil)
	if err != nil {
		return err
	}

	p.logQuery(ctx, database.QueryKindExtractions, corporationID, cred.CharacterID, records, now)

	previous, err := p.extractions.IDs(ctx, corporationID)
	if err != nil {
		return err
	}

	current := make(map[int64]domain.ScheduledExtraction, len(records))
	changed := make(map[int64]struct{})
	moonIDs := make(map[int64]struct{})

	for _, raw := range records {
		e, err := parseExtraction(raw, cred.CharacterID, corporationID, now)
		if err != nil {
			p.log.Warn().Err(err).Msg("skipping malformed extraction record")
			continue
		}
		current[e.StructureID] = e
		moonIDs[e.MoonID] = struct{}{}
	}

	if err := p.backfill.Moons(ctx, moonIDs); err != nil {
		return err
	}
	if err := p.backfill.Corporations(ctx, map[int64]struct{}{corporationID: {}}); err != nil {
		return err
	}

	for _, e := range current {
		wasChanged, err := p.extractions.Add(ctx, e.StructureID, e, true, now)
		if err != nil {
			return err
		}
		switch {
		case wasChanged:
			changed[e.StructureID] = struct{}{}
			p.queue.Publish(domain.MoonExtractionScheduled{
				TS:                  now,
				StructureID:         e.StructureID,
				CorporationID:       corporationID,
				MoonID:              e.MoonID,
				ExtractionStartTime: e.ExtractionStartTime,
				ChunkArrivalTime:    e.ChunkArrivalTime,
			})
		case now.After(e.NaturalDecayTime):
			// Chunk decayed naturally without a confirming change.
			changed[e.StructureID] = struct{}{}
		}
	}

	// A previously tracked extraction that disappeared implies rolling.
	for structureID := range previous {
		if _, ok := current[structureID]; !ok {
			changed[structureID] = struct{}{}
		}
	}

	if len(changed) > 0 {
		if err := p.rollExtractions(ctx, now, corporationID, changed); err != nil {
			return err
		}
	}

	// Mirror what the upstream currently reports. Rolled extractions stay
	// here until the drill is re-fired or the structure disappears.
	for _, e := range current {
		if err := p.extractionRepo.UpsertScheduled(ctx, e); err != nil {
			return err
		}
	}

	return nil
}

// rollExtractions migrates scheduled extractions whose chunk has arrived
// (or decayed) into completed records with a belt decay estimate.
func (p *Poller) rollExtractions(ctx context.Context, now time.Time, corporationID int64, changed map[int64]struct{}) error {
	scheduled, err := p.extractionRepo.ScheduledByCorporation(ctx, corporationID)
	if err != nil {
		return err
	}

	for structureID := range changed {
		sched, ok := scheduled[structureID]
		if !ok {
			continue
		}

		// Arrival still in the future means the extraction was cancelled
		// before completion.
		if now.Before(sched.ChunkArrivalTime) {
			p.log.Info().Int64("structure_id", structureID).Msg("extraction cancelled")
			if err := p.extractionRepo.DeleteScheduled(ctx, structureID); err != nil {
				return err
			}
			continue
		}

		if err := p.extractionRepo.DeleteScheduled(ctx, structureID); err != nil {
			return err
		}

		completed, err := p.extractionRepo.CompletedByStructure(ctx, structureID)
		if err != nil {
			return err
		}
		if completed != nil {
			if completed.ChunkArrivalTime.Equal(sched.ChunkArrivalTime) {
				continue
			}
			if err := p.extractionRepo.DeleteCompleted(ctx, structureID); err != nil {
				return err
			}
		}

		modifier, err := p.extractionRepo.BeltLifetimeModifier(ctx, structureID)
		if err != nil {
			return err
		}

		decayBase := now
		if sched.ChunkArrivalTime.Before(decayBase) {
			decayBase = sched.ChunkArrivalTime
		}
		beltDecay := decayBase.Add(time.Duration(float64(domain.BeltLifetimeEstimate) * modifier))

		record := domain.CompletedExtraction{
			StructureID:         sched.StructureID,
			CharacterID:         sched.CharacterID,
			CorporationID:       sched.CorporationID,
			MoonID:              sched.MoonID,
			ExtractionStartTime: sched.ExtractionStartTime,
			ChunkArrivalTime:    sched.ChunkArrivalTime,
			NaturalDecayTime:    sched.NaturalDecayTime,
			BeltDecayTime:       beltDecay,
			Timestamp:           now,
		}
		if err := p.extractionRepo.UpsertCompleted(ctx, record); err != nil {
			return err
		}

		p.log.Info().Int64("structure_id", structureID).Time("belt_decay_time", beltDecay).Msg("extraction completed")
		p.queue.Publish(domain.MoonExtractionCompleted{
			TS:                  now,
			StructureID:         record.StructureID,
			CorporationID:       record.CorporationID,
			MoonID:              record.MoonID,
			ExtractionStartTime: record.ExtractionStartTime,
			ChunkArrivalTime:    record.ChunkArrivalTime,
			BeltDecayTime:       record.BeltDecayTime,
		})
	}

	return nil
}

func (p *Poller) runObservers(ctx context.Context, now time.Time, cred domain.PeriodicCredentials) error {
	corporationID := cred.CorporationID

	records, err := p.client.Pages(ctx, p.client.ObserversURL(corporationID), cred.AccessToken, nil)
	if err != nil {
		return err
	}

	p.logQuery(ctx, database.QueryKindObservers, corporationID, cred.CharacterID, records, now)

	previous, err := p.observers.IDs(ctx, corporationID)
	if err != nil {
		return err
	}

	current := make(map[int64]struct{}, len(records))
	changed := make(map[int64]int64) // observer id -> history row id

	for _, raw := range records {
		o, err := parseObserver(raw, corporationID)
		if err != nil {
			p.log.Warn().Err(err).Msg("skipping malformed observer record")
			continue
		}
		current[o.ObserverID] = struct{}{}

		historyID, err := p.observers.Set(ctx, o, true, now)
		if err != nil {
			return err
		}
		if historyID != 0 {
			changed[o.ObserverID] = historyID
		}
	}

	for observerID := range previous {
		if _, ok := current[observerID]; ok {
			continue
		}
		gone := domain.Observer{ObserverID: observerID, CorporationID: corporationID}
		if _, err := p.observers.Set(ctx, gone, false, now); err != nil {
			return err
		}
	}

	// Fetch the mined-quantity ledger only for observers that changed.
	for observerID, historyID := range changed {
		if err := p.runObserverRecords(ctx, now, cred, observerID, historyID); err != nil {
			p.log.Error().Err(err).Int64("observer_id", observerID).Msg("observer records fetch failed")
		}
	}

	return nil
}

func (p *Poller) runObserverRecords(ctx context.Context, now time.Time, cred domain.PeriodicCredentials, observerID, historyID int64) error {
	corporationID := cred.CorporationID

	records, err := p.client.Pages(ctx, p.client.ObserverRecordsURL(corporationID, observerID), cred.AccessToken, nil)
	if err != nil {
		return err
	}

	p.logQuery(ctx, database.QueryKindObserverRecords, corporationID, cred.CharacterID, records, now)

	ledger := make([]domain.ObserverRecord, 0, len(records))
	typeIDs := make(map[int64]struct{})
	characterIDs := make(map[int64]struct{})

	for _, raw := range records {
		rec, err := parseObserverRecord(raw, historyID, observerID, corporationID)
		if err != nil {
			p.log.Warn().Err(err).Msg("skipping malformed mining record")
			continue
		}
		ledger = append(ledger, rec)
		typeIDs[rec.TypeID] = struct{}{}
		characterIDs[rec.CharacterID] = struct{}{}
	}

	if err := p.backfill.Types(ctx, typeIDs); err != nil {
		return err
	}
	if err := p.backfill.Characters(ctx, characterIDs); err != nil {
		return err
	}

	return p.observerRepo.InsertRecords(ctx, ledger)
}

// logQuery stores the raw fetched records for operator forensics. A failed
// write is logged, never fatal to the cycle.
func (p *Poller) logQuery(ctx context.Context, kind string, corporationID, characterID int64, records []json.RawMessage, now time.Time) {
	body, err := json.Marshal(records)
	if err != nil {
		p.log.Warn().Err(err).Str("kind", kind).Msg("query log marshal failed")
		return
	}
	if err := p.queryLog.Insert(ctx, kind, corporationID, characterID, body, now); err != nil {
		p.log.Warn().Err(err).Str("kind", kind).Msg("query log write failed")
	}
}
