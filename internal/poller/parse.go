package poller

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/varoOP/moonsync/internal/domain"
)

// The upstream reports full timestamps on structures and extractions but
// only a date on mining observers.
const dateOnly = "2006-01-02"

func parseUpstreamTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "unparsable timestamp %q", s)
	}
	return t.UTC(), nil
}

type structureRecord struct {
	StructureID     int64  `json:"structure_id"`
	CorporationID   int64  `json:"corporation_id"`
	SystemID        int64  `json:"system_id"`
	TypeID          int64  `json:"type_id"`
	Name            string `json:"name"`
	State           string `json:"state"`
	StateTimerStart string `json:"state_timer_start"`
	StateTimerEnd   string `json:"state_timer_end"`
	FuelExpires     string `json:"fuel_expires"`
	UnanchorsAt     string `json:"unanchors_at"`
	Services        []struct {
		Name  string `json:"name"`
		State string `json:"state"`
	} `json:"services"`
}

// parseStructure validates and converts one raw structure record. The
// polling identity is stamped on, it never participates in diffs.
func parseStructure(raw json.RawMessage, characterID, corporationID int64) (domain.StructureSnapshot, error) {
	var rec structureRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.StructureSnapshot{}, errors.Wrap(err, "error decoding structure record")
	}
	if rec.StructureID <= 0 {
		return domain.StructureSnapshot{}, errors.Errorf("structure record missing structure_id")
	}

	snap := domain.StructureSnapshot{
		StructureID:   rec.StructureID,
		CharacterID:   characterID,
		CorporationID: corporationID,
		SystemID:      rec.SystemID,
		TypeID:        rec.TypeID,
		Name:          rec.Name,
		State:         rec.State,
	}

	var err error
	if snap.StateTimerStart, err = parseUpstreamTime(rec.StateTimerStart); err != nil {
		return domain.StructureSnapshot{}, err
	}
	if snap.StateTimerEnd, err = parseUpstreamTime(rec.StateTimerEnd); err != nil {
		return domain.StructureSnapshot{}, err
	}
	if snap.FuelExpires, err = parseUpstreamTime(rec.FuelExpires); err != nil {
		return domain.StructureSnapshot{}, err
	}
	if snap.UnanchorsAt, err = parseUpstreamTime(rec.UnanchorsAt); err != nil {
		return domain.StructureSnapshot{}, err
	}

	for _, svc := range rec.Services {
		if svc.Name == "Moon Drilling" {
			snap.HasMoonDrill = true
			break
		}
	}

	return snap, nil
}

type extractionRecord struct {
	StructureID         int64  `json:"structure_id"`
	MoonID              int64  `json:"moon_id"`
	ExtractionStartTime string `json:"extraction_start_time"`
	ChunkArrivalTime    string `json:"chunk_arrival_time"`
	NaturalDecayTime    string `json:"natural_decay_time"`
}

func parseExtraction(raw json.RawMessage, characterID, corporationID int64, now time.Time) (domain.ScheduledExtraction, error) {
	var rec extractionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.ScheduledExtraction{}, errors.Wrap(err, "error decoding extraction record")
	}
	if rec.StructureID <= 0 {
		return domain.ScheduledExtraction{}, errors.Errorf("extraction record missing structure_id")
	}

	e := domain.ScheduledExtraction{
		StructureID:   rec.StructureID,
		CharacterID:   characterID,
		CorporationID: corporationID,
		MoonID:        rec.MoonID,
		Timestamp:     now,
	}

	var err error
	if e.ExtractionStartTime, err = parseUpstreamTime(rec.ExtractionStartTime); err != nil {
		return domain.ScheduledExtraction{}, err
	}
	if e.ChunkArrivalTime, err = parseUpstreamTime(rec.ChunkArrivalTime); err != nil {
		return domain.ScheduledExtraction{}, err
	}
	if e.NaturalDecayTime, err = parseUpstreamTime(rec.NaturalDecayTime); err != nil {
		return domain.ScheduledExtraction{}, err
	}

	return e, nil
}

type observerRecordJSON struct {
	ObserverID   int64  `json:"observer_id"`
	ObserverType string `json:"observer_type"`
	LastUpdated  string `json:"last_updated"`
}

func parseObserver(raw json.RawMessage, corporationID int64) (domain.Observer, error) {
	var rec observerRecordJSON
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Observer{}, errors.Wrap(err, "error decoding observer record")
	}
	if rec.ObserverID <= 0 {
		return domain.Observer{}, errors.Errorf("observer record missing observer_id")
	}

	o := domain.Observer{
		ObserverID:    rec.ObserverID,
		CorporationID: corporationID,
		ObserverType:  rec.ObserverType,
	}

	var err error
	if o.LastUpdated, err = parseUpstreamTime(rec.LastUpdated); err != nil {
		return domain.Observer{}, err
	}

	return o, nil
}

type minedRecordJSON struct {
	CharacterID           int64  `json:"character_id"`
	RecordedCorporationID int64  `json:"recorded_corporation_id"`
	TypeID                int64  `json:"type_id"`
	Quantity              int64  `json:"quantity"`
	LastUpdated           string `json:"last_updated"`
}

func parseObserverRecord(raw json.RawMessage, historyID, observerID, corporationID int64) (domain.ObserverRecord, error) {
	var rec minedRecordJSON
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.ObserverRecord{}, errors.Wrap(err, "error decoding mining record")
	}
	if rec.CharacterID <= 0 {
		return domain.ObserverRecord{}, errors.Errorf("mining record missing character_id")
	}

	r := domain.ObserverRecord{
		ObserverHistoryID:     historyID,
		ObserverID:            observerID,
		CorporationID:         corporationID,
		CharacterID:           rec.CharacterID,
		RecordedCorporationID: rec.RecordedCorporationID,
		TypeID:                rec.TypeID,
		Quantity:              rec.Quantity,
	}

	var err error
	if r.LastUpdated, err = parseUpstreamTime(rec.LastUpdated); err != nil {
		return domain.ObserverRecord{}, err
	}

	return r, nil
}
