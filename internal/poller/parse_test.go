package poller

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructure(t *testing.T) {
	raw := json.RawMessage(`{
		"structure_id": 1021975535893,
		"corporation_id": 98000001,
		"system_id": 30000142,
		"type_id": 35835,
		"name": "Perimeter - Mining Outpost",
		"state": "shield_vulnerable",
		"fuel_expires": "2026-03-01T12:00:00Z",
		"services": [
			{"name": "Market", "state": "online"},
			{"name": "Moon Drilling", "state": "online"}
		]
	}`)

	snap, err := parseStructure(raw, 90000001, 98000001)
	require.NoError(t, err)

	assert.Equal(t, int64(1021975535893), snap.StructureID)
	assert.Equal(t, int64(90000001), snap.CharacterID)
	assert.Equal(t, "shield_vulnerable", snap.State)
	assert.True(t, snap.HasMoonDrill)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), snap.FuelExpires)
	assert.True(t, snap.StateTimerStart.IsZero(), "absent timers stay zero")
}

func TestParseStructure_NoMoonDrill(t *testing.T) {
	raw := json.RawMessage(`{"structure_id": 1, "system_id": 2, "type_id": 3, "name": "Keep", "state": "anchored", "services": [{"name": "Market"}]}`)

	snap, err := parseStructure(raw, 1, 2)
	require.NoError(t, err)
	assert.False(t, snap.HasMoonDrill)
}

func TestParseStructure_MissingID(t *testing.T) {
	_, err := parseStructure(json.RawMessage(`{"name": "ghost"}`), 1, 2)
	assert.Error(t, err)
}

func TestParseExtraction(t *testing.T) {
	raw := json.RawMessage(`{
		"structure_id": 1021975535893,
		"moon_id": 40009087,
		"extraction_start_time": "2026-02-01T00:00:00Z",
		"chunk_arrival_time": "2026-02-08T00:00:00Z",
		"natural_decay_time": "2026-02-08T03:00:00Z"
	}`)
	now := time.Now().UTC()

	e, err := parseExtraction(raw, 90000001, 98000001, now)
	require.NoError(t, err)

	assert.Equal(t, int64(40009087), e.MoonID)
	assert.Equal(t, time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC), e.ChunkArrivalTime)
	assert.Equal(t, now, e.Timestamp)
}

func TestParseObserver_DateOnlyLastUpdated(t *testing.T) {
	raw := json.RawMessage(`{"observer_id": 1021975535893, "observer_type": "structure", "last_updated": "2026-02-07"}`)

	o, err := parseObserver(raw, 98000001)
	require.NoError(t, err)

	assert.Equal(t, "structure", o.ObserverType)
	assert.Equal(t, time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC), o.LastUpdated)
}

func TestParseObserverRecord(t *testing.T) {
	raw := json.RawMessage(`{"character_id": 90000001, "recorded_corporation_id": 98000001, "type_id": 45492, "quantity": 181000, "last_updated": "2026-02-07"}`)

	rec, err := parseObserverRecord(raw, 17, 1021975535893, 98000001)
	require.NoError(t, err)

	assert.Equal(t, int64(17), rec.ObserverHistoryID)
	assert.Equal(t, int64(45492), rec.TypeID)
	assert.Equal(t, int64(181000), rec.Quantity)
}

func TestParseUpstreamTime_Unparsable(t *testing.T) {
	_, err := parseUpstreamTime("not-a-time")
	assert.Error(t, err)
}
