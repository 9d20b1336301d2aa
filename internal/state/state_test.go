package state

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/moonsync/internal/database"
	"github.com/varoOP/moonsync/internal/domain"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewDB(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func testSnapshot() domain.StructureSnapshot {
	return domain.StructureSnapshot{
		StructureID:   1021975535893,
		CharacterID:   90000001,
		CorporationID: 98000001,
		SystemID:      30000142,
		TypeID:        35835,
		Name:          "Perimeter - Mining Outpost",
		State:         "shield_vulnerable",
		FuelExpires:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		HasMoonDrill:  true,
	}
}

func TestStructureState_SetIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	state := NewStructureState(zerolog.Nop(), database.NewStructureRepo(zerolog.Nop(), db))
	ctx := context.Background()
	now := time.Now().UTC()
	snap := testSnapshot()

	changed, err := state.Set(ctx, snap.StructureID, snap, true, now)
	require.NoError(t, err)
	assert.True(t, changed, "first sighting must write a row")

	changed, err = state.Set(ctx, snap.StructureID, snap, true, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed, "identical snapshot must not write")

	snap.State = "armor_reinforce"
	changed, err = state.Set(ctx, snap.StructureID, snap, true, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, changed, "state transition must write a row")
}

func TestStructureState_VolatileKeysAreSkipped(t *testing.T) {
	db := newTestDB(t)
	state := NewStructureState(zerolog.Nop(), database.NewStructureRepo(zerolog.Nop(), db))
	ctx := context.Background()
	now := time.Now().UTC()
	snap := testSnapshot()

	_, err := state.Set(ctx, snap.StructureID, snap, true, now)
	require.NoError(t, err)

	// A different character polling the same corporation must not register
	// as a change.
	snap.CharacterID = 90000002
	changed, err := state.Set(ctx, snap.StructureID, snap, true, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStructureState_TombstoneOnDisappearance(t *testing.T) {
	db := newTestDB(t)
	state := NewStructureState(zerolog.Nop(), database.NewStructureRepo(zerolog.Nop(), db))
	ctx := context.Background()
	now := time.Now().UTC()
	snap := testSnapshot()

	_, err := state.Set(ctx, snap.StructureID, snap, true, now)
	require.NoError(t, err)

	ids, err := state.IDs(ctx, snap.CorporationID)
	require.NoError(t, err)
	assert.Contains(t, ids, snap.StructureID)

	changed, err := state.Set(ctx, snap.StructureID, domain.StructureSnapshot{}, false, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	latest, err := state.Latest(ctx, snap.StructureID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.False(t, latest.Exists)
	assert.Equal(t, snap.Name, latest.Name, "tombstone keeps the prior fields")

	ids, err = state.IDs(ctx, snap.CorporationID)
	require.NoError(t, err)
	assert.NotContains(t, ids, snap.StructureID)

	// A second disappearance is a no-op.
	changed, err = state.Set(ctx, snap.StructureID, domain.StructureSnapshot{}, false, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStructureState_ReappearanceWritesRow(t *testing.T) {
	db := newTestDB(t)
	state := NewStructureState(zerolog.Nop(), database.NewStructureRepo(zerolog.Nop(), db))
	ctx := context.Background()
	now := time.Now().UTC()
	snap := testSnapshot()

	_, err := state.Set(ctx, snap.StructureID, snap, true, now)
	require.NoError(t, err)
	_, err = state.Set(ctx, snap.StructureID, domain.StructureSnapshot{}, false, now.Add(time.Minute))
	require.NoError(t, err)

	changed, err := state.Set(ctx, snap.StructureID, snap, true, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, changed, "reappearing structure must rejoin the live set")

	ids, err := state.IDs(ctx, snap.CorporationID)
	require.NoError(t, err)
	assert.Contains(t, ids, snap.StructureID)
}

func testExtraction(now time.Time) domain.ScheduledExtraction {
	return domain.ScheduledExtraction{
		StructureID:         1021975535893,
		CharacterID:         90000001,
		CorporationID:       98000001,
		MoonID:              40009087,
		ExtractionStartTime: now.Add(-6 * 24 * time.Hour),
		ChunkArrivalTime:    now.Add(24 * time.Hour),
		NaturalDecayTime:    now.Add(27 * time.Hour),
		Timestamp:           now,
	}
}

func TestExtractionState_AddDetectsMaterialChange(t *testing.T) {
	db := newTestDB(t)
	state := NewExtractionState(zerolog.Nop(), database.NewExtractionRepo(zerolog.Nop(), db))
	ctx := context.Background()
	now := time.Now().UTC()
	e := testExtraction(now)

	changed, err := state.Add(ctx, e.StructureID, e, true, now)
	require.NoError(t, err)
	assert.True(t, changed, "first-seen extraction is a change")

	changed, err = state.Add(ctx, e.StructureID, e, true, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	// A re-fired drill moves the arrival time.
	e.ChunkArrivalTime = e.ChunkArrivalTime.Add(7 * 24 * time.Hour)
	changed, err = state.Add(ctx, e.StructureID, e, true, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	// Add never tombstones.
	changed, err = state.Add(ctx, e.StructureID, domain.ScheduledExtraction{}, false, now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	latest, err := state.Latest(ctx, e.StructureID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Exists)
}

func TestExtractionState_SetTombstones(t *testing.T) {
	db := newTestDB(t)
	state := NewExtractionState(zerolog.Nop(), database.NewExtractionRepo(zerolog.Nop(), db))
	ctx := context.Background()
	now := time.Now().UTC()
	e := testExtraction(now)

	_, err := state.Set(ctx, e.StructureID, e, true, now)
	require.NoError(t, err)

	changed, err := state.Set(ctx, e.StructureID, domain.ScheduledExtraction{}, false, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	ids, err := state.IDs(ctx, e.CorporationID)
	require.NoError(t, err)
	assert.NotContains(t, ids, e.StructureID)
}

func TestObserverState_EveryFieldParticipates(t *testing.T) {
	db := newTestDB(t)
	state := NewObserverState(zerolog.Nop(), database.NewObserverRepo(zerolog.Nop(), db))
	ctx := context.Background()
	now := time.Now().UTC()

	o := domain.Observer{
		ObserverID:    1021975535893,
		CorporationID: 98000001,
		ObserverType:  "structure",
		LastUpdated:   now.Add(-time.Hour),
	}

	id, err := state.Set(ctx, o, true, now)
	require.NoError(t, err)
	assert.NotZero(t, id)

	id, err = state.Set(ctx, o, true, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, id, "identical observer must not write")

	// last_updated alone is a change for observers.
	o.LastUpdated = now
	id, err = state.Set(ctx, o, true, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.NotZero(t, id)

	ids, err := state.IDs(ctx, o.CorporationID)
	require.NoError(t, err)
	assert.Contains(t, ids, o.ObserverID)

	id, err = state.Set(ctx, o, false, now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.NotZero(t, id)

	ids, err = state.IDs(ctx, o.CorporationID)
	require.NoError(t, err)
	assert.NotContains(t, ids, o.ObserverID)
}
