package poller

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/moonsync/internal/database"
	"github.com/varoOP/moonsync/internal/domain"
	"github.com/varoOP/moonsync/internal/events"
)

const (
	testCorporationID = int64(98000001)
	testStructureID   = int64(1021975535893)
	testMoonID        = int64(40009087)
)

type rollFixture struct {
	poller *Poller
	repo   *database.ExtractionRepo
	queue  *events.Queue
}

func newRollFixture(t *testing.T) *rollFixture {
	t.Helper()

	db, err := database.NewDB(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	universe := database.NewUniverseRepo(zerolog.Nop(), db)
	require.NoError(t, universe.InsertCorporation(ctx, domain.Corporation{CorporationID: testCorporationID, Name: "Test Mining Co", Ticker: "TMC"}))
	require.NoError(t, universe.InsertSystem(ctx, domain.System{SystemID: 30000142, ConstellationID: 20000020, Name: "Jita"}))
	require.NoError(t, universe.InsertMoon(ctx, domain.Moon{MoonID: testMoonID, SystemID: 30000142, Name: "Jita IV - Moon 4"}))

	repo := database.NewExtractionRepo(zerolog.Nop(), db)
	queue := events.NewQueue(16, zerolog.Nop())

	return &rollFixture{
		poller: &Poller{
			log:            zerolog.Nop(),
			extractionRepo: repo,
			queue:          queue,
		},
		repo:  repo,
		queue: queue,
	}
}

func scheduledAt(arrival time.Time) domain.ScheduledExtraction {
	return domain.ScheduledExtraction{
		StructureID:         testStructureID,
		CharacterID:         90000001,
		CorporationID:       testCorporationID,
		MoonID:              testMoonID,
		ExtractionStartTime: arrival.Add(-7 * 24 * time.Hour),
		ChunkArrivalTime:    arrival,
		NaturalDecayTime:    arrival.Add(3 * time.Hour),
		Timestamp:           arrival.Add(-time.Hour),
	}
}

func drainEvents(q *events.Queue) []domain.Event {
	var got []domain.Event
	for {
		select {
		case e := <-q.C():
			got = append(got, e)
		default:
			return got
		}
	}
}

func TestRollExtractions_DecayEstimateUsesModifier(t *testing.T) {
	f := newRollFixture(t)
	ctx := context.Background()

	arrival := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)
	now := arrival.Add(time.Hour)

	require.NoError(t, f.repo.UpsertScheduled(ctx, scheduledAt(arrival)))
	require.NoError(t, f.repo.UpsertModifier(ctx, domain.StructureModifier{StructureID: testStructureID, BeltLifetimeModifier: 1.5}))

	err := f.poller.rollExtractions(ctx, now, testCorporationID, map[int64]struct{}{testStructureID: {}})
	require.NoError(t, err)

	completed, err := f.repo.CompletedByStructure(ctx, testStructureID)
	require.NoError(t, err)
	require.NotNil(t, completed)

	// min(now, arrival) + 2 days * 1.5 = arrival + 72h
	assert.Equal(t, arrival.Add(72*time.Hour), completed.BeltDecayTime)

	scheduled, err := f.repo.ScheduledByCorporation(ctx, testCorporationID)
	require.NoError(t, err)
	assert.Empty(t, scheduled, "scheduled row is migrated away")

	got := drainEvents(f.queue)
	require.Len(t, got, 1)
	completedEvent := got[0].(domain.MoonExtractionCompleted)
	assert.Equal(t, arrival.Add(72*time.Hour), completedEvent.BeltDecayTime)
}

func TestRollExtractions_DefaultModifier(t *testing.T) {
	f := newRollFixture(t)
	ctx := context.Background()

	arrival := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)
	now := arrival.Add(time.Hour)

	require.NoError(t, f.repo.UpsertScheduled(ctx, scheduledAt(arrival)))

	require.NoError(t, f.poller.rollExtractions(ctx, now, testCorporationID, map[int64]struct{}{testStructureID: {}}))

	completed, err := f.repo.CompletedByStructure(ctx, testStructureID)
	require.NoError(t, err)
	require.NotNil(t, completed)
	assert.Equal(t, arrival.Add(48*time.Hour), completed.BeltDecayTime)
}

func TestRollExtractions_CancelledBeforeArrival(t *testing.T) {
	f := newRollFixture(t)
	ctx := context.Background()

	arrival := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)
	now := arrival.Add(-time.Hour)

	require.NoError(t, f.repo.UpsertScheduled(ctx, scheduledAt(arrival)))

	require.NoError(t, f.poller.rollExtractions(ctx, now, testCorporationID, map[int64]struct{}{testStructureID: {}}))

	completed, err := f.repo.CompletedByStructure(ctx, testStructureID)
	require.NoError(t, err)
	assert.Nil(t, completed, "cancelled extraction never completes")

	scheduled, err := f.repo.ScheduledByCorporation(ctx, testCorporationID)
	require.NoError(t, err)
	assert.Empty(t, scheduled)

	assert.Empty(t, drainEvents(f.queue))
}

func TestRollExtractions_AlreadyMigratedIsSkipped(t *testing.T) {
	f := newRollFixture(t)
	ctx := context.Background()

	arrival := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)
	now := arrival.Add(time.Hour)
	sched := scheduledAt(arrival)

	require.NoError(t, f.repo.UpsertScheduled(ctx, sched))
	require.NoError(t, f.repo.UpsertCompleted(ctx, domain.CompletedExtraction{
		StructureID:         sched.StructureID,
		CharacterID:         sched.CharacterID,
		CorporationID:       sched.CorporationID,
		MoonID:              sched.MoonID,
		ExtractionStartTime: sched.ExtractionStartTime,
		ChunkArrivalTime:    sched.ChunkArrivalTime,
		NaturalDecayTime:    sched.NaturalDecayTime,
		BeltDecayTime:       arrival.Add(48 * time.Hour),
		Timestamp:           arrival,
	}))

	require.NoError(t, f.poller.rollExtractions(ctx, now, testCorporationID, map[int64]struct{}{testStructureID: {}}))

	assert.Empty(t, drainEvents(f.queue), "same chunk arrival means already migrated")

	completed, err := f.repo.CompletedByStructure(ctx, testStructureID)
	require.NoError(t, err)
	require.NotNil(t, completed)
	assert.Equal(t, arrival.Add(48*time.Hour), completed.BeltDecayTime)
}

func TestRollExtractions_StaleCompletedIsReplaced(t *testing.T) {
	f := newRollFixture(t)
	ctx := context.Background()

	oldArrival := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	arrival := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)
	now := arrival.Add(time.Hour)
	sched := scheduledAt(arrival)

	require.NoError(t, f.repo.UpsertScheduled(ctx, sched))
	require.NoError(t, f.repo.UpsertCompleted(ctx, domain.CompletedExtraction{
		StructureID:         sched.StructureID,
		CharacterID:         sched.CharacterID,
		CorporationID:       sched.CorporationID,
		MoonID:              sched.MoonID,
		ExtractionStartTime: oldArrival.Add(-7 * 24 * time.Hour),
		ChunkArrivalTime:    oldArrival,
		NaturalDecayTime:    oldArrival.Add(3 * time.Hour),
		BeltDecayTime:       oldArrival.Add(48 * time.Hour),
		Timestamp:           oldArrival,
	}))

	require.NoError(t, f.poller.rollExtractions(ctx, now, testCorporationID, map[int64]struct{}{testStructureID: {}}))

	completed, err := f.repo.CompletedByStructure(ctx, testStructureID)
	require.NoError(t, err)
	require.NotNil(t, completed)
	assert.Equal(t, arrival, completed.ChunkArrivalTime)

	require.Len(t, drainEvents(f.queue), 1)
}

func TestRollExtractions_UntrackedStructureIsIgnored(t *testing.T) {
	f := newRollFixture(t)
	ctx := context.Background()

	now := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.poller.rollExtractions(ctx, now, testCorporationID, map[int64]struct{}{testStructureID: {}}))

	completed, err := f.repo.CompletedByStructure(ctx, testStructureID)
	require.NoError(t, err)
	assert.Nil(t, completed)
}
