package poller

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/moonsync/internal/cache"
	"github.com/varoOP/moonsync/internal/database"
	"github.com/varoOP/moonsync/internal/domain"
	"github.com/varoOP/moonsync/internal/esi"
	"github.com/varoOP/moonsync/internal/events"
	"github.com/varoOP/moonsync/internal/state"
)

type schedulerFixture struct {
	scheduler   *Scheduler
	credentials *database.CredentialsRepo
	cursors     *database.CursorRepo
	structures  *state.StructureState
	extractions *database.ExtractionRepo
	observers   *database.ObserverRepo
	queue       *events.Queue
	sleeps      *[]time.Duration
	now         time.Time
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	db, err := database.NewDB(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	cfg := &domain.Config{
		APIBaseURL:      "https://api.test/latest",
		Datasource:      "tranquility",
		Language:        "en",
		RetryCount:      2,
		RetryBaseDelay:  time.Millisecond,
		LimitPerHost:    4,
		CacheTTL:        time.Hour,
		RefreshInterval: 9 * time.Minute,
	}

	client := esi.NewClient(cfg, cache.NewMemoryStore(time.Hour), zerolog.Nop())
	client.SetHTTPClient(httpClient)

	structureRepo := database.NewStructureRepo(zerolog.Nop(), db)
	extractionRepo := database.NewExtractionRepo(zerolog.Nop(), db)
	observerRepo := database.NewObserverRepo(zerolog.Nop(), db)
	universeRepo := database.NewUniverseRepo(zerolog.Nop(), db)
	queryLogRepo := database.NewQueryLogRepo(zerolog.Nop(), db)
	credentialsRepo := database.NewCredentialsRepo(zerolog.Nop(), db)
	cursorRepo := database.NewCursorRepo(zerolog.Nop(), db)

	queue := events.NewQueue(64, zerolog.Nop())

	poller := NewPoller(
		zerolog.Nop(),
		client,
		NewBackfiller(zerolog.Nop(), client, universeRepo),
		state.NewStructureState(zerolog.Nop(), structureRepo),
		state.NewExtractionState(zerolog.Nop(), extractionRepo),
		state.NewObserverState(zerolog.Nop(), observerRepo),
		structureRepo,
		extractionRepo,
		observerRepo,
		queryLogRepo,
		queue,
	)

	scheduler := NewScheduler(zerolog.Nop(), poller, credentialsRepo, cursorRepo, cfg.RefreshInterval)

	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return now }

	sleeps := &[]time.Duration{}
	scheduler.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}

	return &schedulerFixture{
		scheduler:   scheduler,
		credentials: credentialsRepo,
		cursors:     cursorRepo,
		structures:  state.NewStructureState(zerolog.Nop(), structureRepo),
		extractions: extractionRepo,
		observers:   observerRepo,
		queue:       queue,
		sleeps:      sleeps,
		now:         now,
	}
}

func directorCredentials(now time.Time) domain.PeriodicCredentials {
	return domain.PeriodicCredentials{
		CharacterID:       90000001,
		CorporationID:     testCorporationID,
		IsEnabled:         true,
		IsDirectorRole:    true,
		AccessToken:       "token-1",
		AccessTokenExpiry: now.Add(time.Hour),
		Timestamp:         now,
	}
}

func registerUpstream(t *testing.T, now time.Time) {
	t.Helper()

	arrival := now.Add(-time.Hour)

	httpmock.RegisterResponder("GET", `=~^https://api\.test/latest/corporations/98000001/structures/`,
		httpmock.NewStringResponder(http.StatusOK, fmt.Sprintf(`[{
			"structure_id": %d,
			"corporation_id": %d,
			"system_id": 30000142,
			"type_id": 35835,
			"name": "Perimeter - Mining Outpost",
			"state": "shield_vulnerable",
			"services": [{"name": "Moon Drilling", "state": "online"}]
		}]`, testStructureID, testCorporationID)))

	httpmock.RegisterResponder("GET", `=~^https://api\.test/latest/corporation/98000001/mining/extractions/`,
		httpmock.NewStringResponder(http.StatusOK, fmt.Sprintf(`[{
			"structure_id": %d,
			"moon_id": %d,
			"extraction_start_time": %q,
			"chunk_arrival_time": %q,
			"natural_decay_time": %q
		}]`, testStructureID, testMoonID,
			arrival.Add(-7*24*time.Hour).Format(time.RFC3339),
			arrival.Format(time.RFC3339),
			arrival.Add(3*time.Hour).Format(time.RFC3339))))

	httpmock.RegisterResponder("GET", `=~^https://api\.test/latest/corporation/98000001/mining/observers/\?`,
		httpmock.NewStringResponder(http.StatusOK, fmt.Sprintf(`[{
			"observer_id": %d,
			"observer_type": "structure",
			"last_updated": %q
		}]`, testStructureID, now.Format("2006-01-02"))))

	httpmock.RegisterResponder("GET", fmt.Sprintf(`=~^https://api\.test/latest/corporation/98000001/mining/observers/%d/`, testStructureID),
		httpmock.NewStringResponder(http.StatusOK, fmt.Sprintf(`[{
			"character_id": 90000002,
			"recorded_corporation_id": %d,
			"type_id": 45492,
			"quantity": 181000,
			"last_updated": %q
		}]`, testCorporationID, now.Format("2006-01-02"))))

	// Reference backfills.
	httpmock.RegisterResponder("GET", `=~^https://api\.test/latest/corporations/98000001/\?`,
		httpmock.NewStringResponder(http.StatusOK, `{"name": "Test Mining Co", "ticker": "TMC"}`))
	httpmock.RegisterResponder("GET", `=~^https://api\.test/latest/characters/90000002/`,
		httpmock.NewStringResponder(http.StatusOK, fmt.Sprintf(`{"corporation_id": %d, "name": "Miner Two"}`, testCorporationID)))
	httpmock.RegisterResponder("GET", `=~^https://api\.test/latest/universe/types/35835/`,
		httpmock.NewStringResponder(http.StatusOK, `{"group_id": 1406, "name": "Athanor"}`))
	httpmock.RegisterResponder("GET", `=~^https://api\.test/latest/universe/types/45492/`,
		httpmock.NewStringResponder(http.StatusOK, `{"group_id": 1884, "name": "Zeolites"}`))
	httpmock.RegisterResponder("GET", `=~^https://api\.test/latest/universe/moons/40009087/`,
		httpmock.NewStringResponder(http.StatusOK, `{"system_id": 30000142, "name": "Jita IV - Moon 4"}`))
	httpmock.RegisterResponder("GET", `=~^https://api\.test/latest/universe/systems/30000142/`,
		httpmock.NewStringResponder(http.StatusOK, `{"constellation_id": 20000020, "name": "Jita"}`))
}

func TestScheduler_RunOnce_FullCycle(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.credentials.Upsert(ctx, directorCredentials(f.now)))
	registerUpstream(t, f.now)

	require.NoError(t, f.scheduler.runOnce(ctx))

	// Structure landed in the history store.
	latest, err := f.structures.Latest(ctx, testStructureID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Exists)
	assert.True(t, latest.HasMoonDrill)

	// The extraction is mirrored as scheduled; rolling waits for a change.
	scheduled, err := f.extractions.ScheduledByCorporation(ctx, testCorporationID)
	require.NoError(t, err)
	require.Contains(t, scheduled, testStructureID)
	completed, err := f.extractions.CompletedByStructure(ctx, testStructureID)
	require.NoError(t, err)
	assert.Nil(t, completed)

	// Cursor moved to now.
	cursors, err := f.cursors.RefreshTimes(ctx, []int64{testCorporationID})
	require.NoError(t, err)
	assert.Equal(t, f.now, cursors[testCorporationID])

	var structureChanges, scheduledEvents, completedEvents int
	for _, e := range drainEvents(f.queue) {
		switch e.(type) {
		case domain.StructureStateChanged:
			structureChanges++
		case domain.MoonExtractionScheduled:
			scheduledEvents++
		case domain.MoonExtractionCompleted:
			completedEvents++
		}
	}
	assert.Equal(t, 1, structureChanges)
	assert.Equal(t, 1, scheduledEvents)
	assert.Equal(t, 0, completedEvents)

	assert.Empty(t, *f.sleeps, "a due corporation is polled without sleeping")

	// Next cycle: the upstream no longer reports the extraction, which
	// implies rolling the arrived chunk into a completed record.
	httpmock.RegisterResponder("GET", `=~^https://api\.test/latest/corporation/98000001/mining/extractions/`,
		httpmock.NewStringResponder(http.StatusOK, `[]`))

	later := f.now.Add(10 * time.Minute)
	f.scheduler.now = func() time.Time { return later }

	require.NoError(t, f.scheduler.runOnce(ctx))

	completed, err = f.extractions.CompletedByStructure(ctx, testStructureID)
	require.NoError(t, err)
	require.NotNil(t, completed)
	arrival := f.now.Add(-time.Hour)
	assert.Equal(t, arrival.Add(48*time.Hour), completed.BeltDecayTime, "decay anchors on the arrival time, not the poll time")

	scheduled, err = f.extractions.ScheduledByCorporation(ctx, testCorporationID)
	require.NoError(t, err)
	assert.Empty(t, scheduled)

	completedEvents = 0
	for _, e := range drainEvents(f.queue) {
		if _, ok := e.(domain.MoonExtractionCompleted); ok {
			completedEvents++
		}
	}
	assert.Equal(t, 1, completedEvents)
}

func TestScheduler_RunOnce_SleepsExactlyRemainingDelta(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.credentials.Upsert(ctx, directorCredentials(f.now)))
	require.NoError(t, f.cursors.Set(ctx, domain.RefreshCursor{
		CorporationID: testCorporationID,
		CharacterID:   90000001,
		Timestamp:     f.now.Add(-time.Minute),
	}))

	require.NoError(t, f.scheduler.runOnce(ctx))

	require.Len(t, *f.sleeps, 1)
	assert.Equal(t, 8*time.Minute, (*f.sleeps)[0])
	assert.Zero(t, httpmock.GetTotalCallCount(), "nothing due, nothing fetched")
}

func TestScheduler_RunOnce_NoCredentialsSleepsFullInterval(t *testing.T) {
	f := newSchedulerFixture(t)

	require.NoError(t, f.scheduler.runOnce(context.Background()))

	require.Len(t, *f.sleeps, 1)
	assert.Equal(t, 9*time.Minute, (*f.sleeps)[0])
}

func TestScheduler_OldestCursorWins(t *testing.T) {
	t0 := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	cursors := map[int64]time.Time{
		98000001: t0.Add(time.Minute),
		98000002: t0,
		98000003: t0.Add(2 * time.Minute),
	}

	id, ts := oldestCursor(cursors)
	assert.Equal(t, int64(98000002), id)
	assert.Equal(t, t0, ts)
}

func TestScheduler_TriggerCorporation_UnknownCorporation(t *testing.T) {
	f := newSchedulerFixture(t)

	err := f.scheduler.TriggerCorporation(context.Background(), 99999999)
	assert.Error(t, err)
}
