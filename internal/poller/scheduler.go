package poller

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/database"
	"github.com/varoOP/moonsync/internal/domain"
)

// Scheduler staggers refreshes across corporations from a single loop:
// pick the corporation with the oldest cursor, sleep exactly the remaining
// interval when nothing is due, poll, record the cursor. A failing cycle is
// contained to its corporation.
type Scheduler struct {
	log             zerolog.Logger
	poller          *Poller
	credentials     *database.CredentialsRepo
	cursors         *database.CursorRepo
	refreshInterval time.Duration

	// Manual triggers run concurrently with the background loop, so polls
	// for the same corporation are serialized per corporation.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex

	// now and sleep are swapped out in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewScheduler(log zerolog.Logger, poller *Poller, credentials *database.CredentialsRepo, cursors *database.CursorRepo, refreshInterval time.Duration) *Scheduler {
	return &Scheduler{
		log:             log.With().Str("module", "scheduler").Logger(),
		poller:          poller,
		credentials:     credentials,
		cursors:         cursors,
		refreshInterval: refreshInterval,
		locks:           make(map[int64]*sync.Mutex),
		now:             func() time.Time { return time.Now().UTC() },
		sleep:           sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run loops until the context is cancelled. Errors inside an iteration are
// logged and never abort the loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Dur("refresh_interval", s.refreshInterval).Msg("scheduler started")

	for {
		if err := s.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				s.log.Info().Msg("scheduler stopped")
				return
			}
			s.log.Error().Err(err).Msg("scheduler iteration failed")
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	now := s.now()

	byCorporation, err := s.selectCredentials(ctx, now)
	if err != nil {
		return err
	}
	if len(byCorporation) == 0 {
		s.log.Debug().Msg("no usable credentials")
		return s.sleep(ctx, s.refreshInterval)
	}

	corporationIDs := make([]int64, 0, len(byCorporation))
	for id := range byCorporation {
		corporationIDs = append(corporationIDs, id)
	}

	cursors, err := s.cursors.RefreshTimes(ctx, corporationIDs)
	if err != nil {
		return err
	}

	oldestID, oldestTS := oldestCursor(cursors)

	if remaining := oldestTS.Add(s.refreshInterval).Sub(now); remaining > 0 {
		s.log.Debug().Int64("corporation_id", oldestID).Dur("remaining", remaining).Msg("nothing due")
		return s.sleep(ctx, remaining)
	}

	for corporationID, ts := range cursors {
		if ts.Add(s.refreshInterval).After(now) {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cred := byCorporation[corporationID]
		s.log.Info().Int64("corporation_id", corporationID).Int64("character_id", cred.CharacterID).Msg("refreshing corporation")

		s.runCycle(ctx, now, cred)

		cursor := domain.RefreshCursor{CorporationID: corporationID, CharacterID: cred.CharacterID, Timestamp: now}
		if err := s.cursors.Set(ctx, cursor); err != nil {
			s.log.Error().Err(err).Int64("corporation_id", corporationID).Msg("cursor write failed")
		}
	}

	return nil
}

// runCycle serializes with manual triggers for the same corporation and
// contains panics so one corporation cannot take down the loop.
func (s *Scheduler) runCycle(ctx context.Context, now time.Time, cred domain.PeriodicCredentials) {
	lock := s.corporationLock(cred.CorporationID)
	lock.Lock()
	defer lock.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Int64("corporation_id", cred.CorporationID).Msg("cycle panicked")
		}
	}()

	s.poller.RunCorporation(ctx, now, cred)
}

// TriggerCorporation polls one corporation immediately, outside the
// background cadence. It picks the most capable stored credential and does
// not touch the refresh cursor.
func (s *Scheduler) TriggerCorporation(ctx context.Context, corporationID int64) error {
	now := s.now()

	byCorporation, err := s.selectCredentials(ctx, now)
	if err != nil {
		return err
	}

	cred, ok := byCorporation[corporationID]
	if !ok {
		return errors.Errorf("no usable credentials for corporation %d", corporationID)
	}

	s.runCycle(ctx, now, cred)
	return nil
}

// selectCredentials picks the most capable valid credential per
// corporation. The repository orders by role then expiry, so the first hit
// per corporation wins.
func (s *Scheduler) selectCredentials(ctx context.Context, now time.Time) (map[int64]domain.PeriodicCredentials, error) {
	available, err := s.credentials.Available(ctx, now)
	if err != nil {
		return nil, err
	}

	byCorporation := make(map[int64]domain.PeriodicCredentials)
	for _, cred := range available {
		if _, ok := byCorporation[cred.CorporationID]; !ok {
			byCorporation[cred.CorporationID] = cred
		}
	}

	return byCorporation, nil
}

func (s *Scheduler) corporationLock(corporationID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[corporationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[corporationID] = lock
	}
	return lock
}

// oldestCursor returns the corporation whose cursor is oldest.
func oldestCursor(cursors map[int64]time.Time) (int64, time.Time) {
	var (
		oldestID int64
		oldestTS time.Time
		first    = true
	)
	for id, ts := range cursors {
		if first || ts.Before(oldestTS) {
			oldestID, oldestTS = id, ts
			first = false
		}
	}
	return oldestID, oldestTS
}
