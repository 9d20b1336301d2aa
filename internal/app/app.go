package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/cache"
	"github.com/varoOP/moonsync/internal/config"
	"github.com/varoOP/moonsync/internal/database"
	"github.com/varoOP/moonsync/internal/domain"
	"github.com/varoOP/moonsync/internal/esi"
	"github.com/varoOP/moonsync/internal/events"
	"github.com/varoOP/moonsync/internal/logger"
	"github.com/varoOP/moonsync/internal/notification"
	"github.com/varoOP/moonsync/internal/poller"
	"github.com/varoOP/moonsync/internal/repository"
	"github.com/varoOP/moonsync/internal/state"
)

// App represents the main application with all dependencies initialized
type App struct {
	log       zerolog.Logger
	config    *domain.Config
	db        *database.DB
	store     cache.Store
	queue     *events.Queue
	scheduler *poller.Scheduler
	notifier  *notification.Service

	extractionRepo *database.ExtractionRepo
}

// NewApp creates a new application instance with all dependencies initialized
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewLoggerWithLevel(cfg.LogLevel)

	db, err := database.NewDB(cfg.DatabaseDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var store cache.Store
	if cfg.RedisAddr != "" {
		redisStore, err := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisDB, log)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store = redisStore
	} else {
		store = cache.NewMemoryStore(cfg.CacheTTL)
	}

	client := esi.NewClient(cfg, store, log)

	structureRepo := database.NewStructureRepo(log, db)
	extractionRepo := database.NewExtractionRepo(log, db)
	observerRepo := database.NewObserverRepo(log, db)
	universeRepo := database.NewUniverseRepo(log, db)
	queryLogRepo := database.NewQueryLogRepo(log, db)
	credentialsRepo := database.NewCredentialsRepo(log, db)
	cursorRepo := database.NewCursorRepo(log, db)

	queue := events.NewQueue(cfg.EventQueueSize, log)

	p := poller.NewPoller(
		log,
		client,
		poller.NewBackfiller(log, client, universeRepo),
		state.NewStructureState(log, structureRepo),
		state.NewExtractionState(log, extractionRepo),
		state.NewObserverState(log, observerRepo),
		structureRepo,
		extractionRepo,
		observerRepo,
		queryLogRepo,
		queue,
	)

	return &App{
		log:            log,
		config:         cfg,
		db:             db,
		store:          store,
		queue:          queue,
		scheduler:      poller.NewScheduler(log, p, credentialsRepo, cursorRepo, cfg.RefreshInterval),
		notifier:       notification.NewService(log, cfg.DiscordWebhookURL, queue.C()),
		extractionRepo: extractionRepo,
	}, nil
}

// Run seeds operator data, starts the notification consumer, and blocks in
// the scheduler loop until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.config.ModifierFile != "" {
		fileRepo := repository.NewFileRepository(a.log)
		count, err := fileRepo.SeedModifiers(ctx, a.config.ModifierFile, a.extractionRepo)
		if err != nil {
			return fmt.Errorf("failed to seed belt lifetime modifiers: %w", err)
		}
		a.log.Info().Int("count", count).Str("path", a.config.ModifierFile).Msg("belt lifetime modifiers loaded")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.notifier.Run(context.Background())
	}()

	a.scheduler.Run(ctx)

	// The scheduler is done; close the queue so the notifier drains what is
	// left and exits.
	a.queue.Close()
	wg.Wait()

	return nil
}

// TriggerCorporation runs one poll cycle for a single corporation outside
// the regular schedule.
func (a *App) TriggerCorporation(ctx context.Context, corporationID int64) error {
	return a.scheduler.TriggerCorporation(ctx, corporationID)
}

// Close releases the database and cache connections.
func (a *App) Close() {
	if closer, ok := a.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close cache store")
		}
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close database")
	}
}
