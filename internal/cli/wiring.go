package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/config"
	"trivia-quiz-service/internal/events"
	"trivia-quiz-service/internal/infra/memory"
	"trivia-quiz-service/internal/infra/postgres"
	redisstore "trivia-quiz-service/internal/infra/redis"
	"trivia-quiz-service/internal/infra/sqlite"
	"trivia-quiz-service/internal/logging"
	"trivia-quiz-service/internal/opentdb"
)

// runtime holds everything a command needs, built from one Config.
type runtime struct {
	cfg     config.Config
	logger  logging.Logger
	client  *opentdb.Client
	service *app.QuizService

	cancel  context.CancelFunc
	closers []func() error
}

func loadRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newRuntime(ctx, cfg)
}

func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	logger := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Writer: os.Stderr,
	})

	ctx, cancel := context.WithCancel(ctx)
	rt := &runtime{cfg: cfg, logger: logger, cancel: cancel}

	slots, ledger, err := rt.openStorage(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	publisher, err := rt.openPublisher(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.client = opentdb.NewClient(opentdb.Options{
		BaseURL:       cfg.OpenTDB.BaseURL,
		Amount:        cfg.OpenTDB.Amount,
		Difficulty:    cfg.OpenTDB.Difficulty,
		ThrottleDelay: config.Duration(cfg.OpenTDB.ThrottleDelay, opentdb.DefaultThrottleDelay),
		HTTPClient:    &http.Client{Timeout: config.Duration(cfg.OpenTDB.Timeout, 10*time.Second)},
		Logger:        logger,
	})

	cache := app.NewQuestionCache(slots, logger)
	if err := cache.Restore(ctx); err != nil {
		logger.Warn("cache restore failed, starting empty", "error", err)
	}

	opts := app.Options{
		Amount:       cfg.OpenTDB.Amount,
		AdvanceDelay: config.Duration(cfg.Quiz.AdvanceDelay, app.DefaultAdvanceDelay),
		Logger:       logger,
	}
	if publisher != nil {
		opts.Publisher = publisher
	}
	rt.service = app.NewQuizService(rt.client, cache, ledger, opts)
	rt.closers = append(rt.closers, func() error {
		rt.service.Close()
		return nil
	})
	return rt, nil
}

func (rt *runtime) openStorage(ctx context.Context) (app.SlotStore, app.ScoreLedger, error) {
	cfg := rt.cfg
	switch cfg.Storage.Backend {
	case "memory":
		return memory.NewSlotStore(), memory.NewScoreLedger(), nil

	case "sqlite":
		store, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.Storage.SQLitePath, err)
		}
		rt.closers = append(rt.closers, store.Close)
		return store.Slots(), store.Scores(), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
		}
		ttl := config.Duration(cfg.Redis.TTL, 24*time.Hour)
		return redisstore.NewSlotStore(client, ttl), redisstore.NewScoreLedger(client), nil

	case "postgres":
		if _, err := postgres.Migrate(ctx, cfg.Postgres.URL); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, func() error {
			pool.Close()
			return nil
		})
		store := postgres.NewStore(pool)
		return store.Slots(), store.Scores(), nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// openPublisher returns nil when events stay in-process only.
func (rt *runtime) openPublisher(ctx context.Context) (*events.Publisher, error) {
	cfg := rt.cfg
	switch cfg.Events.Publisher {
	case "", "none":
		return nil, nil

	case "gochannel":
		pub, pubSub := events.NewGoChannelPublisher(cfg.Events.Topic, rt.logger)
		rt.closers = append(rt.closers, pub.Close)
		go func() {
			if err := events.Consume(ctx, pubSub, pub.Topic(), events.LogHandler(rt.logger), rt.logger); err != nil {
				rt.logger.Error("event consumer stopped", "error", err)
			}
		}()
		return pub, nil

	case "kafka":
		pub, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Events.KafkaBrokers,
			Topic:   cfg.Events.Topic,
			Logger:  rt.logger,
		})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pub.Close)
		return pub, nil

	default:
		return nil, fmt.Errorf("unknown event publisher %q", cfg.Events.Publisher)
	}
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() error {
	rt.cancel()
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
