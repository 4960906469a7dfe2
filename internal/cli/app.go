package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/coordinator"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/crawler"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/statistics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/storage/memstore"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/textanalyzer"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/redis"
)

const snapshotInterval = time.Minute

// registerer receives the process metrics.
var registerer prometheus.Registerer = prometheus.DefaultRegisterer

// app holds the assembled components of one process.
type app struct {
	cfg         *config.Config
	db          *database.Client
	store       storage.IndexStore
	redis       *pkgredis.Client
	cache       *cache.QueryCache
	aggregator  *analytics.Aggregator
	collector   *analytics.Collector
	consumer    *kafka.Consumer
	snapshots   *analytics.SnapshotStore
	coordinator *coordinator.Coordinator
	engine      *search.Engine
	searcher    cache.Searcher
	stats       *statistics.Service
	health      *health.Checker
	metrics     *metrics.Metrics

	closers []func() error
}

// newApp connects the storage, cache and analytics backends selected by cfg
// and wires the core on top of them. Background loops run until ctx is done.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:        cfg,
		metrics:    metrics.NewWithRegistry(registerer),
		aggregator: analytics.NewAggregator(),
		health:     health.NewChecker(),
	}
	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}
	a.openRedis(ctx)
	tracker := a.startAnalytics(ctx)
	if a.redis != nil {
		a.cache = cache.New(a.redis, cfg.Redis, a.metrics, tracker)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	analyzer, err := textanalyzer.NewRussian()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("initializing text analyzer: %w", err)
	}
	ix := indexer.New(a.store, analyzer, a.metrics, tracker)
	fetcher := crawler.NewFetcher(cfg.Crawler, a.metrics)
	opts := coordinator.Options{Tracker: tracker, Metrics: a.metrics}
	if a.cache != nil {
		opts.Cache = a.cache
	}
	a.coordinator = coordinator.New(cfg.Sites, a.store, crawler.New(a.store, fetcher, ix, cfg.Crawler), fetcher, ix, opts)

	a.engine = search.New(a.store, analyzer, cfg.Sites, cfg.Search, a.metrics, tracker)
	a.searcher = a.engine
	if a.cache != nil {
		a.searcher = a.cache.Wrap(a.engine)
	}
	a.stats = statistics.New(a.store, cfg.Sites, a.coordinator)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if a.cfg.Database.Driver == config.DriverMemory {
		a.store = memstore.New()
		slog.Warn("using in-memory index, data is lost on exit")
		return nil
	}
	db, err := database.New(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	a.health.Register("database", health.Pinger(db.Ping, true))

	sqlStore := storage.NewSQLStore(db)
	if err := sqlStore.Migrate(ctx); err != nil {
		return err
	}
	a.store = sqlStore
	a.snapshots = analytics.NewSnapshotStore(db)
	if err := a.snapshots.Migrate(ctx); err != nil {
		return err
	}
	slog.Info("database ready", "driver", a.cfg.Database.Driver)
	return nil
}

// openRedis leaves the cache off when Redis is disabled or unreachable.
func (a *app) openRedis(ctx context.Context) {
	if !a.cfg.Redis.Enabled {
		return
	}
	client, err := pkgredis.NewClient(ctx, a.cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
		return
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	a.health.Register("redis", health.Pinger(client.Ping, false))
}

// startAnalytics returns the tracker the core reports to. With Kafka the
// events travel through the topics and come back to the aggregator through
// a consumer; without it the aggregator is fed directly.
func (a *app) startAnalytics(ctx context.Context) analytics.Tracker {
	if a.snapshots != nil {
		if latest, err := a.snapshots.Latest(ctx); err != nil {
			slog.Warn("could not restore analytics snapshot", "error", err)
		} else if latest != nil {
			a.aggregator.Restore(*latest)
		}
		go a.snapshots.RunSnapshots(ctx, a.aggregator, snapshotInterval)
	}

	var tracker analytics.Tracker = a.aggregator
	if a.cfg.Kafka.Enabled {
		topics := a.cfg.Kafka.Topics
		searchProducer := kafka.NewProducer(a.cfg.Kafka, topics.SearchEvents)
		indexProducer := kafka.NewProducer(a.cfg.Kafka, topics.IndexEvents)
		a.closers = append(a.closers, searchProducer.Close, indexProducer.Close)

		a.collector = analytics.NewCollector(searchProducer, indexProducer, analytics.CollectorConfig{})
		a.collector.Start(ctx)
		a.consumer = kafka.NewConsumer(a.cfg.Kafka, []string{topics.SearchEvents, topics.IndexEvents}, a.aggregator.HandleMessage())
		a.closers = append(a.closers, a.consumer.Close)
		go func() {
			if err := a.consumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()
		tracker = a.collector
		slog.Info("analytics over kafka", "brokers", a.cfg.Kafka.Brokers)
	}
	return tracker
}

// close stops the coordinator and releases every backend in reverse order of
// opening.
func (a *app) close() error {
	var errs []error
	if a.coordinator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		if err := a.coordinator.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if a.collector != nil {
		a.collector.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
