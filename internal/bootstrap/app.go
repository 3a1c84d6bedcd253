package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"upsell-recommender/internal/ai"
	"upsell-recommender/internal/app"
	"upsell-recommender/internal/cache"
	"upsell-recommender/internal/catalog"
	"upsell-recommender/internal/config"
	"upsell-recommender/internal/logger"
	"upsell-recommender/internal/model"
	mysqlClient "upsell-recommender/internal/platform/mysql"
	rabbitmqClient "upsell-recommender/internal/platform/rabbitmq"
	redisClient "upsell-recommender/internal/platform/redis"
	"upsell-recommender/internal/repository"
	"upsell-recommender/internal/worker"
)

type App struct {
	Config *config.Config
	Log    zerolog.Logger
	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	Recommendations *app.RecommendationService
	Precompute      *app.PrecomputeOrchestrator
	Scheduler       *app.PrecomputeScheduler
	Inline          *app.InlineDispatcher
	Worker          *worker.PrecomputeWorker

	StartedAt time.Time
	stopJobs  context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	a := &App{Config: cfg, Log: log, StartedAt: time.Now()}
	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), mysqlClient.PoolConfig{
		MaxIdle: cfg.MySQL.MaxIdle,
		MaxOpen: cfg.MySQL.MaxOpen,
	})
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(&model.Product{}, &model.TagGraphEdge{}, &model.ProcessTracker{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	a.Redis = redisCli

	if cfg.Precompute.Dispatch == config.DispatchQueue {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.PrecomputeQueue)
		if err != nil {
			return err
		}
		a.MQConn = mqConn
	}
	return nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	oracle, embedder := a.oracle()

	products := repository.NewProductRepository(a.MySQL)
	tagGraph := repository.NewTagGraphRepository(a.MySQL)
	trackers := repository.NewProcessTrackerRepository(a.MySQL)

	selector := app.NewCandidateSelector(products, tagGraph, app.SelectorConfig{
		MaxRelatedTags: cfg.Recommend.MaxRelatedTags,
		PoolSize:       cfg.Recommend.PoolSize,
		MerchantWeight: cfg.Recommend.MerchantWeight,
		PurchaseWeight: cfg.Recommend.PurchaseWeight,
	}, logger.Component("candidate_selector"))
	ranker := app.NewRankingEngine(oracle, app.RankingConfig{
		TopK:                 cfg.Recommend.TopK,
		FinalRecommendations: cfg.Recommend.FinalRecommendations,
		FallbackWindow:       cfg.Recommend.FallbackWindow,
		MerchantWeight:       cfg.Recommend.MerchantWeight,
		PurchaseWeight:       cfg.Recommend.PurchaseWeight,
	}, logger.Component("ranking_engine"))
	a.Recommendations = app.NewRecommendationService(selector, ranker, logger.Component("recommendations"))

	a.Precompute = app.NewPrecomputeOrchestrator(
		cache.NewShopLock(a.Redis, cfg.LockTTL()),
		trackers,
		catalog.NewFileSource(cfg.Precompute.CatalogDir),
		products,
		tagGraph,
		app.NewProductTagger(oracle, embedder, cfg.Recommend.EmbeddingDim, cfg.Precompute.EmbeddingVersion, logger.Component("product_tagger")),
		app.NewScoringEngine(products, app.NewRandomPurchaseSignal(0), logger.Component("scoring")),
		app.NewTagGraphBuilder(oracle, logger.Component("tag_graph_builder")),
		app.PrecomputeConfig{
			BatchSize:  cfg.Precompute.BatchSize,
			BatchDelay: cfg.BatchDelay(),
		},
		logger.Component("precompute"),
	)

	jobCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	a.stopJobs = stop
	a.Inline = app.NewInlineDispatcher(jobCtx, a.Precompute, logger.Component("inline_dispatcher"))

	schedulerLog := logger.Component("scheduler")
	if a.MQConn == nil {
		a.Scheduler = app.NewPrecomputeScheduler(a.Inline, nil, schedulerLog)
		return nil
	}

	a.Scheduler = app.NewPrecomputeScheduler(
		rabbitmqClient.NewJobPublisher(a.MQConn, cfg.RabbitMQ.PrecomputeQueue),
		a.Inline,
		schedulerLog,
	)
	a.Worker = worker.NewPrecomputeWorker(a.MQConn, a.Precompute, cfg.RabbitMQ.PrecomputeQueue, logger.Component("precompute_worker"))
	if err := a.Worker.Start(jobCtx); err != nil {
		return fmt.Errorf("start precompute worker failed: %w", err)
	}
	return nil
}

// oracle builds the configured backend. Without one every oracle call fails
// fast and callers use their deterministic fallbacks.
func (a *App) oracle() (ai.RankingOracle, ai.Embedder) {
	client, err := ai.New(a.Config.LLM)
	if err != nil {
		if errors.Is(err, ai.ErrNoOracleConfigured) {
			a.Log.Warn().Err(err).Msg("running without ranking oracle")
		} else {
			a.Log.Error().Err(err).Msg("build ranking oracle failed")
		}
		return ai.Unavailable(err), nil
	}
	a.Log.Info().Str("backend", string(client.Backend)).Str("model", a.Config.LLM.Model).Msg("ranking oracle ready")
	return client.Oracle, client.Embedder
}

// Close stops job processing, then releases connections. Running precompute
// jobs are cancelled.
func (a *App) Close() error {
	var closeErr error
	if a.stopJobs != nil {
		a.stopJobs()
	}
	if a.Worker != nil {
		a.Worker.Close()
	}
	if a.Inline != nil {
		a.Inline.Wait()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = errors.Join(closeErr, err)
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			closeErr = errors.Join(closeErr, err)
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = errors.Join(closeErr, err)
			}
		}
	}
	return closeErr
}
