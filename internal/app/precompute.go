package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"upsell-recommender/internal/cache"
	"upsell-recommender/internal/catalog"
	"upsell-recommender/internal/metrics"
	"upsell-recommender/internal/model"
)

type ShopLocker interface {
	Acquire(ctx context.Context, shopID string) (func(context.Context) error, error)
}

type RunTracker interface {
	Create(ctx context.Context, tracker *model.ProcessTracker) error
	MarkCompleted(ctx context.Context, id uint, productCount int, at time.Time) error
	MarkFailed(ctx context.Context, id uint, cause string, at time.Time) error
	Latest(ctx context.Context, shopID string) (*model.ProcessTracker, error)
}

type CatalogSource interface {
	Load(ctx context.Context, shopID string) ([]catalog.Item, error)
}

type PrecomputeStore interface {
	ScoreStore
	UpsertBatch(ctx context.Context, products []model.Product) error
	DistinctTags(ctx context.Context, shopID string) ([]string, error)
}

type TagGraphWriter interface {
	Upsert(ctx context.Context, graph map[string][]string) (int, error)
}

type PrecomputeConfig struct {
	BatchSize  int
	BatchDelay time.Duration
}

// PrecomputeOrchestrator runs the offline pipeline of a shop: catalog load, tag
// and embedding derivation, persistence, scoring and the tag graph.
type PrecomputeOrchestrator struct {
	lock     ShopLocker
	tracker  RunTracker
	catalog  CatalogSource
	products PrecomputeStore
	graph    TagGraphWriter
	tagger   *ProductTagger
	scoring  *ScoringEngine
	builder  *TagGraphBuilder
	cfg      PrecomputeConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewPrecomputeOrchestrator(
	lock ShopLocker,
	tracker RunTracker,
	source CatalogSource,
	products PrecomputeStore,
	graph TagGraphWriter,
	tagger *ProductTagger,
	scoring *ScoringEngine,
	builder *TagGraphBuilder,
	cfg PrecomputeConfig,
	log zerolog.Logger,
) *PrecomputeOrchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &PrecomputeOrchestrator{
		lock:     lock,
		tracker:  tracker,
		catalog:  source,
		products: products,
		graph:    graph,
		tagger:   tagger,
		scoring:  scoring,
		builder:  builder,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Run executes job while holding the shop lock. The tracker row moves from
// running to completed, or to failed with the returned error.
func (o *PrecomputeOrchestrator) Run(ctx context.Context, job model.PrecomputeJob) error {
	shopID := strings.TrimSpace(job.ShopID)
	if shopID == "" {
		return ErrInvalidInput
	}
	log := o.log.With().Str("shop_id", shopID).Str("job_id", job.JobID).Logger()

	if o.lock != nil {
		release, err := o.lock.Acquire(ctx, shopID)
		if err != nil {
			if errors.Is(err, cache.ErrLockHeld) {
				log.Warn().Msg("precomputation already running, skipping")
				metrics.PrecomputeRuns.WithLabelValues("skipped").Inc()
				return ErrPrecomputeInProgress
			}
			return fmt.Errorf("acquire shop lock failed: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Msg("release shop lock failed")
			}
		}()
	}

	started := o.now()
	run := &model.ProcessTracker{
		ShopID:    shopID,
		JobID:     job.JobID,
		Status:    model.RunStatusRunning,
		StartedAt: started,
		LastRun:   started,
	}
	if err := o.tracker.Create(ctx, run); err != nil {
		return fmt.Errorf("create tracker failed: %w", err)
	}
	log.Info().Bool("force_rebuild", job.ForceRebuild).Msg("precomputation started")

	count, err := o.execute(ctx, shopID, job.ForceRebuild, log)
	finished := o.now()
	if err == nil {
		if markErr := o.tracker.MarkCompleted(ctx, run.ID, count, finished); markErr != nil {
			err = fmt.Errorf("complete tracker failed: %w", markErr)
		}
	}
	if err != nil {
		if markErr := o.tracker.MarkFailed(context.WithoutCancel(ctx), run.ID, err.Error(), finished); markErr != nil {
			log.Error().Err(markErr).Msg("mark tracker failed")
		}
		metrics.PrecomputeRuns.WithLabelValues(model.RunStatusFailed).Inc()
		log.Error().Err(err).Dur("elapsed", finished.Sub(started)).Msg("precomputation failed")
		return err
	}
	metrics.PrecomputeRuns.WithLabelValues(model.RunStatusCompleted).Inc()
	log.Info().Int("products", count).Dur("elapsed", finished.Sub(started)).Msg("precomputation completed")
	return nil
}

func (o *PrecomputeOrchestrator) execute(ctx context.Context, shopID string, force bool, log zerolog.Logger) (int, error) {
	items, err := o.catalog.Load(ctx, shopID)
	if err != nil {
		return 0, fmt.Errorf("load catalog failed: %w", err)
	}
	products := make([]model.Product, 0, len(items))
	for _, it := range items {
		products = append(products, it.ToProduct(shopID))
	}

	reusable := map[int64]model.Product{}
	if !force {
		stored, err := o.products.ListByShop(ctx, shopID)
		if err != nil {
			return 0, fmt.Errorf("list stored products failed: %w", err)
		}
		for _, p := range stored {
			if p.EmbeddingVersion == o.tagger.Version() && p.Tag != "" && p.Tag != model.PlaceholderTag && len(p.Embedding) > 0 {
				reusable[p.ID] = p
			}
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if o.cfg.BatchDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(o.cfg.BatchDelay), 1)
	}
	batches := int(math.Ceil(float64(len(products)) / float64(o.cfg.BatchSize)))
	reused := 0
	for n := 0; n < batches; n++ {
		if err := limiter.Wait(ctx); err != nil {
			return 0, err
		}
		start := n * o.cfg.BatchSize
		end := min(start+o.cfg.BatchSize, len(products))
		batch := products[start:end]

		pending := make([]model.Product, 0, len(batch))
		slots := make([]int, 0, len(batch))
		for i := range batch {
			if prev, ok := reusable[batch[i].ID]; ok {
				batch[i].Tag = prev.Tag
				batch[i].Embedding = prev.Embedding
				batch[i].EmbeddingVersion = prev.EmbeddingVersion
				reused++
				continue
			}
			pending = append(pending, batch[i])
			slots = append(slots, i)
		}
		if len(pending) > 0 {
			if o.tagger.Apply(ctx, pending) {
				log.Warn().Int("batch", n+1).Int("products", len(pending)).Msg("batch used local tag or embedding fallback")
			}
			for j, i := range slots {
				batch[i] = pending[j]
			}
		}

		if err := o.products.UpsertBatch(ctx, batch); err != nil {
			return 0, fmt.Errorf("persist batch %d failed: %w", n+1, err)
		}
		log.Debug().Int("batch", n+1).Int("of", batches).Int("products", len(batch)).Msg("batch persisted")
	}

	if err := o.scoring.ComputeScores(ctx, shopID); err != nil {
		return 0, fmt.Errorf("compute scores failed: %w", err)
	}

	tags, err := o.products.DistinctTags(ctx, shopID)
	if err != nil {
		return 0, fmt.Errorf("collect tags failed: %w", err)
	}
	raw, _ := o.builder.Build(ctx, tags)
	graph := ValidateTagGraph(raw, tags, MaxRelatedPerTag)
	edges, err := o.graph.Upsert(ctx, graph)
	if err != nil {
		return 0, fmt.Errorf("persist tag graph failed: %w", err)
	}

	log.Info().
		Int("products", len(products)).
		Int("reused", reused).
		Int("tags", len(tags)).
		Int("graph_rows", edges).
		Msg("precomputation pipeline finished")
	return len(products), nil
}

// Status returns the latest run of the shop, nil when it never ran.
func (o *PrecomputeOrchestrator) Status(ctx context.Context, shopID string) (*model.ProcessTracker, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return nil, ErrInvalidInput
	}
	return o.tracker.Latest(ctx, shopID)
}

// JobRunner executes one precompute job.
type JobRunner interface {
	Run(ctx context.Context, job model.PrecomputeJob) error
}

// JobDispatcher hands a job over for asynchronous execution.
type JobDispatcher interface {
	Dispatch(ctx context.Context, job model.PrecomputeJob) error
}

// InlineDispatcher runs jobs on goroutines of this process.
type InlineDispatcher struct {
	runner JobRunner
	base   context.Context
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewInlineDispatcher runs jobs under base, so cancelling base stops them.
func NewInlineDispatcher(base context.Context, runner JobRunner, log zerolog.Logger) *InlineDispatcher {
	return &InlineDispatcher{runner: runner, base: base, log: log}
}

func (d *InlineDispatcher) Dispatch(_ context.Context, job model.PrecomputeJob) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.runner.Run(d.base, job); err != nil {
			d.log.Error().Err(err).Str("shop_id", job.ShopID).Str("job_id", job.JobID).Msg("inline precompute job failed")
		}
	}()
	return nil
}

// Wait blocks until every dispatched job returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

// PrecomputeScheduler creates jobs and dispatches them, falling back to the
// inline dispatcher when the primary one refuses the job.
type PrecomputeScheduler struct {
	primary  JobDispatcher
	fallback JobDispatcher
	log      zerolog.Logger
	now      func() time.Time
}

func NewPrecomputeScheduler(primary, fallback JobDispatcher, log zerolog.Logger) *PrecomputeScheduler {
	return &PrecomputeScheduler{primary: primary, fallback: fallback, log: log, now: time.Now}
}

func (s *PrecomputeScheduler) Schedule(ctx context.Context, shopID string, force bool) (model.PrecomputeJob, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return model.PrecomputeJob{}, ErrInvalidInput
	}
	job := model.PrecomputeJob{
		JobID:        uuid.NewString(),
		ShopID:       shopID,
		ForceRebuild: force,
		RequestedAt:  s.now().UTC(),
	}

	err := s.primary.Dispatch(ctx, job)
	if err == nil {
		return job, nil
	}
	if s.fallback == nil {
		return model.PrecomputeJob{}, fmt.Errorf("dispatch precompute job failed: %w", err)
	}
	s.log.Warn().Err(err).Str("shop_id", shopID).Str("job_id", job.JobID).Msg("job dispatch failed, running in process")
	if err := s.fallback.Dispatch(ctx, job); err != nil {
		return model.PrecomputeJob{}, fmt.Errorf("dispatch precompute job failed: %w", err)
	}
	return job, nil
}
