package app

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"upsell-recommender/internal/metrics"
	"upsell-recommender/internal/model"
	"upsell-recommender/internal/repository"
)

type CandidateStore interface {
	ListByIDs(ctx context.Context, shopID string, ids []int64) ([]model.Product, error)
	FindCandidates(ctx context.Context, q repository.CandidateQuery) ([]model.Product, error)
}

type TagGraphReader interface {
	ChildrenOf(ctx context.Context, tags []string) (map[string][]string, error)
}

type SelectorConfig struct {
	MaxRelatedTags int
	PoolSize       int
	MerchantWeight float64
	PurchaseWeight float64
}

// Selection is the outcome of candidate selection for one request.
type Selection struct {
	Sources     []model.Product
	RelatedTags []string
	Candidates  []model.Product
}

type CandidateSelector struct {
	products CandidateStore
	graph    TagGraphReader
	cfg      SelectorConfig
	log      zerolog.Logger
}

func NewCandidateSelector(products CandidateStore, graph TagGraphReader, cfg SelectorConfig, log zerolog.Logger) *CandidateSelector {
	if cfg.MaxRelatedTags <= 0 {
		cfg.MaxRelatedTags = 50
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 80
	}
	return &CandidateSelector{products: products, graph: graph, cfg: cfg, log: log}
}

// SelectCandidates resolves the source products, expands their primary tags
// through the tag graph and returns eligible products carrying a related tag,
// best composite score first. An empty candidate list is not an error.
func (s *CandidateSelector) SelectCandidates(ctx context.Context, shopID string, sourceIDs []int64, poolSize int) (*Selection, error) {
	ids := uniqueIDs(sourceIDs)
	if shopID == "" || len(ids) == 0 {
		return nil, ErrInvalidInput
	}
	if poolSize <= 0 {
		poolSize = s.cfg.PoolSize
	}

	sources, err := s.products.ListByIDs(ctx, shopID, ids)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, ErrNoSourceProducts
	}
	selection := &Selection{Sources: sources}

	sourceTags := distinctTags(sources)
	children, err := s.graph.ChildrenOf(ctx, sourceTags)
	if err != nil {
		return nil, err
	}
	selection.RelatedTags = expandRelated(sourceTags, children, s.cfg.MaxRelatedTags)
	if len(selection.RelatedTags) == 0 {
		s.log.Info().Str("shop_id", shopID).Strs("source_tags", sourceTags).Msg("no related tags for source products")
		metrics.CandidatePoolSize.Observe(0)
		return selection, nil
	}

	found, err := s.products.FindCandidates(ctx, repository.CandidateQuery{
		ShopID:         shopID,
		Tags:           selection.RelatedTags,
		ExcludeIDs:     ids,
		MerchantWeight: s.cfg.MerchantWeight,
		PurchaseWeight: s.cfg.PurchaseWeight,
		Limit:          poolSize,
	})
	if err != nil {
		return nil, err
	}
	selection.Candidates = s.admit(found, ids, selection.RelatedTags, poolSize)
	metrics.CandidatePoolSize.Observe(float64(len(selection.Candidates)))
	return selection, nil
}

// admit re-checks the storage filter and ordering so the pool invariants hold
// whatever the store returned.
func (s *CandidateSelector) admit(found []model.Product, sourceIDs []int64, related []string, poolSize int) []model.Product {
	excluded := make(map[int64]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		excluded[id] = struct{}{}
	}
	allowed := make(map[string]struct{}, len(related))
	for _, t := range related {
		allowed[t] = struct{}{}
	}

	pool := make([]model.Product, 0, len(found))
	for _, p := range found {
		if _, skip := excluded[p.ID]; skip {
			continue
		}
		if _, ok := allowed[p.Tag]; !ok || !p.IsEligible() {
			continue
		}
		excluded[p.ID] = struct{}{}
		pool = append(pool, p)
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return CompositeScore(pool[i], s.cfg.MerchantWeight, s.cfg.PurchaseWeight) >
			CompositeScore(pool[j], s.cfg.MerchantWeight, s.cfg.PurchaseWeight)
	})
	if len(pool) > poolSize {
		pool = pool[:poolSize]
	}
	return pool
}

// expandRelated unions the related tags of every source tag in discovery order,
// without duplicates, stopping at limit.
func expandRelated(sourceTags []string, children map[string][]string, limit int) []string {
	seen := make(map[string]struct{})
	related := make([]string, 0, limit)
	for _, tag := range sourceTags {
		for _, child := range children[tag] {
			if _, dup := seen[child]; dup || child == "" {
				continue
			}
			seen[child] = struct{}{}
			related = append(related, child)
			if len(related) == limit {
				return related
			}
		}
	}
	return related
}

func distinctTags(products []model.Product) []string {
	seen := make(map[string]struct{}, len(products))
	tags := make([]string, 0, len(products))
	for _, p := range products {
		if p.Tag == "" {
			continue
		}
		if _, dup := seen[p.Tag]; dup {
			continue
		}
		seen[p.Tag] = struct{}{}
		tags = append(tags, p.Tag)
	}
	return tags
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
