package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"upsell-recommender/internal/cache"
	"upsell-recommender/internal/catalog"
	"upsell-recommender/internal/model"
	"upsell-recommender/internal/repository"
)

type fakeProductStore struct {
	mu       sync.Mutex
	products map[int64]model.Product
	upserts  int
}

func newFakeProductStore(products ...model.Product) *fakeProductStore {
	s := &fakeProductStore{products: map[int64]model.Product{}}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *fakeProductStore) sorted(shopID string) []model.Product {
	out := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.ShopID == shopID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeProductStore) ListByIDs(_ context.Context, shopID string, ids []int64) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.ShopID == shopID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeProductStore) FindCandidates(_ context.Context, q repository.CandidateQuery) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := map[string]bool{}
	for _, t := range q.Tags {
		tags[t] = true
	}
	excluded := map[int64]bool{}
	for _, id := range q.ExcludeIDs {
		excluded[id] = true
	}
	var out []model.Product
	for _, p := range s.sorted(q.ShopID) {
		if p.IsEligible() && tags[p.Tag] && !excluded[p.ID] {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return CompositeScore(out[i], q.MerchantWeight, q.PurchaseWeight) > CompositeScore(out[j], q.MerchantWeight, q.PurchaseWeight)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *fakeProductStore) ListByShop(_ context.Context, shopID string) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(shopID), nil
}

func (s *fakeProductStore) UpdateScores(_ context.Context, _ string, updates []repository.ScoreUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		p := s.products[u.ID]
		p.MerchantScore = u.MerchantScore
		p.PurchaseScore = u.PurchaseScore
		s.products[u.ID] = p
	}
	return nil
}

func (s *fakeProductStore) UpsertBatch(_ context.Context, products []model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	for _, p := range products {
		s.products[p.ID] = p
	}
	return nil
}

func (s *fakeProductStore) DistinctTags(_ context.Context, shopID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var tags []string
	for _, p := range s.sorted(shopID) {
		if p.Tag == "" || p.Tag == model.PlaceholderTag || seen[p.Tag] {
			continue
		}
		seen[p.Tag] = true
		tags = append(tags, p.Tag)
	}
	sort.Strings(tags)
	return tags, nil
}

func (s *fakeProductStore) get(id int64) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

type fakeTagGraph struct {
	mu    sync.Mutex
	edges map[string][]string
}

func newFakeTagGraph(edges map[string][]string) *fakeTagGraph {
	if edges == nil {
		edges = map[string][]string{}
	}
	return &fakeTagGraph{edges: edges}
}

func (g *fakeTagGraph) ChildrenOf(_ context.Context, tags []string) (map[string][]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := map[string][]string{}
	for _, t := range tags {
		if children, ok := g.edges[t]; ok {
			out[t] = children
		}
	}
	return out, nil
}

func (g *fakeTagGraph) Upsert(_ context.Context, graph map[string][]string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for tag, children := range graph {
		g.edges[tag] = children
	}
	return len(graph), nil
}

type fakeTracker struct {
	mu   sync.Mutex
	rows []model.ProcessTracker
	// history records every status a row went through, in order.
	history []string
	// completeErr, when set, is returned by MarkCompleted without touching the row.
	completeErr error
}

func (t *fakeTracker) Create(_ context.Context, tracker *model.ProcessTracker) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tracker.ID = uint(len(t.rows) + 1)
	t.rows = append(t.rows, *tracker)
	t.history = append(t.history, tracker.Status)
	return nil
}

func (t *fakeTracker) finish(id uint, status string, apply func(*model.ProcessTracker)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	row := &t.rows[id-1]
	if row.Status != model.RunStatusRunning {
		return repository.ErrTrackerNotRunning
	}
	row.Status = status
	apply(row)
	t.history = append(t.history, status)
	return nil
}

func (t *fakeTracker) MarkCompleted(_ context.Context, id uint, productCount int, at time.Time) error {
	if t.completeErr != nil {
		return t.completeErr
	}
	return t.finish(id, model.RunStatusCompleted, func(r *model.ProcessTracker) {
		r.ProductCount = productCount
		r.CompletedAt = &at
		r.LastRun = at
	})
}

func (t *fakeTracker) MarkFailed(_ context.Context, id uint, cause string, at time.Time) error {
	return t.finish(id, model.RunStatusFailed, func(r *model.ProcessTracker) {
		r.Error = cause
		r.LastRun = at
	})
}

func (t *fakeTracker) Latest(_ context.Context, shopID string) (*model.ProcessTracker, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.rows) - 1; i >= 0; i-- {
		if t.rows[i].ShopID == shopID {
			row := t.rows[i]
			return &row, nil
		}
	}
	return nil, nil
}

type fakeCatalog struct {
	items map[string][]catalog.Item
}

func (c fakeCatalog) Load(_ context.Context, shopID string) ([]catalog.Item, error) {
	items, ok := c.items[shopID]
	if !ok {
		return nil, catalog.ErrCatalogNotFound
	}
	return items, nil
}

type fakeLock struct {
	mu       sync.Mutex
	held     map[string]bool
	released int
}

func (l *fakeLock) Acquire(_ context.Context, shopID string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[shopID] {
		return nil, cache.ErrLockHeld
	}
	l.held[shopID] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, shopID)
		l.released++
		return nil
	}, nil
}

// scriptedOracle replies with a fixed answer and records the prompts it saw.
type scriptedOracle struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (o *scriptedOracle) Backend() string { return "scripted" }

func (o *scriptedOracle) Complete(_ context.Context, prompt string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prompts = append(o.prompts, prompt)
	return o.reply, o.err
}

func (o *scriptedOracle) calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.prompts)
}

type fakeEmbedder struct {
	dim int
	err error
}

func (e fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, e.dim)
		vec[i%e.dim] = 1
		out[i] = vec
	}
	return out, nil
}

type fixedSignal float64

func (s fixedSignal) Score(model.Product) float64 { return float64(s) }

var errOracleDown = errors.New("oracle unreachable")

func product(id int64, tag, category string, price float64, stock int) model.Product {
	return model.Product{
		ID:       id,
		ShopID:   "s",
		Title:    "Product " + tag,
		Category: category,
		Vendor:   "Acme",
		Price:    price,
		Status:   model.StatusActive,
		Stock:    stock,
		Tag:      tag,
		Variants: []model.Variant{{ID: id*10 + 1, Title: "Default", Price: price, InventoryQuantity: stock}},
	}
}
