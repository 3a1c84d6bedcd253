package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"upsell-recommender/internal/model"
	"upsell-recommender/internal/repository"
)

// MerchantScore is the availability score: a step function of stock.
func MerchantScore(stock int) float64 {
	switch {
	case stock > 50:
		return 1.0
	case stock > 20:
		return 0.7
	case stock > 0:
		return 0.4
	default:
		return 0.1
	}
}

// CompositeScore orders candidates: merchant_score*mw + purchase_score*pw.
func CompositeScore(p model.Product, merchantWeight, purchaseWeight float64) float64 {
	return p.MerchantScore*merchantWeight + p.PurchaseScore*purchaseWeight
}

// PurchaseSignal supplies the engagement score of a product, within [0,1].
type PurchaseSignal interface {
	Score(p model.Product) float64
}

// RandomPurchaseSignal is a placeholder engagement signal: uniform in [0.5, 1.0),
// drawn again on every run. Replace it once real purchase history exists.
type RandomPurchaseSignal struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomPurchaseSignal(seed int64) *RandomPurchaseSignal {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomPurchaseSignal{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomPurchaseSignal) Score(model.Product) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return 0.5 + s.rng.Float64()*0.5
}

type ScoreStore interface {
	ListByShop(ctx context.Context, shopID string) ([]model.Product, error)
	UpdateScores(ctx context.Context, shopID string, updates []repository.ScoreUpdate) error
}

type ScoringEngine struct {
	store  ScoreStore
	signal PurchaseSignal
	log    zerolog.Logger
}

func NewScoringEngine(store ScoreStore, signal PurchaseSignal, log zerolog.Logger) *ScoringEngine {
	if signal == nil {
		signal = NewRandomPurchaseSignal(0)
	}
	return &ScoringEngine{store: store, signal: signal, log: log}
}

// ComputeScores recomputes and persists both scores of every product of the shop.
func (e *ScoringEngine) ComputeScores(ctx context.Context, shopID string) error {
	products, err := e.store.ListByShop(ctx, shopID)
	if err != nil {
		return err
	}
	updates := make([]repository.ScoreUpdate, 0, len(products))
	for _, p := range products {
		updates = append(updates, repository.ScoreUpdate{
			ID:            p.ID,
			MerchantScore: MerchantScore(p.Stock),
			PurchaseScore: clamp01(e.signal.Score(p)),
		})
	}
	if err := e.store.UpdateScores(ctx, shopID, updates); err != nil {
		return err
	}
	e.log.Debug().Str("shop_id", shopID).Int("products", len(updates)).Msg("scores computed")
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
