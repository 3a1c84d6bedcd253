package app

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"upsell-recommender/internal/ai"
	"upsell-recommender/internal/metrics"
	"upsell-recommender/internal/model"
	"upsell-recommender/internal/tagging"
)

const (
	CategoryUpsell    = "upsell"
	CategoryCrosssell = "crosssell"

	// pathEmpty marks a request that had no candidates to rank.
	pathEmpty = "empty"
)

type RankingConfig struct {
	TopK                 int
	FinalRecommendations int
	FallbackWindow       int
	MerchantWeight       float64
	PurchaseWeight       float64
}

// ScoredCandidate is one variant of a recommended product. The score fields are
// for display and play no part in ranking on the oracle path.
type ScoredCandidate struct {
	ProductID           int64   `json:"product_id"`
	VariantID           int64   `json:"variant_id"`
	Title               string  `json:"title"`
	VariantTitle        string  `json:"variant_title"`
	Category            string  `json:"category"`
	Vendor              string  `json:"vendor"`
	Tags                string  `json:"tags"`
	Price               float64 `json:"price"`
	InventoryQuantity   int     `json:"inventory_quantity"`
	Score               float64 `json:"score"`
	EmbeddingSimilarity float64 `json:"embedding_similarity"`
	MerchantScore       float64 `json:"merchant_score"`
	PurchaseScore       float64 `json:"purchase_score"`
	PriceSimilarity     float64 `json:"price_similarity"`
}

type Recommendations struct {
	Upsell    []ScoredCandidate `json:"upsell"`
	Crosssell []ScoredCandidate `json:"crosssell"`
}

// Ranking is the engine output together with the path that produced it.
type Ranking struct {
	Recommendations
	Path string
}

type rankingResponse struct {
	Upsell    model.IDList `json:"upsell"`
	Crosssell model.IDList `json:"crosssell"`
}

type RankingEngine struct {
	oracle ai.RankingOracle
	cfg    RankingConfig
	log    zerolog.Logger
}

func NewRankingEngine(oracle ai.RankingOracle, cfg RankingConfig, log zerolog.Logger) *RankingEngine {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.FinalRecommendations <= 0 {
		cfg.FinalRecommendations = 10
	}
	if cfg.FallbackWindow <= 0 {
		cfg.FallbackWindow = 20
	}
	return &RankingEngine{oracle: oracle, cfg: cfg, log: log}
}

// Rank splits candidates into upsell and crosssell lists. Oracle failures of any
// kind end in the deterministic fallback; Rank itself never fails.
func (e *RankingEngine) Rank(ctx context.Context, sources, candidates []model.Product) Ranking {
	if len(candidates) == 0 {
		return Ranking{Recommendations: emptyRecommendations(), Path: pathEmpty}
	}
	view := newRankingView(sources, e.cfg)

	if e.oracle != nil {
		prompt := buildRankingPrompt(sources, candidates, e.cfg.TopK)
		raw, err := e.oracle.Complete(ctx, prompt)
		if err == nil {
			decoded := ai.DecodeObject[rankingResponse](raw)
			if decoded.OK() {
				metrics.RankingPath.WithLabelValues(metrics.PathOracle).Inc()
				return Ranking{
					Recommendations: e.expandSelection(decoded.Value, candidates, view),
					Path:            metrics.PathOracle,
				}
			}
			err = decoded.Reason
		}
		e.log.Warn().Err(err).Str("backend", e.oracle.Backend()).Int("candidates", len(candidates)).Msg("ranking oracle unusable, using fallback")
	}

	metrics.RankingPath.WithLabelValues(metrics.PathFallback).Inc()
	return Ranking{Recommendations: e.Fallback(sources, candidates), Path: metrics.PathFallback}
}

// expandSelection maps oracle ids onto candidates, expanding each into its
// variants. Unknown ids are skipped without counting against TopK and a product
// lands in one category only.
func (e *RankingEngine) expandSelection(resp rankingResponse, candidates []model.Product, view rankingView) Recommendations {
	byID := make(map[int64]model.Product, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}
	used := make(map[int64]struct{})

	pick := func(ids []int64) []ScoredCandidate {
		out := make([]ScoredCandidate, 0, e.cfg.FinalRecommendations)
		matched := 0
		for _, id := range ids {
			if matched == e.cfg.TopK {
				break
			}
			c, ok := byID[id]
			if !ok {
				continue
			}
			if _, dup := used[id]; dup {
				continue
			}
			used[id] = struct{}{}
			matched++
			for _, v := range c.Variants {
				if len(out) == e.cfg.FinalRecommendations {
					return out
				}
				out = append(out, view.score(c, v))
			}
		}
		return out
	}

	return Recommendations{
		Upsell:    pick(resp.Upsell),
		Crosssell: pick(resp.Crosssell),
	}
}

// Fallback classifies the first FallbackWindow candidates without the oracle: a
// variant is an upsell when its product shares a category with a source product
// and it costs at least the mean source price, otherwise a crosssell.
func (e *RankingEngine) Fallback(sources, candidates []model.Product) Recommendations {
	view := newRankingView(sources, e.cfg)
	window := candidates
	if len(window) > e.cfg.FallbackWindow {
		window = window[:e.cfg.FallbackWindow]
	}

	recs := emptyRecommendations()
	for _, c := range window {
		sameCategory := view.hasCategory(c.Category)
		for _, v := range c.Variants {
			entry := view.score(c, v)
			if sameCategory && v.Price >= view.meanPrice {
				if len(recs.Upsell) < e.cfg.FinalRecommendations {
					recs.Upsell = append(recs.Upsell, entry)
				}
				continue
			}
			if len(recs.Crosssell) < e.cfg.FinalRecommendations {
				recs.Crosssell = append(recs.Crosssell, entry)
			}
		}
	}
	return recs
}

// rankingView holds what the source products contribute to scoring a candidate.
type rankingView struct {
	categories     map[string]struct{}
	meanPrice      float64
	meanEmbedding  []float32
	merchantWeight float64
	purchaseWeight float64
}

func newRankingView(sources []model.Product, cfg RankingConfig) rankingView {
	v := rankingView{
		categories:     make(map[string]struct{}, len(sources)),
		merchantWeight: cfg.MerchantWeight,
		purchaseWeight: cfg.PurchaseWeight,
	}
	embeddings := make([][]float32, 0, len(sources))
	total := 0.0
	for _, s := range sources {
		if key := categoryKey(s.Category); key != "" {
			v.categories[key] = struct{}{}
		}
		total += s.Price
		embeddings = append(embeddings, s.Embedding)
	}
	if len(sources) > 0 {
		v.meanPrice = total / float64(len(sources))
	}
	v.meanEmbedding = tagging.MeanVector(embeddings)
	return v
}

func (v rankingView) hasCategory(category string) bool {
	key := categoryKey(category)
	if key == "" {
		return false
	}
	_, ok := v.categories[key]
	return ok
}

func (v rankingView) score(p model.Product, variant model.Variant) ScoredCandidate {
	return ScoredCandidate{
		ProductID:           p.ID,
		VariantID:           variant.ID,
		Title:               p.Title,
		VariantTitle:        variant.Title,
		Category:            p.Category,
		Vendor:              p.Vendor,
		Tags:                p.Tag,
		Price:               variant.Price,
		InventoryQuantity:   variant.InventoryQuantity,
		Score:               round4(CompositeScore(p, v.merchantWeight, v.purchaseWeight)),
		EmbeddingSimilarity: round4(tagging.CosineSimilarity(p.Embedding, v.meanEmbedding)),
		MerchantScore:       p.MerchantScore,
		PurchaseScore:       round4(p.PurchaseScore),
		PriceSimilarity:     round4(priceSimilarity(variant.Price, v.meanPrice)),
	}
}

func priceSimilarity(price, reference float64) float64 {
	high := math.Max(price, reference)
	if high <= 0 {
		return 1
	}
	return 1 - math.Abs(price-reference)/high
}

func buildRankingPrompt(sources, candidates []model.Product, topK int) string {
	var b strings.Builder
	b.WriteString("A shopper is looking at these products:\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "- %s (category: %s, price: %.2f)\n", s.Title, s.Category, s.Price)
	}
	b.WriteString("\nCandidate products (id | title | category | price | vendor):\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "%d | %s | %s | %.2f | %s\n", c.ID, c.Title, c.Category, c.Price, c.Vendor)
	}
	fmt.Fprintf(&b, "\nSelect up to %d candidate ids for each category:\n", topK)
	b.WriteString("- upsell: same or similar category as the viewed products, higher value\n")
	b.WriteString("- crosssell: complementary products from a different category\n")
	b.WriteString("\nUse only numeric ids from the candidate list. Respond ONLY with a JSON object, no prose and no markdown:\n")
	b.WriteString(`{"upsell": [123, 456], "crosssell": [789]}`)
	return b.String()
}

func emptyRecommendations() Recommendations {
	return Recommendations{Upsell: []ScoredCandidate{}, Crosssell: []ScoredCandidate{}}
}

func categoryKey(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
