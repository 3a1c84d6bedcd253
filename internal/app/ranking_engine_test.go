package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upsell-recommender/internal/metrics"
	"upsell-recommender/internal/model"
)

var rankingDefaults = RankingConfig{TopK: 10, FinalRecommendations: 10, FallbackWindow: 20, MerchantWeight: 0.6, PurchaseWeight: 0.4}

func productIDs(entries []ScoredCandidate) []int64 {
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ProductID)
	}
	return ids
}

func variantIDs(entries []ScoredCandidate) []int64 {
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.VariantID)
	}
	return ids
}

func TestRankOracleSuccess(t *testing.T) {
	sources := []model.Product{product(1001, "t-shirt", "Tops", 25, 30)}
	sneakers := product(2002, "sneakers", "Shoes", 90, 80)
	sneakers.Variants = append(sneakers.Variants, model.Variant{ID: 20099, Title: "Wide", Price: 95, InventoryQuantity: 4})
	candidates := []model.Product{sneakers, product(2001, "jeans", "Pants", 60, 40)}
	oracle := &scriptedOracle{reply: "Sure!\n```json\n{\"upsell\": [\"2002\", 999, 2002], \"crosssell\": [2001, 2002]}\n```"}
	engine := NewRankingEngine(oracle, rankingDefaults, zerolog.Nop())

	got := engine.Rank(context.Background(), sources, candidates)

	assert.Equal(t, metrics.PathOracle, got.Path)
	assert.Equal(t, []int64{2002, 2002}, productIDs(got.Upsell))
	assert.Equal(t, []int64{20021, 20099}, variantIDs(got.Upsell), "variants keep their stored order")
	assert.Equal(t, []int64{2001}, productIDs(got.Crosssell), "a product lands in one category only")
	assert.Equal(t, 1, oracle.calls())

	prompt := oracle.prompts[0]
	assert.Contains(t, prompt, "2002 | Product sneakers | Shoes | 90.00 | Acme")
	assert.Contains(t, prompt, "up to 10 candidate ids")
}

func TestRankOracleTruncatesExpandedVariants(t *testing.T) {
	big := product(7, "jeans", "Pants", 60, 40)
	big.Variants = nil
	for i := int64(0); i < 14; i++ {
		big.Variants = append(big.Variants, model.Variant{ID: 700 + i, Price: 60, InventoryQuantity: 3})
	}
	oracle := &scriptedOracle{reply: `{"upsell": [7], "crosssell": []}`}
	engine := NewRankingEngine(oracle, rankingDefaults, zerolog.Nop())

	got := engine.Rank(context.Background(), []model.Product{product(1, "t-shirt", "Tops", 25, 3)}, []model.Product{big})

	require.Len(t, got.Upsell, 10)
	assert.Equal(t, int64(700), got.Upsell[0].VariantID)
	assert.Equal(t, int64(709), got.Upsell[9].VariantID)
	assert.Empty(t, got.Crosssell)
}

func TestRankOracleSkipsUnknownIDsBeforeTopK(t *testing.T) {
	sources := []model.Product{product(1001, "t-shirt", "Tops", 25, 30)}
	candidates := []model.Product{product(2001, "jeans", "Pants", 60, 40)}
	oracle := &scriptedOracle{reply: `{"upsell": [], "crosssell": [901, 902, 903, 904, 905, 906, 907, 908, 909, 910, 2001]}`}
	engine := NewRankingEngine(oracle, rankingDefaults, zerolog.Nop())

	got := engine.Rank(context.Background(), sources, candidates)

	assert.Equal(t, metrics.PathOracle, got.Path)
	assert.Empty(t, got.Upsell)
	assert.Equal(t, []int64{2001}, productIDs(got.Crosssell))
}

func TestRankOracleCapsMatchedIDsAtTopK(t *testing.T) {
	cfg := rankingDefaults
	cfg.TopK = 2
	candidates := []model.Product{
		product(2001, "jeans", "Pants", 60, 40),
		product(2002, "sneakers", "Shoes", 90, 80),
		product(2003, "belt", "Accessories", 20, 10),
	}
	oracle := &scriptedOracle{reply: `{"upsell": [], "crosssell": [999, 2003, 998, 2001, 2002]}`}
	engine := NewRankingEngine(oracle, cfg, zerolog.Nop())

	got := engine.Rank(context.Background(), []model.Product{product(1001, "t-shirt", "Tops", 25, 30)}, candidates)

	assert.Equal(t, []int64{2003, 2001}, productIDs(got.Crosssell))
}

func TestRankFallsBackOnOracleFailure(t *testing.T) {
	sources := []model.Product{product(1001, "t-shirt", "Tops", 25, 30)}
	candidates := []model.Product{product(2002, "sneakers", "Shoes", 90, 80), product(2001, "jeans", "Pants", 60, 40)}

	tests := []struct {
		name   string
		oracle *scriptedOracle
	}{
		{"unreachable", &scriptedOracle{err: errOracleDown}},
		{"empty reply", &scriptedOracle{reply: "   "}},
		{"prose only", &scriptedOracle{reply: "I would recommend the sneakers."}},
		{"broken json", &scriptedOracle{reply: `{"upsell": [1, 2`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewRankingEngine(tt.oracle, rankingDefaults, zerolog.Nop())
			got := engine.Rank(context.Background(), sources, candidates)

			assert.Equal(t, metrics.PathFallback, got.Path)
			assert.Empty(t, got.Upsell, "no candidate shares a category with the source")
			assert.Equal(t, []int64{2002, 2001}, productIDs(got.Crosssell))
		})
	}
}

func TestRankWithoutCandidatesSkipsOracle(t *testing.T) {
	oracle := &scriptedOracle{reply: `{"upsell": [1]}`}
	engine := NewRankingEngine(oracle, rankingDefaults, zerolog.Nop())

	got := engine.Rank(context.Background(), []model.Product{product(1, "t-shirt", "Tops", 25, 3)}, nil)

	assert.Equal(t, 0, oracle.calls())
	assert.NotNil(t, got.Upsell)
	assert.NotNil(t, got.Crosssell)
	assert.Empty(t, got.Upsell)
	assert.Empty(t, got.Crosssell)
}

func TestFallbackClassification(t *testing.T) {
	sources := []model.Product{product(1, "t-shirt", "Tops", 40, 3), product(2, "hoodie", "Outerwear", 60, 3)}
	pricey := product(10, "polo", "tops", 55, 5)
	cheap := product(11, "tank", "TOPS", 30, 5)
	other := product(12, "jeans", "Pants", 80, 5)
	mixed := product(13, "shirt", "Tops", 45, 5)
	mixed.Variants = []model.Variant{{ID: 131, Price: 49, InventoryQuantity: 1}, {ID: 132, Price: 52, InventoryQuantity: 1}}
	engine := NewRankingEngine(nil, rankingDefaults, zerolog.Nop())

	got := engine.Fallback(sources, []model.Product{pricey, cheap, other, mixed})

	// mean source price is 50
	assert.Equal(t, []int64{101, 132}, variantIDs(got.Upsell))
	assert.Equal(t, []int64{111, 121, 131}, variantIDs(got.Crosssell))
}

func TestFallbackIsDeterministic(t *testing.T) {
	sources := []model.Product{product(1, "t-shirt", "Tops", 20, 3)}
	var candidates []model.Product
	for i := int64(0); i < 30; i++ {
		category := "Tops"
		if i%3 == 0 {
			category = "Shoes"
		}
		candidates = append(candidates, product(100+i, "tag", category, float64(10+i*2), 5))
	}
	engine := NewRankingEngine(nil, rankingDefaults, zerolog.Nop())

	first := engine.Fallback(sources, candidates)
	second := engine.Fallback(sources, candidates)
	assert.Equal(t, first, second)
}

func TestFallbackWindowAndLimit(t *testing.T) {
	sources := []model.Product{product(1, "t-shirt", "Tops", 10, 3)}
	var candidates []model.Product
	for i := int64(0); i < 25; i++ {
		candidates = append(candidates, product(100+i, "polo", "Tops", 50, 5))
	}

	wide := rankingDefaults
	wide.FinalRecommendations = 100
	got := NewRankingEngine(nil, wide, zerolog.Nop()).Fallback(sources, candidates)
	require.Len(t, got.Upsell, 20, "only the first 20 candidates are considered")
	assert.Equal(t, int64(119), got.Upsell[19].ProductID)

	got = NewRankingEngine(nil, rankingDefaults, zerolog.Nop()).Fallback(sources, candidates)
	assert.Len(t, got.Upsell, 10)
	assert.Empty(t, got.Crosssell)
}

func TestScoredCandidateCosmeticFields(t *testing.T) {
	source := product(1, "t-shirt", "Tops", 50, 3)
	source.Embedding = []float32{1, 0}
	c := product(2, "jeans", "Pants", 100, 60)
	c.Embedding = []float32{1, 0}
	c.MerchantScore, c.PurchaseScore = 1.0, 0.5

	got := NewRankingEngine(nil, rankingDefaults, zerolog.Nop()).Fallback([]model.Product{source}, []model.Product{c})

	require.Len(t, got.Crosssell, 1)
	entry := got.Crosssell[0]
	assert.InDelta(t, 1.0, entry.EmbeddingSimilarity, 1e-4)
	assert.InDelta(t, 0.5, entry.PriceSimilarity, 1e-9)
	assert.InDelta(t, 0.8, entry.Score, 1e-9)
	assert.Equal(t, "jeans", entry.Tags)
}
