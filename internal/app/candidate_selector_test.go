package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upsell-recommender/internal/model"
)

var selectorDefaults = SelectorConfig{MaxRelatedTags: 50, PoolSize: 80, MerchantWeight: 0.6, PurchaseWeight: 0.4}

func scenarioAStore() *fakeProductStore {
	source := product(1001, "t-shirt", "Tops", 25, 30)
	jeans := product(2001, "jeans", "Pants", 60, 40)
	jeans.MerchantScore, jeans.PurchaseScore = 0.7, 0.6
	sneakers := product(2002, "sneakers", "Shoes", 90, 80)
	sneakers.MerchantScore, sneakers.PurchaseScore = 1.0, 0.9
	return newFakeProductStore(source, jeans, sneakers)
}

func TestSelectCandidatesScenarioA(t *testing.T) {
	graph := newFakeTagGraph(map[string][]string{"t-shirt": {"jeans", "sneakers"}})
	selector := NewCandidateSelector(scenarioAStore(), graph, selectorDefaults, zerolog.Nop())

	sel, err := selector.SelectCandidates(context.Background(), "s", []int64{1001}, 0)
	require.NoError(t, err)

	require.Len(t, sel.Sources, 1)
	assert.Equal(t, []string{"jeans", "sneakers"}, sel.RelatedTags)
	require.Len(t, sel.Candidates, 2)
	assert.Equal(t, int64(2002), sel.Candidates[0].ID, "higher composite score first")
	assert.Equal(t, int64(2001), sel.Candidates[1].ID)
}

func TestSelectCandidatesFiltersIneligible(t *testing.T) {
	source := product(1, "t-shirt", "Tops", 25, 30)
	sibling := product(2, "jeans", "Pants", 60, 40)
	inactive := product(3, "jeans", "Pants", 60, 40)
	inactive.Status = "draft"
	soldOut := product(4, "jeans", "Pants", 60, 0)
	otherShop := product(5, "jeans", "Pants", 60, 40)
	otherShop.ShopID = "other"
	unrelated := product(6, "hats", "Accessories", 20, 40)
	valid := product(7, "t-shirt", "Tops", 30, 5)
	store := newFakeProductStore(source, sibling, inactive, soldOut, otherShop, unrelated, valid)
	graph := newFakeTagGraph(map[string][]string{"t-shirt": {"jeans", "t-shirt"}, "jeans": {"t-shirt"}})
	selector := NewCandidateSelector(store, graph, selectorDefaults, zerolog.Nop())

	sel, err := selector.SelectCandidates(context.Background(), "s", []int64{1, 2}, 0)
	require.NoError(t, err)

	for _, c := range sel.Candidates {
		assert.NotContains(t, []int64{1, 2}, c.ID, "source products are never candidates")
		assert.True(t, c.IsEligible())
		assert.Equal(t, "s", c.ShopID)
	}
	require.Len(t, sel.Candidates, 1)
	assert.Equal(t, int64(7), sel.Candidates[0].ID)
}

func TestSelectCandidatesPoolBoundAndOrder(t *testing.T) {
	products := []model.Product{product(1, "t-shirt", "Tops", 25, 30)}
	for i := int64(0); i < 30; i++ {
		p := product(100+i, "jeans", "Pants", 50, 10)
		p.MerchantScore = float64(i%7) / 7
		p.PurchaseScore = float64(i%5) / 5
		products = append(products, p)
	}
	graph := newFakeTagGraph(map[string][]string{"t-shirt": {"jeans"}})
	selector := NewCandidateSelector(newFakeProductStore(products...), graph, selectorDefaults, zerolog.Nop())

	sel, err := selector.SelectCandidates(context.Background(), "s", []int64{1}, 12)
	require.NoError(t, err)

	require.Len(t, sel.Candidates, 12)
	for i := 1; i < len(sel.Candidates); i++ {
		prev := CompositeScore(sel.Candidates[i-1], 0.6, 0.4)
		cur := CompositeScore(sel.Candidates[i], 0.6, 0.4)
		assert.GreaterOrEqual(t, prev, cur)
	}
}

func TestSelectCandidatesRelatedTagCap(t *testing.T) {
	graph := newFakeTagGraph(map[string][]string{
		"t-shirt": {"jeans", "belts", "socks"},
		"hoodie":  {"socks", "caps"},
	})
	store := newFakeProductStore(product(1, "t-shirt", "Tops", 25, 3), product(2, "hoodie", "Tops", 45, 3))
	cfg := selectorDefaults
	cfg.MaxRelatedTags = 4
	selector := NewCandidateSelector(store, graph, cfg, zerolog.Nop())

	sel, err := selector.SelectCandidates(context.Background(), "s", []int64{1, 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"jeans", "belts", "socks", "caps"}, sel.RelatedTags)
}

func TestSelectCandidatesEmptyGraphIsNotAnError(t *testing.T) {
	selector := NewCandidateSelector(scenarioAStore(), newFakeTagGraph(nil), selectorDefaults, zerolog.Nop())

	sel, err := selector.SelectCandidates(context.Background(), "s", []int64{1001}, 0)
	require.NoError(t, err)
	assert.Empty(t, sel.RelatedTags)
	assert.Empty(t, sel.Candidates)
}

func TestSelectCandidatesErrors(t *testing.T) {
	selector := NewCandidateSelector(scenarioAStore(), newFakeTagGraph(nil), selectorDefaults, zerolog.Nop())

	_, err := selector.SelectCandidates(context.Background(), "s", nil, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = selector.SelectCandidates(context.Background(), "", []int64{1001}, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = selector.SelectCandidates(context.Background(), "s", []int64{404, 405}, 0)
	assert.ErrorIs(t, err, ErrNoSourceProducts)
}
