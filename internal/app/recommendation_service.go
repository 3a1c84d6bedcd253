package app

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type RecommendInput struct {
	ShopID     string
	ProductIDs []int64
	Types      []string
}

type RecommendResult struct {
	ShopID           string          `json:"shop_id"`
	ProductIDs       []int64         `json:"product_ids"`
	Recommendations  Recommendations `json:"recommendations"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
}

// RecommendationService answers one recommendation request: candidate selection
// followed by ranking.
type RecommendationService struct {
	selector *CandidateSelector
	ranker   *RankingEngine
	log      zerolog.Logger
}

func NewRecommendationService(selector *CandidateSelector, ranker *RankingEngine, log zerolog.Logger) *RecommendationService {
	return &RecommendationService{selector: selector, ranker: ranker, log: log}
}

func (s *RecommendationService) Recommend(ctx context.Context, input RecommendInput) (*RecommendResult, error) {
	start := time.Now()
	input.ShopID = strings.TrimSpace(input.ShopID)
	if input.ShopID == "" || len(input.ProductIDs) == 0 {
		return nil, ErrInvalidInput
	}
	wanted, err := wantedTypes(input.Types)
	if err != nil {
		return nil, err
	}

	selection, err := s.selector.SelectCandidates(ctx, input.ShopID, input.ProductIDs, 0)
	if err != nil {
		return nil, err
	}

	recs := emptyRecommendations()
	path := pathEmpty
	if len(selection.Candidates) > 0 {
		ranking := s.ranker.Rank(ctx, selection.Sources, selection.Candidates)
		recs, path = ranking.Recommendations, ranking.Path
	}
	if !wanted[CategoryUpsell] {
		recs.Upsell = []ScoredCandidate{}
	}
	if !wanted[CategoryCrosssell] {
		recs.Crosssell = []ScoredCandidate{}
	}

	elapsed := time.Since(start).Milliseconds()
	s.log.Info().
		Str("shop_id", input.ShopID).
		Int("sources", len(selection.Sources)).
		Int("related_tags", len(selection.RelatedTags)).
		Int("candidates", len(selection.Candidates)).
		Int("upsell", len(recs.Upsell)).
		Int("crosssell", len(recs.Crosssell)).
		Str("path", path).
		Int64("elapsed_ms", elapsed).
		Msg("recommendations served")

	return &RecommendResult{
		ShopID:           input.ShopID,
		ProductIDs:       input.ProductIDs,
		Recommendations:  recs,
		ProcessingTimeMS: elapsed,
	}, nil
}

// wantedTypes resolves the requested categories; none requested means both.
func wantedTypes(types []string) (map[string]bool, error) {
	wanted := map[string]bool{}
	if len(types) == 0 {
		wanted[CategoryUpsell] = true
		wanted[CategoryCrosssell] = true
		return wanted, nil
	}
	for _, t := range types {
		switch key := strings.ToLower(strings.TrimSpace(t)); key {
		case CategoryUpsell, CategoryCrosssell:
			wanted[key] = true
		default:
			return nil, ErrInvalidInput
		}
	}
	return wanted, nil
}
