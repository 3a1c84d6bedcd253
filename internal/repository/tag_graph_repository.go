package repository

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"upsell-recommender/internal/model"
)

type TagGraphRepository struct {
	db *gorm.DB
}

func NewTagGraphRepository(db *gorm.DB) *TagGraphRepository {
	return &TagGraphRepository{db: db}
}

// Upsert overwrites the related tags of every key in graph. Keys are written in
// sorted order so concurrent writers lock rows in the same order.
func (r *TagGraphRepository) Upsert(ctx context.Context, graph map[string][]string) (int, error) {
	if len(graph) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(graph))
	for k := range graph {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	edges := make([]model.TagGraphEdge, 0, len(keys))
	for _, k := range keys {
		edges = append(edges, model.TagGraphEdge{TagName: k, Children: graph[k]})
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tag_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"children", "updated_at"}),
	}).Create(&edges).Error
	if err != nil {
		return 0, fmt.Errorf("upsert tag graph failed: %w", err)
	}
	return len(edges), nil
}

// ChildrenOf returns the related tags of each known tag in tags.
func (r *TagGraphRepository) ChildrenOf(ctx context.Context, tags []string) (map[string][]string, error) {
	if len(tags) == 0 {
		return map[string][]string{}, nil
	}
	var edges []model.TagGraphEdge
	if err := r.db.WithContext(ctx).Where("tag_name IN ?", tags).Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("list tag graph edges failed: %w", err)
	}
	out := make(map[string][]string, len(edges))
	for _, e := range edges {
		out[e.TagName] = []string(e.Children)
	}
	return out, nil
}
