package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"upsell-recommender/internal/model"
)

const upsertBatchSize = 200

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// CandidateQuery selects eligible products whose primary tag is in Tags.
type CandidateQuery struct {
	ShopID         string
	Tags           []string
	ExcludeIDs     []int64
	MerchantWeight float64
	PurchaseWeight float64
	Limit          int
}

// UpsertBatch inserts products or overwrites every column of existing rows.
func (r *ProductRepository) UpsertBatch(ctx context.Context, products []model.Product) error {
	if len(products) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(&products, upsertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("upsert products failed: %w", err)
	}
	return nil
}

// ListByIDs returns the shop's products among ids, in ids order.
func (r *ProductRepository) ListByIDs(ctx context.Context, shopID string, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []model.Product
	if err := r.db.WithContext(ctx).Where("shop_id = ? AND id IN ?", shopID, ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products by ids failed: %w", err)
	}
	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	ordered := make([]model.Product, 0, len(products))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
			delete(byID, id)
		}
	}
	return ordered, nil
}

func (r *ProductRepository) ListByShop(ctx context.Context, shopID string) ([]model.Product, error) {
	var products []model.Product
	if err := r.db.WithContext(ctx).Where("shop_id = ?", shopID).Order("id ASC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products by shop failed: %w", err)
	}
	return products, nil
}

// FindCandidates runs the candidate query ordered by composite score, highest first.
func (r *ProductRepository) FindCandidates(ctx context.Context, q CandidateQuery) ([]model.Product, error) {
	if len(q.Tags) == 0 || q.Limit <= 0 {
		return nil, nil
	}
	tx := r.db.WithContext(ctx).
		Where("shop_id = ?", q.ShopID).
		Where("status = ?", model.StatusActive).
		Where("stock > ?", 0).
		Where("tags IN ?", q.Tags)
	if len(q.ExcludeIDs) > 0 {
		tx = tx.Where("id NOT IN ?", q.ExcludeIDs)
	}

	var products []model.Product
	err := tx.Order(clause.OrderBy{
		Expression: clause.Expr{
			SQL:                "merchant_score * ? + purchase_score * ? DESC",
			Vars:               []interface{}{q.MerchantWeight, q.PurchaseWeight},
			WithoutParentheses: true,
		},
	}).Limit(q.Limit).Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("find candidate products failed: %w", err)
	}
	return products, nil
}

// ScoreUpdate carries the scores of one product.
type ScoreUpdate struct {
	ID            int64
	MerchantScore float64
	PurchaseScore float64
}

func (r *ProductRepository) UpdateScores(ctx context.Context, shopID string, updates []ScoreUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			res := tx.Model(&model.Product{}).
				Where("shop_id = ? AND id = ?", shopID, u.ID).
				Updates(map[string]interface{}{
					"merchant_score": u.MerchantScore,
					"purchase_score": u.PurchaseScore,
				})
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update product scores failed: %w", err)
	}
	return nil
}

// DistinctTags returns the primary tags stored for the shop, excluding the placeholder.
func (r *ProductRepository) DistinctTags(ctx context.Context, shopID string) ([]string, error) {
	var tags []string
	err := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("shop_id = ? AND tags <> ? AND tags <> ?", shopID, "", model.PlaceholderTag).
		Distinct().Order("tags ASC").Pluck("tags", &tags).Error
	if err != nil {
		return nil, fmt.Errorf("list distinct tags failed: %w", err)
	}
	return tags, nil
}
