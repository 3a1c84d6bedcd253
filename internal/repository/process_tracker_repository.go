package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"upsell-recommender/internal/model"
)

var ErrTrackerNotRunning = errors.New("process tracker is not running")

type ProcessTrackerRepository struct {
	db *gorm.DB
}

func NewProcessTrackerRepository(db *gorm.DB) *ProcessTrackerRepository {
	return &ProcessTrackerRepository{db: db}
}

func (r *ProcessTrackerRepository) Create(ctx context.Context, tracker *model.ProcessTracker) error {
	if err := r.db.WithContext(ctx).Create(tracker).Error; err != nil {
		return fmt.Errorf("create process tracker failed: %w", err)
	}
	return nil
}

// MarkCompleted moves a running tracker to completed.
func (r *ProcessTrackerRepository) MarkCompleted(ctx context.Context, id uint, productCount int, at time.Time) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status":        model.RunStatusCompleted,
		"product_count": productCount,
		"completed_at":  at,
		"last_run":      at,
	})
}

// MarkFailed moves a running tracker to failed and records the cause.
func (r *ProcessTrackerRepository) MarkFailed(ctx context.Context, id uint, cause string, at time.Time) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status":   model.RunStatusFailed,
		"error":    cause,
		"last_run": at,
	})
}

func (r *ProcessTrackerRepository) finish(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.ProcessTracker{}).
		Where("id = ? AND status = ?", id, model.RunStatusRunning).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update process tracker failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTrackerNotRunning
	}
	return nil
}

// Latest returns the newest tracker of the shop, or nil when the shop never ran.
func (r *ProcessTrackerRepository) Latest(ctx context.Context, shopID string) (*model.ProcessTracker, error) {
	var tracker model.ProcessTracker
	if err := r.db.WithContext(ctx).Where("shop_id = ?", shopID).Order("id DESC").First(&tracker).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest process tracker failed: %w", err)
	}
	return &tracker, nil
}
