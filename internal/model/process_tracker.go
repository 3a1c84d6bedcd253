package model

import "time"

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ProcessTracker records one precomputation run. Status only moves from running
// to completed or failed.
type ProcessTracker struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	ShopID       string     `gorm:"size:128;not null;index" json:"shop_id"`
	JobID        string     `gorm:"size:64;index" json:"job_id"`
	Status       string     `gorm:"size:16;not null;index" json:"status"`
	ProductCount int        `gorm:"not null;default:0" json:"product_count"`
	Error        string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt    time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	LastRun      time.Time  `gorm:"not null" json:"last_run"`
}

func (ProcessTracker) TableName() string {
	return "process_tracker"
}
