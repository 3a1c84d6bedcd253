package model

import "time"

// PrecomputeJob asks for one precomputation run of a shop. It is the payload
// carried by the job queue.
type PrecomputeJob struct {
	JobID        string    `json:"job_id"`
	ShopID       string    `json:"shop_id"`
	ForceRebuild bool      `json:"force_rebuild"`
	RequestedAt  time.Time `json:"requested_at"`
}
