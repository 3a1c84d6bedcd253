package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"upsell-recommender/internal/app"
	"upsell-recommender/internal/model"
	"upsell-recommender/internal/transport/http/response"
)

type Scheduler interface {
	Schedule(ctx context.Context, shopID string, force bool) (model.PrecomputeJob, error)
}

type RunStatusReader interface {
	Status(ctx context.Context, shopID string) (*model.ProcessTracker, error)
}

type PrecomputeHandler struct {
	scheduler Scheduler
	status    RunStatusReader
}

type PrecomputeRequest struct {
	ShopID       string `json:"shop_id" binding:"required"`
	ForceRebuild bool   `json:"force_rebuild"`
}

type PrecomputeResponse struct {
	Message   string    `json:"message"`
	ShopID    string    `json:"shop_id"`
	JobID     string    `json:"job_id"`
	StartedAt time.Time `json:"started_at"`
}

func NewPrecomputeHandler(scheduler Scheduler, status RunStatusReader) *PrecomputeHandler {
	return &PrecomputeHandler{scheduler: scheduler, status: status}
}

// Start schedules the run and answers right away; the outcome is visible
// through Status only.
func (h *PrecomputeHandler) Start(c *gin.Context) {
	var req PrecomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "shop_id is required")
		return
	}

	job, err := h.scheduler.Schedule(c.Request.Context(), req.ShopID, req.ForceRebuild)
	if err != nil {
		_ = c.Error(err)
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "shop_id is required")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "schedule precomputation failed")
		return
	}

	response.OK(c, PrecomputeResponse{
		Message:   "Precomputation started",
		ShopID:    job.ShopID,
		JobID:     job.JobID,
		StartedAt: job.RequestedAt,
	})
}

func (h *PrecomputeHandler) Status(c *gin.Context) {
	run, err := h.status.Status(c.Request.Context(), c.Param("shop_id"))
	if err != nil {
		_ = c.Error(err)
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "shop_id is required")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "load precomputation status failed")
		return
	}
	if run == nil {
		response.Error(c, http.StatusNotFound, response.CodeRunNotFound, "no precomputation run for shop")
		return
	}
	response.OK(c, run)
}
