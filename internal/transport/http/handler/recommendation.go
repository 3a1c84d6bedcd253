package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"upsell-recommender/internal/app"
	"upsell-recommender/internal/model"
	"upsell-recommender/internal/transport/http/response"
)

type Recommender interface {
	Recommend(ctx context.Context, input app.RecommendInput) (*app.RecommendResult, error)
}

type RecommendationHandler struct {
	recommender Recommender
}

type RecommendationRequest struct {
	ShopID             string       `json:"shop_id" binding:"required"`
	ProductIDs         model.IDList `json:"product_ids" binding:"required,min=1"`
	RecommendationType []string     `json:"recommendation_type" binding:"omitempty,dive,oneof=upsell crosssell"`
}

func NewRecommendationHandler(recommender Recommender) *RecommendationHandler {
	return &RecommendationHandler{recommender: recommender}
}

func (h *RecommendationHandler) Recommend(c *gin.Context) {
	var req RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "shop_id and a non-empty product_ids array are required")
		return
	}

	result, err := h.recommender.Recommend(c.Request.Context(), app.RecommendInput{
		ShopID:     req.ShopID,
		ProductIDs: req.ProductIDs,
		Types:      req.RecommendationType,
	})
	if err != nil {
		_ = c.Error(err)
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrNoSourceProducts):
			response.Error(c, http.StatusInternalServerError, response.CodeNoSourceProducts, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "recommendation failed")
		}
		return
	}

	response.OK(c, result)
}
