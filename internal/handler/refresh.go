package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"dflowfolio/internal/service"
)

type RefreshHandler struct {
	Refresh    *service.RefreshService
	Redemption *service.RedemptionService
}

func (h *RefreshHandler) Register(r *gin.Engine) {
	api := r.Group("/api")
	api.POST("/refresh", h.refreshWallet)
	api.POST("/refresh/all", h.refreshAll)
	api.POST("/redeem", h.redeem)
}

type refreshRequest struct {
	Wallet string `json:"wallet"`
}

func (h *RefreshHandler) refreshWallet(c *gin.Context) {
	if h.Refresh == nil {
		Error(c, http.StatusInternalServerError, "refresh service unavailable", nil)
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.Wallet = strings.TrimSpace(req.Wallet)
	if req.Wallet == "" {
		Error(c, http.StatusBadRequest, "wallet required", nil)
		return
	}
	out := h.Refresh.RefreshWallet(c.Request.Context(), req.Wallet)
	Ok(c, out, nil)
}

func (h *RefreshHandler) refreshAll(c *gin.Context) {
	if h.Refresh == nil {
		Error(c, http.StatusInternalServerError, "refresh service unavailable", nil)
		return
	}
	out := h.Refresh.RefreshAll(c.Request.Context())
	Ok(c, out, nil)
}

type redeemRequest struct {
	PositionID uint64           `json:"position_id"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
}

func (h *RefreshHandler) redeem(c *gin.Context) {
	if h.Redemption == nil {
		Error(c, http.StatusInternalServerError, "redemption service unavailable", nil)
		return
	}
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if req.PositionID == 0 {
		Error(c, http.StatusBadRequest, "position_id required", nil)
		return
	}
	out, err := h.Redemption.Redeem(c.Request.Context(), req.PositionID, req.Amount)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if !out.Success {
		Ok(c, out, map[string]any{"reason": out.Error})
		return
	}
	Ok(c, out, nil)
}
