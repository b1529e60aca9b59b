package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dflowfolio/internal/repository"
	"dflowfolio/internal/service"
)

type PortfolioHandler struct {
	Repo      repository.Repository
	Portfolio *service.PortfolioService
}

func (h *PortfolioHandler) Register(r *gin.Engine) {
	p := r.Group("/api/portfolio")
	p.GET("/summary", h.summary)
	p.GET("/history", h.history)
}

func (h *PortfolioHandler) summary(c *gin.Context) {
	if h.Portfolio == nil {
		Error(c, http.StatusInternalServerError, "portfolio service unavailable", nil)
		return
	}
	wallet := strings.TrimSpace(c.Query("wallet"))
	if wallet == "" {
		Error(c, http.StatusBadRequest, "wallet is required", nil)
		return
	}
	out, err := h.Portfolio.Summarize(c.Request.Context(), wallet)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, out, nil)
}

func (h *PortfolioHandler) history(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 30)
	offset := intQuery(c, "offset", 0)
	var since *time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			t := ts.UTC()
			since = &t
		}
	}
	var until *time.Time
	if raw := strings.TrimSpace(c.Query("until")); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			t := ts.UTC()
			until = &t
		}
	}
	items, err := h.Repo.ListPortfolioSnapshots(c.Request.Context(), repository.ListSnapshotsParams{
		Limit:  limit,
		Offset: offset,
		Wallet: strQueryPtr(c, "wallet"),
		Since:  since,
		Until:  until,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	// No total count query for snapshots, so the meta reports the page
	// shape only.
	Ok(c, items, map[string]any{
		"limit":  limit,
		"offset": offset,
		"count":  len(items),
	})
}
