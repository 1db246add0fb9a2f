package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"detectorx-worker-go/internal/logging"
	"detectorx-worker-go/internal/models"
	"detectorx-worker-go/internal/services/journal"
)

// AlertsHandler exposes the alert journal
type AlertsHandler struct {
	journal *journal.Store
}

// NewAlertsHandler accepts a nil store when the journal is disabled
func NewAlertsHandler(store *journal.Store) *AlertsHandler {
	return &AlertsHandler{journal: store}
}

// RecentAlerts godoc
// @Summary Recent alert dispatches
// @Description Newest first. Empty when the journal is disabled.
// @Tags alerts
// @Produce json
// @Param limit query int false "Maximum number of alerts (default: 50, max: 500)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /alerts [get]
func (h *AlertsHandler) RecentAlerts(c *gin.Context) {
	limit := journal.DefaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	if h.journal == nil {
		c.JSON(http.StatusOK, gin.H{"alerts": []models.AlertEvent{}, "journal_enabled": false})
		return
	}

	alerts, err := h.journal.Recent(c.Request.Context(), limit)
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to read alert journal")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read alert journal"})
		return
	}
	counts, err := h.journal.CountByLabel(c.Request.Context())
	if err != nil {
		logging.Warn(c).Err(err).Msg("Failed to count alerts by label")
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "by_label": counts, "journal_enabled": true})
}
