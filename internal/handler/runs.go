package handler

import (
	"net/http"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type startRunResponse struct {
	RunID     uuid.UUID `json:"run_id"`
	StatusURL string    `json:"status_url"`
}

type runEventsResponse struct {
	RunID      uuid.UUID      `json:"run_id"`
	Offset     int            `json:"offset"`
	NextOffset int            `json:"next_offset"`
	Events     []worker.Event `json:"events"`
}

// startRun ставит прогон в очередь и сразу отвечает 202.
func (h *Handler) startRun(c *gin.Context) {
	var req domain.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleServiceError(c, domain.NewValidationError("body", err.Error()))
		return
	}
	runID, err := h.runs.StartRun(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, startRunResponse{RunID: runID, StatusURL: "/api/runs/" + runID.String()})
}

func (h *Handler) getRun(c *gin.Context) {
	runID, ok := parseRunID(c)
	if !ok {
		return
	}
	status, err := h.runs.GetRun(c.Request.Context(), runID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) cancelRun(c *gin.Context) {
	runID, ok := parseRunID(c)
	if !ok {
		return
	}
	if err := h.runs.CancelRun(runID); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": "cancelling"})
}

func (h *Handler) listRunEvents(c *gin.Context) {
	runID, ok := parseRunID(c)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0, 0)
	if !ok {
		return
	}
	events, err := h.runs.Events(c.Request.Context(), runID, offset)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if events == nil {
		events = []worker.Event{}
	}
	c.JSON(http.StatusOK, runEventsResponse{
		RunID:      runID,
		Offset:     offset,
		NextOffset: offset + len(events),
		Events:     events,
	})
}
