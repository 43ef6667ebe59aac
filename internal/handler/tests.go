package handler

import (
	"net/http"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/repository"

	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

func (h *Handler) listTests(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultHistoryLimit, maxHistoryLimit)
	if !ok {
		return
	}
	tests, err := h.tests.List(c.Request.Context(), limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if tests == nil {
		tests = []domain.RunSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"data": tests})
}

func (h *Handler) getTest(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	test, err := h.tests.Get(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

func (h *Handler) listTestTasks(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	tasks, err := h.tests.ListTasks(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if tasks == nil {
		tasks = []repository.TaskRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"data": tasks})
}
