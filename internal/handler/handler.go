// Package handler HTTP API сервиса нагрузочных тестов.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/repository"
	"virkum-respond/internal/scraper"
	"virkum-respond/internal/service"
	"virkum-respond/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunManager управление прогонами
type RunManager interface {
	StartRun(ctx context.Context, req domain.RunRequest) (uuid.UUID, error)
	GetRun(ctx context.Context, runID uuid.UUID) (service.RunStatus, error)
	CancelRun(runID uuid.UUID) error
	Events(ctx context.Context, runID uuid.UUID, offset int) ([]worker.Event, error)
	EventLog(runID uuid.UUID) (*worker.EventLog, bool)
}

// CompanyScraper собирает данные компании с сайта
type CompanyScraper interface {
	Scrape(ctx context.Context, rawURL string) (*scraper.Result, error)
}

// Handler обрабатывает HTTP запросы API.
type Handler struct {
	runs      RunManager
	companies repository.CompanyRepository
	tests     repository.TestRepository
	scraper   CompanyScraper
	logger    *zap.Logger
}

// NewHandler создает Handler.
func NewHandler(runs RunManager, companies repository.CompanyRepository, tests repository.TestRepository, scraper CompanyScraper, logger *zap.Logger) *Handler {
	return &Handler{
		runs:      runs,
		companies: companies,
		tests:     tests,
		scraper:   scraper,
		logger:    logger.Named("handler"),
	}
}

// RegisterRoutes регистрирует маршруты. auth == nil = API без аутентификации.
func (h *Handler) RegisterRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	if auth != nil {
		api.Use(auth)
	}

	companies := api.Group("/companies")
	{
		companies.GET("", h.listCompanies)
		companies.POST("", h.createCompany)
		companies.POST("/import", h.importCompanies)
		companies.POST("/scrape", h.scrapeCompany)
		companies.DELETE("/:id", h.deleteCompany)
	}

	runs := api.Group("/runs")
	{
		runs.POST("", h.startRun)
		runs.GET("/:id", h.getRun)
		runs.POST("/:id/cancel", h.cancelRun)
		runs.GET("/:id/events", h.listRunEvents)
		runs.GET("/:id/ws", h.streamRunEvents)
	}

	tests := api.Group("/tests")
	{
		tests.GET("", h.listTests)
		tests.GET("/:id", h.getTest)
		tests.GET("/:id/tasks", h.listTestTasks)
	}
}

func parseRunID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handleServiceError(c, domain.NewValidationError("id", "must be a valid run id"))
		return uuid.Nil, false
	}
	return id, true
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		handleServiceError(c, domain.NewValidationError(name, "must be a positive integer"))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def, maxValue int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		handleServiceError(c, domain.NewValidationError(name, "must be a non-negative integer"))
		return 0, false
	}
	if maxValue > 0 && v > maxValue {
		v = maxValue
	}
	return v, true
}
