package handler

import (
	"errors"
	"net/http"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/scraper"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}

var errUnauthorized = errors.New("unauthorized")

func handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var errResp ErrorResponse

	switch {
	case errors.Is(err, errUnauthorized):
		statusCode = http.StatusUnauthorized
		errResp = ErrorResponse{Error: "Token is missing or invalid"}
	case errors.Is(err, domain.ErrValidation):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		statusCode = http.StatusNotFound
		errResp = ErrorResponse{Error: "Resource not found"}
	case errors.Is(err, domain.ErrAlreadyExists):
		statusCode = http.StatusConflict
		errResp = ErrorResponse{Error: "Resource already exists"}
	case errors.Is(err, domain.ErrRunNotActive):
		statusCode = http.StatusConflict
		errResp = ErrorResponse{Error: "Run is not active"}
	case errors.Is(err, domain.ErrTooManyRuns):
		statusCode = http.StatusTooManyRequests
		errResp = ErrorResponse{Error: "Too many active runs, try again later"}
	case errors.Is(err, scraper.ErrFetch):
		statusCode = http.StatusBadGateway
		errResp = ErrorResponse{Error: err.Error()}
	default:
		zap.L().Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = ErrorResponse{Error: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}
