package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/logger"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

type errorClass struct {
	target error
	status int
	code   string
}

// Order matters: the first matching sentinel wins.
var errorClasses = []errorClass{
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domain.ErrUnsupportedType, http.StatusBadRequest, "invalid_input"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrPipelineRunning, http.StatusConflict, "already_running"},
	{domain.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{domain.ErrInvalidStructuredOutput, http.StatusUnprocessableEntity, "invalid_structured_output"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{domain.ErrLLMUnavailable, http.StatusServiceUnavailable, "unavailable"},
	{domain.ErrEmbeddingUnavailable, http.StatusServiceUnavailable, "unavailable"},
	{domain.ErrVectorIndexUnavailable, http.StatusServiceUnavailable, "unavailable"},
}

// classify maps an error to its HTTP status and machine-readable code.
func classify(err error) (int, string) {
	for _, ec := range errorClasses {
		if errors.Is(err, ec.target) {
			return ec.status, ec.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeError aborts the request with the mapped status. Internal errors are
// logged and reported generically.
func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.L().Error("request failed",
			zap.String("request_id", RequestIDFrom(c.Request.Context())),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     msg,
		Code:      code,
		Timestamp: time.Now().UTC(),
	})
}

func recoverJSON(c *gin.Context, rec any) {
	writeError(c, fmt.Errorf("panic: %v", rec))
}
