// internal/common/errors/handler.go
package errors

import (
	"github.com/gin-gonic/gin"
)

// ErrorHandler writes errors as JSON responses.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	Code      ErrorCode              `json:"code"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Respond normalizes err, logs it and aborts the request with the mapped
// status. Client errors are logged at warn, everything else at error.
func (h *ErrorHandler) Respond(c *gin.Context, err error) {
	stdErr := AsStandardError(err)
	status := HTTPStatus(stdErr.Code)

	h.logError(c, stdErr, status)

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     stdErr.Message,
		Message:   stdErr.Details,
		Code:      stdErr.Code,
		Retryable: stdErr.Retryable,
		Metadata:  stdErr.Metadata,
	})
}

func (h *ErrorHandler) logError(c *gin.Context, stdErr *StandardError, status int) {
	if h.logger == nil {
		return
	}
	fields := map[string]interface{}{
		"errorCode": string(stdErr.Code),
		"category":  GetErrorCategory(stdErr.Code),
		"status":    status,
		"path":      c.FullPath(),
		"method":    c.Request.Method,
		"details":   stdErr.Details,
	}
	if status >= 500 {
		h.logger.Error("request failed", fields)
		return
	}
	h.logger.Warn("request rejected", fields)
}
