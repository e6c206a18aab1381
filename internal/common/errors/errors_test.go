package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Constructors
// ==========================

func TestNewWizardError_UsesSentinelMessage(t *testing.T) {
	sentinel := stderrors.New("failed to save changes")
	err := NewWizardError(ErrCodePersistFailed, fmt.Errorf("%w: connection reset", sentinel))

	assert.Equal(t, ErrCodePersistFailed, err.Code)
	assert.Equal(t, "failed to save changes", err.Message)
	assert.Equal(t, "failed to save changes: connection reset", err.Details)
	assert.True(t, err.Retryable)
	assert.True(t, stderrors.Is(err, sentinel))
}

func TestNewSchemaViolationError(t *testing.T) {
	err := NewSchemaViolationError([]string{"userId: is required", "surface: invalid"})

	assert.Equal(t, ErrCodeSchemaViolation, err.Code)
	assert.Equal(t, "userId: is required; surface: invalid", err.Details)
	assert.Equal(t, []string{"userId: is required", "surface: invalid"}, err.Metadata["violations"])
	assert.False(t, err.Retryable)
}

func TestAsStandardError(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewSessionNotFoundError("abc"))
	assert.Equal(t, ErrCodeSessionNotFound, AsStandardError(wrapped).Code)

	plain := AsStandardError(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.Equal(t, "boom", plain.Details)
}

// ==========================
// Mapping
// ==========================

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeSchemaViolation, http.StatusBadRequest},
		{ErrCodeSessionNotFound, http.StatusNotFound},
		{ErrCodeSkipDisabled, http.StatusForbidden},
		{ErrCodeTransitionBusy, http.StatusConflict},
		{ErrCodeStepValidation, http.StatusUnprocessableEntity},
		{ErrCodePersistFailed, http.StatusBadGateway},
		{ErrCodeDatabaseConnectionFailed, http.StatusServiceUnavailable},
		{ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatus(tt.code))
		})
	}
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "STORAGE", GetErrorCategory(ErrCodeCacheConnectionFailed))
	assert.Equal(t, "PERSISTENCE", GetErrorCategory(ErrCodeSubmitFailed))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeStepValidation))
	assert.Equal(t, "NAVIGATION", GetErrorCategory(ErrCodeTransitionBusy))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

// ==========================
// Handler
// ==========================

type recordingLogger struct {
	warns  []string
	errors []string
}

func (l *recordingLogger) Warn(msg string, _ map[string]interface{})  { l.warns = append(l.warns, msg) }
func (l *recordingLogger) Error(msg string, _ map[string]interface{}) { l.errors = append(l.errors, msg) }

func TestErrorHandler_Respond(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := &recordingLogger{}
	h := NewErrorHandler(log)

	r := gin.New()
	r.GET("/missing", func(c *gin.Context) { h.Respond(c, NewSessionNotFoundError("s1")) })
	r.GET("/broken", func(c *gin.Context) { h.Respond(c, stderrors.New("boom")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, ErrCodeSessionNotFound, body.Code)
	assert.Equal(t, "Wizard session not found", body.Error)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/broken", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	assert.Equal(t, []string{"request rejected"}, log.warns)
	assert.Equal(t, []string{"request failed"}, log.errors)
}
