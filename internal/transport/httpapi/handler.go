// internal/transport/httpapi/handler.go
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "renter-wizard/internal/common/errors"
	"renter-wizard/internal/common/logger"
	"renter-wizard/internal/common/validation"
	"renter-wizard/internal/models"
	"renter-wizard/internal/wizard"
	"renter-wizard/internal/wizard/session"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// PostgresCheck reports a failed ping as a database connection failure.
func PostgresCheck(ping func(ctx context.Context) error) HealthCheck {
	return HealthCheck{Name: "postgres", Check: func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return apperrors.NewDatabaseConnectionFailedError(err)
		}
		return nil
	}}
}

// RedisCheck reports a failed ping as a cache connection failure.
func RedisCheck(ping func(ctx context.Context) error) HealthCheck {
	return HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return apperrors.NewCacheConnectionFailedError(err)
		}
		return nil
	}}
}

// Handler serves the wizard API on top of a session registry.
type Handler struct {
	sessions *session.Registry
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
	service  string
	checks   []HealthCheck
}

func NewHandler(sessions *session.Registry, service string, log logger.Logger, checks ...HealthCheck) *Handler {
	log = log.WithFields(map[string]interface{}{"component": "http"})
	return &Handler{
		sessions: sessions,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
		service:  service,
		checks:   checks,
	}
}

type openSessionRequest struct {
	UserID  string `json:"userId"`
	Surface string `json:"surface"`
}

type transitionRequest struct {
	Target    *int   `json:"target"`
	Direction string `json:"direction"`
}

type skipRequest struct {
	Target int `json:"target"`
}

type sessionResponse struct {
	SessionID string      `json:"sessionId"`
	View      wizard.View `json:"view"`
}

type transitionResponse struct {
	SessionID string        `json:"sessionId"`
	Result    wizard.Result `json:"result"`
	View      wizard.View   `json:"view"`
}

type closeResponse struct {
	SessionID      string `json:"sessionId"`
	DiscardedEdits bool   `json:"discardedEdits"`
}

// ==========================
// Sessions
// ==========================

// OpenSession handles POST /sessions.
func (h *Handler) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if !h.bind(c, openSessionSchema, &req) {
		return
	}

	s, err := h.sessions.Open(c.Request.Context(), req.UserID, req.Surface)
	if err != nil {
		if !errors.Is(err, wizard.ErrUnknownSurface) {
			err = apperrors.NewApplicationFetchError(err)
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{SessionID: s.ID, View: s.Controller.View()})
}

// GetSession handles GET /sessions/:id.
func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionResponse{SessionID: s.ID, View: s.Controller.View()})
}

// CloseSession handles DELETE /sessions/:id. Unsaved edits are dropped.
func (h *Handler) CloseSession(c *gin.Context) {
	id := c.Param("id")
	discarded, err := h.sessions.Close(id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			err = apperrors.NewSessionNotFoundError(id)
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, closeResponse{SessionID: id, DiscardedEdits: discarded})
}

// ==========================
// Field edits
// ==========================

func (h *Handler) SetPersonalInfo(c *gin.Context) {
	var info models.PersonalInfo
	h.edit(c, personalInfoSchema, &info, func(st *wizard.State) error {
		st.SetPersonalInfo(info)
		return nil
	})
}

func (h *Handler) SetIdentifications(c *gin.Context) {
	var ids []models.Identification
	h.edit(c, identificationsSchema, &ids, func(st *wizard.State) error {
		st.SetIdentifications(ids)
		return nil
	})
}

func (h *Handler) AddIdentification(c *gin.Context) {
	var id models.Identification
	h.edit(c, identificationSchema, &id, func(st *wizard.State) error {
		st.AddIdentification(id)
		return nil
	})
}

func (h *Handler) RemoveIdentification(c *gin.Context) {
	index, ok := h.index(c, "identifications")
	if !ok {
		return
	}
	h.edit(c, nil, nil, func(st *wizard.State) error {
		if !st.RemoveIdentification(index) {
			return apperrors.NewInvalidIndexError("identifications", index)
		}
		return nil
	})
}

func (h *Handler) SetPrimaryIdentification(c *gin.Context) {
	index, ok := h.index(c, "identifications")
	if !ok {
		return
	}
	h.edit(c, nil, nil, func(st *wizard.State) error {
		if !st.SetPrimaryIdentification(index) {
			return apperrors.NewInvalidIndexError("identifications", index)
		}
		return nil
	})
}

func (h *Handler) SetResidence(c *gin.Context) {
	index, ok := h.index(c, "residentialHistory")
	if !ok {
		return
	}
	var r models.Residence
	h.edit(c, residenceSchema, &r, func(st *wizard.State) error {
		if !st.SetResidence(index, r) {
			return apperrors.NewInvalidIndexError("residentialHistory", index)
		}
		return nil
	})
}

func (h *Handler) RemoveResidence(c *gin.Context) {
	index, ok := h.index(c, "residentialHistory")
	if !ok {
		return
	}
	h.edit(c, nil, nil, func(st *wizard.State) error {
		if !st.RemoveResidence(index) {
			return apperrors.NewInvalidIndexError("residentialHistory", index)
		}
		return nil
	})
}

func (h *Handler) SetIncomes(c *gin.Context) {
	var incomes []models.Income
	h.edit(c, incomesSchema, &incomes, func(st *wizard.State) error {
		st.SetIncomes(incomes)
		return nil
	})
}

func (h *Handler) AddIncome(c *gin.Context) {
	var inc models.Income
	h.edit(c, incomeSchema, &inc, func(st *wizard.State) error {
		st.AddIncome(inc)
		return nil
	})
}

func (h *Handler) RemoveIncome(c *gin.Context) {
	index, ok := h.index(c, "incomes")
	if !ok {
		return
	}
	h.edit(c, nil, nil, func(st *wizard.State) error {
		if !st.RemoveIncome(index) {
			return apperrors.NewInvalidIndexError("incomes", index)
		}
		return nil
	})
}

func (h *Handler) SetAnswers(c *gin.Context) {
	var answers models.Answers
	h.edit(c, answersSchema, &answers, func(st *wizard.State) error {
		st.SetAnswers(answers)
		return nil
	})
}

// ==========================
// Navigation
// ==========================

// Transition handles POST /sessions/:id/transitions with either an absolute
// target or a direction.
func (h *Handler) Transition(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req transitionRequest
	if !h.bind(c, transitionSchema, &req) {
		return
	}

	ctx := c.Request.Context()
	var (
		res wizard.Result
		err error
	)
	switch {
	case req.Target != nil:
		res, err = s.Controller.GoTo(ctx, *req.Target)
	case req.Direction == "back":
		res, err = s.Controller.Back(ctx)
	default:
		res, err = s.Controller.Next(ctx)
	}
	h.respondTransition(c, s, res, err)
}

func (h *Handler) Skip(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req skipRequest
	if !h.bind(c, skipSchema, &req) {
		return
	}
	res, err := s.Controller.Skip(req.Target)
	h.respondTransition(c, s, res, err)
}

func (h *Handler) Submit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, err := s.Controller.Submit(c.Request.Context())
	h.respondTransition(c, s, res, err)
}

// ==========================
// Health
// ==========================

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]interface{}, len(h.checks))
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			stdErr := apperrors.AsStandardError(err)
			deps[check.Name] = gin.H{
				"status":    "down",
				"code":      stdErr.Code,
				"details":   stdErr.Details,
				"retryable": stdErr.Retryable,
			}
			status = http.StatusServiceUnavailable
			h.logger.Warn("dependency health check failed", map[string]interface{}{
				"dependency": check.Name,
				"errorCode":  string(stdErr.Code),
				"error":      err.Error(),
			})
			continue
		}
		deps[check.Name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"service":      h.service,
		"sessions":     h.sessions.Len(),
		"dependencies": deps,
	})
}

// ==========================
// Helpers
// ==========================

func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	id := c.Param("id")
	s, err := h.sessions.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			err = apperrors.NewSessionNotFoundError(id)
		}
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

// edit validates and decodes the body into dst when a schema is given, then
// applies fn to the session's draft and returns the new view.
func (h *Handler) edit(c *gin.Context, schema *validation.Schema, dst interface{}, fn func(st *wizard.State) error) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if schema != nil && !h.bind(c, schema, dst) {
		return
	}

	var editErr error
	s.Controller.Edit(func(st *wizard.State) {
		editErr = fn(st)
	})
	if editErr != nil {
		h.fail(c, editErr)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{SessionID: s.ID, View: s.Controller.View()})
}

// bind checks the raw body against schema and decodes it into dst.
func (h *Handler) bind(c *gin.Context, schema *validation.Schema, dst interface{}) bool {
	body, err := c.GetRawData()
	if err != nil {
		h.fail(c, apperrors.NewInvalidRequestError(err.Error()))
		return false
	}
	if len(body) == 0 {
		h.fail(c, apperrors.NewInvalidRequestError("request body is required"))
		return false
	}

	result, err := schema.ValidateBytes(body)
	if err != nil {
		h.fail(c, apperrors.NewInvalidRequestError("request body is not valid JSON"))
		return false
	}
	if !result.Valid {
		h.fail(c, apperrors.NewSchemaViolationError(result.GetErrorMessages()).WithMetadata("schema", schema.Name()))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		h.fail(c, apperrors.NewInvalidRequestError(err.Error()))
		return false
	}
	return true
}

func (h *Handler) index(c *gin.Context, collection string) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		h.fail(c, apperrors.NewInvalidIndexError(collection, index))
		return 0, false
	}
	return index, true
}

func (h *Handler) respondTransition(c *gin.Context, s *session.Session, res wizard.Result, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, transitionResponse{SessionID: s.ID, Result: res, View: s.Controller.View()})
}

func (h *Handler) fail(c *gin.Context, err error) {
	h.errors.Respond(c, toStandardError(err))
}

// toStandardError maps wizard and session failures onto API error codes.
func toStandardError(err error) error {
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}

	var vf *wizard.ValidationFailure
	if errors.As(err, &vf) {
		return apperrors.NewWizardError(apperrors.ErrCodeStepValidation, err).
			WithMetadata("step", vf.Step).
			WithMetadata("firstInvalidStep", vf.FirstInvalidStep).
			WithMetadata("errors", vf.Errors)
	}

	codes := []struct {
		target error
		code   apperrors.ErrorCode
	}{
		{wizard.ErrUnknownSurface, apperrors.ErrCodeUnknownSurface},
		{wizard.ErrInvalidStep, apperrors.ErrCodeInvalidStep},
		{wizard.ErrTransitionInFlight, apperrors.ErrCodeTransitionBusy},
		{wizard.ErrPersistenceFailed, apperrors.ErrCodePersistFailed},
		{wizard.ErrSubmitFailed, apperrors.ErrCodeSubmitFailed},
		{wizard.ErrSkipDisabled, apperrors.ErrCodeSkipDisabled},
		{wizard.ErrNoChanges, apperrors.ErrCodeNoChanges},
		{wizard.ErrNotOnFinalStep, apperrors.ErrCodeNotOnFinalStep},
	}
	for _, m := range codes {
		if errors.Is(err, m.target) {
			return apperrors.NewWizardError(m.code, err)
		}
	}
	return apperrors.NewInternalError(err)
}
