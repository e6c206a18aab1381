// internal/wizard/controller.go
package wizard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"renter-wizard/internal/common/logger"
	"renter-wizard/internal/common/metrics"
	"renter-wizard/internal/models"
)

const (
	SubmitLabelReady     = "Submit"
	SubmitLabelNoChanges = "No Changes"
)

// Options configures a Controller.
type Options struct {
	Surface            Surface
	MinResidenceMonths int
	// DebugSkip enables Skip, which moves between steps without validating
	// or saving.
	DebugSkip bool
	// SubmitValidatesAll re-validates every section on submit instead of only
	// the final step.
	SubmitValidatesAll bool
	SaveTimeout        time.Duration
	Clock              func() time.Time
}

// Result describes a finished transition.
type Result struct {
	From  int  `json:"from"`
	To    int  `json:"to"`
	Saved bool `json:"saved"`
}

// View is a point-in-time copy of everything a client renders.
type View struct {
	ApplicationID string                  `json:"applicationId,omitempty"`
	UserID        string                  `json:"userId"`
	Surface       string                  `json:"surface"`
	Steps         []Step                  `json:"steps"`
	Step          int                     `json:"step"`
	StepName      string                  `json:"stepName"`
	Draft         models.ApplicationDraft `json:"draft"`
	Errors        map[Section]ErrorMap    `json:"errors"`
	Edited        bool                    `json:"edited"`
	Busy          bool                    `json:"busy"`
	Submitted     bool                    `json:"submitted"`
	CanSubmit     bool                    `json:"canSubmit"`
	SubmitLabel   string                  `json:"submitLabel"`
	TenancyMonths int                     `json:"tenancyMonths"`
}

// Controller drives one application through the wizard steps. Every
// transition validates the step being left, saves the draft when it changed,
// and only then moves. One transition runs at a time; a second one started
// while a save is in flight fails with ErrTransitionInFlight.
type Controller struct {
	mu      sync.Mutex
	state   *State
	gateway Gateway
	opts    Options
	logger  logger.Logger

	step            int
	busy            bool
	pendingComplete bool
	submitted       bool
}

func NewController(state *State, gateway Gateway, opts Options, log logger.Logger) *Controller {
	if opts.Surface.Len() == 0 {
		opts.Surface, _ = LookupSurface(SurfaceDesktop)
	}
	if opts.MinResidenceMonths <= 0 {
		opts.MinResidenceMonths = DefaultMinResidenceMonths
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Controller{
		state:   state,
		gateway: gateway,
		opts:    opts,
		logger: log.WithFields(map[string]interface{}{
			"component": "wizard",
			"userId":    state.UserID(),
			"surface":   opts.Surface.Name,
		}),
	}
}

// Edit applies fn to the working draft. Edits are accepted while a save is in
// flight; they stay unsynced until the next successful save.
func (c *Controller) Edit(fn func(s *State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.state)
}

func (c *Controller) Step() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

func (c *Controller) IsEdited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsEdited()
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	edited := c.state.IsEdited()
	draft := c.state.Draft()
	label := SubmitLabelNoChanges
	if edited || c.pendingComplete {
		label = SubmitLabelReady
	}
	return View{
		ApplicationID: c.state.ApplicationID(),
		UserID:        c.state.UserID(),
		Surface:       c.opts.Surface.Name,
		Steps:         c.opts.Surface.Steps,
		Step:          c.step,
		StepName:      c.opts.Surface.Steps[c.step].Name,
		Draft:         draft,
		Errors:        c.state.Errors(),
		Edited:        edited,
		Busy:          c.busy,
		Submitted:     c.submitted,
		CanSubmit:     c.step == c.opts.Surface.Last() && label == SubmitLabelReady && !c.busy,
		SubmitLabel:   label,
		TenancyMonths: TotalTenancyMonths(draft.ResidentialHistory),
	}
}

// Next moves one step forward.
func (c *Controller) Next(ctx context.Context) (Result, error) {
	return c.transition(ctx, func(from int) int { return from + 1 })
}

// Back moves one step back. Leaving a step validates it in either direction.
func (c *Controller) Back(ctx context.Context) (Result, error) {
	return c.transition(ctx, func(from int) int { return from - 1 })
}

// GoTo validates the current step, saves the draft if it changed and then
// moves to target. On any failure the step and the working draft are left
// untouched so the same call can be retried.
func (c *Controller) GoTo(ctx context.Context, target int) (Result, error) {
	return c.transition(ctx, func(int) int { return target })
}

// transition resolves the target from the step read under the same lock
// that guards the move.
func (c *Controller) transition(ctx context.Context, targetFrom func(from int) int) (Result, error) {
	c.mu.Lock()
	from := c.step
	target := targetFrom(from)
	if c.busy {
		c.mu.Unlock()
		c.count("busy")
		return Result{From: from, To: from}, ErrTransitionInFlight
	}
	if target < 0 || target >= c.opts.Surface.Len() {
		c.mu.Unlock()
		return Result{From: from, To: from}, fmt.Errorf("%w: %d", ErrInvalidStep, target)
	}

	if failing := c.validateSteps(from); len(failing) > 0 {
		c.mu.Unlock()
		c.count("validation_failed")
		return Result{From: from, To: from}, &ValidationFailure{Step: from, FirstInvalidStep: from, Errors: failing}
	}

	if !c.state.IsEdited() {
		c.step = target
		c.mu.Unlock()
		c.count("advanced")
		return Result{From: from, To: target}, nil
	}

	payload := c.state.Payload()
	c.busy = true
	c.mu.Unlock()

	id, err := c.save(ctx, payload)
	if err != nil {
		c.release()
		c.count("persist_failed")
		c.logger.Error("failed to save application", map[string]interface{}{
			"step":  from,
			"error": err.Error(),
		})
		return Result{From: from, To: from}, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	c.mu.Lock()
	c.state.setApplicationID(id)
	c.state.markSyncedTo(payload.ApplicationDraft)
	appID := c.state.ApplicationID()
	c.mu.Unlock()

	c.checkCompletion(ctx, appID)

	c.mu.Lock()
	c.step = target
	c.busy = false
	c.mu.Unlock()

	c.count("saved")
	c.logger.Info("application saved", map[string]interface{}{
		"applicationId": appID,
		"from":          from,
		"to":            target,
	})
	return Result{From: from, To: target, Saved: true}, nil
}

// Skip changes the visible step without validating or saving. It only works
// when the controller was built with DebugSkip.
func (c *Controller) Skip(target int) (Result, error) {
	if !c.opts.DebugSkip {
		return Result{}, ErrSkipDisabled
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	from := c.step
	if c.busy {
		return Result{From: from, To: from}, ErrTransitionInFlight
	}
	if target < 0 || target >= c.opts.Surface.Len() {
		return Result{From: from, To: from}, fmt.Errorf("%w: %d", ErrInvalidStep, target)
	}
	c.step = target
	c.count("skipped")
	c.logger.Warn("step skipped without validation", map[string]interface{}{
		"from": from,
		"to":   target,
	})
	return Result{From: from, To: target}, nil
}

// Submit saves the draft from the final step and marks the application
// complete. Without changes since the last save there is nothing to submit,
// unless a previous submit saved the draft but failed to mark it complete.
func (c *Controller) Submit(ctx context.Context) (Result, error) {
	c.mu.Lock()
	from := c.step
	if c.busy {
		c.mu.Unlock()
		c.count("busy")
		return Result{From: from, To: from}, ErrTransitionInFlight
	}
	if from != c.opts.Surface.Last() {
		c.mu.Unlock()
		return Result{From: from, To: from}, ErrNotOnFinalStep
	}

	edited := c.state.IsEdited()
	if !edited && !c.pendingComplete {
		c.mu.Unlock()
		c.count("no_changes")
		return Result{From: from, To: from}, ErrNoChanges
	}

	steps := []int{from}
	if c.opts.SubmitValidatesAll {
		steps = steps[:0]
		for i := range c.opts.Surface.Steps {
			steps = append(steps, i)
		}
	}
	if failing, first := c.validateAll(steps); len(failing) > 0 {
		c.mu.Unlock()
		c.count("validation_failed")
		return Result{From: from, To: from}, &ValidationFailure{Step: from, FirstInvalidStep: first, Errors: failing}
	}

	payload := c.state.Payload()
	appID := c.state.ApplicationID()
	c.busy = true
	c.mu.Unlock()

	saved := false
	if edited {
		id, err := c.save(ctx, payload)
		if err != nil {
			c.release()
			c.count("submit_failed")
			c.logger.Error("failed to save application on submit", map[string]interface{}{
				"error": err.Error(),
			})
			return Result{From: from, To: from}, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
		}
		c.mu.Lock()
		c.state.setApplicationID(id)
		c.state.markSyncedTo(payload.ApplicationDraft)
		c.pendingComplete = true
		appID = c.state.ApplicationID()
		c.mu.Unlock()
		saved = true
	}

	if err := c.markComplete(ctx, appID); err != nil {
		c.release()
		c.count("submit_failed")
		c.logger.Error("failed to mark application complete", map[string]interface{}{
			"applicationId": appID,
			"error":         err.Error(),
		})
		return Result{From: from, To: from, Saved: saved}, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	c.mu.Lock()
	c.pendingComplete = false
	c.submitted = true
	c.busy = false
	c.mu.Unlock()

	c.count("submitted")
	c.logger.Info("application submitted", map[string]interface{}{
		"applicationId": appID,
	})
	return Result{From: from, To: from, Saved: saved}, nil
}

// validateSteps runs the validators of one step and stores their output.
// Callers hold c.mu.
func (c *Controller) validateSteps(step int) map[Section]ErrorMap {
	failing, _ := c.validateAll([]int{step})
	return failing
}

func (c *Controller) validateAll(steps []int) (map[Section]ErrorMap, int) {
	policy := Policy{
		MinResidenceMonths: c.opts.MinResidenceMonths,
		Today:              c.opts.Clock(),
	}
	failing := make(map[Section]ErrorMap)
	first := -1
	for _, step := range steps {
		for _, section := range c.opts.Surface.Steps[step].Sections {
			errs := Validate(section, c.state.draftRef(), policy)
			c.state.SetErrors(section, errs)
			if len(errs) > 0 {
				failing[section] = errs
				if first < 0 {
					first = step
				}
			}
		}
	}
	return failing, first
}

func (c *Controller) save(ctx context.Context, payload models.UpsertPayload) (string, error) {
	if c.opts.SaveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SaveTimeout)
		defer cancel()
	}
	return c.gateway.Upsert(ctx, payload)
}

func (c *Controller) markComplete(ctx context.Context, appID string) error {
	if appID == "" {
		return fmt.Errorf("application has not been saved")
	}
	if c.opts.SaveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SaveTimeout)
		defer cancel()
	}
	return c.gateway.MarkComplete(ctx, appID)
}

// checkCompletion lets the store refresh its completeness flag. Failures
// do not affect the transition.
func (c *Controller) checkCompletion(ctx context.Context, appID string) {
	if appID == "" {
		return
	}
	if c.opts.SaveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SaveTimeout)
		defer cancel()
	}
	if err := c.gateway.CheckCompletion(ctx, appID); err != nil {
		c.logger.Warn("completion check failed", map[string]interface{}{
			"applicationId": appID,
			"error":         err.Error(),
		})
	}
}

func (c *Controller) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

func (c *Controller) count(outcome string) {
	metrics.WizardTransitions.WithLabelValues(c.opts.Surface.Name, outcome).Inc()
}
