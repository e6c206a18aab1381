package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renter-wizard/internal/common/logger"
	"renter-wizard/internal/models"
)

func newTestController(t *testing.T, g *fakeGateway, rec *models.ApplicationRecord, mutate func(o *Options)) (*Controller, *State) {
	t.Helper()
	surface, err := LookupSurface(SurfaceDesktop)
	require.NoError(t, err)

	state := NewState("user-1", DefaultMinResidenceMonths)
	state.InitializeFromApplication(rec)

	opts := Options{
		Surface:            surface,
		MinResidenceMonths: DefaultMinResidenceMonths,
		SubmitValidatesAll: true,
		SaveTimeout:        time.Second,
		Clock:              func() time.Time { return testToday },
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewController(state, g, opts, logger.NewTestLogger(t)), state
}

// ==========================
// Navigation
// ==========================

func TestGoTo_ValidationFailureKeepsStepAndDraft(t *testing.T) {
	g := &fakeGateway{}
	c, _ := newTestController(t, g, nil, nil)
	c.Edit(func(s *State) {
		s.SetPersonalInfo(models.PersonalInfo{FirstName: "", LastName: "Doe", DateOfBirth: "1990-05-01"})
	})
	before := c.View().Draft

	res, err := c.Next(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	var vf *ValidationFailure
	require.True(t, errors.As(err, &vf))
	assert.Equal(t, 0, vf.Step)
	assert.Contains(t, vf.Errors[SectionBasic], "firstName")

	view := c.View()
	assert.Equal(t, 0, res.To)
	assert.Equal(t, 0, view.Step)
	assert.Equal(t, before, view.Draft)
	assert.Contains(t, view.Errors[SectionBasic], "firstName")
	assert.True(t, view.Edited)
	assert.Zero(t, g.upsertCount())
}

func TestGoTo_SavesEditedDraftThenAdvances(t *testing.T) {
	g := &fakeGateway{}
	c, state := newTestController(t, g, nil, nil)
	c.Edit(func(s *State) {
		s.SetPersonalInfo(models.PersonalInfo{FirstName: "Jane", LastName: "Doe", DateOfBirth: "1990-05-01"})
	})

	res, err := c.Next(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{From: 0, To: 1, Saved: true}, res)
	assert.Equal(t, 1, c.Step())
	assert.False(t, c.IsEdited())
	assert.Equal(t, "app-new", state.ApplicationID())
	require.Equal(t, 1, g.upsertCount())
	assert.Equal(t, "Jane", g.upserts[0].PersonalInfo.FirstName)
	assert.Equal(t, []string{"app-new"}, g.checks)
	assert.Empty(t, c.View().Errors)
}

func TestGoTo_UneditedDraftSkipsNetwork(t *testing.T) {
	g := &fakeGateway{}
	c, _ := newTestController(t, g, validRecord(), nil)

	for step := 1; step < 5; step++ {
		res, err := c.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, step, res.To)
		assert.False(t, res.Saved)
	}

	assert.Zero(t, g.upsertCount())
	assert.Empty(t, g.checks)
}

func TestGoTo_PersistenceFailureKeepsEdit(t *testing.T) {
	g := &fakeGateway{upsertErr: errBackend}
	c, _ := newTestController(t, g, validRecord(), nil)
	c.Edit(func(s *State) {
		s.SetPersonalInfo(models.PersonalInfo{FirstName: "Janet", LastName: "Doe", DateOfBirth: "1990-05-01"})
	})

	_, err := c.Next(context.Background())

	assert.ErrorIs(t, err, ErrPersistenceFailed)
	assert.Equal(t, 0, c.Step())
	assert.True(t, c.IsEdited())
	assert.Equal(t, "Janet", c.View().Draft.PersonalInfo.FirstName)
	assert.False(t, c.View().Busy)

	// retrying the same transition succeeds once the backend recovers
	g.setUpsertErr(nil)
	res, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Equal(t, 2, g.upsertCount())
	assert.Equal(t, "app-1", g.upserts[1].ID)
}

func TestGoTo_CompletionCheckFailureDoesNotBlock(t *testing.T) {
	g := &fakeGateway{checkErr: errBackend}
	c, _ := newTestController(t, g, validRecord(), nil)
	c.Edit(func(s *State) { s.AddIncome(models.Income{Source: "Bonus", MonthlyAmount: 100}) })

	_, err := c.Next(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, c.Step())
}

func TestBack_ValidatesCurrentStep(t *testing.T) {
	g := &fakeGateway{}
	c, _ := newTestController(t, g, validRecord(), nil)
	_, err := c.GoTo(context.Background(), 3)
	require.NoError(t, err)

	c.Edit(func(s *State) { s.SetIncomes(nil) })
	_, err = c.Back(context.Background())

	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.Equal(t, 3, c.Step())
}

func TestGoTo_InvalidTarget(t *testing.T) {
	c, _ := newTestController(t, &fakeGateway{}, validRecord(), nil)

	_, err := c.GoTo(context.Background(), 9)
	assert.ErrorIs(t, err, ErrInvalidStep)

	_, err = c.Back(context.Background())
	assert.ErrorIs(t, err, ErrInvalidStep)
}

func TestGoTo_RejectsSecondTransitionWhileSaving(t *testing.T) {
	g := &fakeGateway{entered: make(chan struct{}), release: make(chan struct{})}
	c, state := newTestController(t, g, validRecord(), nil)
	c.Edit(func(s *State) {
		s.SetPersonalInfo(models.PersonalInfo{FirstName: "A", LastName: "Doe", DateOfBirth: "1990-05-01"})
	})

	done := make(chan error, 1)
	go func() {
		_, err := c.Next(context.Background())
		done <- err
	}()
	<-g.entered

	assert.True(t, c.View().Busy)
	_, err := c.Next(context.Background())
	assert.ErrorIs(t, err, ErrTransitionInFlight)
	_, err = c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrTransitionInFlight)

	// an edit made during the save stays unsynced
	c.Edit(func(s *State) {
		s.SetPersonalInfo(models.PersonalInfo{FirstName: "B", LastName: "Doe", DateOfBirth: "1990-05-01"})
	})
	close(g.release)

	require.NoError(t, <-done)
	assert.Equal(t, 1, c.Step())
	assert.True(t, c.IsEdited())
	assert.Equal(t, "A", state.Synced().PersonalInfo.FirstName)
	assert.Equal(t, 1, g.upsertCount())
}

func TestNext_TargetFollowsStepSeenUnderLock(t *testing.T) {
	c, _ := newTestController(t, &fakeGateway{}, validRecord(), func(o *Options) { o.DebugSkip = true })

	var wg sync.WaitGroup
	results := make(chan Result, 200)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if res, err := c.Next(context.Background()); err == nil {
					results <- res
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = c.Skip(0)
			}
		}()
	}
	wg.Wait()
	close(results)

	for res := range results {
		assert.Equal(t, res.From+1, res.To)
	}
}

// ==========================
// Skip
// ==========================

func TestSkip(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		c, _ := newTestController(t, &fakeGateway{}, nil, nil)
		_, err := c.Skip(3)
		assert.ErrorIs(t, err, ErrSkipDisabled)
		assert.Equal(t, 0, c.Step())
	})

	t.Run("debug mode bypasses validation and saving", func(t *testing.T) {
		g := &fakeGateway{}
		c, _ := newTestController(t, g, nil, func(o *Options) { o.DebugSkip = true })
		c.Edit(func(s *State) { s.SetPersonalInfo(models.PersonalInfo{LastName: "Doe"}) })

		res, err := c.Skip(3)

		require.NoError(t, err)
		assert.Equal(t, Result{From: 0, To: 3}, res)
		assert.Equal(t, 3, c.Step())
		assert.True(t, c.IsEdited())
		assert.Zero(t, g.upsertCount())

		_, err = c.Skip(-1)
		assert.ErrorIs(t, err, ErrInvalidStep)
	})
}

// ==========================
// Submit
// ==========================

func TestSubmit_WithoutChanges(t *testing.T) {
	g := &fakeGateway{}
	c, _ := newTestController(t, g, validRecord(), nil)
	_, err := c.GoTo(context.Background(), 4)
	require.NoError(t, err)

	view := c.View()
	assert.Equal(t, SubmitLabelNoChanges, view.SubmitLabel)
	assert.False(t, view.CanSubmit)

	_, err = c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNoChanges)
	assert.Zero(t, g.upsertCount())
	assert.Zero(t, g.completeCount())
}

func TestSubmit_NotOnFinalStep(t *testing.T) {
	c, _ := newTestController(t, &fakeGateway{}, validRecord(), nil)
	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotOnFinalStep)
}

func TestSubmit_SavesAndMarksComplete(t *testing.T) {
	g := &fakeGateway{}
	c, _ := newTestController(t, g, validRecord(), nil)
	_, err := c.GoTo(context.Background(), 4)
	require.NoError(t, err)
	c.Edit(func(s *State) {
		s.SetAnswers(models.Answers{Felony: models.Bool(true), FelonyExplanation: "2019 misdemeanor, dismissed", Evicted: models.Bool(false)})
	})
	assert.Equal(t, SubmitLabelReady, c.View().SubmitLabel)
	assert.True(t, c.View().CanSubmit)

	res, err := c.Submit(context.Background())

	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Equal(t, 1, g.upsertCount())
	assert.Equal(t, []string{"app-1"}, g.completes)
	view := c.View()
	assert.True(t, view.Submitted)
	assert.False(t, view.Edited)
	assert.Equal(t, SubmitLabelNoChanges, view.SubmitLabel)
}

func TestSubmit_MarkCompleteFailureIsRetryable(t *testing.T) {
	g := &fakeGateway{completeErr: errBackend}
	c, _ := newTestController(t, g, validRecord(), nil)
	_, err := c.GoTo(context.Background(), 4)
	require.NoError(t, err)
	c.Edit(func(s *State) { s.SetAnswers(models.Answers{Felony: models.Bool(false), Evicted: models.Bool(false), EvictedExplanation: "n/a"}) })

	_, err = c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitFailed)
	assert.False(t, c.IsEdited(), "the draft itself was saved")
	assert.Equal(t, SubmitLabelReady, c.View().SubmitLabel)
	assert.False(t, c.View().Submitted)

	g.setCompleteErr(nil)
	res, err := c.Submit(context.Background())

	require.NoError(t, err)
	assert.False(t, res.Saved)
	assert.Equal(t, 1, g.upsertCount(), "no second upsert")
	assert.Equal(t, 2, g.completeCount())
	assert.True(t, c.View().Submitted)
}

func TestSubmit_UpsertFailure(t *testing.T) {
	g := &fakeGateway{upsertErr: errBackend}
	c, _ := newTestController(t, g, validRecord(), nil)
	_, err := c.GoTo(context.Background(), 4)
	require.NoError(t, err)
	c.Edit(func(s *State) { s.SetAnswers(models.Answers{Felony: models.Bool(false)}) })

	_, err = c.Submit(context.Background())

	assert.ErrorIs(t, err, ErrSubmitFailed)
	assert.True(t, c.IsEdited())
	assert.Zero(t, g.completeCount())
}

func TestSubmit_RevalidatesEarlierSteps(t *testing.T) {
	skipTo := func(c *Controller) {
		_, err := c.Skip(4)
		require.NoError(t, err)
		c.Edit(func(s *State) { s.SetIncomes(nil) })
	}

	t.Run("all sections", func(t *testing.T) {
		g := &fakeGateway{}
		c, _ := newTestController(t, g, validRecord(), func(o *Options) { o.DebugSkip = true })
		skipTo(c)

		_, err := c.Submit(context.Background())

		var vf *ValidationFailure
		require.True(t, errors.As(err, &vf))
		assert.Equal(t, 3, vf.FirstInvalidStep)
		assert.Contains(t, vf.Errors, SectionIncome)
		assert.Equal(t, 4, c.Step())
		assert.Zero(t, g.upsertCount())
	})

	t.Run("final step only", func(t *testing.T) {
		g := &fakeGateway{}
		c, _ := newTestController(t, g, validRecord(), func(o *Options) {
			o.DebugSkip = true
			o.SubmitValidatesAll = false
		})
		skipTo(c)

		_, err := c.Submit(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, g.completeCount())
	})
}

// ==========================
// Construction
// ==========================

func TestNewController_Defaults(t *testing.T) {
	state := NewState("user-1", 0)
	c := NewController(state, &fakeGateway{}, Options{}, logger.NewNoOpLogger())

	view := c.View()
	assert.Equal(t, SurfaceDesktop, view.Surface)
	assert.Len(t, view.Steps, 5)
	assert.Equal(t, "basic", view.StepName)
	assert.Equal(t, "user-1", view.UserID)
}

func TestInstrument_PassesThrough(t *testing.T) {
	g := &fakeGateway{record: validRecord()}
	rec := &callRecorder{}
	gw := Instrument(g, rec)

	got, err := gw.Fetch(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "app-1", got.ID)

	missing, err := gw.Fetch(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	g.upsertErr = errBackend
	_, err = gw.Upsert(context.Background(), models.UpsertPayload{UserID: "user-1"})
	assert.ErrorIs(t, err, errBackend)

	assert.NoError(t, gw.MarkComplete(context.Background(), "app-1"))
	assert.NoError(t, gw.CheckCompletion(context.Background(), "app-1"))

	assert.Equal(t, []string{"fetch:success", "fetch:success", "upsert:error", "mark_complete:success", "check_completion:success"}, rec.calls)
}

type callRecorder struct {
	calls []string
}

func (r *callRecorder) RecordGatewayCall(_ context.Context, operation, status string, _ time.Duration) {
	r.calls = append(r.calls, operation+":"+status)
}
