package session

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
	"renter-wizard/internal/wizard"
)

type stubGateway struct {
	records  map[string]*models.ApplicationRecord
	fetchErr error
}

func (g *stubGateway) Fetch(_ context.Context, userID string) (*models.ApplicationRecord, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return g.records[userID], nil
}

func (g *stubGateway) Upsert(_ context.Context, p models.UpsertPayload) (string, error) {
	return "app-" + p.UserID, nil
}

func (g *stubGateway) MarkComplete(context.Context, string) error    { return nil }
func (g *stubGateway) CheckCompletion(context.Context, string) error { return nil }

type openCounter struct {
	mu       sync.Mutex
	surfaces []string
}

func (c *openCounter) RecordSessionOpened(_ context.Context, surface string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surfaces = append(c.surfaces, surface)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T, g wizard.Gateway) (*Registry, *fakeClock, *openCounter) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
	counter := &openCounter{}
	r := NewRegistry(g, Config{
		DefaultSurface:     wizard.SurfaceDesktop,
		MinResidenceMonths: 24,
		SubmitValidatesAll: true,
		TTL:                10 * time.Minute,
		Clock:              clock.Now,
	}, logger.NewTestLogger(t), counter)
	return r, clock, counter
}

func TestOpen_NewApplication(t *testing.T) {
	r, _, counter := newTestRegistry(t, &stubGateway{})

	s, err := r.Open(context.Background(), "user-1", "")

	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, wizard.SurfaceDesktop, s.Surface)
	view := s.Controller.View()
	assert.Empty(t, view.ApplicationID)
	assert.Equal(t, 0, view.Step)
	assert.False(t, view.Edited)
	assert.Equal(t, []string{"desktop"}, counter.surfaces)
	assert.Equal(t, 1, r.Len())
}

func TestOpen_ResumesStoredApplication(t *testing.T) {
	g := &stubGateway{records: map[string]*models.ApplicationRecord{
		"user-1": {
			ID:     "app-9",
			UserID: "user-1",
			ApplicationDraft: models.ApplicationDraft{
				PersonalInfo: models.PersonalInfo{FirstName: "Jane"},
			},
		},
	}}
	r, _, _ := newTestRegistry(t, g)

	s, err := r.Open(context.Background(), "user-1", wizard.SurfaceMobile)

	require.NoError(t, err)
	view := s.Controller.View()
	assert.Equal(t, "app-9", view.ApplicationID)
	assert.Equal(t, "Jane", view.Draft.PersonalInfo.FirstName)
	assert.Len(t, view.Steps, 6)
}

func TestOpen_Errors(t *testing.T) {
	r, _, _ := newTestRegistry(t, &stubGateway{fetchErr: errors.New("db down")})

	_, err := r.Open(context.Background(), "user-1", "")
	assert.ErrorContains(t, err, "db down")

	_, err = r.Open(context.Background(), "user-1", "kiosk")
	assert.ErrorIs(t, err, wizard.ErrUnknownSurface)
	assert.Zero(t, r.Len())
}

func TestOpen_ReplacesSessionForSameUser(t *testing.T) {
	r, _, _ := newTestRegistry(t, &stubGateway{})

	first, err := r.Open(context.Background(), "user-1", "")
	require.NoError(t, err)
	second, err := r.Open(context.Background(), "user-1", "")
	require.NoError(t, err)

	_, err = r.Get(first.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	got, err := r.Get(second.ID)
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Len())
}

func TestGet_ExpiresIdleSession(t *testing.T) {
	r, clock, _ := newTestRegistry(t, &stubGateway{})
	s, err := r.Open(context.Background(), "user-1", "")
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	_, err = r.Get(s.ID)
	require.NoError(t, err, "access refreshes the idle timer")

	clock.Advance(9 * time.Minute)
	_, err = r.Get(s.ID)
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestClose_ReportsDiscardedEdits(t *testing.T) {
	r, _, _ := newTestRegistry(t, &stubGateway{})
	clean, err := r.Open(context.Background(), "user-1", "")
	require.NoError(t, err)
	dirty, err := r.Open(context.Background(), "user-2", "")
	require.NoError(t, err)
	dirty.Controller.Edit(func(s *wizard.State) {
		s.SetPersonalInfo(models.PersonalInfo{FirstName: "Unsaved"})
	})

	discarded, err := r.Close(clean.ID)
	require.NoError(t, err)
	assert.False(t, discarded)

	discarded, err = r.Close(dirty.ID)
	require.NoError(t, err)
	assert.True(t, discarded)

	_, err = r.Close(dirty.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSweep(t *testing.T) {
	r, clock, _ := newTestRegistry(t, &stubGateway{})
	old, err := r.Open(context.Background(), "user-1", "")
	require.NoError(t, err)

	clock.Advance(8 * time.Minute)
	fresh, err := r.Open(context.Background(), "user-2", "")
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, r.Sweep(clock.Now()))

	_, err = r.Get(old.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	r, _, _ := newTestRegistry(t, &stubGateway{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
