// internal/wizard/session/registry.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"renter-wizard/internal/common/logger"
	"renter-wizard/internal/common/metrics"
	"renter-wizard/internal/wizard"
)

var ErrSessionNotFound = errors.New("session not found")

// Config carries the wizard policy applied to every new session.
type Config struct {
	DefaultSurface     string
	MinResidenceMonths int
	DebugSkip          bool
	SubmitValidatesAll bool
	SaveTimeout        time.Duration
	TTL                time.Duration
	Clock              func() time.Time
}

// OpenRecorder is notified about every opened session.
type OpenRecorder interface {
	RecordSessionOpened(ctx context.Context, surface string)
}

// Session is one renter working through the wizard.
type Session struct {
	ID       string
	UserID   string
	Surface  string
	OpenedAt time.Time

	Controller *wizard.Controller

	lastSeen time.Time
}

// Registry owns every open session. A user has at most one session; opening
// a new one replaces the previous one and drops its unsaved edits.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byUser   map[string]string

	gateway  wizard.Gateway
	cfg      Config
	logger   logger.Logger
	recorder OpenRecorder
}

func NewRegistry(gateway wizard.Gateway, cfg Config, log logger.Logger, recorder OpenRecorder) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]string),
		gateway:  gateway,
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"component": "session-registry"}),
		recorder: recorder,
	}
}

// Open loads the user's stored application, or starts an empty one, and
// returns a new session positioned on the first step.
func (r *Registry) Open(ctx context.Context, userID, surfaceName string) (*Session, error) {
	if surfaceName == "" {
		surfaceName = r.cfg.DefaultSurface
	}
	surface, err := wizard.LookupSurface(surfaceName)
	if err != nil {
		return nil, err
	}

	record, err := r.gateway.Fetch(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch application for %s: %w", userID, err)
	}

	state := wizard.NewState(userID, r.cfg.MinResidenceMonths)
	state.InitializeFromApplication(record)

	ctrl := wizard.NewController(state, r.gateway, wizard.Options{
		Surface:            surface,
		MinResidenceMonths: r.cfg.MinResidenceMonths,
		DebugSkip:          r.cfg.DebugSkip,
		SubmitValidatesAll: r.cfg.SubmitValidatesAll,
		SaveTimeout:        r.cfg.SaveTimeout,
		Clock:              r.cfg.Clock,
	}, r.logger)

	now := r.cfg.Clock()
	s := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		Surface:    surface.Name,
		OpenedAt:   now,
		Controller: ctrl,
		lastSeen:   now,
	}

	r.mu.Lock()
	if prev, ok := r.byUser[userID]; ok {
		r.removeLocked(prev, "replaced")
	}
	r.sessions[s.ID] = s
	r.byUser[userID] = s.ID
	r.mu.Unlock()

	metrics.WizardSessionsActive.Inc()
	if r.recorder != nil {
		r.recorder.RecordSessionOpened(ctx, surface.Name)
	}
	r.logger.Info("wizard session opened", map[string]interface{}{
		"sessionId":     s.ID,
		"userId":        userID,
		"surface":       surface.Name,
		"applicationId": state.ApplicationID(),
		"resumed":       record != nil,
	})
	return s, nil
}

// Get returns a live session and refreshes its idle timer.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	now := r.cfg.Clock()
	if now.Sub(s.lastSeen) > r.cfg.TTL {
		r.removeLocked(id, "expired")
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.lastSeen = now
	return s, nil
}

// Close ends a session. It reports whether unsaved edits were discarded.
func (r *Registry) Close(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return r.removeLocked(id, "closed"), nil
}

// Sweep removes sessions idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if now.Sub(s.lastSeen) > r.cfg.TTL {
			r.removeLocked(id, "expired")
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(r.cfg.Clock()); n > 0 {
				r.logger.Debug("expired wizard sessions removed", map[string]interface{}{"count": n})
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// removeLocked drops a session and reports whether it held unsaved edits.
// Callers hold r.mu.
func (r *Registry) removeLocked(id, reason string) bool {
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	delete(r.sessions, id)
	if r.byUser[s.UserID] == id {
		delete(r.byUser, s.UserID)
	}
	metrics.WizardSessionsActive.Dec()

	discarded := s.Controller.IsEdited()
	fields := map[string]interface{}{
		"sessionId": id,
		"userId":    s.UserID,
		"reason":    reason,
	}
	if discarded {
		r.logger.Warn("wizard session ended with unsaved edits", fields)
	} else {
		r.logger.Debug("wizard session ended", fields)
	}
	return discarded
}
