// internal/wizard/gateway.go
package wizard

import (
	"context"
	"time"

	"renter-wizard/internal/common/metrics"
	"renter-wizard/internal/models"
)

// Gateway is the persistence boundary the wizard consumes.
type Gateway interface {
	// Fetch returns the stored application for userID, or nil when none exists.
	Fetch(ctx context.Context, userID string) (*models.ApplicationRecord, error)
	// Upsert stores the payload and returns the application id.
	Upsert(ctx context.Context, payload models.UpsertPayload) (string, error)
	MarkComplete(ctx context.Context, applicationID string) error
	// CheckCompletion recomputes the stored completeness flag.
	CheckCompletion(ctx context.Context, applicationID string) error
}

// CallRecorder receives timing for every gateway call.
type CallRecorder interface {
	RecordGatewayCall(ctx context.Context, operation, status string, d time.Duration)
}

type instrumentedGateway struct {
	next     Gateway
	recorder CallRecorder
}

// Instrument wraps next so every call is timed into the Prometheus histogram
// and, when recorder is not nil, into recorder.
func Instrument(next Gateway, recorder CallRecorder) Gateway {
	return &instrumentedGateway{next: next, recorder: recorder}
}

func (g *instrumentedGateway) observe(ctx context.Context, op string, start time.Time, err error) {
	elapsed := time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.WizardPersistDuration.WithLabelValues(op, status).Observe(elapsed.Seconds())
	if g.recorder != nil {
		g.recorder.RecordGatewayCall(ctx, op, status, elapsed)
	}
}

func (g *instrumentedGateway) Fetch(ctx context.Context, userID string) (*models.ApplicationRecord, error) {
	start := time.Now()
	rec, err := g.next.Fetch(ctx, userID)
	g.observe(ctx, "fetch", start, err)
	return rec, err
}

func (g *instrumentedGateway) Upsert(ctx context.Context, payload models.UpsertPayload) (string, error) {
	start := time.Now()
	id, err := g.next.Upsert(ctx, payload)
	g.observe(ctx, "upsert", start, err)
	return id, err
}

func (g *instrumentedGateway) MarkComplete(ctx context.Context, applicationID string) error {
	start := time.Now()
	err := g.next.MarkComplete(ctx, applicationID)
	g.observe(ctx, "mark_complete", start, err)
	return err
}

func (g *instrumentedGateway) CheckCompletion(ctx context.Context, applicationID string) error {
	start := time.Now()
	err := g.next.CheckCompletion(ctx, applicationID)
	g.observe(ctx, "check_completion", start, err)
	return err
}
