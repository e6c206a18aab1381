package wizard

import (
	"context"
	"errors"
	"sync"
	"time"

	"renter-wizard/internal/models"
)

var testToday = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

func testPolicy() Policy {
	return Policy{MinResidenceMonths: DefaultMinResidenceMonths, Today: testToday}
}

func validResidence(months int) models.Residence {
	return models.Residence{
		Street:              "12 Elm St",
		City:                "Springfield",
		State:               "IL",
		ZipCode:             "62701",
		MonthlyPayment:      1200,
		DurationOfTenancy:   months,
		HousingStatus:       models.HousingStatusRent,
		LandlordName:        "Pat Landlord",
		LandlordEmail:       "pat@example.com",
		LandlordPhoneNumber: "(217) 555-0100",
	}
}

func validDraft() models.ApplicationDraft {
	return models.ApplicationDraft{
		PersonalInfo: models.PersonalInfo{FirstName: "Jane", LastName: "Doe", DateOfBirth: "1990-05-01"},
		Identifications: []models.Identification{
			{IDType: models.IDTypePassport, IDNumber: "X1234567", IsPrimary: true},
		},
		ResidentialHistory: []models.Residence{validResidence(24)},
		Incomes:            []models.Income{{Source: "Employment", MonthlyAmount: 5000}},
		Answers:            models.Answers{Felony: models.Bool(false), Evicted: models.Bool(false)},
	}
}

func validRecord() *models.ApplicationRecord {
	return &models.ApplicationRecord{
		ID:               "app-1",
		UserID:           "user-1",
		ApplicationDraft: validDraft(),
	}
}

// fakeGateway records calls and lets tests inject failures or hold an
// upsert open.
type fakeGateway struct {
	mu sync.Mutex

	record      *models.ApplicationRecord
	upserts     []models.UpsertPayload
	completes   []string
	checks      []string
	upsertErr   error
	completeErr error
	checkErr    error

	// when set, Upsert signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func (g *fakeGateway) Fetch(_ context.Context, userID string) (*models.ApplicationRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.record == nil || g.record.UserID != userID {
		return nil, nil
	}
	cp := *g.record
	cp.ApplicationDraft = g.record.ApplicationDraft.Clone()
	return &cp, nil
}

func (g *fakeGateway) Upsert(ctx context.Context, payload models.UpsertPayload) (string, error) {
	if g.entered != nil {
		g.entered <- struct{}{}
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upserts = append(g.upserts, payload)
	if g.upsertErr != nil {
		return "", g.upsertErr
	}
	if payload.ID != "" {
		return payload.ID, nil
	}
	return "app-new", nil
}

func (g *fakeGateway) MarkComplete(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completes = append(g.completes, id)
	return g.completeErr
}

func (g *fakeGateway) CheckCompletion(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks = append(g.checks, id)
	return g.checkErr
}

func (g *fakeGateway) upsertCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.upserts)
}

func (g *fakeGateway) completeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.completes)
}

func (g *fakeGateway) setUpsertErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upsertErr = err
}

func (g *fakeGateway) setCompleteErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completeErr = err
}

var errBackend = errors.New("backend unavailable")
