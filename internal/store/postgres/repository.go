// internal/store/postgres/repository.go
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"renter-wizard/internal/common/database"
	"renter-wizard/internal/common/logger"
	"renter-wizard/internal/models"
	"renter-wizard/internal/wizard"
)

var (
	ErrDatabaseQueryFailed = errors.New("DATABASE_QUERY_FAILED")
	ErrDatabaseWriteFailed = errors.New("DATABASE_WRITE_FAILED")
	ErrApplicationNotFound = errors.New("APPLICATION_NOT_FOUND")
)

const selectColumns = `id, user_id, personal_info, identifications, residential_history,
	incomes, answers, is_complete, submitted_at, updated_at`

// Repository stores renter applications in the rental_applications table.
// It implements wizard.Gateway.
type Repository struct {
	db                 *database.PostgresClient
	logger             logger.Logger
	minResidenceMonths int
	now                func() time.Time
}

func NewRepository(db *database.PostgresClient, minResidenceMonths int, log logger.Logger) *Repository {
	return &Repository{
		db:                 db,
		logger:             log.WithFields(map[string]interface{}{"component": "application-repository"}),
		minResidenceMonths: minResidenceMonths,
		now:                func() time.Time { return time.Now().UTC() },
	}
}

var _ wizard.Gateway = (*Repository)(nil)

func (r *Repository) Fetch(ctx context.Context, userID string) (*models.ApplicationRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM rental_applications WHERE user_id = $1`, userID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch for user %s: %v", ErrDatabaseQueryFailed, userID, err)
	}
	return rec, nil
}

func (r *Repository) fetchByID(ctx context.Context, id string) (*models.ApplicationRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM rental_applications WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrApplicationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch application %s: %v", ErrDatabaseQueryFailed, id, err)
	}
	return rec, nil
}

// Upsert writes the draft for payload.UserID and returns the application id.
// The first save of a user inserts a row with a fresh id; later saves update
// it in place.
func (r *Repository) Upsert(ctx context.Context, payload models.UpsertPayload) (string, error) {
	if payload.UserID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrDatabaseWriteFailed)
	}
	cols, err := marshalDraft(payload.ApplicationDraft)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatabaseWriteFailed, err)
	}

	id := payload.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := r.now()

	var storedID string
	err = r.db.QueryRow(ctx, `
		INSERT INTO rental_applications (
			id, user_id, personal_info, identifications, residential_history,
			incomes, answers, is_complete, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			personal_info = EXCLUDED.personal_info,
			identifications = EXCLUDED.identifications,
			residential_history = EXCLUDED.residential_history,
			incomes = EXCLUDED.incomes,
			answers = EXCLUDED.answers,
			is_complete = false,
			submitted_at = NULL,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		id, payload.UserID,
		cols.personalInfo, cols.identifications, cols.residentialHistory, cols.incomes, cols.answers,
		now,
	).Scan(&storedID)
	if err != nil {
		return "", fmt.Errorf("%w: upsert for user %s: %v", ErrDatabaseWriteFailed, payload.UserID, err)
	}

	r.audit(ctx, "application_saved", storedID, map[string]interface{}{
		"userId":          payload.UserID,
		"identifications": len(payload.Identifications),
		"residences":      len(payload.ResidentialHistory),
		"incomes":         len(payload.Incomes),
	})

	r.logger.Info("application saved", map[string]interface{}{
		"applicationId": storedID,
		"userId":        payload.UserID,
	})
	return storedID, nil
}

// MarkComplete records the submission time. It fails with
// ErrApplicationNotFound when no row has the id.
func (r *Repository) MarkComplete(ctx context.Context, applicationID string) error {
	now := r.now()
	res, err := r.db.Exec(ctx, `
		UPDATE rental_applications
		SET is_complete = true, submitted_at = $2, updated_at = $2
		WHERE id = $1`, applicationID, now)
	if err != nil {
		return fmt.Errorf("%w: mark complete %s: %v", ErrDatabaseWriteFailed, applicationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: mark complete %s: %v", ErrDatabaseWriteFailed, applicationID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrApplicationNotFound, applicationID)
	}

	r.audit(ctx, "application_submitted", applicationID, map[string]interface{}{
		"submittedAt": now.Format(time.RFC3339),
	})
	return nil
}

// CheckCompletion re-runs every section validator against the stored draft
// and stores the result in is_complete.
func (r *Repository) CheckCompletion(ctx context.Context, applicationID string) error {
	rec, err := r.fetchByID(ctx, applicationID)
	if err != nil {
		return err
	}

	failing := wizard.ValidateAll(&rec.ApplicationDraft, wizard.Policy{
		MinResidenceMonths: r.minResidenceMonths,
		Today:              r.now(),
	})
	complete := len(failing) == 0

	if _, err := r.db.Exec(ctx, `
		UPDATE rental_applications SET is_complete = $2, updated_at = $3 WHERE id = $1`,
		applicationID, complete, r.now()); err != nil {
		return fmt.Errorf("%w: update completion %s: %v", ErrDatabaseWriteFailed, applicationID, err)
	}

	incomplete := make([]string, 0, len(failing))
	for section := range failing {
		incomplete = append(incomplete, string(section))
	}
	r.logger.Debug("completion checked", map[string]interface{}{
		"applicationId":      applicationID,
		"complete":           complete,
		"incompleteSections": incomplete,
	})
	return nil
}

// audit writes an audit_log row. Failures are logged and otherwise ignored.
func (r *Repository) audit(ctx context.Context, event, applicationID string, details map[string]interface{}) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event, "rental_application", applicationID, detailsJSON, r.now(),
	)
	if err != nil {
		r.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":         err.Error(),
			"event":         event,
			"applicationId": applicationID,
		})
	}
}

type draftColumns struct {
	personalInfo       []byte
	identifications    []byte
	residentialHistory []byte
	incomes            []byte
	answers            []byte
}

func marshalDraft(d models.ApplicationDraft) (draftColumns, error) {
	var (
		cols draftColumns
		err  error
	)
	if cols.personalInfo, err = json.Marshal(d.PersonalInfo); err != nil {
		return cols, fmt.Errorf("marshal personal info: %w", err)
	}
	if cols.identifications, err = json.Marshal(emptyIfNil(d.Identifications)); err != nil {
		return cols, fmt.Errorf("marshal identifications: %w", err)
	}
	if cols.residentialHistory, err = json.Marshal(emptyIfNil(d.ResidentialHistory)); err != nil {
		return cols, fmt.Errorf("marshal residential history: %w", err)
	}
	if cols.incomes, err = json.Marshal(emptyIfNil(d.Incomes)); err != nil {
		return cols, fmt.Errorf("marshal incomes: %w", err)
	}
	if cols.answers, err = json.Marshal(d.Answers); err != nil {
		return cols, fmt.Errorf("marshal answers: %w", err)
	}
	return cols, nil
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.ApplicationRecord, error) {
	var (
		rec         models.ApplicationRecord
		cols        draftColumns
		submittedAt sql.NullTime
	)
	if err := row.Scan(
		&rec.ID, &rec.UserID,
		&cols.personalInfo, &cols.identifications, &cols.residentialHistory, &cols.incomes, &cols.answers,
		&rec.IsComplete, &submittedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if submittedAt.Valid {
		t := submittedAt.Time
		rec.SubmittedAt = &t
	}

	targets := []struct {
		name string
		raw  []byte
		dst  interface{}
	}{
		{"personal_info", cols.personalInfo, &rec.PersonalInfo},
		{"identifications", cols.identifications, &rec.Identifications},
		{"residential_history", cols.residentialHistory, &rec.ResidentialHistory},
		{"incomes", cols.incomes, &rec.Incomes},
		{"answers", cols.answers, &rec.Answers},
	}
	for _, t := range targets {
		if len(t.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(t.raw, t.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t.name, err)
		}
	}
	return &rec, nil
}
