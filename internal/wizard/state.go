// internal/wizard/state.go
package wizard

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"renter-wizard/internal/models"
)

// State is the working copy of one renter's application together with the
// last version known to be persisted. State is not safe for concurrent use;
// the Controller serializes access to it.
type State struct {
	userID        string
	applicationID string
	minMonths     int

	draft  models.ApplicationDraft
	synced models.ApplicationDraft
	errors map[Section]ErrorMap
}

// NewState returns an empty state for userID. Call InitializeFromApplication
// before editing.
func NewState(userID string, minResidenceMonths int) *State {
	if minResidenceMonths <= 0 {
		minResidenceMonths = DefaultMinResidenceMonths
	}
	s := &State{
		userID:    userID,
		minMonths: minResidenceMonths,
	}
	s.InitializeFromApplication(nil)
	return s
}

// InitializeFromApplication replaces the draft and the synced snapshot with
// record, or with an empty template when record is nil. Errors are cleared
// and the state is no longer edited afterwards.
func (s *State) InitializeFromApplication(record *models.ApplicationRecord) {
	var draft models.ApplicationDraft
	s.applicationID = ""
	if record != nil {
		draft = record.ApplicationDraft.Clone()
		s.applicationID = record.ID
		if record.UserID != "" {
			s.userID = record.UserID
		}
	}
	draft.ResidentialHistory = reconcileResidences(draft.ResidentialHistory, s.minMonths)

	s.draft = draft
	s.synced = draft.Clone()
	s.errors = make(map[Section]ErrorMap)
}

func (s *State) UserID() string {
	return s.userID
}

func (s *State) ApplicationID() string {
	return s.applicationID
}

func (s *State) setApplicationID(id string) {
	if id != "" {
		s.applicationID = id
	}
}

// Draft returns a copy of the working draft.
func (s *State) Draft() models.ApplicationDraft {
	return s.draft.Clone()
}

// Synced returns a copy of the last persisted draft.
func (s *State) Synced() models.ApplicationDraft {
	return s.synced.Clone()
}

// draftRef exposes the working draft to validators without copying.
func (s *State) draftRef() *models.ApplicationDraft {
	return &s.draft
}

// --- field setters ---

func (s *State) SetPersonalInfo(p models.PersonalInfo) {
	s.draft.PersonalInfo = p
}

func (s *State) SetIdentifications(ids []models.Identification) {
	s.draft.Identifications = models.ApplicationDraft{Identifications: ids}.Clone().Identifications
}

// AddIdentification appends id. A primary id demotes the others.
func (s *State) AddIdentification(id models.Identification) {
	if id.IsPrimary {
		s.clearPrimary()
	}
	cloned := models.ApplicationDraft{Identifications: []models.Identification{id}}.Clone()
	s.draft.Identifications = append(s.draft.Identifications, cloned.Identifications[0])
}

// RemoveIdentification drops the entry at index. It reports false when the
// index is out of range.
func (s *State) RemoveIdentification(index int) bool {
	if index < 0 || index >= len(s.draft.Identifications) {
		return false
	}
	s.draft.Identifications = append(s.draft.Identifications[:index:index], s.draft.Identifications[index+1:]...)
	return true
}

// SetPrimaryIdentification marks the entry at index as primary and clears
// the flag everywhere else.
func (s *State) SetPrimaryIdentification(index int) bool {
	if index < 0 || index >= len(s.draft.Identifications) {
		return false
	}
	s.clearPrimary()
	s.draft.Identifications[index].IsPrimary = true
	return true
}

func (s *State) clearPrimary() {
	for i := range s.draft.Identifications {
		s.draft.Identifications[i].IsPrimary = false
	}
}

// SetResidence replaces the residence at index, or appends when index equals
// the current length. The history is then re-balanced against the minimum
// months policy.
func (s *State) SetResidence(index int, r models.Residence) bool {
	history := s.draft.ResidentialHistory
	switch {
	case index >= 0 && index < len(history):
		history = append([]models.Residence(nil), history...)
		history[index] = r
	case index == len(history):
		history = append(append([]models.Residence(nil), history...), r)
	default:
		return false
	}
	s.draft.ResidentialHistory = reconcileResidences(history, s.minMonths)
	return true
}

func (s *State) RemoveResidence(index int) bool {
	history := s.draft.ResidentialHistory
	if index < 0 || index >= len(history) {
		return false
	}
	trimmed := append(append([]models.Residence(nil), history[:index]...), history[index+1:]...)
	s.draft.ResidentialHistory = reconcileResidences(trimmed, s.minMonths)
	return true
}

func (s *State) SetIncomes(incomes []models.Income) {
	s.draft.Incomes = append([]models.Income(nil), incomes...)
}

func (s *State) AddIncome(inc models.Income) {
	s.draft.Incomes = append(s.draft.Incomes, inc)
}

func (s *State) RemoveIncome(index int) bool {
	if index < 0 || index >= len(s.draft.Incomes) {
		return false
	}
	s.draft.Incomes = append(s.draft.Incomes[:index:index], s.draft.Incomes[index+1:]...)
	return true
}

func (s *State) SetAnswers(a models.Answers) {
	s.draft.Answers = a.Clone()
}

// --- derived flags ---

// IsEdited reports whether the working draft differs from the synced
// snapshot. Nil and empty lists compare equal.
func (s *State) IsEdited() bool {
	return !cmp.Equal(s.draft, s.synced, cmpopts.EquateEmpty())
}

// SetErrors stores validator output for section. An empty map clears it.
func (s *State) SetErrors(section Section, errs ErrorMap) {
	if len(errs) == 0 {
		delete(s.errors, section)
		return
	}
	cp := make(ErrorMap, len(errs))
	for k, v := range errs {
		cp[k] = v
	}
	s.errors[section] = cp
}

func (s *State) ClearErrors(section Section) {
	delete(s.errors, section)
}

// Errors returns a copy of every stored section error map.
func (s *State) Errors() map[Section]ErrorMap {
	out := make(map[Section]ErrorMap, len(s.errors))
	for section, errs := range s.errors {
		cp := make(ErrorMap, len(errs))
		for k, v := range errs {
			cp[k] = v
		}
		out[section] = cp
	}
	return out
}

// MarkSynced records the current working draft as persisted.
func (s *State) MarkSynced() {
	s.synced = s.draft.Clone()
}

// markSyncedTo records draft, the exact value that was persisted, as the
// snapshot. Edits made while the save was in flight stay unsynced.
func (s *State) markSyncedTo(draft models.ApplicationDraft) {
	s.synced = draft.Clone()
}

// Payload flattens the working draft for the persistence gateway.
func (s *State) Payload() models.UpsertPayload {
	return models.UpsertPayload{
		ID:               s.applicationID,
		UserID:           s.userID,
		ApplicationDraft: s.draft.Clone(),
	}
}
