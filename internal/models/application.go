// internal/models/application.go
package models

import "time"

type IDType string

const (
	IDTypeDriversLicense IDType = "driversLicense"
	IDTypePassport       IDType = "passport"
)

type HousingStatus string

const (
	HousingStatusRent HousingStatus = "rent"
	HousingStatusOwn  HousingStatus = "own"
)

// ApplicationRecord is the stored form of a renter application.
type ApplicationRecord struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	IsComplete  bool       `json:"isComplete"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	ApplicationDraft
}

// ApplicationDraft is the editable part of an application.
type ApplicationDraft struct {
	PersonalInfo       PersonalInfo     `json:"personalInfo"`
	Identifications    []Identification `json:"identifications"`
	ResidentialHistory []Residence      `json:"residentialHistory"`
	Incomes            []Income         `json:"incomes"`
	Answers            Answers          `json:"answers"`
}

type PersonalInfo struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"` // YYYY-MM-DD
}

type Identification struct {
	IDType    IDType    `json:"idType"`
	IDNumber  string    `json:"idNumber"`
	IsPrimary bool      `json:"isPrimary"`
	IDPhotos  []IDPhoto `json:"idPhotos"`
}

type IDPhoto struct {
	URL       string `json:"url"`
	IsPrimary bool   `json:"isPrimary"`
}

type Residence struct {
	Street              string        `json:"street"`
	Apt                 string        `json:"apt,omitempty"`
	City                string        `json:"city"`
	State               string        `json:"state"`
	ZipCode             string        `json:"zipCode"`
	MonthlyPayment      float64       `json:"monthlyPayment"`
	DurationOfTenancy   int           `json:"durationOfTenancy"` // months
	HousingStatus       HousingStatus `json:"housingStatus"`
	LandlordName        string        `json:"landlordName,omitempty"`
	LandlordEmail       string        `json:"landlordEmail,omitempty"`
	LandlordPhoneNumber string        `json:"landlordPhoneNumber,omitempty"`
}

type Income struct {
	Source        string  `json:"source"`
	MonthlyAmount float64 `json:"monthlyAmount"`
}

// Answers holds the questionnaire. A nil answer means the question has not
// been answered yet.
type Answers struct {
	Felony             *bool  `json:"felony"`
	FelonyExplanation  string `json:"felonyExplanation,omitempty"`
	Evicted            *bool  `json:"evicted"`
	EvictedExplanation string `json:"evictedExplanation,omitempty"`
}

// UpsertPayload is the flattened draft sent to the persistence layer.
type UpsertPayload struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"userId"`

	ApplicationDraft
}

// Clone returns a deep copy of the draft.
func (d ApplicationDraft) Clone() ApplicationDraft {
	out := ApplicationDraft{
		PersonalInfo: d.PersonalInfo,
		Answers:      d.Answers.Clone(),
	}
	if d.Identifications != nil {
		out.Identifications = make([]Identification, len(d.Identifications))
		for i, id := range d.Identifications {
			out.Identifications[i] = id
			if id.IDPhotos != nil {
				out.Identifications[i].IDPhotos = append([]IDPhoto(nil), id.IDPhotos...)
			}
		}
	}
	if d.ResidentialHistory != nil {
		out.ResidentialHistory = append([]Residence(nil), d.ResidentialHistory...)
	}
	if d.Incomes != nil {
		out.Incomes = append([]Income(nil), d.Incomes...)
	}
	return out
}

func (a Answers) Clone() Answers {
	out := a
	if a.Felony != nil {
		v := *a.Felony
		out.Felony = &v
	}
	if a.Evicted != nil {
		v := *a.Evicted
		out.Evicted = &v
	}
	return out
}

// Bool is a helper for building answers.
func Bool(v bool) *bool {
	return &v
}
