// internal/wizard/validators.go
package wizard

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"renter-wizard/internal/models"
)

// DefaultMinResidenceMonths is the residential history the policy asks for.
const DefaultMinResidenceMonths = 24

const minApplicantAge = 18

// ErrorMap maps a field path to a human readable message. An empty map
// means the section is valid.
type ErrorMap map[string]string

// Policy carries the inputs a validator needs besides the draft itself.
type Policy struct {
	MinResidenceMonths int
	Today              time.Time
}

// Validator checks one section of a draft. Validators never mutate the draft
// and return the same ErrorMap for the same input.
type Validator func(draft *models.ApplicationDraft, policy Policy) ErrorMap

var validators = map[Section]Validator{
	SectionBasic:          ValidatePersonalInfo,
	SectionIdentification: ValidateIdentification,
	SectionResidential:    ValidateResidentialHistory,
	SectionLandlord:       ValidateLandlordInfo,
	SectionIncome:         ValidateIncome,
	SectionQuestionnaire:  ValidateQuestionnaire,
}

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	// digits only after sanitizing, optional leading +
	phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)
	phoneStrip = regexp.MustCompile(`[^\d+]`)
	zipRegex   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	stateRegex = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

// Validate runs the validator registered for section.
func Validate(section Section, draft *models.ApplicationDraft, policy Policy) ErrorMap {
	v, ok := validators[section]
	if !ok {
		return ErrorMap{"section": fmt.Sprintf("unknown section %q", section)}
	}
	return v(draft, policy)
}

// ValidateAll runs every section validator and returns only failing sections.
func ValidateAll(draft *models.ApplicationDraft, policy Policy) map[Section]ErrorMap {
	out := make(map[Section]ErrorMap)
	for _, section := range AllSections {
		if errs := Validate(section, draft, policy); len(errs) > 0 {
			out[section] = errs
		}
	}
	return out
}

func ValidatePersonalInfo(draft *models.ApplicationDraft, policy Policy) ErrorMap {
	errs := ErrorMap{}
	p := draft.PersonalInfo

	if strings.TrimSpace(p.FirstName) == "" {
		errs["firstName"] = "First name is required"
	}
	if strings.TrimSpace(p.LastName) == "" {
		errs["lastName"] = "Last name is required"
	}

	dob := strings.TrimSpace(p.DateOfBirth)
	if dob == "" {
		errs["dateOfBirth"] = "Date of birth is required"
		return errs
	}
	born, err := time.Parse("2006-01-02", dob)
	if err != nil {
		errs["dateOfBirth"] = "Date of birth must be formatted as YYYY-MM-DD"
		return errs
	}
	if !policy.Today.IsZero() {
		if !born.Before(policy.Today) {
			errs["dateOfBirth"] = "Date of birth must be in the past"
		} else if born.AddDate(minApplicantAge, 0, 0).After(policy.Today) {
			errs["dateOfBirth"] = fmt.Sprintf("Applicant must be at least %d years old", minApplicantAge)
		}
	}
	return errs
}

func ValidateIdentification(draft *models.ApplicationDraft, _ Policy) ErrorMap {
	errs := ErrorMap{}
	if len(draft.Identifications) == 0 {
		errs["identifications"] = "At least one form of identification is required"
		return errs
	}

	primaries := 0
	for i, id := range draft.Identifications {
		prefix := fmt.Sprintf("identifications[%d]", i)
		switch id.IDType {
		case models.IDTypeDriversLicense, models.IDTypePassport:
		case "":
			errs[prefix+".idType"] = "ID type is required"
		default:
			errs[prefix+".idType"] = "ID type must be driversLicense or passport"
		}
		if strings.TrimSpace(id.IDNumber) == "" {
			errs[prefix+".idNumber"] = "ID number is required"
		}
		if id.IsPrimary {
			primaries++
		}
		for j, photo := range id.IDPhotos {
			if strings.TrimSpace(photo.URL) == "" {
				errs[fmt.Sprintf("%s.idPhotos[%d].url", prefix, j)] = "Photo URL is required"
			}
		}
	}
	if primaries > 1 {
		errs["isPrimary"] = "Only one identification can be primary"
	}
	return errs
}

func ValidateResidentialHistory(draft *models.ApplicationDraft, policy Policy) ErrorMap {
	errs := ErrorMap{}
	if len(draft.ResidentialHistory) == 0 {
		errs["residentialHistory"] = "At least one residence is required"
		return errs
	}

	total := 0
	for i, r := range draft.ResidentialHistory {
		prefix := fmt.Sprintf("residentialHistory[%d]", i)
		if strings.TrimSpace(r.Street) == "" {
			errs[prefix+".street"] = "Street is required"
		}
		if strings.TrimSpace(r.City) == "" {
			errs[prefix+".city"] = "City is required"
		}
		if !stateRegex.MatchString(strings.TrimSpace(r.State)) {
			errs[prefix+".state"] = "State must be a two letter code"
		}
		if !zipRegex.MatchString(strings.TrimSpace(r.ZipCode)) {
			errs[prefix+".zipCode"] = "Zip code must be 5 digits or ZIP+4"
		}
		if r.MonthlyPayment < 0 {
			errs[prefix+".monthlyPayment"] = "Monthly payment cannot be negative"
		}
		if r.DurationOfTenancy <= 0 {
			errs[prefix+".durationOfTenancy"] = "Duration of tenancy is required"
		}
		switch r.HousingStatus {
		case models.HousingStatusRent, models.HousingStatusOwn:
		default:
			errs[prefix+".housingStatus"] = "Housing status must be rent or own"
		}
		total += r.DurationOfTenancy
	}

	if required := minMonths(policy); total < required {
		errs["durationOfTenancy"] = fmt.Sprintf("Residential history must cover at least %d months", required)
	}
	return errs
}

// ValidateLandlordInfo requires landlord contact details on every rented residence.
func ValidateLandlordInfo(draft *models.ApplicationDraft, _ Policy) ErrorMap {
	errs := ErrorMap{}
	for i, r := range draft.ResidentialHistory {
		if r.HousingStatus != models.HousingStatusRent {
			continue
		}
		prefix := fmt.Sprintf("residentialHistory[%d]", i)
		if strings.TrimSpace(r.LandlordName) == "" {
			errs[prefix+".landlordName"] = "Landlord name is required"
		}

		email := strings.TrimSpace(r.LandlordEmail)
		if email == "" {
			errs[prefix+".landlordEmail"] = "Landlord email is required"
		} else if !emailRegex.MatchString(email) {
			errs[prefix+".landlordEmail"] = "Invalid email format"
		}

		phone := phoneStrip.ReplaceAllString(strings.TrimSpace(r.LandlordPhoneNumber), "")
		if strings.TrimSpace(r.LandlordPhoneNumber) == "" {
			errs[prefix+".landlordPhoneNumber"] = "Landlord phone number is required"
		} else if !phoneRegex.MatchString(phone) {
			errs[prefix+".landlordPhoneNumber"] = "Invalid phone number"
		}
	}
	return errs
}

func ValidateIncome(draft *models.ApplicationDraft, _ Policy) ErrorMap {
	errs := ErrorMap{}
	if len(draft.Incomes) == 0 {
		errs["incomes"] = "At least one source of income is required"
		return errs
	}
	for i, inc := range draft.Incomes {
		prefix := fmt.Sprintf("incomes[%d]", i)
		if strings.TrimSpace(inc.Source) == "" {
			errs[prefix+".source"] = "Income source is required"
		}
		if inc.MonthlyAmount <= 0 {
			errs[prefix+".monthlyAmount"] = "Monthly amount must be greater than zero"
		}
	}
	return errs
}

// ValidateQuestionnaire requires an explanation for every "yes" answer.
// Unanswered questions are not errors.
func ValidateQuestionnaire(draft *models.ApplicationDraft, _ Policy) ErrorMap {
	errs := ErrorMap{}
	a := draft.Answers

	if a.Felony != nil && *a.Felony && strings.TrimSpace(a.FelonyExplanation) == "" {
		errs["felonyExplanation"] = "Please explain the felony conviction"
	}
	if a.Evicted != nil && *a.Evicted && strings.TrimSpace(a.EvictedExplanation) == "" {
		errs["evictedExplanation"] = "Please explain the eviction"
	}
	return errs
}

func minMonths(p Policy) int {
	if p.MinResidenceMonths <= 0 {
		return DefaultMinResidenceMonths
	}
	return p.MinResidenceMonths
}
