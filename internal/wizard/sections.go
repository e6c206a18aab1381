// internal/wizard/sections.go
package wizard

import "fmt"

// Section names a slice of the application that has its own validator.
type Section string

const (
	SectionBasic          Section = "basic"
	SectionIdentification Section = "identification"
	SectionResidential    Section = "residential"
	SectionLandlord       Section = "landlord"
	SectionIncome         Section = "income"
	SectionQuestionnaire  Section = "questionnaire"
)

// AllSections lists every section in wizard order.
var AllSections = []Section{
	SectionBasic,
	SectionIdentification,
	SectionResidential,
	SectionLandlord,
	SectionIncome,
	SectionQuestionnaire,
}

// Step is one page of the wizard. A step may cover several sections, for
// example the desktop residential page also shows landlord details.
type Step struct {
	Name     string    `json:"name"`
	Sections []Section `json:"sections"`
}

// Surface is an ordered list of steps shown on one kind of client.
type Surface struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

const (
	SurfaceDesktop = "desktop"
	SurfaceMobile  = "mobile"
)

var surfaces = map[string]Surface{
	SurfaceDesktop: {
		Name: SurfaceDesktop,
		Steps: []Step{
			{Name: "basic", Sections: []Section{SectionBasic}},
			{Name: "identification", Sections: []Section{SectionIdentification}},
			{Name: "residential", Sections: []Section{SectionResidential, SectionLandlord}},
			{Name: "income", Sections: []Section{SectionIncome}},
			{Name: "questionnaire", Sections: []Section{SectionQuestionnaire}},
		},
	},
	SurfaceMobile: {
		Name: SurfaceMobile,
		Steps: []Step{
			{Name: "basic", Sections: []Section{SectionBasic}},
			{Name: "identification", Sections: []Section{SectionIdentification}},
			{Name: "residential", Sections: []Section{SectionResidential}},
			{Name: "landlord", Sections: []Section{SectionLandlord}},
			{Name: "income", Sections: []Section{SectionIncome}},
			{Name: "questionnaire", Sections: []Section{SectionQuestionnaire}},
		},
	},
}

// LookupSurface returns the named surface. An empty name selects desktop.
func LookupSurface(name string) (Surface, error) {
	if name == "" {
		name = SurfaceDesktop
	}
	s, ok := surfaces[name]
	if !ok {
		return Surface{}, fmt.Errorf("%w: %q", ErrUnknownSurface, name)
	}
	return s, nil
}

// Len returns the number of steps.
func (s Surface) Len() int {
	return len(s.Steps)
}

// Last returns the index of the final step.
func (s Surface) Last() int {
	return len(s.Steps) - 1
}
