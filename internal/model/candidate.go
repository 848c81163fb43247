package model

// Engine identifies the extraction strategy that produced a candidate.
type Engine string

const (
	EngineDeterministic Engine = "deterministic"
	EngineProviderA     Engine = "provider-A"
	EngineProviderB     Engine = "provider-B"
)

// Rating bounds shared by frequency, probability, severity and control.
const (
	MinRating = 1
	MaxRating = 4
)

// CompanyInfo is the partially populated company record.
type CompanyInfo struct {
	LegalName       *string `json:"legalName"`
	LegalIdentifier *string `json:"legalIdentifier"`
	Address         *string `json:"address"`
	EmployeeCount   *int    `json:"employeeCount"`
}

// IsEmpty reports whether no company field was found.
func (c *CompanyInfo) IsEmpty() bool {
	return c == nil || (c.LegalName == nil && c.LegalIdentifier == nil && c.Address == nil && c.EmployeeCount == nil)
}

// WorkUnit is a group of workstations sharing the same exposures.
type WorkUnit struct {
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	ExposedCount *int    `json:"exposedCount"`
}

// Risk is one identified occupational risk.
type Risk struct {
	WorkUnitName       *string `json:"workUnitName"`
	Hazard             string  `json:"hazard"`
	DangerousSituation *string `json:"dangerousSituation"`
	ExposedPersons     *string `json:"exposedPersons"`
	Frequency          *int    `json:"frequency"`
	Probability        *int    `json:"probability"`
	Severity           *int    `json:"severity"`
	Control            *int    `json:"control"`
	ExistingMeasures   *string `json:"existingMeasures"`
}

// Ratings returns the rating fields in a fixed order.
func (r Risk) Ratings() []*int {
	return []*int{r.Frequency, r.Probability, r.Severity, r.Control}
}

// Measure is a prevention measure in place or planned.
type Measure struct {
	Description string  `json:"description"`
	Type        *string `json:"type"`
	RelatedRisk *string `json:"relatedRisk"`
}

// StructuredCandidate is the canonical result of any extraction engine.
// Fields the engine did not find stay nil.
type StructuredCandidate struct {
	Company    *CompanyInfo `json:"company"`
	WorkUnits  []WorkUnit   `json:"workUnits"`
	Risks      []Risk       `json:"risks"`
	Measures   []Measure    `json:"measures"`
	Confidence int          `json:"confidence"`
	Engine     Engine       `json:"engine"`
}

// NewCandidate returns an empty candidate for the given engine.
func NewCandidate(engine Engine) *StructuredCandidate {
	return &StructuredCandidate{
		WorkUnits: []WorkUnit{},
		Risks:     []Risk{},
		Measures:  []Measure{},
		Engine:    engine,
	}
}

// ValidRating reports whether v is an allowed rating value.
func ValidRating(v int) bool {
	return v >= MinRating && v <= MaxRating
}

// ClampConfidence bounds a confidence score to [0,100].
func ClampConfidence(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
