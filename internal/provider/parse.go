package provider

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/riskdoc/internal/model"
)

// candidateSchema checks the structure of a provider answer. Value ranges
// are handled by normalization, not rejected here.
const candidateSchema = `{
  "type": "object",
  "anyOf": [
    {"required": ["company"]},
    {"required": ["workUnits"]},
    {"required": ["risks"]},
    {"required": ["measures"]}
  ],
  "properties": {
    "company": {
      "type": ["object", "null"],
      "properties": {
        "legalName": {"type": ["string", "null"]},
        "legalIdentifier": {"type": ["string", "number", "null"]},
        "address": {"type": ["string", "null"]},
        "employeeCount": {"type": ["number", "string", "null"]}
      }
    },
    "workUnits": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": ["string", "null"]},
          "description": {"type": ["string", "null"]},
          "exposedCount": {"type": ["number", "string", "null"]}
        }
      }
    },
    "risks": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "workUnitName": {"type": ["string", "null"]},
          "hazard": {"type": ["string", "null"]},
          "dangerousSituation": {"type": ["string", "null"]},
          "exposedPersons": {"type": ["string", "null"]},
          "existingMeasures": {"type": ["string", "null"]}
        }
      }
    },
    "measures": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "description": {"type": ["string", "null"]},
          "type": {"type": ["string", "null"]},
          "relatedRisk": {"type": ["string", "null"]}
        }
      }
    },
    "confidence": {"type": ["number", "string", "null"]}
  }
}`

var compiledSchema = jsonschema.MustCompileString("candidate.json", candidateSchema)

// rawCandidate mirrors the schema with loosely typed numeric fields.
type rawCandidate struct {
	Company *struct {
		LegalName       *string `json:"legalName"`
		LegalIdentifier any     `json:"legalIdentifier"`
		Address         *string `json:"address"`
		EmployeeCount   any     `json:"employeeCount"`
	} `json:"company"`
	WorkUnits []struct {
		Name         *string `json:"name"`
		Description  *string `json:"description"`
		ExposedCount any     `json:"exposedCount"`
	} `json:"workUnits"`
	Risks []struct {
		WorkUnitName       *string `json:"workUnitName"`
		Hazard             *string `json:"hazard"`
		DangerousSituation *string `json:"dangerousSituation"`
		ExposedPersons     *string `json:"exposedPersons"`
		Frequency          any     `json:"frequency"`
		Probability        any     `json:"probability"`
		Severity           any     `json:"severity"`
		Control            any     `json:"control"`
		ExistingMeasures   *string `json:"existingMeasures"`
	} `json:"risks"`
	Measures []struct {
		Description *string `json:"description"`
		Type        *string `json:"type"`
		RelatedRisk *string `json:"relatedRisk"`
	} `json:"measures"`
	Confidence any `json:"confidence"`
}

// ParseCandidate finds the JSON object in a provider answer, validates its
// shape and normalizes it into a candidate tagged with engine.
func ParseCandidate(text string, engine model.Engine) (*model.StructuredCandidate, error) {
	obj, ok := cleanJSON(text)
	if !ok {
		return nil, eris.New("provider: no JSON object in response")
	}

	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return nil, eris.Wrap(err, "provider: decode response")
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, eris.Wrap(err, "provider: response does not match schema")
	}

	var raw rawCandidate
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, eris.Wrap(err, "provider: decode candidate")
	}
	return normalize(&raw, engine), nil
}

// cleanJSON extracts the outermost JSON object from text that may carry
// markdown code fences or prose around it.
func cleanJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return strings.TrimSpace(text[start : end+1]), true
}

func normalize(raw *rawCandidate, engine model.Engine) *model.StructuredCandidate {
	c := model.NewCandidate(engine)
	c.Confidence = confidenceValue(raw.Confidence)

	if raw.Company != nil {
		info := &model.CompanyInfo{
			LegalName:       text(raw.Company.LegalName),
			LegalIdentifier: identifier(raw.Company.LegalIdentifier),
			Address:         text(raw.Company.Address),
			EmployeeCount:   count(raw.Company.EmployeeCount),
		}
		if !info.IsEmpty() {
			c.Company = info
		}
	}

	for _, wu := range raw.WorkUnits {
		name := text(wu.Name)
		if name == nil {
			continue
		}
		c.WorkUnits = append(c.WorkUnits, model.WorkUnit{
			Name:         *name,
			Description:  text(wu.Description),
			ExposedCount: count(wu.ExposedCount),
		})
	}

	for _, r := range raw.Risks {
		hazard := text(r.Hazard)
		if hazard == nil {
			continue
		}
		c.Risks = append(c.Risks, model.Risk{
			WorkUnitName:       text(r.WorkUnitName),
			Hazard:             *hazard,
			DangerousSituation: text(r.DangerousSituation),
			ExposedPersons:     text(r.ExposedPersons),
			Frequency:          rating(r.Frequency),
			Probability:        rating(r.Probability),
			Severity:           rating(r.Severity),
			Control:            rating(r.Control),
			ExistingMeasures:   text(r.ExistingMeasures),
		})
	}

	for _, m := range raw.Measures {
		desc := text(m.Description)
		if desc == nil {
			continue
		}
		c.Measures = append(c.Measures, model.Measure{
			Description: *desc,
			Type:        text(m.Type),
			RelatedRisk: text(m.RelatedRisk),
		})
	}
	return c
}

// text trims s and maps blank to nil.
func text(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// rating keeps JSON integers in [1,4]; everything else becomes nil.
func rating(v any) *int {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return nil
	}
	n := int(f)
	if !model.ValidRating(n) {
		return nil
	}
	return &n
}

// count accepts non-negative integers given as numbers or digit strings.
func count(v any) *int {
	var n int
	switch x := v.(type) {
	case float64:
		if x < 0 || x != math.Trunc(x) || x > math.MaxInt32 {
			return nil
		}
		n = int(x)
	case string:
		s := strings.NewReplacer(" ", "", "\u00a0", "").Replace(strings.TrimSpace(x))
		i, err := strconv.Atoi(s)
		if err != nil || i < 0 {
			return nil
		}
		n = i
	default:
		return nil
	}
	return &n
}

// identifier accepts a SIRET given as a string or a bare number.
func identifier(v any) *string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', 0, 64)
	default:
		return nil
	}
	return text(&s)
}

func confidenceValue(v any) int {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		p, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(x), "%"), 64)
		if err != nil {
			return 0
		}
		f = p
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	return model.ClampConfidence(int(math.Round(math.Max(-1, math.Min(f, 1000)))))
}
