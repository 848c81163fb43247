package provider

import (
	"fmt"

	"github.com/sells-group/riskdoc/internal/model"
)

// SystemPrompt describes the StructuredCandidate shape and extraction rules.
const SystemPrompt = `You extract occupational risk assessments (French "Document Unique d'Evaluation des Risques Professionnels") from document text.

Answer with ONE JSON object and nothing else, with exactly these keys:
{
  "company": {"legalName": string|null, "legalIdentifier": string|null, "address": string|null, "employeeCount": integer|null} | null,
  "workUnits": [{"name": string, "description": string|null, "exposedCount": integer|null}],
  "risks": [{"workUnitName": string|null, "hazard": string, "dangerousSituation": string|null, "exposedPersons": string|null,
             "frequency": 1-4|null, "probability": 1-4|null, "severity": 1-4|null, "control": 1-4|null, "existingMeasures": string|null}],
  "measures": [{"description": string, "type": string|null, "relatedRisk": string|null}],
  "confidence": integer 0-100
}

Rules:
- Only report what the document states. Use null for anything absent; never guess.
- legalIdentifier is the 14-digit SIRET without spaces when present.
- Ratings are integers from 1 (lowest) to 4 (highest). Convert other scales only when the document gives the scale; otherwise use null.
- workUnitName must match the name of one of the workUnits when the risk belongs to one.
- measures.type is "existing" or "planned" when the document says so.
- Keep the document's language for all text values.
- confidence is your estimate, 0 to 100, of how completely and faithfully the object reflects the document.`

// UserPrompt wraps the (already truncated) document text.
func UserPrompt(text string, format model.Format) string {
	return fmt.Sprintf("Source format: %s\n\n<document>\n%s\n</document>", format, text)
}
