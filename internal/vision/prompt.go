package vision

import "github.com/sashabaranov/go-openai/jsonschema"

const systemPrompt = "You are an environmental monitoring assistant. " +
	"You inspect citizen-submitted photos and report only what is observable. " +
	"Always answer with a single JSON object matching the requested schema."

const analysisPrompt = `Analyze this image and decide whether it documents one of these public environmental or infrastructure issues:

- garbage: litter, waste, illegal dumping or pollution in an outdoor or public space
- potholes: road or pavement surface damage such as holes, cracks or erosion
- deforestation: tree removal, stumps, cleared forest areas or logging
- reject: anything else, including ambiguous or irrelevant content

GATING RULE: indoor or household garbage (kitchen waste, home bins, personal living spaces) is not a public concern. Set indoor_household to true and category to reject for such images.

SEVERITY: estimate 0-100 relative to the category.
- 0-25: minor, limited impact
- 26-50: noticeable, localized impact
- 51-75: significant or growing issue
- 76-90: large and impactful, requires action soon
- 91-100: severe, urgent intervention likely needed
Use 0 for reject.

SCALE: a short phrase describing the extent, e.g. "small pothole", "large garbage pile", "single tree", "extensive clearing". Empty for reject.

Also report a factual description, the main objects, the environment type (urban, rural, indoor, outdoor, ...), a confidence between 0 and 1 and a one sentence justification referencing visible evidence.

Be conservative: only assign a non-reject category if the image clearly supports it.`

const schemaName = "environmental_analysis"

// analysisSchema is the strict response schema. Strict mode requires every
// property to be listed as required.
func analysisSchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"category": {
				Type: jsonschema.String,
				Enum: []string{"garbage", "potholes", "deforestation", "reject"},
			},
			"severity":         {Type: jsonschema.Integer, Description: "0-100, 0 for reject"},
			"scale":            {Type: jsonschema.String},
			"justification":    {Type: jsonschema.String},
			"description":      {Type: jsonschema.String},
			"objects":          {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}},
			"environment":      {Type: jsonschema.String},
			"indoor_household": {Type: jsonschema.Boolean},
			"confidence":       {Type: jsonschema.Number},
		},
		Required: []string{
			"category", "severity", "scale", "justification", "description",
			"objects", "environment", "indoor_household", "confidence",
		},
		AdditionalProperties: false,
	}
}
