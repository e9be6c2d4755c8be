package report

import "github.com/google/generative-ai-go/genai"

// Schema is the response schema sent with report requests.
func Schema() *genai.Schema {
	complexities := make([]string, len(Complexities))
	for i, c := range Complexities {
		complexities[i] = string(c)
	}

	text := func() *genai.Schema { return &genai.Schema{Type: genai.TypeString} }

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"dailyLife":           text(),
			"painPoints":          {Type: genai.TypeArray, Items: text()},
			"personalChallenges":  text(),
			"priorityFeature":     text(),
			"timeGain":            text(),
			"serviceImpact":       text(),
			"technicalComplexity": {Type: genai.TypeString, Format: "enum", Enum: complexities},
			"recommendedModel":    text(),
			"budgetNote":          text(),
		},
		Required: RequiredFields,
	}
}
