// Package report holds the end-of-audit report: its schema, the strict parser
// applied to provider output, and the renderings used to share it.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Complexity string

const (
	ComplexityLow    Complexity = "Bas"
	ComplexityMedium Complexity = "Moyen"
	ComplexityHigh   Complexity = "Élevé"
)

// Complexities is the closed domain of technicalComplexity, in ascending order.
var Complexities = []Complexity{ComplexityLow, ComplexityMedium, ComplexityHigh}

func (c Complexity) Valid() bool {
	for _, known := range Complexities {
		if c == known {
			return true
		}
	}
	return false
}

type AuditReport struct {
	DailyLife           string     `json:"dailyLife"`
	PainPoints          []string   `json:"painPoints"`
	PersonalChallenges  string     `json:"personalChallenges"`
	PriorityFeature     string     `json:"priorityFeature"`
	TimeGain            string     `json:"timeGain"`
	ServiceImpact       string     `json:"serviceImpact"`
	TechnicalComplexity Complexity `json:"technicalComplexity"`
	RecommendedModel    string     `json:"recommendedModel"`
	BudgetNote          string     `json:"budgetNote"`
}

var (
	ErrMalformed     = errors.New("report is not valid JSON")
	ErrMissingField  = errors.New("report is missing a required field")
	ErrBadComplexity = errors.New("report has an unknown technical complexity")
)

// RequiredFields lists the fields the provider must always return.
var RequiredFields = []string{"dailyLife", "painPoints", "priorityFeature", "technicalComplexity"}

// Parse decodes provider output into a report. Either a fully valid report is
// returned or an error; never a partially populated value.
func Parse(raw string) (*AuditReport, error) {
	body := stripFence(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, name := range RequiredFields {
		value, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}

	var r AuditReport
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *AuditReport) Validate() error {
	if strings.TrimSpace(r.DailyLife) == "" {
		return fmt.Errorf("%w: dailyLife", ErrMissingField)
	}
	if r.PainPoints == nil {
		return fmt.Errorf("%w: painPoints", ErrMissingField)
	}
	if strings.TrimSpace(r.PriorityFeature) == "" {
		return fmt.Errorf("%w: priorityFeature", ErrMissingField)
	}
	if !r.TechnicalComplexity.Valid() {
		return fmt.Errorf("%w: %q", ErrBadComplexity, r.TechnicalComplexity)
	}
	return nil
}

// stripFence trims whitespace and a surrounding ```json fence some models add
// despite the JSON response type.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
