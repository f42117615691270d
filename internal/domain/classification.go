package domain

import "strings"

// Category is the closed set of classification outcomes.
type Category string

const (
	CategoryGarbage       Category = "garbage"
	CategoryPotholes      Category = "potholes"
	CategoryDeforestation Category = "deforestation"
	CategoryReject        Category = "reject"
)

// IssueCategories lists the categories that describe an environmental issue.
// Reject is not part of it.
func IssueCategories() []Category {
	return []Category{CategoryGarbage, CategoryPotholes, CategoryDeforestation}
}

// ParseCategory matches s (case and surrounding whitespace insensitive) against
// the closed category set.
func ParseCategory(s string) (Category, bool) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryGarbage, CategoryPotholes, CategoryDeforestation, CategoryReject:
		return c, true
	default:
		return "", false
	}
}

// SeverityLevel is the human readable bucket derived from a severity score.
type SeverityLevel string

const (
	LevelNone         SeverityLevel = "none"
	LevelLow          SeverityLevel = "low"
	LevelModerate     SeverityLevel = "moderate"
	LevelModerateHigh SeverityLevel = "moderate-high"
	LevelHigh         SeverityLevel = "high"
	LevelSevere       SeverityLevel = "severe"
)

var levelRanks = map[SeverityLevel]int{
	LevelNone:         0,
	LevelLow:          1,
	LevelModerate:     2,
	LevelModerateHigh: 3,
	LevelHigh:         4,
	LevelSevere:       5,
}

// Rank orders levels from none (0) to severe (5). Unknown levels rank -1.
func (l SeverityLevel) Rank() int {
	if r, ok := levelRanks[l]; ok {
		return r
	}
	return -1
}

// Valid reports whether l is one of the known levels.
func (l SeverityLevel) Valid() bool {
	return l.Rank() >= 0
}

const (
	MinSeverity = 0
	MaxSeverity = 100
)

// ClassificationResult is the validated, caller facing outcome of a classification.
type ClassificationResult struct {
	Category      Category      `json:"category"`
	Severity      int           `json:"severity"`
	SeverityLevel SeverityLevel `json:"severity_level"`
	Scale         string        `json:"scale"`
}

// RejectResult returns the only valid result shape for the reject category.
func RejectResult() ClassificationResult {
	return ClassificationResult{
		Category:      CategoryReject,
		Severity:      0,
		SeverityLevel: LevelNone,
		Scale:         "",
	}
}
