// Package classifier turns an untrusted RawAnalysis into a validated
// ClassificationResult. It never fails: every anomaly is normalized.
package classifier

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/example/ecoclassify/internal/domain"
	"github.com/example/ecoclassify/internal/severity"
)

// Classifier is stateless apart from its threshold table and safe for concurrent use.
type Classifier struct {
	table *severity.Table
}

// New returns a classifier using table, or the default thresholds when table is nil.
func New(table *severity.Table) *Classifier {
	if table == nil {
		table = severity.Default()
	}
	return &Classifier{table: table}
}

// Table exposes the thresholds in use.
func (c *Classifier) Table() *severity.Table {
	return c.table
}

// Classify normalizes raw into a result. Calling it twice on the same input
// yields the same output.
func (c *Classifier) Classify(raw domain.RawAnalysis) domain.ClassificationResult {
	category := NormalizeCategory(raw.Category)
	if raw.IndoorHousehold {
		// Household waste is never a public environmental issue.
		category = domain.CategoryReject
	}
	if category == domain.CategoryReject {
		return domain.RejectResult()
	}

	score := CoerceSeverity(raw.Severity)
	return domain.ClassificationResult{
		Category:      category,
		Severity:      score,
		SeverityLevel: c.table.Level(score),
		Scale:         strings.TrimSpace(raw.Scale),
	}
}

// NormalizeCategory maps anything outside the closed set to reject.
func NormalizeCategory(s string) domain.Category {
	category, ok := domain.ParseCategory(s)
	if !ok {
		return domain.CategoryReject
	}
	return category
}

// CoerceSeverity reads a loosely typed severity value, clamps it into [0,100]
// and rounds it. Missing, non-numeric, NaN and infinite values become 0.
// Decimal text too large for a float64 still clamps to the nearest bound.
func CoerceSeverity(v interface{}) int {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return domain.MinSeverity
	}
	if f <= domain.MinSeverity {
		return domain.MinSeverity
	}
	if f >= domain.MaxSeverity {
		return domain.MaxSeverity
	}
	return int(math.Round(f))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		return parseDecimal(string(n))
	case string:
		return parseDecimal(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(n), "%")))
	case *float64:
		if n == nil {
			return 0, false
		}
		return *n, true
	case *int:
		if n == nil {
			return 0, false
		}
		return float64(*n), true
	default:
		return 0, false
	}
}

// parseDecimal accepts plain decimal notation only, so "inf", "nan" and hex
// floats are not numbers. Overflow is kept as the largest finite value of the
// same sign.
func parseDecimal(s string) (float64, bool) {
	if s == "" || strings.TrimLeft(s, "0123456789.+-eE") != "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
		if math.IsInf(f, 0) {
			f = math.Copysign(math.MaxFloat64, f)
		}
	}
	return f, true
}
