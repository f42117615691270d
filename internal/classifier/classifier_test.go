package classifier

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/ecoclassify/internal/domain"
	"github.com/example/ecoclassify/internal/severity"
	"github.com/example/ecoclassify/internal/vision"
)

func TestClassifyGarbageScenario(t *testing.T) {
	c := New(nil)
	got := c.Classify(domain.RawAnalysis{
		Category: "garbage",
		Severity: json.Number("82"),
		Scale:    "overflowing bin on sidewalk",
	})
	require.Equal(t, domain.ClassificationResult{
		Category:      domain.CategoryGarbage,
		Severity:      82,
		SeverityLevel: domain.LevelHigh,
		Scale:         "overflowing bin on sidewalk",
	}, got)
}

func TestClassifyUnknownCategoryRejects(t *testing.T) {
	c := New(nil)
	for _, category := range []string{"cat photo", "", "   ", "pothole", "trash", "none"} {
		got := c.Classify(domain.RawAnalysis{Category: category, Severity: 10, Scale: "n/a"})
		require.Equal(t, domain.RejectResult(), got, "category %q", category)
	}
}

func TestClassifyRejectOverridesRawValues(t *testing.T) {
	c := New(nil)
	got := c.Classify(domain.RawAnalysis{Category: "reject", Severity: 95, Scale: "huge"})
	require.Equal(t, domain.ClassificationResult{
		Category:      domain.CategoryReject,
		Severity:      0,
		SeverityLevel: domain.LevelNone,
		Scale:         "",
	}, got)
}

func TestClassifyIndoorHouseholdRejects(t *testing.T) {
	c := New(nil)
	got := c.Classify(domain.RawAnalysis{
		Category:        "garbage",
		Severity:        60,
		Scale:           "kitchen bin",
		IndoorHousehold: true,
	})
	require.Equal(t, domain.RejectResult(), got)
}

func TestClassifyNormalizesCategoryCase(t *testing.T) {
	got := New(nil).Classify(domain.RawAnalysis{Category: " Deforestation\n", Severity: 40.0, Scale: "  cleared hillside  "})
	require.Equal(t, domain.CategoryDeforestation, got.Category)
	require.Equal(t, domain.LevelModerate, got.SeverityLevel)
	require.Equal(t, "cleared hillside", got.Scale)
}

func TestClassifyClampsSeverity(t *testing.T) {
	c := New(nil)

	low := c.Classify(domain.RawAnalysis{Category: "potholes", Severity: -5, Scale: "small crack"})
	require.Equal(t, 0, low.Severity)
	require.Equal(t, domain.LevelNone, low.SeverityLevel)

	high := c.Classify(domain.RawAnalysis{Category: "potholes", Severity: 140, Scale: "road collapse"})
	require.Equal(t, 100, high.Severity)
	require.Equal(t, domain.LevelSevere, high.SeverityLevel)
}

func TestClassifyMissingSeverityDefaultsToZero(t *testing.T) {
	got := New(nil).Classify(domain.RawAnalysis{Category: "garbage", Scale: "single wrapper"})
	require.Equal(t, 0, got.Severity)
	require.Equal(t, domain.LevelNone, got.SeverityLevel)
	require.Equal(t, domain.CategoryGarbage, got.Category)
}

func TestClassifyIsIdempotent(t *testing.T) {
	c := New(nil)
	raw := domain.RawAnalysis{Category: "potholes", Severity: "63", Scale: "wide pothole"}
	first := c.Classify(raw)
	second := c.Classify(raw)
	require.Equal(t, first, second)
}

func TestClassifyUsesConfiguredTable(t *testing.T) {
	table, err := severity.New([]severity.Band{
		{Level: domain.LevelNone, Min: 0, Max: 0},
		{Level: domain.LevelLow, Min: 1, Max: 90},
		{Level: domain.LevelSevere, Min: 91, Max: 100},
	})
	require.NoError(t, err)

	got := New(table).Classify(domain.RawAnalysis{Category: "garbage", Severity: 82})
	require.Equal(t, domain.LevelLow, got.SeverityLevel)
}

func TestCoerceSeverity(t *testing.T) {
	f := 55.5
	tests := []struct {
		name string
		in   interface{}
		want int
	}{
		{"nil", nil, 0},
		{"int", 42, 42},
		{"int64", int64(7), 7},
		{"float rounds", 49.5, 50},
		{"float32", float32(12.2), 12},
		{"json number", json.Number("88"), 88},
		{"bad json number", json.Number("x"), 0},
		{"numeric string", " 31 ", 31},
		{"percent string", "45%", 45},
		{"word", "high", 0},
		{"bool", true, 0},
		{"negative", -5, 0},
		{"over", 140, 100},
		{"nan", math.NaN(), 0},
		{"inf", math.Inf(1), 0},
		{"negative inf", math.Inf(-1), 0},
		{"overflowing json number", json.Number("1e400"), 100},
		{"overflowing negative json number", json.Number("-1e400"), 0},
		{"overflowing string", "1e400", 100},
		{"underflowing string", "1e-400", 0},
		{"exponent string", "6.5e1", 65},
		{"inf string", "inf", 0},
		{"infinity string", "Infinity", 0},
		{"nan string", "NaN", 0},
		{"hex float string", "0x1p6", 0},
		{"pointer", &f, 56},
		{"slice", []int{1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CoerceSeverity(tt.in))
		})
	}
}

func TestClassifyParsedModelOutputClampsOverflow(t *testing.T) {
	tests := []struct {
		content string
		want    int
		level   domain.SeverityLevel
	}{
		{`{"category":"garbage","severity":1e400,"scale":"x"}`, 100, domain.LevelSevere},
		{`{"category":"garbage","severity":"1e400","scale":"x"}`, 100, domain.LevelSevere},
		{`{"category":"garbage","severity":-1e400,"scale":"x"}`, 0, domain.LevelNone},
		{`{"category":"garbage","severity":"inf","scale":"x"}`, 0, domain.LevelNone},
	}
	c := New(nil)
	for _, tt := range tests {
		raw, err := vision.ParseRawAnalysis(tt.content)
		require.NoError(t, err, tt.content)

		got := c.Classify(*raw)
		require.Equal(t, domain.CategoryGarbage, got.Category, tt.content)
		require.Equal(t, tt.want, got.Severity, tt.content)
		require.Equal(t, tt.level, got.SeverityLevel, tt.content)
	}
}

func TestCoerceSeverityAlwaysInRange(t *testing.T) {
	table := severity.Default()
	for v := -300; v <= 300; v++ {
		got := CoerceSeverity(v)
		require.GreaterOrEqual(t, got, domain.MinSeverity)
		require.LessOrEqual(t, got, domain.MaxSeverity)
		require.True(t, table.Level(got).Valid())
	}
}
