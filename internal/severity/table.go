// Package severity maps 0-100 severity scores onto human readable levels
// through an explicit, validated threshold table.
package severity

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/example/ecoclassify/internal/domain"
)

// Band maps the inclusive score range [Min, Max] to Level.
type Band struct {
	Level domain.SeverityLevel `yaml:"level" json:"level"`
	Min   int                  `yaml:"min" json:"min"`
	Max   int                  `yaml:"max" json:"max"`
}

// Table is a total, monotonic step function from [0,100] to levels.
// A Table is read only after construction and safe for concurrent use.
type Table struct {
	bands []Band
}

type tableFile struct {
	Bands []Band `yaml:"bands"`
}

// Default returns the built-in thresholds.
func Default() *Table {
	return &Table{bands: []Band{
		{Level: domain.LevelNone, Min: 0, Max: 0},
		{Level: domain.LevelLow, Min: 1, Max: 25},
		{Level: domain.LevelModerate, Min: 26, Max: 50},
		{Level: domain.LevelModerateHigh, Min: 51, Max: 75},
		{Level: domain.LevelHigh, Min: 76, Max: 90},
		{Level: domain.LevelSevere, Min: 91, Max: 100},
	}}
}

// New builds a table from bands in any order and validates it.
func New(bands []Band) (*Table, error) {
	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })

	t := &Table{bands: sorted}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Parse decodes a YAML document of the form
//
//	bands:
//	  - {level: none, min: 0, max: 0}
//	  - {level: low, min: 1, max: 25}
//
// and validates it.
func Parse(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode severity table: %w", err)
	}
	return New(file.Bands)
}

// Load reads and validates a YAML threshold file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read severity table: %w", err)
	}
	return Parse(data)
}

// Validate checks that the bands cover 0..100 without gaps or overlaps and
// that levels never decrease as scores grow.
func (t *Table) Validate() error {
	if t == nil || len(t.bands) == 0 {
		return errors.New("severity table is empty")
	}

	next := domain.MinSeverity
	prevRank := -1
	for i, b := range t.bands {
		if !b.Level.Valid() {
			return fmt.Errorf("band %d: unknown level %q", i, b.Level)
		}
		if b.Min != next {
			return fmt.Errorf("band %d (%s): starts at %d, expected %d", i, b.Level, b.Min, next)
		}
		if b.Max < b.Min {
			return fmt.Errorf("band %d (%s): max %d below min %d", i, b.Level, b.Max, b.Min)
		}
		rank := b.Level.Rank()
		if rank < prevRank {
			return fmt.Errorf("band %d (%s): level decreases as severity increases", i, b.Level)
		}
		prevRank = rank
		next = b.Max + 1
	}
	if next != domain.MaxSeverity+1 {
		return fmt.Errorf("severity table ends at %d, expected %d", next-1, domain.MaxSeverity)
	}
	return nil
}

// Level returns the level for score, clamping it into [0,100] first.
func (t *Table) Level(score int) domain.SeverityLevel {
	score = Clamp(score)
	i := sort.Search(len(t.bands), func(i int) bool { return t.bands[i].Max >= score })
	if i == len(t.bands) {
		return domain.LevelNone
	}
	return t.bands[i].Level
}

// Bands returns a copy of the table rows in ascending order.
func (t *Table) Bands() []Band {
	out := make([]Band, len(t.bands))
	copy(out, t.bands)
	return out
}

// MarshalYAML renders the table in the same shape Parse accepts.
func (t *Table) MarshalYAML() (interface{}, error) {
	return tableFile{Bands: t.Bands()}, nil
}

// Clamp bounds score to [0,100].
func Clamp(score int) int {
	if score < domain.MinSeverity {
		return domain.MinSeverity
	}
	if score > domain.MaxSeverity {
		return domain.MaxSeverity
	}
	return score
}
