package difficulty

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Cutpoint assigns Level to scores strictly below Below that no earlier
// cutpoint claimed.
type Cutpoint struct {
	Level Level   `yaml:"level" json:"level"`
	Below float64 `yaml:"below" json:"below"`
}

// Policy is the threshold table shared by ingestion (labels) and reading
// (display language). Version is persisted with every ingested book.
type Policy struct {
	Version int        `yaml:"version" json:"version"`
	Levels  []Cutpoint `yaml:"levels" json:"levels"`
	// Top is the label for scores at or above the last cutpoint.
	Top Level `yaml:"top" json:"top"`
	// Ratios maps an English ratio percentage to the score below which a
	// sentence is shown in English. 100 is implicit and never listed.
	Ratios map[int]float64 `yaml:"ratios" json:"ratios"`
}

// DefaultPolicy returns a fresh copy of the built-in table.
func DefaultPolicy() Policy {
	return Policy{
		Version: 1,
		Levels: []Cutpoint{
			{Level: A1, Below: 0.2},
			{Level: A2, Below: 0.35},
			{Level: B1, Below: 0.5},
			{Level: B2, Below: 0.7},
			{Level: C1, Below: 0.85},
		},
		Top:    C2,
		Ratios: map[int]float64{25: 0.3, 50: 0.5, 75: 0.7},
	}
}

// Classify maps a score to its label: each cutpoint is an exclusive upper
// bound, so a score equal to a cutpoint belongs to the next level. NaN maps
// to the lowest level.
func (p Policy) Classify(score float64) Level {
	if math.IsNaN(score) && len(p.Levels) > 0 {
		return p.Levels[0].Level
	}
	for _, c := range p.Levels {
		if score < c.Below {
			return c.Level
		}
	}
	return p.Top
}

// Classify uses DefaultPolicy.
func Classify(score float64) Level {
	return DefaultPolicy().Classify(score)
}

// RatioKeys returns the configured ratios in ascending order.
func (p Policy) RatioKeys() []int {
	keys := make([]int, 0, len(p.Ratios))
	for k := range p.Ratios {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Validate performs minimal schema checks.
func (p Policy) Validate() error {
	var errs []error
	if p.Version < 1 {
		errs = append(errs, fmt.Errorf("version must be >= 1, got %d", p.Version))
	}
	if len(p.Levels) == 0 {
		errs = append(errs, errors.New("levels must not be empty"))
	}
	prevRank := 0
	prevBelow := math.Inf(-1)
	for i, c := range p.Levels {
		if !c.Level.Valid() {
			errs = append(errs, fmt.Errorf("levels[%d]: unknown level %q", i, c.Level))
			continue
		}
		if c.Level.Rank() <= prevRank {
			errs = append(errs, fmt.Errorf("levels[%d]: %s is not harder than the previous level", i, c.Level))
		}
		if math.IsNaN(c.Below) || math.IsInf(c.Below, 0) || c.Below <= prevBelow {
			errs = append(errs, fmt.Errorf("levels[%d]: cutpoint %v must be finite and strictly increasing", i, c.Below))
		}
		prevRank = c.Level.Rank()
		prevBelow = c.Below
	}
	if !p.Top.Valid() {
		errs = append(errs, fmt.Errorf("top: unknown level %q", p.Top))
	} else if p.Top.Rank() <= prevRank {
		errs = append(errs, fmt.Errorf("top: %s must be harder than every cutpoint level", p.Top))
	}
	for _, k := range p.RatioKeys() {
		v := p.Ratios[k]
		if k <= 0 || k >= 100 {
			errs = append(errs, fmt.Errorf("ratios: key %d must be between 1 and 99", k))
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("ratios[%d]: threshold must be finite", k))
		}
	}
	return errors.Join(errs...)
}

// ParsePolicy decodes a YAML policy and validates it. Unknown fields are
// rejected.
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}

// LoadPolicy reads a YAML policy file. An empty path yields DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// YAML renders p in the file format accepted by ParsePolicy.
func (p Policy) YAML() ([]byte, error) {
	return yaml.Marshal(p)
}
