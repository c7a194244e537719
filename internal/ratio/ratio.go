// Package ratio decides, per sentence, whether the reader sees the English
// original or the Japanese translation first.
package ratio

import (
	"fmt"
	"slices"

	"github.com/hyperifyio/goreader/internal/difficulty"
)

// Lang is a display language code.
type Lang string

const (
	En Lang = "en"
	Ja Lang = "ja"
)

// AllEnglish is the ratio at which every sentence is shown in English.
const AllEnglish = 100

// Decide picks the default display language for a sentence with the given
// difficulty score. Sentences scoring below the ratio's threshold are easy
// enough to show in English. Ratios missing from the policy use the highest
// configured ratio below AllEnglish.
func Decide(score float64, englishRatio int, p difficulty.Policy) Lang {
	if englishRatio >= AllEnglish {
		return En
	}
	threshold, ok := Threshold(englishRatio, p)
	if !ok {
		return En
	}
	if score < threshold {
		return En
	}
	return Ja
}

// Threshold resolves the score threshold for a ratio, applying the fallback
// rule. ok is false only when the policy has no ratios at all.
func Threshold(englishRatio int, p difficulty.Policy) (float64, bool) {
	if v, ok := p.Ratios[englishRatio]; ok {
		return v, true
	}
	keys := p.RatioKeys()
	for i := len(keys) - 1; i >= 0; i-- {
		if keys[i] < AllEnglish {
			return p.Ratios[keys[i]], true
		}
	}
	return 0, false
}

// Values lists the selectable ratios in ascending order, AllEnglish last.
func Values(p difficulty.Policy) []int {
	out := []int{}
	for _, k := range p.RatioKeys() {
		if k < AllEnglish {
			out = append(out, k)
		}
	}
	return append(out, AllEnglish)
}

// Normalize validates a user supplied percentage against the selectable
// ratios of p.
func Normalize(r int, p difficulty.Policy) (int, error) {
	values := Values(p)
	if !slices.Contains(values, r) {
		return 0, fmt.Errorf("english ratio %d is not one of %v", r, values)
	}
	return r, nil
}

// Decider binds a policy so callers do not pass it on every sentence.
type Decider struct {
	Policy difficulty.Policy
}

func NewDecider(p difficulty.Policy) *Decider { return &Decider{Policy: p} }

func (d *Decider) Decide(score float64, englishRatio int) Lang {
	return Decide(score, englishRatio, d.Policy)
}

// Share reports the fraction of scores that would be shown in English at the
// given ratio.
func (d *Decider) Share(scores []float64, englishRatio int) float64 {
	if len(scores) == 0 {
		return 0
	}
	n := 0
	for _, s := range scores {
		if d.Decide(s, englishRatio) == En {
			n++
		}
	}
	return float64(n) / float64(len(scores))
}
