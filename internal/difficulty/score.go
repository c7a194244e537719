// Package difficulty scores sentence reading difficulty and maps scores to
// CEFR labels through a versioned Policy.
package difficulty

import (
	"math"
	"strings"
)

const (
	// LengthCap is the token count at which the length component saturates.
	LengthCap = 30.0
	// BaseWordLength is the average word length that contributes zero.
	BaseWordLength = 3.0
	// WordLengthSpan is how many letters above BaseWordLength saturate the
	// word-length component.
	WordLengthSpan = 5.0

	lengthWeight     = 0.6
	wordLengthWeight = 0.4
)

// Components is the unrounded breakdown of a score.
type Components struct {
	Tokens        int
	AvgWordLength float64
	Length        float64
	WordLength    float64
}

// Analyze computes the raw score components. The word-length component is
// capped at 1 but may go negative for text made of very short words.
func Analyze(text string) Components {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return Components{}
	}
	letters := 0
	for _, tok := range tokens {
		letters += asciiLetters(tok)
	}
	avg := float64(letters) / float64(len(tokens))
	return Components{
		Tokens:        len(tokens),
		AvgWordLength: avg,
		Length:        math.Min(float64(len(tokens))/LengthCap, 1),
		WordLength:    math.Min((avg-BaseWordLength)/WordLengthSpan, 1),
	}
}

// Score returns the difficulty of one sentence rounded to two decimals.
// Text without tokens scores 0.
func Score(text string) float64 {
	c := Analyze(text)
	if c.Tokens == 0 {
		return 0
	}
	return Round2(lengthWeight*c.Length + wordLengthWeight*c.WordLength)
}

// Round2 rounds half up (towards +Inf) to two decimals.
func Round2(x float64) float64 {
	return math.Floor(x*100+0.5) / 100
}

func asciiLetters(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') {
			n++
		}
	}
	return n
}
