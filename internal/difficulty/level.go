package difficulty

import (
	"fmt"
	"strings"
)

// Level is a CEFR proficiency label.
type Level string

const (
	A1 Level = "A1"
	A2 Level = "A2"
	B1 Level = "B1"
	B2 Level = "B2"
	C1 Level = "C1"
	C2 Level = "C2"
)

// Levels lists every label from easiest to hardest.
var Levels = []Level{A1, A2, B1, B2, C1, C2}

// ParseLevel accepts a label in any case, e.g. "b2".
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if l.Rank() == 0 {
		return "", fmt.Errorf("unknown CEFR level %q", s)
	}
	return l, nil
}

// Rank orders levels from 1 (A1) to 6 (C2). Unknown labels rank 0.
func (l Level) Rank() int {
	for i, v := range Levels {
		if v == l {
			return i + 1
		}
	}
	return 0
}

func (l Level) Valid() bool { return l.Rank() > 0 }

func (l Level) String() string { return string(l) }
