package gutenberg

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Boundary names one story inside a multi-story document. Boundaries are
// supplied as an ordered list; the entry after a boundary is the one whose
// title ends it.
type Boundary struct {
	Title   string `yaml:"title_en" json:"title_en"`
	TitleJa string `yaml:"title_ja" json:"title_ja"`
}

// Options tunes ExtractStories for one document.
type Options struct {
	// SkipFirstOccurrence drops everything before the second occurrence of
	// the first boundary's title. Use it when a table of contents repeats the
	// real chapter headings.
	SkipFirstOccurrence bool
}

// Story is the cleaned body of one boundary.
type Story struct {
	TitleEn string
	TitleJa string
	Body    string
}

// Warning reports a boundary that was skipped.
type Warning struct {
	Index  int
	Title  string
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("boundary %d %q: %s", w.Index, w.Title, w.Reason)
}

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	colophonRuleRe = regexp.MustCompile(`\*\s*\*\s*\*\s*\*\s*\*`)
)

// TitlePattern builds the matcher for a literal title: metacharacters are
// escaped, every whitespace run matches one or more whitespace characters,
// an optional trailing period is accepted, matching is case-insensitive and
// the title must start a line (leading spaces and tabs allowed).
func TitlePattern(title string) (*regexp.Regexp, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("empty title")
	}
	quoted := regexp.QuoteMeta(title)
	flexible := whitespaceRun.ReplaceAllLiteralString(quoted, `\s+`)
	return regexp.Compile(`(?im)^[ \t]*` + flexible + `\.?`)
}

// ExtractStories slices the body of each boundary out of text, which should
// already have been through Normalize and StripBoilerplate. Boundaries whose title cannot
// be found are omitted from the result and reported as warnings; the rest of
// the batch is unaffected. Results keep the input order.
func ExtractStories(text string, boundaries []Boundary, opts Options) ([]Story, []Warning) {
	var warnings []Warning
	patterns := make([]*regexp.Regexp, len(boundaries))
	for i, b := range boundaries {
		re, err := TitlePattern(b.Title)
		if err != nil {
			warnings = append(warnings, Warning{Index: i, Title: b.Title, Reason: err.Error()})
			continue
		}
		patterns[i] = re
	}

	if opts.SkipFirstOccurrence && len(patterns) > 0 && patterns[0] != nil {
		if locs := patterns[0].FindAllStringIndex(text, 2); len(locs) == 2 {
			text = text[locs[1][0]:]
		}
	}

	stories := make([]Story, 0, len(boundaries))
	rest := text
	for i, b := range boundaries {
		re := patterns[i]
		if re == nil {
			continue
		}
		loc := re.FindStringIndex(rest)
		if loc == nil {
			warnings = append(warnings, Warning{Index: i, Title: b.Title, Reason: "title not found"})
			continue
		}
		rest = rest[loc[1]:]
		body := strings.TrimLeftFunc(rest, unicode.IsSpace)

		last := i == len(boundaries)-1
		if !last && patterns[i+1] != nil {
			if next := patterns[i+1].FindStringIndex(body); next != nil {
				body = body[:next[0]]
			}
		}
		if last {
			if rule := colophonRuleRe.FindStringIndex(body); rule != nil {
				body = body[:rule[0]]
			}
		}

		stories = append(stories, Story{
			TitleEn: b.Title,
			TitleJa: b.TitleJa,
			Body:    strings.TrimSpace(body),
		})
	}
	return stories, sortWarnings(warnings)
}

// ExtractStory normalizes fullText, strips boilerplate and returns the body of the
// story titled title, ending at nextTitle when that is non-empty. It returns
// "" when the title is absent.
func ExtractStory(fullText, title, nextTitle string) string {
	boundaries := []Boundary{{Title: title}}
	if strings.TrimSpace(nextTitle) != "" {
		boundaries = append(boundaries, Boundary{Title: nextTitle})
	}
	stories, _ := ExtractStories(StripBoilerplate(Normalize(fullText)), boundaries, Options{})
	if len(stories) == 0 || stories[0].TitleEn != title {
		return ""
	}
	return stories[0].Body
}

// sortWarnings orders warnings by boundary index. Pattern errors are
// collected before the extraction pass, so they would otherwise come first.
func sortWarnings(ws []Warning) []Warning {
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].Index < ws[j].Index })
	return ws
}
