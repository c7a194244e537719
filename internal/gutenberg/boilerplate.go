// Package gutenberg isolates story text inside Project Gutenberg style plain
// text dumps: it strips the distribution header and footer and slices out
// named stories by their title lines.
//
// Everything here is a pure function of its inputs. Nothing logs, nothing
// touches the network, and identical input always yields identical output.
package gutenberg

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// StartMarkers are the header terminators recognised by StripBoilerplate, in
// the order they are tried.
var StartMarkers = []string{
	"*** START OF THE PROJECT GUTENBERG EBOOK",
	"*** START OF THIS PROJECT GUTENBERG EBOOK",
	"*END*THE SMALL PRINT",
}

// EndMarkers introduce the license footer. The earliest one found wins.
var EndMarkers = []string{
	"*** END OF THE PROJECT GUTENBERG EBOOK",
	"*** END OF THIS PROJECT GUTENBERG EBOOK",
	"End of the Project Gutenberg EBook",
	"End of Project Gutenberg",
}

var illustrationRe = regexp.MustCompile(`\[(?i:picture|illustration)[^\]]*\]`)

// Normalize converts line endings to \n, drops a leading byte order mark and
// applies Unicode NFC so that title matching does not depend on how the
// source happened to encode accents.
func Normalize(raw string) string {
	s := strings.TrimPrefix(raw, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return norm.NFC.String(s)
}

// StripBoilerplate removes the publisher header (everything through the end
// of the start marker's line) and footer (everything from the end marker on),
// then deletes inline [Picture: ...] and [Illustration ...] annotations.
// Missing markers are not an error; that side of the text is kept as is.
// Line endings and accents are left untouched; callers that match titles run
// Normalize first.
func StripBoilerplate(raw string) string {
	text := raw

	for _, marker := range StartMarkers {
		idx := strings.Index(text, marker)
		if idx < 0 {
			continue
		}
		nl := strings.IndexByte(text[idx:], '\n')
		if nl < 0 {
			// Marker sits on the final line: nothing follows it.
			text = ""
		} else {
			text = text[idx+nl+1:]
		}
		break
	}

	end := -1
	for _, marker := range EndMarkers {
		if idx := strings.Index(text, marker); idx >= 0 && (end < 0 || idx < end) {
			end = idx
		}
	}
	if end >= 0 {
		text = text[:end]
	}

	return illustrationRe.ReplaceAllString(text, "")
}
