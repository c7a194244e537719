package app

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hyperifyio/goreader/internal/catalog"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// deriveReportPath returns a stable Markdown path under dir for book. The
// name is the slugified title plus a short hash of the source URL so two
// editions of one title do not collide.
func deriveReportPath(dir string, book catalog.Book) string {
	root := strings.TrimSpace(dir)
	if root == "" {
		root = "reports"
	}
	h := sha256.Sum256([]byte(strings.TrimSpace(book.URL)))
	short := hex.EncodeToString(h[:])[:12]
	return filepath.Join(root, slugify(book.TitleEn)+"-"+short+".md")
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlug.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "book"
	}
	return s
}
