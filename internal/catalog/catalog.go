// Package catalog describes the books available for ingestion: where to
// fetch them, their metadata and the ordered story titles to extract.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/goreader/internal/difficulty"
	"github.com/hyperifyio/goreader/internal/gutenberg"
)

//go:embed default.yaml
var defaultYAML []byte

// License values stored with each book.
const (
	LicensePublicDomain = "PUBLIC_DOMAIN"
	LicenseCC           = "CC"
	LicenseLicensed     = "LICENSED"
)

// Book is one catalog entry.
type Book struct {
	URL                      string               `yaml:"url" json:"url"`
	TitleEn                  string               `yaml:"title_en" json:"title_en"`
	TitleJa                  string               `yaml:"title_ja" json:"title_ja"`
	AuthorEn                 string               `yaml:"author_en" json:"author_en"`
	AuthorJa                 string               `yaml:"author_ja" json:"author_ja"`
	DescriptionJa            string               `yaml:"description_ja" json:"description_ja"`
	CEFR                     difficulty.Level     `yaml:"cefr_level" json:"cefr_level"`
	GenreTags                []string             `yaml:"genre_tags" json:"genre_tags"`
	License                  string               `yaml:"license_type" json:"license_type"`
	SkipFirstTitleOccurrence bool                 `yaml:"skip_first_title_occurrence" json:"skip_first_title_occurrence"`
	Stories                  []gutenberg.Boundary `yaml:"stories" json:"stories"`
}

// Catalog is the file schema.
type Catalog struct {
	Books []Book `yaml:"books" json:"books"`
}

// ExtractOptions maps the book's flags onto extraction options.
func (b Book) ExtractOptions() gutenberg.Options {
	return gutenberg.Options{SkipFirstOccurrence: b.SkipFirstTitleOccurrence}
}

// TitlesToReplace lists every title under which an earlier ingestion of this
// book may have been stored: the book title and each story title.
func (b Book) TitlesToReplace() []string {
	seen := map[string]bool{}
	out := []string{}
	for _, t := range append([]string{b.TitleEn}, storyTitles(b.Stories)...) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func storyTitles(bs []gutenberg.Boundary) []string {
	out := make([]string, len(bs))
	for i, s := range bs {
		out[i] = s.Title
	}
	return out
}

// Validate performs minimal schema checks and fills defaults.
func (c *Catalog) Validate() error {
	var errs []error
	for i := range c.Books {
		b := &c.Books[i]
		prefix := fmt.Sprintf("books[%d]", i)
		if strings.TrimSpace(b.TitleEn) == "" {
			errs = append(errs, fmt.Errorf("%s: title_en is required", prefix))
		}
		if !strings.HasPrefix(b.URL, "http://") && !strings.HasPrefix(b.URL, "https://") {
			errs = append(errs, fmt.Errorf("%s: url must be http(s), got %q", prefix, b.URL))
		}
		if len(b.Stories) == 0 {
			errs = append(errs, fmt.Errorf("%s: at least one story is required", prefix))
		}
		for j, s := range b.Stories {
			if strings.TrimSpace(s.Title) == "" {
				errs = append(errs, fmt.Errorf("%s.stories[%d]: title_en is required", prefix, j))
			}
		}
		if b.CEFR != "" && !b.CEFR.Valid() {
			errs = append(errs, fmt.Errorf("%s: unknown cefr_level %q", prefix, b.CEFR))
		}
		switch b.License {
		case "":
			b.License = LicensePublicDomain
		case LicensePublicDomain, LicenseCC, LicenseLicensed:
		default:
			errs = append(errs, fmt.Errorf("%s: unknown license_type %q", prefix, b.License))
		}
	}
	return errors.Join(errs...)
}

// Parse decodes a catalog. format is "yaml", "json" or "" to try YAML then
// JSON.
func Parse(data []byte, format string) (Catalog, error) {
	var c Catalog
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse yaml: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &c); err != nil {
			if jerr := json.Unmarshal(data, &c); jerr != nil {
				return c, fmt.Errorf("parse catalog: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid catalog: %w", err)
	}
	return c, nil
}

// Load reads a catalog file, choosing the decoder by extension. An empty
// path returns Default.
func Load(path string) (Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	format := ""
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".json":
		format = "json"
	}
	return Parse(b, format)
}

// Default returns the built-in catalog.
func Default() Catalog {
	c, err := Parse(defaultYAML, "yaml")
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return c
}

// Find selects a book by 1-based index or by case-insensitive title.
func (c Catalog) Find(selector string) (Book, error) {
	selector = strings.TrimSpace(selector)
	if len(c.Books) == 0 {
		return Book{}, errors.New("catalog is empty")
	}
	if selector == "" {
		return c.Books[0], nil
	}
	if n, err := strconv.Atoi(selector); err == nil {
		if n < 1 || n > len(c.Books) {
			return Book{}, fmt.Errorf("book index %d out of range 1..%d", n, len(c.Books))
		}
		return c.Books[n-1], nil
	}
	for _, b := range c.Books {
		if strings.EqualFold(b.TitleEn, selector) {
			return b, nil
		}
	}
	return Book{}, fmt.Errorf("no book titled %q", selector)
}
