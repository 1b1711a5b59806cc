package transform

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"bookforge/core/config"
	"bookforge/core/ir"
	"bookforge/core/plugins"
)

// MergeMetadata consolidates duplicate authors, normalizes the language
// tag and dates, and guarantees a "uuid" identifier and a non-empty
// title.
type MergeMetadata struct{}

func (MergeMetadata) Name() string                       { return "MergeMetadata" }
func (MergeMetadata) ShouldRun(opts config.Options) bool { return true }

func (MergeMetadata) Apply(ctx context.Context, book *ir.BookIR, opts config.Options, progress plugins.ProgressFunc) error {
	m := &book.Metadata

	m.Authors = dedupAuthors(m.Authors)

	m.Language = normalizeLanguage(m.Language)

	if strings.TrimSpace(m.Title) == "" {
		m.Title = "Unknown"
	}

	if _, ok := m.Identifier("uuid"); !ok {
		m.SetIdentifier("uuid", "urn:uuid:"+uuid.NewString())
	}

	m.Date = normalizeDate(m.Date)

	if progress != nil {
		progress(1.0, "merged metadata")
	}
	return nil
}

// dedupAuthors removes case-insensitive duplicates, keeping the first
// spelling encountered and the original relative order.
func dedupAuthors(authors []string) []string {
	seen := make(map[string]bool, len(authors))
	out := make([]string, 0, len(authors))
	for _, a := range authors {
		key := strings.ToLower(strings.TrimSpace(a))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

func normalizeLanguage(lang string) string {
	if strings.TrimSpace(lang) == "" {
		return "en"
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return "en"
	}
	return tag.String()
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02T15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
	"01/02/2006",
	"2006",
}

func normalizeDate(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Now().UTC().Format(time.RFC3339)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
}
