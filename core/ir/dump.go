package ir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DumpManifestItem is the JSON shape of one manifest item in a debug dump.
// Binary data is never inlined: it is written alongside as a companion
// file and referenced by name.
type DumpManifestItem struct {
	ID            string `json:"id"`
	Href          string `json:"href"`
	MediaType     string `json:"media_type"`
	Variant       string `json:"variant"`
	Text          string `json:"text,omitempty"`
	CompanionFile string `json:"companion_file,omitempty"`
}

// DumpSpineItem is the JSON shape of one spine entry.
type DumpSpineItem struct {
	IDRef  string `json:"idref"`
	Linear bool   `json:"linear"`
}

// DumpTocEntry is the JSON shape of one TOC node.
type DumpTocEntry struct {
	Title    string          `json:"title"`
	Href     string          `json:"href"`
	Children []DumpTocEntry  `json:"children,omitempty"`
}

// DumpGuideRef is the JSON shape of one guide entry.
type DumpGuideRef struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Href  string `json:"href"`
}

// DumpMetadata is the JSON shape of the metadata block.
type DumpMetadata struct {
	Title       string            `json:"title,omitempty"`
	Authors     []string          `json:"authors,omitempty"`
	Language    string            `json:"language,omitempty"`
	Description string            `json:"description,omitempty"`
	Publisher   string            `json:"publisher,omitempty"`
	Date        string            `json:"date,omitempty"`
	Identifiers map[string]string `json:"identifiers,omitempty"`
}

// Dump is the top-level JSON object written to <dir>/NN-after-<name>.json
// when debug_pipeline is configured. It is diagnostic only, never read
// back in as a persistence format.
type Dump struct {
	Metadata DumpMetadata       `json:"metadata"`
	Manifest []DumpManifestItem `json:"manifest"`
	Spine    []DumpSpineItem    `json:"spine"`
	TOC      []DumpTocEntry     `json:"toc"`
	Guide    []DumpGuideRef     `json:"guide"`
}

func toDumpToc(entries []*TocEntry) []DumpTocEntry {
	out := make([]DumpTocEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DumpTocEntry{
			Title:    e.Title,
			Href:     e.Href,
			Children: toDumpToc(e.Children),
		})
	}
	return out
}

// ToDump converts book into its dump representation. Binary manifest
// items are assigned a companion filename of "<id>.bin"; WriteDump
// writes the companion bytes alongside the JSON.
func ToDump(book *BookIR) Dump {
	d := Dump{
		Metadata: DumpMetadata{
			Title:       book.Metadata.Title,
			Authors:     book.Metadata.Authors,
			Language:    book.Metadata.Language,
			Description: book.Metadata.Description,
			Publisher:   book.Metadata.Publisher,
			Date:        book.Metadata.Date,
			Identifiers: book.Metadata.Identifiers,
		},
	}
	for _, it := range book.Manifest.Items() {
		dmi := DumpManifestItem{
			ID:        it.ID,
			Href:      it.Href,
			MediaType: it.MediaType,
			Variant:   it.Data.Kind.String(),
		}
		switch it.Data.Kind {
		case DataXhtml:
			dmi.Text = it.Data.Xhtml
		case DataCSS:
			dmi.Text = it.Data.CSS
		case DataBinary:
			dmi.CompanionFile = it.ID + ".bin"
		case DataLazy:
			dmi.CompanionFile = it.ID + ".bin"
		}
		d.Manifest = append(d.Manifest, dmi)
	}
	for _, s := range book.Spine.Items {
		d.Spine = append(d.Spine, DumpSpineItem{IDRef: s.IDRef, Linear: s.Linear})
	}
	d.TOC = toDumpToc(book.TOC.Entries)
	for _, g := range book.Guide.Refs {
		d.Guide = append(d.Guide, DumpGuideRef{Type: string(g.Type), Title: g.Title, Href: g.Href})
	}
	return d
}

// WriteDump serializes book's Nth-step dump named <name> into dir as
// "<seq>-after-<name>.json", plus a human-readable "<seq>-after-<name>-summary.txt"
// and companion files for any binary/lazy manifest items. seq is
// formatted zero-padded to two digits, matching the reference
// implementation's numbering.
func WriteDump(dir string, seq int, name string, book *BookIR) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("debug dump: %w", err)
	}
	base := fmt.Sprintf("%02d-after-%s", seq, name)

	dump := ToDump(book)
	jsonPath := filepath.Join(dir, base+".json")
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("debug dump: marshal: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("debug dump: write json: %w", err)
	}

	for _, it := range book.Manifest.Items() {
		var payload []byte
		switch it.Data.Kind {
		case DataBinary:
			payload = it.Data.Binary
		case DataLazy:
			payload, err = os.ReadFile(it.Data.LazyPath)
			if err != nil {
				return fmt.Errorf("debug dump: read lazy item %s: %w", it.ID, err)
			}
		default:
			continue
		}
		companionPath := filepath.Join(dir, it.ID+".bin")
		if err := os.WriteFile(companionPath, payload, 0o644); err != nil {
			return fmt.Errorf("debug dump: write companion %s: %w", it.ID, err)
		}
	}

	summaryPath := filepath.Join(dir, base+"-summary.txt")
	summary := writeSummary(book)
	if err := os.WriteFile(summaryPath, []byte(summary), 0o644); err != nil {
		return fmt.Errorf("debug dump: write summary: %w", err)
	}

	return nil
}

// writeSummary produces a short human-readable text rendering of book,
// supplementing the JSON dump the way the reference implementation's
// metadata.txt/manifest.txt files did.
func writeSummary(book *BookIR) string {
	s := fmt.Sprintf("title: %s\n", book.Metadata.Title)
	s += fmt.Sprintf("authors: %v\n", book.Metadata.Authors)
	s += fmt.Sprintf("language: %s\n", book.Metadata.Language)
	s += fmt.Sprintf("manifest items: %d\n", book.Manifest.Len())
	s += fmt.Sprintf("spine entries: %d\n", len(book.Spine.Items))
	s += fmt.Sprintf("guide entries: %d\n", len(book.Guide.Refs))
	for _, it := range book.Manifest.Items() {
		s += fmt.Sprintf("  - %s (%s) [%s]\n", it.ID, it.Href, it.MediaType)
	}
	return s
}
