package transform

import (
	"context"
	"strings"
	"testing"

	"bookforge/core/config"
	"bookforge/core/ir"
	"bookforge/core/plugins"

	_ "bookforge/formats/txt"
)

func TestDetectStructure_BuildsTOCFromHeadings(t *testing.T) {
	book := ir.New()
	markup := `<html><body><h1>Chapter One</h1><p>text</p><h2>Section A</h2><p>more</p></body></html>`
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "ch1", Href: "ch1.xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData(markup)})
	_ = book.Spine.Add("ch1")

	if err := (DetectStructure{}).Apply(context.Background(), book, config.Options{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(book.TOC.Entries) != 1 {
		t.Fatalf("expected one top-level toc entry, got %d", len(book.TOC.Entries))
	}
	top := book.TOC.Entries[0]
	if top.Title != "Chapter One" {
		t.Errorf("expected top entry %q, got %q", "Chapter One", top.Title)
	}
	if len(top.Children) != 1 || top.Children[0].Title != "Section A" {
		t.Errorf("expected Section A nested under Chapter One, got %v", top.Children)
	}
}

func TestDetectStructure_LeavesExistingTOCUntouched(t *testing.T) {
	book := ir.New()
	book.TOC.Entries = append(book.TOC.Entries, &ir.TocEntry{Title: "Existing"})
	markup := `<html><body><h1>Ignored</h1></body></html>`
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "ch1", Href: "ch1.xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData(markup)})
	_ = book.Spine.Add("ch1")

	if err := (DetectStructure{}).Apply(context.Background(), book, config.Options{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(book.TOC.Entries) != 1 || book.TOC.Entries[0].Title != "Existing" {
		t.Errorf("expected the existing toc to be preserved, got %v", book.TOC.Entries)
	}
}

func TestDetectStructure_SkipsItemsWithNoHeadings(t *testing.T) {
	book := ir.New()
	markup := `<html><body><p>no headings here</p></body></html>`
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "ch1", Href: "ch1.xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData(markup)})
	_ = book.Spine.Add("ch1")

	if err := (DetectStructure{}).Apply(context.Background(), book, config.Options{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !book.TOC.IsEmpty() {
		t.Error("expected no toc entries when there are no headings")
	}
}

func TestDetectStructure_BuildsTOCFromPlainTextChapterMarkers(t *testing.T) {
	src := plugins.BytesSource([]byte("Chapter 1\n\nThe story begins here.\n\nChapter 2\n\nIt continues."))
	input, ok := plugins.Default().Input("txt")
	if !ok {
		t.Fatal("expected the txt input plugin to be registered")
	}
	book, err := input.Parse(src, config.Default(), nil)
	if err != nil {
		t.Fatalf("txt Parse failed: %v", err)
	}

	if err := (DetectStructure{}).Apply(context.Background(), book, config.Options{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(book.TOC.Entries) != 2 {
		t.Fatalf("expected two top-level toc entries, got %d: %v", len(book.TOC.Entries), book.TOC.Entries)
	}
	if book.TOC.Entries[0].Title != "Chapter 1" || book.TOC.Entries[1].Title != "Chapter 2" {
		t.Errorf("expected Chapter 1/Chapter 2 toc entries, got %q and %q", book.TOC.Entries[0].Title, book.TOC.Entries[1].Title)
	}
}

func TestDetectStructure_AssignsHeadingIDsWhenMissing(t *testing.T) {
	book := ir.New()
	markup := `<html><body><h1>No ID Here</h1></body></html>`
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "ch1", Href: "ch1.xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData(markup)})
	_ = book.Spine.Add("ch1")

	if err := (DetectStructure{}).Apply(context.Background(), book, config.Options{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	item, _ := book.Manifest.ByID("ch1")
	if !strings.Contains(item.Data.Xhtml, `id="ch-1"`) {
		t.Errorf("expected an assigned heading id ch-1 in markup, got %q", item.Data.Xhtml)
	}
}
