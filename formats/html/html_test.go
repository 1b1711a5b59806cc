package html

import (
	"strings"
	"testing"

	"bookforge/core/config"
	"bookforge/core/ir"
	"bookforge/core/plugins"
)

func TestInputPlugin_Identity(t *testing.T) {
	p := inputPlugin{}
	if p.Name() != "formats/html" {
		t.Errorf("unexpected name %q", p.Name())
	}
	formats := p.Formats()
	if len(formats) != 2 || formats[0] != "html" || formats[1] != "htm" {
		t.Errorf("unexpected formats %v", formats)
	}
}

func TestParse_ExtractsTitleAndWrapsSinglePage(t *testing.T) {
	src := plugins.BytesSource([]byte(`<html><head><title>  A Title  </title></head><body><p>Hello</p></body></html>`))

	book, err := inputPlugin{}.Parse(src, config.Default(), nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if book.Metadata.Title != "A Title" {
		t.Errorf("expected trimmed title %q, got %q", "A Title", book.Metadata.Title)
	}
	if len(book.Spine.Items) != 1 || book.Spine.Items[0].IDRef != "page" {
		t.Fatalf("expected single spine item %q, got %v", "page", book.Spine.Items)
	}
	item, ok := book.Manifest.ByID("page")
	if !ok {
		t.Fatal("expected manifest item \"page\"")
	}
	if !strings.Contains(item.Data.Xhtml, "Hello") {
		t.Error("expected original body content preserved")
	}
}

func TestParse_MalformedMarkup(t *testing.T) {
	// xhtml.Parse rejects malformed markup, but an empty source is
	// accepted and yields a book with an empty page and no title.
	src := plugins.BytesSource([]byte(``))
	book, err := inputPlugin{}.Parse(src, config.Default(), nil)
	if err != nil {
		t.Fatalf("Parse failed on empty input: %v", err)
	}
	if book.Metadata.Title != "" {
		t.Errorf("expected empty title, got %q", book.Metadata.Title)
	}
}

func TestWrite_ConcatenatesSpineAndInlinesCSS(t *testing.T) {
	book := ir.New()
	book.Metadata.Title = "Combined"

	cssItem := &ir.ManifestItem{ID: "style", Href: "style.css", MediaType: "text/css", Data: ir.CSSData("body{color:red}")}
	if err := book.Manifest.Add(cssItem); err != nil {
		t.Fatal(err)
	}

	page1 := `<?xml version="1.0"?><html><body><p>Page one</p></body></html>`
	page2 := `<?xml version="1.0"?><html><body><p>Page two</p></body></html>`
	for i, markup := range []string{page1, page2} {
		id := []string{"p1", "p2"}[i]
		item := &ir.ManifestItem{ID: id, Href: id + ".xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData(markup)}
		if err := book.Manifest.Add(item); err != nil {
			t.Fatal(err)
		}
		if err := book.Spine.Add(id); err != nil {
			t.Fatal(err)
		}
	}

	var buf strings.Builder
	if err := (outputPlugin{}).Write(book, plugins.WriterSink(&buf), config.Default()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Page one") || !strings.Contains(out, "Page two") {
		t.Error("expected both pages' content present in output")
	}
	if !strings.Contains(out, "color:red") {
		t.Error("expected inlined CSS in output")
	}
	if !strings.Contains(out, "Combined") {
		t.Error("expected title present in output")
	}
	if strings.Index(out, "Page one") > strings.Index(out, "Page two") {
		t.Error("expected spine order preserved")
	}
}
