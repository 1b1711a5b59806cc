package transform

import (
	"context"
	"strings"
	"testing"

	"bookforge/core/config"
	"bookforge/core/ir"
)

func TestDataURL_ReplacesInlineImageWithManifestItem(t *testing.T) {
	book := ir.New()
	markup := `<html><body><img src="data:image/png;base64,iVBORw0KGgo="/></body></html>`
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "ch1", Href: "ch1.xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData(markup)})

	if err := (DataURL{}).Apply(context.Background(), book, config.Options{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item, _ := book.Manifest.ByID("ch1")
	if strings.Contains(item.Data.Xhtml, "data:") {
		t.Errorf("expected the data URI to be replaced, got %q", item.Data.Xhtml)
	}
	if book.Manifest.Len() != 2 {
		t.Fatalf("expected a new manifest item for the decoded image, got %d items", book.Manifest.Len())
	}
}

func TestDataURL_DeduplicatesIdenticalPayloads(t *testing.T) {
	book := ir.New()
	markup := `<html><body>` +
		`<img src="data:image/png;base64,iVBORw0KGgo="/>` +
		`<img src="data:image/png;base64,iVBORw0KGgo="/>` +
		`</body></html>`
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "ch1", Href: "ch1.xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData(markup)})

	if err := (DataURL{}).Apply(context.Background(), book, config.Options{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if book.Manifest.Len() != 2 {
		t.Errorf("expected identical payloads to be deduplicated into one resource, got %d items", book.Manifest.Len())
	}
}

func TestDataURL_LeavesNonDataURIsUntouched(t *testing.T) {
	book := ir.New()
	markup := `<html><body><img src="images/cover.png"/></body></html>`
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "ch1", Href: "ch1.xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData(markup)})

	if err := (DataURL{}).Apply(context.Background(), book, config.Options{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if book.Manifest.Len() != 1 {
		t.Errorf("expected no new items for a regular src, got %d", book.Manifest.Len())
	}
}

func TestExtForMediaType(t *testing.T) {
	if got := extForMediaType("image/png"); got != "png" {
		t.Errorf("expected png, got %q", got)
	}
	if got := extForMediaType("application/octet-stream"); got != "octet-stream" {
		t.Errorf("expected a derived extension, got %q", got)
	}
	if got := extForMediaType("bogus"); got != "bin" {
		t.Errorf("expected fallback bin, got %q", got)
	}
}
