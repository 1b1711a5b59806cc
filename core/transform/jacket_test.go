package transform

import (
	"context"
	"strings"
	"testing"

	"bookforge/core/config"
	"bookforge/core/ir"
)

func TestJacket_ShouldRunRequiresInsertMetadata(t *testing.T) {
	if (Jacket{}).ShouldRun(config.Options{}) {
		t.Error("expected Jacket not to run by default")
	}
	if !(Jacket{}).ShouldRun(config.Options{InsertMetadata: true}) {
		t.Error("expected Jacket to run when insert_metadata is set")
	}
}

func TestJacket_InsertsTitlePageAtFrontOfSpine(t *testing.T) {
	book := ir.New()
	book.Metadata.Title = "My Book"
	book.Metadata.Authors = []string{"Ann Author"}
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "ch1", Href: "ch1.xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData("<html><body><p>hi</p></body></html>")})
	_ = book.Spine.Add("ch1")

	if err := (Jacket{}).Apply(context.Background(), book, config.Options{InsertMetadata: true}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(book.Spine.Items) != 2 {
		t.Fatalf("expected 2 spine items after jacket insertion, got %d", len(book.Spine.Items))
	}
	firstItem, ok := book.Manifest.ByID(book.Spine.Items[0].IDRef)
	if !ok || !strings.Contains(firstItem.Data.Xhtml, "My Book") {
		t.Errorf("expected the jacket page to contain the title, got %v", firstItem)
	}

	ref, ok := book.Guide.Get(ir.GuideTitlePage)
	if !ok || ref.Href != firstItem.Href {
		t.Errorf("expected a title-page guide entry pointing at the jacket, got %v, %v", ref, ok)
	}
}

func TestJacket_RemovesFirstImageWhenRequested(t *testing.T) {
	book := ir.New()
	book.Metadata.Title = "My Book"
	markup := `<html><body><img src="cover.png"/><p>text</p></body></html>`
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "ch1", Href: "ch1.xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData(markup)})
	_ = book.Spine.Add("ch1")

	opts := config.Options{InsertMetadata: true, RemoveFirstImageAfterJacket: true}
	if err := (Jacket{}).Apply(context.Background(), book, opts, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item, _ := book.Manifest.ByID("ch1")
	if strings.Contains(item.Data.Xhtml, "<img") {
		t.Errorf("expected the first image to be removed, got %q", item.Data.Xhtml)
	}
}

func TestRenderJacket_EscapesTitle(t *testing.T) {
	m := &ir.Metadata{Title: "A & B"}
	markup := renderJacket(m)
	if strings.Contains(markup, "A & B") {
		t.Error("expected the ampersand to be escaped")
	}
	if !strings.Contains(markup, "A &amp; B") {
		t.Errorf("expected escaped ampersand in output, got %q", markup)
	}
}
