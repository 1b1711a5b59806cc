package transform

import (
	"context"
	"testing"

	"bookforge/core/config"
	"bookforge/core/ir"
)

func TestCleanGuide_DropsUnresolvedRefs(t *testing.T) {
	book := ir.New()
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "ch1", Href: "ch1.xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData("<html/>")})
	book.Guide.Add(ir.GuideRef{Type: ir.GuideCover, Href: "ch1.xhtml"})
	book.Guide.Refs = append(book.Guide.Refs, ir.GuideRef{Type: ir.GuideTOC, Href: "missing.xhtml"})

	if err := (CleanGuide{}).Apply(context.Background(), book, config.Options{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(book.Guide.Refs) != 1 || book.Guide.Refs[0].Href != "ch1.xhtml" {
		t.Errorf("expected only the resolvable ref to remain, got %v", book.Guide.Refs)
	}
}

func TestCleanGuide_ShouldRunAlwaysTrue(t *testing.T) {
	if !(CleanGuide{}).ShouldRun(config.Options{}) {
		t.Error("expected CleanGuide to always run")
	}
}

func TestCleanGuide_PromotesMSCoverAliasToCover(t *testing.T) {
	book := ir.New()
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "cover-img", Href: "images/cover.jpg", MediaType: "image/jpeg", Data: ir.BinaryData([]byte{0xFF})})
	book.Guide.Add(ir.GuideRef{Type: "other.ms-coverimage-standard", Title: "Cover Image", Href: "images/cover.jpg"})

	if err := (CleanGuide{}).Apply(context.Background(), book, config.Options{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ref, ok := book.Guide.Get(ir.GuideCover)
	if !ok {
		t.Fatal("expected a promoted cover guide reference")
	}
	if ref.Href != "images/cover.jpg" {
		t.Errorf("cover href = %q, want %q", ref.Href, "images/cover.jpg")
	}
}

func TestCleanGuide_DoesNotOverrideExistingCover(t *testing.T) {
	book := ir.New()
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "real-cover", Href: "real.jpg", MediaType: "image/jpeg", Data: ir.BinaryData([]byte{0xFF})})
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "alias-cover", Href: "alias.jpg", MediaType: "image/jpeg", Data: ir.BinaryData([]byte{0xFF})})
	book.Guide.Add(ir.GuideRef{Type: ir.GuideCover, Href: "real.jpg"})
	book.Guide.Add(ir.GuideRef{Type: "ms-coverimage-standard", Href: "alias.jpg"})

	if err := (CleanGuide{}).Apply(context.Background(), book, config.Options{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ref, ok := book.Guide.Get(ir.GuideCover)
	if !ok || ref.Href != "real.jpg" {
		t.Errorf("expected existing cover to be preserved, got %+v, ok=%v", ref, ok)
	}
}
