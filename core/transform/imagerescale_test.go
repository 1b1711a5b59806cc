package transform

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"bookforge/core/config"
	"bookforge/core/ir"
)

func encodedPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestImageRescale_DownscalesOversizedImage(t *testing.T) {
	book := ir.New()
	data := encodedPNG(t, 100, 100)
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "img1", Href: "img1.png", MediaType: "image/png", Data: ir.BinaryData(data)})

	opts := config.Options{HasMaxImageSize: true, MaxImageSize: config.ImageSize{Width: 50, Height: 50}, JPEGQuality: 80}
	if err := (ImageRescale{}).Apply(context.Background(), book, opts, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item, _ := book.Manifest.ByID("img1")
	img, _, err := image.Decode(bytes.NewReader(item.Data.Binary))
	if err != nil {
		t.Fatalf("expected the rescaled image to decode, got %v", err)
	}
	if img.Bounds().Dx() > 50 || img.Bounds().Dy() > 50 {
		t.Errorf("expected the image to be downscaled to within 50x50, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestImageRescale_NeverUpscales(t *testing.T) {
	book := ir.New()
	data := encodedPNG(t, 20, 20)
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "img1", Href: "img1.png", MediaType: "image/png", Data: ir.BinaryData(data)})

	opts := config.Options{HasMaxImageSize: true, MaxImageSize: config.ImageSize{Width: 500, Height: 500}}
	if err := (ImageRescale{}).Apply(context.Background(), book, opts, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	item, _ := book.Manifest.ByID("img1")
	if !bytes.Equal(item.Data.Binary, data) {
		t.Error("expected a small image within bounds to be left unchanged")
	}
}

func TestImageRescale_AcceptedFormatWithinBoundsIsUntouched(t *testing.T) {
	book := ir.New()
	data := encodedPNG(t, 10, 10)
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "img1", Href: "img1.png", MediaType: "image/png", Data: ir.BinaryData(data)})

	if err := (ImageRescale{}).Apply(context.Background(), book, config.Options{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	item, _ := book.Manifest.ByID("img1")
	if item.MediaType != "image/png" {
		t.Errorf("expected an already-accepted format to stay png, got %q", item.MediaType)
	}
	if !bytes.Equal(item.Data.Binary, data) {
		t.Error("expected no resize or transcode when already within bounds and accepted")
	}
}

func TestSwapExtension(t *testing.T) {
	if got := swapExtension("img/cover.png", "jpg"); got != "img/cover.jpg" {
		t.Errorf("expected img/cover.jpg, got %q", got)
	}
	if got := swapExtension("noext", "jpg"); got != "noext.jpg" {
		t.Errorf("expected noext.jpg, got %q", got)
	}
}

func TestRewriteHrefReferences_UpdatesXhtmlCSSGuideAndTOC(t *testing.T) {
	book := ir.New()
	markup := `<html><body><img src="old.png"/></body></html>`
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "ch1", Href: "ch1.xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData(markup)})
	_ = book.Manifest.Add(&ir.ManifestItem{ID: "css1", Href: "style.css", MediaType: "text/css", Data: ir.CSSData("body { background: url(old.png); }")})
	book.Guide.Add(ir.GuideRef{Type: ir.GuideCover, Href: "old.png"})
	book.TOC.Entries = append(book.TOC.Entries, &ir.TocEntry{Title: "x", Href: "old.png"})

	rewriteHrefReferences(book, "old.png", "new.jpg")

	ch1, _ := book.Manifest.ByID("ch1")
	if ch1.Data.Xhtml == markup {
		t.Error("expected xhtml reference to be rewritten")
	}
	css1, _ := book.Manifest.ByID("css1")
	if css1.Data.CSS != "body { background: url(new.jpg); }" {
		t.Errorf("expected css reference rewritten, got %q", css1.Data.CSS)
	}
	if ref, _ := book.Guide.Get(ir.GuideCover); ref.Href != "new.jpg" {
		t.Errorf("expected guide reference rewritten, got %q", ref.Href)
	}
	if book.TOC.Entries[0].Href != "new.jpg" {
		t.Errorf("expected toc reference rewritten, got %q", book.TOC.Entries[0].Href)
	}
}
