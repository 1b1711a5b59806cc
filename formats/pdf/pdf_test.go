package pdf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bookforge/core/ir"
)

func TestInputPlugin_Identity(t *testing.T) {
	p := inputPlugin{}
	if p.Name() != "formats/pdf" {
		t.Errorf("unexpected name %q", p.Name())
	}
	if got := p.Formats(); len(got) != 1 || got[0] != "pdf" {
		t.Errorf("unexpected formats %v", got)
	}
}

func TestSplitXMLPages(t *testing.T) {
	xmlDoc := `<?xml version="1.0" encoding="UTF-8"?>
<pdf2xml>
<page number="1">
<text top="10" left="10" width="100" height="20" font="0">Hello world</text>
<text top="40" left="10" width="100" height="20" font="0">Second line</text>
</page>
<page number="2">
<text top="10" left="10" width="100" height="20" font="0">Page two</text>
</page>
</pdf2xml>`

	pages := splitXMLPages(xmlDoc)
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if !strings.Contains(pages[0], "Hello world") {
		t.Error("expected first page to contain its text")
	}
	if !strings.Contains(pages[1], "Page two") {
		t.Error("expected second page to contain its text")
	}
}

func TestSplitXMLPages_SkipsBlankPages(t *testing.T) {
	xmlDoc := `<?xml version="1.0"?><pdf2xml><page number="1"></page></pdf2xml>`
	pages := splitXMLPages(xmlDoc)
	if len(pages) != 0 {
		t.Errorf("expected blank pages to be skipped, got %d", len(pages))
	}
}

func TestAddTextPages(t *testing.T) {
	book := ir.New()
	if err := addTextPages(book, []string{"<p>one</p>", "<p>two</p>"}); err != nil {
		t.Fatalf("addTextPages failed: %v", err)
	}
	if len(book.Spine.Items) != 2 {
		t.Fatalf("expected 2 spine items, got %d", len(book.Spine.Items))
	}
	item, ok := book.Manifest.ByID("page1")
	if !ok {
		t.Fatal("expected manifest item \"page1\"")
	}
	if !strings.Contains(item.Data.Xhtml, "one") {
		t.Error("expected page body text preserved")
	}
}

func TestAddImagePages(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "page-1.png")
	if err := os.WriteFile(imgPath, []byte("not a real png, just bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	book := ir.New()
	if err := addImagePages(book, []string{imgPath}); err != nil {
		t.Fatalf("addImagePages failed: %v", err)
	}

	if len(book.Spine.Items) != 1 {
		t.Fatalf("expected 1 spine item, got %d", len(book.Spine.Items))
	}
	imgItem, ok := book.Manifest.ByID("page1-img")
	if !ok {
		t.Fatal("expected manifest item \"page1-img\"")
	}
	if imgItem.MediaType != "image/png" {
		t.Errorf("expected image/png media type, got %q", imgItem.MediaType)
	}
	pageItem, ok := book.Manifest.ByID("page1")
	if !ok {
		t.Fatal("expected manifest item \"page1\"")
	}
	if !strings.Contains(pageItem.Data.Xhtml, imgItem.Href) {
		t.Error("expected page markup to reference the image href")
	}
}

func TestExtractText_MissingBinary(t *testing.T) {
	t.Setenv("PATH", "")
	_, err := extractText("/nonexistent/source.pdf")
	if err == nil {
		t.Fatal("expected an error when pdftohtml is not on PATH")
	}
}

func TestRasterizePages_MissingBinary(t *testing.T) {
	t.Setenv("PATH", "")
	_, err := rasterizePages("/nonexistent/source.pdf", t.TempDir(), 200)
	if err == nil {
		t.Fatal("expected an error when pdftoppm is not on PATH")
	}
}
