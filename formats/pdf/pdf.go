// Package pdf registers an input-only plugin for the "pdf" format. It
// has no native parser: it shells out to the poppler-utils binaries
// pdftohtml (text extraction) and pdftoppm (page rasterization),
// choosing between them per config.Options.PdfEngine. There is no
// corresponding output plugin; BookForge never writes PDF.
package pdf

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"bookforge/core/config"
	bferrors "bookforge/core/errors"
	"bookforge/core/ir"
	"bookforge/core/plugins"
	"bookforge/core/xhtml"
)

func init() {
	plugins.Default().RegisterInput(inputPlugin{})
}

type inputPlugin struct{}

func (inputPlugin) Name() string      { return "formats/pdf" }
func (inputPlugin) Formats() []string { return []string{"pdf"} }

func (inputPlugin) Parse(src plugins.Source, opts config.Options, progress plugins.ProgressFunc) (*ir.BookIR, error) {
	if progress != nil {
		progress(0.05, "parse start")
	}
	data, err := src.ReadAll()
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "bookforge-pdf-")
	if err != nil {
		return nil, bferrors.NewIO("mkdtemp", dir, err)
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "source.pdf")
	if err := os.WriteFile(srcPath, data, 0o644); err != nil {
		return nil, bferrors.NewIO("write", srcPath, err)
	}

	book := ir.New()

	engine := opts.PdfEngine
	if engine == "" {
		engine = config.PdfEngineAuto
	}

	var pages []string
	if engine == config.PdfEngineTextOnly || engine == config.PdfEngineAuto {
		pages, err = extractText(srcPath)
		if err != nil && engine == config.PdfEngineTextOnly {
			return nil, err
		}
	}
	if progress != nil {
		progress(0.45, "extraction mid")
	}

	if len(pages) == 0 {
		images, err := rasterizePages(srcPath, dir, opts.PdfDPI)
		if err != nil {
			return nil, err
		}
		if err := addImagePages(book, images); err != nil {
			return nil, err
		}
	} else {
		if err := addTextPages(book, pages); err != nil {
			return nil, err
		}
	}

	if progress != nil {
		progress(0.9, "postprocessing complete")
	}
	return book, nil
}

// extractText runs pdftohtml to pull per-page XHTML content. It
// returns one string of body markup per page, in order.
func extractText(srcPath string) ([]string, error) {
	bin, err := exec.LookPath("pdftohtml")
	if err != nil {
		return nil, bferrors.NewResource("pdftohtml", "poppler-utils not found on PATH", err)
	}

	cmd := exec.Command(bin, "-xml", "-i", "-stdout", srcPath)
	out, err := cmd.Output()
	if err != nil {
		return nil, bferrors.NewParse("formats/pdf", "pdftohtml failed", err)
	}

	return splitXMLPages(string(out)), nil
}

// splitXMLPages extracts the text of each <page> element from
// pdftohtml's -xml output and wraps it as a minimal XHTML fragment.
func splitXMLPages(xmlDoc string) []string {
	doc, err := xhtml.Parse(xmlDoc)
	if err != nil {
		return nil
	}
	pageNodes := xhtml.FindByTag(doc, "page")
	var pages []string
	for _, p := range pageNodes {
		text := strings.TrimSpace(xhtml.InnerText(p))
		if text == "" {
			continue
		}
		var b strings.Builder
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			b.WriteString("<p>")
			b.WriteString(xhtml.EscapeText(line))
			b.WriteString("</p>\n")
		}
		pages = append(pages, b.String())
	}
	return pages
}

func addTextPages(book *ir.BookIR, pages []string) error {
	for i, body := range pages {
		id := fmt.Sprintf("page%d", i+1)
		markup := `<?xml version="1.0" encoding="utf-8"?>` + "\n" +
			`<html xmlns="http://www.w3.org/1999/xhtml"><head><title/></head><body>` + "\n" +
			body + "</body></html>\n"
		item := &ir.ManifestItem{ID: id, Href: id + ".xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData(markup)}
		if err := book.Manifest.Add(item); err != nil {
			return err
		}
		if err := book.Spine.Add(id); err != nil {
			return err
		}
	}
	return nil
}

// rasterizePages runs pdftoppm to render every page as a PNG and
// returns their paths in page order.
func rasterizePages(srcPath, workDir string, dpi int) ([]string, error) {
	bin, err := exec.LookPath("pdftoppm")
	if err != nil {
		return nil, bferrors.NewResource("pdftoppm", "poppler-utils not found on PATH", err)
	}
	if dpi <= 0 {
		dpi = 200
	}

	prefix := filepath.Join(workDir, "page")
	cmd := exec.Command(bin, "-png", "-r", strconv.Itoa(dpi), srcPath, prefix)
	if err := cmd.Run(); err != nil {
		return nil, bferrors.NewResource("pdftoppm", "rasterization failed", err)
	}

	entries, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return nil, bferrors.NewIO("glob", prefix, err)
	}
	sort.Strings(entries)
	return entries, nil
}

func addImagePages(book *ir.BookIR, imagePaths []string) error {
	for i, path := range imagePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return bferrors.NewIO("read", path, err)
		}
		pageID := fmt.Sprintf("page%d", i+1)
		imgID := pageID + "-img"
		imgHref := imgID + ".png"

		imgItem := &ir.ManifestItem{ID: imgID, Href: imgHref, MediaType: "image/png", Data: ir.BinaryData(data)}
		if err := book.Manifest.Add(imgItem); err != nil {
			return err
		}

		markup := `<?xml version="1.0" encoding="utf-8"?>` + "\n" +
			`<html xmlns="http://www.w3.org/1999/xhtml"><head><title/></head><body>` + "\n" +
			fmt.Sprintf(`<div class="_page_"><img src="%s" alt=""/></div>`, imgHref) + "\n</body></html>\n"
		pageItem := &ir.ManifestItem{ID: pageID, Href: pageID + ".xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData(markup)}
		if err := book.Manifest.Add(pageItem); err != nil {
			return err
		}
		if err := book.Spine.Add(pageID); err != nil {
			return err
		}
	}
	return nil
}
