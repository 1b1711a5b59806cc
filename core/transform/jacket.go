package transform

import (
	"context"
	"fmt"
	"strings"

	"bookforge/core/config"
	"bookforge/core/ir"
	"bookforge/core/plugins"
	"bookforge/core/xhtml"
)

// Jacket synthesizes a title-page document from book metadata and
// inserts it at the front of the spine, when insert_metadata is set.
// When remove_first_image_after_jacket is also set, the first image
// in what was previously the opening spine item is dropped, on the
// assumption it duplicated a cover already shown on the jacket.
type Jacket struct{}

func (Jacket) Name() string                       { return "Jacket" }
func (Jacket) ShouldRun(opts config.Options) bool { return opts.InsertMetadata }

func (Jacket) Apply(ctx context.Context, book *ir.BookIR, opts config.Options, progress plugins.ProgressFunc) error {
	firstIDRef := ""
	if len(book.Spine.Items) > 0 {
		firstIDRef = book.Spine.Items[0].IDRef
	}

	href := book.Manifest.GenerateHref("jacket", "xhtml")
	id := book.Manifest.GenerateID("jacket")
	markup := renderJacket(&book.Metadata)
	item := &ir.ManifestItem{ID: id, Href: href, MediaType: "application/xhtml+xml", Data: ir.XhtmlData(markup)}
	if err := book.Manifest.Add(item); err != nil {
		return err
	}
	if err := book.Spine.Insert(0, id, true); err != nil {
		return err
	}
	book.Guide.Add(ir.GuideRef{Type: ir.GuideTitlePage, Title: "Title Page", Href: href})

	if opts.RemoveFirstImageAfterJacket && firstIDRef != "" {
		if err := removeFirstImage(book, firstIDRef); err != nil {
			return err
		}
	}

	if progress != nil {
		progress(1.0, "inserted jacket")
	}
	return nil
}

func renderJacket(m *ir.Metadata) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml"><head><title>`)
	b.WriteString(xhtml.EscapeText(m.Title))
	b.WriteString(`</title></head><body><div class="_jacket_">` + "\n")
	b.WriteString(`<h1 class="_jacket_title_">` + xhtml.EscapeText(m.Title) + "</h1>\n")
	if len(m.Authors) > 0 {
		b.WriteString(`<p class="_jacket_authors_">` + xhtml.EscapeText(strings.Join(m.Authors, ", ")) + "</p>\n")
	}
	if m.Publisher != "" {
		b.WriteString(`<p class="_jacket_publisher_">` + xhtml.EscapeText(m.Publisher) + "</p>\n")
	}
	if m.Date != "" {
		b.WriteString(`<p class="_jacket_date_">` + xhtml.EscapeText(m.Date) + "</p>\n")
	}
	if m.Description != "" {
		b.WriteString(`<div class="_jacket_description_">` + xhtml.EscapeText(m.Description) + "</div>\n")
	}
	b.WriteString("</div></body></html>\n")
	return b.String()
}

// removeFirstImage drops the first <img> element found in the manifest
// item identified by idref.
func removeFirstImage(book *ir.BookIR, idref string) error {
	item, ok := book.Manifest.ByID(idref)
	if !ok || item.Data.Kind != ir.DataXhtml {
		return nil
	}
	doc, err := xhtml.Parse(item.Data.Xhtml)
	if err != nil {
		return fmt.Errorf("transform: jacket: %w", err)
	}
	img := xhtml.First(doc, "img")
	if img == nil {
		return nil
	}
	xhtml.Remove(img)
	item.Data.Xhtml = xhtml.Serialize(doc)
	return nil
}
