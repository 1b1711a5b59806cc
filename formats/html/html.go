// Package html registers the single-file HTML input and output
// plugins. Input treats the whole document as one spine item; output
// concatenates the spine's XHTML bodies into a single standalone HTML
// file with the book's stylesheets inlined.
package html

import (
	"strings"

	"bookforge/core/config"
	bferrors "bookforge/core/errors"
	"bookforge/core/ir"
	"bookforge/core/plugins"
	"bookforge/core/xhtml"
)

func init() {
	plugins.Default().RegisterInput(inputPlugin{})
	plugins.Default().RegisterOutput(outputPlugin{})
}

type inputPlugin struct{}

func (inputPlugin) Name() string      { return "formats/html" }
func (inputPlugin) Formats() []string { return []string{"html", "htm"} }

func (inputPlugin) Parse(src plugins.Source, opts config.Options, progress plugins.ProgressFunc) (*ir.BookIR, error) {
	if progress != nil {
		progress(0.15, "parse start")
	}
	data, err := src.ReadAll()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		data = []byte("<html><body/></html>")
	}

	doc, err := xhtml.Parse(string(data))
	if err != nil {
		return nil, bferrors.NewParse("formats/html", "malformed markup", err)
	}
	if progress != nil {
		progress(0.53, "extraction mid")
	}

	book := ir.New()
	if title := xhtml.First(doc, "title"); title != nil {
		book.Metadata.Title = strings.TrimSpace(xhtml.InnerText(title))
	}

	item := &ir.ManifestItem{ID: "page", Href: "page.xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData(xhtml.Serialize(doc))}
	if err := book.Manifest.Add(item); err != nil {
		return nil, err
	}
	if err := book.Spine.Add("page"); err != nil {
		return nil, err
	}

	if progress != nil {
		progress(0.88, "postprocessing complete")
	}
	return book, nil
}

type outputPlugin struct{}

func (outputPlugin) Name() string      { return "formats/html" }
func (outputPlugin) Formats() []string { return []string{"html", "htm"} }

func (outputPlugin) Write(book *ir.BookIR, sink plugins.Sink, opts config.Options) error {
	var css strings.Builder
	for _, item := range book.Manifest.Items() {
		if item.Data.Kind == ir.DataCSS {
			css.WriteString(item.Data.CSS)
			css.WriteString("\n")
		}
	}

	var body strings.Builder
	for _, idref := range book.Spine.IDRefs() {
		item, ok := book.Manifest.ByID(idref)
		if !ok || item.Data.Kind != ir.DataXhtml {
			continue
		}
		doc, err := xhtml.Parse(item.Data.Xhtml)
		if err != nil {
			continue
		}
		b := xhtml.First(doc, "body")
		if b == nil {
			continue
		}
		body.WriteString(`<div class="_chapter_">`)
		for c := b.FirstChild; c != nil; c = c.NextSibling {
			body.WriteString(xhtml.OuterXML(c))
		}
		body.WriteString("</div>\n")
	}

	var out strings.Builder
	out.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"/><title>")
	out.WriteString(book.Metadata.Title)
	out.WriteString("</title>")
	if css.Len() > 0 {
		out.WriteString("<style>")
		out.WriteString(css.String())
		out.WriteString("</style>")
	}
	out.WriteString("</head><body>\n")
	out.WriteString(body.String())
	out.WriteString("</body></html>\n")

	return sink.WriteAll([]byte(out.String()))
}
