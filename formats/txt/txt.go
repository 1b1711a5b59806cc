// Package txt registers the plain-text input and output plugins. Input
// splits on blank lines into paragraphs wrapped in a single XHTML
// chapter, promoting any paragraph matching "Chapter <N>" to a heading
// so a later structure-detection pass has something to build a TOC
// from; output renders the spine's text content back out as plain
// paragraphs separated by blank lines, discarding markup.
package txt

import (
	"regexp"
	"strings"

	"bookforge/core/config"
	"bookforge/core/encoding"
	"bookforge/core/ir"
	"bookforge/core/plugins"
	"bookforge/core/xhtml"
)

// chapterHeadingPattern recognizes a paragraph that is itself a
// chapter marker ("Chapter 1", "Chapter 12: The Arrival", ...) so it
// can be promoted to a heading instead of a plain paragraph, giving
// DetectStructure something to build a TOC from.
var chapterHeadingPattern = regexp.MustCompile(`^Chapter \d+`)

func init() {
	plugins.Default().RegisterInput(inputPlugin{})
	plugins.Default().RegisterOutput(outputPlugin{})
}

type inputPlugin struct{}

func (inputPlugin) Name() string      { return "formats/txt" }
func (inputPlugin) Formats() []string { return []string{"txt"} }

func (inputPlugin) Parse(src plugins.Source, opts config.Options, progress plugins.ProgressFunc) (*ir.BookIR, error) {
	if progress != nil {
		progress(0.15, "parse start")
	}
	data, err := src.ReadAll()
	if err != nil {
		return nil, err
	}

	book := ir.New()
	paragraphs := splitParagraphs(string(data))
	if progress != nil {
		progress(0.53, "extraction mid")
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml"><head><title>text</title></head><body>` + "\n")
	for _, p := range paragraphs {
		tag := "p"
		if chapterHeadingPattern.MatchString(strings.TrimSpace(p)) {
			tag = "h1"
		}
		b.WriteString("<" + tag + ">")
		b.WriteString(strings.ReplaceAll(encoding.EscapeXMLText(p), "\n", "<br/>"))
		b.WriteString("</" + tag + ">\n")
	}
	b.WriteString("</body></html>\n")

	item := &ir.ManifestItem{ID: "text", Href: "text.xhtml", MediaType: "application/xhtml+xml", Data: ir.XhtmlData(b.String())}
	if err := book.Manifest.Add(item); err != nil {
		return nil, err
	}
	if err := book.Spine.Add("text"); err != nil {
		return nil, err
	}

	if progress != nil {
		progress(0.88, "postprocessing complete")
	}
	return book, nil
}

// splitParagraphs breaks raw text on one-or-more blank lines.
func splitParagraphs(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	chunks := strings.Split(raw, "\n\n")
	var out []string
	for _, c := range chunks {
		c = strings.Trim(c, "\n")
		if strings.TrimSpace(c) == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

type outputPlugin struct{}

func (outputPlugin) Name() string      { return "formats/txt" }
func (outputPlugin) Formats() []string { return []string{"txt"} }

func (outputPlugin) Write(book *ir.BookIR, sink plugins.Sink, opts config.Options) error {
	var b strings.Builder
	if book.Metadata.Title != "" {
		b.WriteString(book.Metadata.Title)
		b.WriteString("\n\n")
	}
	for _, idref := range book.Spine.IDRefs() {
		item, ok := book.Manifest.ByID(idref)
		if !ok || item.Data.Kind != ir.DataXhtml {
			continue
		}
		doc, err := xhtml.Parse(item.Data.Xhtml)
		if err != nil {
			continue
		}
		text := strings.TrimSpace(xhtml.InnerText(doc))
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return sink.WriteAll([]byte(strings.TrimRight(b.String(), "\n") + "\n"))
}
