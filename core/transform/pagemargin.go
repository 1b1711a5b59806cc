package transform

import (
	"context"
	"strings"

	"github.com/antchfx/xmlquery"

	"bookforge/core/config"
	"bookforge/core/ir"
	"bookforge/core/plugins"
	"bookforge/core/xhtml"
)

// PageMargin detects a margin-* declaration shared by at least half
// of the book's XHTML items' <body> elements and strips it from every
// item, on the theory that a single book-wide margin belongs on the
// body once rather than repeated per document. An explicit
// margin_{top,bottom,left,right} option suppresses detection, forces
// the strip unconditionally, and writes the override values back onto
// every body's style attribute in their place.
type PageMargin struct{}

func (PageMargin) Name() string                       { return "PageMargin" }
func (PageMargin) ShouldRun(opts config.Options) bool { return true }

var marginProps = []string{"margin", "margin-top", "margin-bottom", "margin-left", "margin-right"}

func (PageMargin) Apply(ctx context.Context, book *ir.BookIR, opts config.Options, progress plugins.ProgressFunc) error {
	type bodyRef struct {
		item *ir.ManifestItem
		doc  *xmlquery.Node
		body *xmlquery.Node
	}
	var bodies []bodyRef
	items := book.Manifest.Items()
	for _, item := range items {
		if item.Data.Kind != ir.DataXhtml {
			continue
		}
		doc, err := xhtml.Parse(item.Data.Xhtml)
		if err != nil {
			return err
		}
		body := xhtml.First(doc, "body")
		if body == nil {
			continue
		}
		bodies = append(bodies, bodyRef{item: item, doc: doc, body: body})
	}
	if len(bodies) == 0 {
		return nil
	}

	toStrip := make(map[string]string)
	if opts.HasMargins {
		for _, p := range marginProps {
			toStrip[p] = ""
		}
	} else {
		for _, prop := range marginProps {
			counts := make(map[string]int)
			for _, b := range bodies {
				style, ok := xhtml.GetAttr(b.body, "style")
				if !ok {
					continue
				}
				for _, d := range parseDeclBlock(style) {
					if d.prop == prop {
						counts[d.value]++
					}
				}
			}
			best, bestValue := 0, ""
			for v, c := range counts {
				if c > best || (c == best && v < bestValue) {
					best, bestValue = c, v
				}
			}
			if best*2 >= len(bodies) && best > 0 {
				toStrip[prop] = bestValue
			}
		}
	}

	if len(toStrip) == 0 {
		return nil
	}

	var overrides []cssDecl
	if opts.HasMargins {
		overrides = []cssDecl{
			{prop: "margin-top", value: formatPt(opts.MarginTop)},
			{prop: "margin-bottom", value: formatPt(opts.MarginBottom)},
			{prop: "margin-left", value: formatPt(opts.MarginLeft)},
			{prop: "margin-right", value: formatPt(opts.MarginRight)},
		}
	}

	total := len(bodies)
	for i, b := range bodies {
		style, hadStyle := xhtml.GetAttr(b.body, "style")
		if hadStyle || len(overrides) > 0 {
			decls := parseDeclBlock(style)
			kept := decls[:0]
			for _, d := range decls {
				if want, ok := toStrip[d.prop]; !ok || (!opts.HasMargins && d.value != want) {
					kept = append(kept, d)
				}
			}
			kept = append(kept, overrides...)
			xhtml.SetAttr(b.body, "style", serializeDecls(kept))
		}
		b.item.Data.Xhtml = xhtml.Serialize(b.doc)
		if progress != nil && total > 0 {
			progress(float64(i+1)/float64(total), "detecting shared page margins")
		}
	}
	return nil
}

func serializeDecls(decls []cssDecl) string {
	var b strings.Builder
	for _, d := range decls {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(d.prop)
		b.WriteString(": ")
		b.WriteString(d.value)
		b.WriteString(";")
	}
	return b.String()
}
