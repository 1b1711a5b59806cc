package transform

import (
	"context"

	"github.com/antchfx/xmlquery"

	"bookforge/core/config"
	"bookforge/core/ir"
	"bookforge/core/plugins"
	"bookforge/core/xhtml"
)

// LinearizeTables replaces <table> markup with stacked <div> rows and
// cells, for output formats (plain text, some e-readers) that cannot
// lay out real tables. Nested tables are flattened one at a time,
// outermost first, until none remain; colspan/rowspan are dropped along with the rest of the table's
// attributes.
type LinearizeTables struct{}

func (LinearizeTables) Name() string                       { return "LinearizeTables" }
func (LinearizeTables) ShouldRun(opts config.Options) bool { return opts.LinearizeTables }

var tableSectionTags = map[string]bool{"thead": true, "tbody": true, "tfoot": true}

func (LinearizeTables) Apply(ctx context.Context, book *ir.BookIR, opts config.Options, progress plugins.ProgressFunc) error {
	items := book.Manifest.Items()
	total := len(items)
	for i, item := range items {
		if item.Data.Kind != ir.DataXhtml {
			continue
		}
		doc, err := xhtml.Parse(item.Data.Xhtml)
		if err != nil {
			return err
		}
		changed := false
		for {
			tables := xhtml.FindByTag(doc, "table")
			if len(tables) == 0 {
				break
			}
			container := convertTable(tables[0])
			xhtml.ReplaceWith(tables[0], container)
			changed = true
		}
		if changed {
			item.Data.Xhtml = xhtml.Serialize(doc)
		}
		if progress != nil && total > 0 {
			progress(float64(i+1)/float64(total), "linearizing tables")
		}
	}
	return nil
}

func convertTable(table *xmlquery.Node) *xmlquery.Node {
	container := xhtml.NewElement("div", "class", "_tableRow_container_")
	for _, row := range collectRows(table) {
		rowDiv := xhtml.NewElement("div", "class", "_tableRow_")
		for _, cell := range collectCells(row) {
			cellDiv := xhtml.NewElement("div", "class", "_tableCell_")
			moveChildren(cell, cellDiv)
			xhtml.AppendChild(rowDiv, cellDiv)
		}
		xhtml.AppendChild(container, rowDiv)
	}
	return container
}

// collectRows gathers <tr> elements directly under table, descending
// through thead/tbody/tfoot wrappers but not into nested tables.
func collectRows(n *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		switch {
		case c.Data == "tr":
			out = append(out, c)
		case tableSectionTags[c.Data]:
			out = append(out, collectRows(c)...)
		}
	}
	return out
}

// collectCells gathers <td>/<th> elements directly under a <tr>.
func collectCells(n *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && (c.Data == "td" || c.Data == "th") {
			out = append(out, c)
		}
	}
	return out
}

func moveChildren(src, dst *xmlquery.Node) {
	for c := src.FirstChild; c != nil; {
		next := c.NextSibling
		xhtml.Remove(c)
		xhtml.AppendChild(dst, c)
		c = next
	}
}
