package transform

import (
	"context"
	"fmt"

	"github.com/antchfx/xmlquery"

	"bookforge/core/config"
	"bookforge/core/ir"
	"bookforge/core/plugins"
	"bookforge/core/xhtml"
)

// DetectStructure promotes the first heading in each spine item to a
// depth-1 TOC entry, nesting subsequent headings (up to depth 4) as
// children, when the book arrived with no TOC of its own.
type DetectStructure struct{}

func (DetectStructure) Name() string                       { return "DetectStructure" }
func (DetectStructure) ShouldRun(opts config.Options) bool { return true }

type headingRef struct {
	level int
	text  string
	id    string
}

func (DetectStructure) Apply(ctx context.Context, book *ir.BookIR, opts config.Options, progress plugins.ProgressFunc) error {
	if !book.TOC.IsEmpty() {
		if progress != nil {
			progress(1.0, "existing toc left untouched")
		}
		return nil
	}

	chapterN := 0
	idrefs := book.Spine.IDRefs()
	for i, idref := range idrefs {
		item, ok := book.Manifest.ByID(idref)
		if !ok || item.Data.Kind != ir.DataXhtml {
			continue
		}
		doc, err := xhtml.Parse(item.Data.Xhtml)
		if err != nil {
			return err
		}

		headings := findHeadings(doc)
		if len(headings) == 0 {
			if progress != nil && len(idrefs) > 0 {
				progress(float64(i+1)/float64(len(idrefs)), "scanning spine for headings")
			}
			continue
		}
		chapterN++
		sectionM := 0

		var stack []*stackEntry
		for hi, h := range headings {
			id := h.id
			if id == "" {
				if hi == 0 {
					id = fmt.Sprintf("ch-%d", chapterN)
				} else {
					sectionM++
					id = fmt.Sprintf("sec-%d-%d", chapterN, sectionM)
				}
				setHeadingID(doc, h, id)
			}
			entry := &ir.TocEntry{Title: h.text, Href: item.Href + "#" + id, ID: id}

			for len(stack) > 0 && stack[len(stack)-1].level >= h.level {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				book.TOC.Entries = append(book.TOC.Entries, entry)
			} else {
				parent := stack[len(stack)-1]
				parent.entry.Children = append(parent.entry.Children, entry)
			}
			if len(stack) < 4 {
				stack = append(stack, &stackEntry{entry: entry, level: h.level})
			}
		}

		item.Data.Xhtml = xhtml.Serialize(doc)
		if progress != nil && len(idrefs) > 0 {
			progress(float64(i+1)/float64(len(idrefs)), "scanning spine for headings")
		}
	}
	return nil
}

type stackEntry struct {
	entry *ir.TocEntry
	level int
}

var headingTags = map[string]int{"h1": 1, "h2": 2, "h3": 3, "h4": 4}

func findHeadings(doc *xmlquery.Node) []headingRef {
	var out []headingRef
	xhtml.WalkElements(doc, func(n *xmlquery.Node) bool {
		if level, ok := headingTags[n.Data]; ok {
			id, _ := xhtml.GetAttr(n, "id")
			out = append(out, headingRef{level: level, text: xhtml.InnerText(n), id: id})
		}
		return true
	})
	return out
}

func setHeadingID(doc *xmlquery.Node, h headingRef, id string) {
	level := h.level
	text := h.text
	found := false
	xhtml.WalkElements(doc, func(n *xmlquery.Node) bool {
		if found || headingTags[n.Data] != level {
			return true
		}
		if xhtml.InnerText(n) != text {
			return true
		}
		if existing, ok := xhtml.GetAttr(n, "id"); ok && existing != "" {
			return true
		}
		xhtml.SetAttr(n, "id", id)
		found = true
		return false
	})
}
