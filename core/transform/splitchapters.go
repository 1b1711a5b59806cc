package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"bookforge/core/config"
	"bookforge/core/ir"
	"bookforge/core/plugins"
	"bookforge/core/xhtml"
)

// SplitChapters breaks any XHTML item over 10 KiB into several
// smaller items at heading boundaries, falling back to explicit
// page-break markers when the item has no headings. Anchor
// references that pointed into the original document are rewritten
// to the split part that now contains the target id.
type SplitChapters struct{}

func (SplitChapters) Name() string                       { return "SplitChapters" }
func (SplitChapters) ShouldRun(opts config.Options) bool { return true }

const splitThreshold = 10 * 1024

func (SplitChapters) Apply(ctx context.Context, book *ir.BookIR, opts config.Options, progress plugins.ProgressFunc) error {
	items := book.Manifest.Items()
	total := len(items)
	for i, item := range items {
		if item.Data.Kind != ir.DataXhtml || len(item.Data.Xhtml) <= splitThreshold {
			if progress != nil && total > 0 {
				progress(float64(i+1)/float64(total), "splitting oversized chapters")
			}
			continue
		}
		if err := splitItem(book, item, opts); err != nil {
			return err
		}
		if progress != nil && total > 0 {
			progress(float64(i+1)/float64(total), "splitting oversized chapters")
		}
	}
	return nil
}

func splitItem(book *ir.BookIR, item *ir.ManifestItem, opts config.Options) error {
	doc, err := xhtml.Parse(item.Data.Xhtml)
	if err != nil {
		return err
	}
	body := xhtml.First(doc, "body")
	if body == nil {
		return nil
	}

	children := siblingElements(body)
	boundaries := boundaryIndices(children, func(el *xmlquery.Node) bool {
		return el.Data == "h1" || el.Data == "h2"
	})
	if len(boundaries) == 0 && len(children) == 1 && children[0].Data != "h1" && children[0].Data != "h2" {
		// Common nesting case: everything lives inside a single wrapper div.
		nested := siblingElements(children[0])
		if nb := boundaryIndices(nested, func(el *xmlquery.Node) bool {
			return el.Data == "h1" || el.Data == "h2"
		}); len(nb) > 0 {
			children = nested
			boundaries = nb
			body = children[0].Parent
		}
	}
	if len(boundaries) == 0 && opts.ChapterMark != config.ChapterMarkNone {
		boundaries = boundaryIndices(children, func(el *xmlquery.Node) bool {
			return isPageBreakMarker(el, opts.ChapterMark)
		})
	}
	if len(boundaries) == 0 {
		return nil
	}

	stem := strings.TrimSuffix(item.Href, ".xhtml")
	stem = strings.TrimSuffix(stem, ".html")

	groups := partitionByBoundaries(children, boundaries)
	idToHref := make(map[string]string)
	type newPart struct {
		id, href string
	}
	var parts []newPart

	for k, group := range groups {
		newHref := fmt.Sprintf("%s-split-%d.xhtml", stem, k+1)
		newID := book.Manifest.GenerateID(item.ID + "-split")
		markup := renderSplitDoc(doc, group)
		for _, el := range group {
			xhtml.WalkElements(el, func(n *xmlquery.Node) bool {
				if id, ok := xhtml.GetAttr(n, "id"); ok && id != "" {
					idToHref[id] = newHref
				}
				return true
			})
		}
		newItem := &ir.ManifestItem{ID: newID, Href: newHref, MediaType: item.MediaType, Data: ir.XhtmlData(markup)}
		if err := book.Manifest.Add(newItem); err != nil {
			return err
		}
		parts = append(parts, newPart{id: newID, href: newHref})
	}

	newSpineItems := make([]ir.SpineItem, len(parts))
	for i, p := range parts {
		newSpineItems[i] = ir.SpineItem{IDRef: p.id, Linear: true}
	}
	book.Spine.Replace(item.ID, newSpineItems)

	oldHref := item.Href
	book.Manifest.Remove(item.ID)
	firstHref := parts[0].href
	rewriteSplitAnchors(book, oldHref, firstHref, idToHref)
	return nil
}

// siblingElements returns the element-type children of n, in order.
func siblingElements(n *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func boundaryIndices(children []*xmlquery.Node, match func(*xmlquery.Node) bool) []int {
	var out []int
	for i, c := range children {
		if match(c) {
			out = append(out, i)
		}
	}
	return out
}

func isPageBreakMarker(el *xmlquery.Node, mark config.ChapterMark) bool {
	if mark == config.ChapterMarkRule || mark == config.ChapterMarkBoth {
		if el.Data == "hr" {
			if class, ok := xhtml.GetAttr(el, "class"); ok {
				for _, c := range strings.Fields(class) {
					if c == "pagebreak" {
						return true
					}
				}
			}
		}
	}
	if mark == config.ChapterMarkPageBreak || mark == config.ChapterMarkBoth {
		if style, ok := xhtml.GetAttr(el, "style"); ok && strings.Contains(strings.ReplaceAll(style, " ", ""), "page-break-before:always") {
			return true
		}
	}
	return false
}

// partitionByBoundaries groups children into runs, each run starting
// at a boundary index (the first run, before any boundary, is its
// own group even if empty of boundaries itself).
func partitionByBoundaries(children []*xmlquery.Node, boundaries []int) [][]*xmlquery.Node {
	var groups [][]*xmlquery.Node
	start := 0
	for _, b := range boundaries {
		if b > start {
			groups = append(groups, children[start:b])
		}
		start = b
	}
	groups = append(groups, children[start:])
	var out [][]*xmlquery.Node
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, g)
		}
	}
	return out
}

func renderSplitDoc(orig *xmlquery.Node, group []*xmlquery.Node) string {
	root := xhtml.Root(orig)
	newRoot := xhtml.NewElement(root.Data)
	for _, a := range root.Attr {
		xhtml.SetAttr(newRoot, a.Name.Local, a.Value)
	}
	head := xhtml.First(orig, "head")
	if head != nil {
		newHead := xhtml.NewElement("head")
		for c := head.FirstChild; c != nil; c = c.NextSibling {
			xhtml.AppendChild(newHead, cloneNode(c, nil))
		}
		xhtml.AppendChild(newRoot, newHead)
	}
	newBody := xhtml.NewElement("body")
	for _, el := range group {
		xhtml.AppendChild(newBody, cloneNode(el, nil))
	}
	xhtml.AppendChild(newRoot, newBody)

	doc := &xmlquery.Node{Type: xmlquery.DocumentNode}
	xhtml.AppendChild(doc, newRoot)
	return xhtml.Serialize(doc)
}

// cloneNode deep-copies n (and its subtree) as a detached tree with
// parent pre-set, since xmlquery nodes don't support cross-tree reuse.
func cloneNode(n *xmlquery.Node, parent *xmlquery.Node) *xmlquery.Node {
	clone := &xmlquery.Node{Type: n.Type, Data: n.Data, Prefix: n.Prefix, NamespaceURI: n.NamespaceURI, Parent: parent}
	clone.Attr = append([]xmlquery.Attr(nil), n.Attr...)
	var lastChild *xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cc := cloneNode(c, clone)
		if clone.FirstChild == nil {
			clone.FirstChild = cc
		} else {
			lastChild.NextSibling = cc
			cc.PrevSibling = lastChild
		}
		lastChild = cc
	}
	clone.LastChild = lastChild
	return clone
}

// rewriteSplitAnchors updates every reference to oldHref (bare, meaning
// the document start, or with a "#id" fragment) across the manifest,
// guide, and TOC to the split part that now owns that destination.
func rewriteSplitAnchors(book *ir.BookIR, oldHref, firstHref string, idToHref map[string]string) {
	resolve := func(href string) (string, bool) {
		base, frag := href, ""
		if i := strings.Index(href, "#"); i >= 0 {
			base, frag = href[:i], href[i+1:]
		}
		if base != oldHref {
			return "", false
		}
		if frag == "" {
			return firstHref, true
		}
		if newHref, ok := idToHref[frag]; ok {
			return newHref + "#" + frag, true
		}
		return firstHref + "#" + frag, true
	}

	for _, item := range book.Manifest.Items() {
		if item.Data.Kind != ir.DataXhtml {
			continue
		}
		doc, err := xhtml.Parse(item.Data.Xhtml)
		if err != nil {
			continue
		}
		changed := false
		xhtml.WalkElements(doc, func(n *xmlquery.Node) bool {
			for idx := range n.Attr {
				if n.Attr[idx].Name.Local != "href" && n.Attr[idx].Name.Local != "src" {
					continue
				}
				if newVal, ok := resolve(n.Attr[idx].Value); ok {
					n.Attr[idx].Value = newVal
					changed = true
				}
			}
			return true
		})
		if changed {
			item.Data.Xhtml = xhtml.Serialize(doc)
		}
	}
	for i, ref := range book.Guide.Refs {
		if newVal, ok := resolve(ref.Href); ok {
			book.Guide.Refs[i].Href = newVal
		}
	}
	book.TOC.Walk(func(e *ir.TocEntry, depth int) {
		if newVal, ok := resolve(e.Href); ok {
			e.Href = newVal
		}
	})
}
