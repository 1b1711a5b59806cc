// Package xhtml provides the XHTML tree parsing, querying, and in-place
// mutation primitives shared by the transforms that walk manifest
// markup (DataURL, DetectStructure, Jacket, LinearizeTables,
// UnsmartenPunctuation, CSSFlattener, PageMargin, SplitChapters,
// ManifestTrimmer). It is a thin layer over antchfx/xmlquery, which
// parses with Go's encoding/xml under the hood and so gives XHTML
// well-formedness checking (invariant I3) for free: a parse failure
// means the markup is not well-formed.
package xhtml

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"bookforge/core/encoding"
	"bookforge/core/ir"
)

func init() {
	ir.WellFormedXhtmlFn = WellFormed
}

// Parse parses markup into a mutable node tree rooted at the document node.
func Parse(markup string) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("xhtml: %w", err)
	}
	return doc, nil
}

// WellFormed reports a non-nil error if markup does not parse as XML.
func WellFormed(markup string) error {
	_, err := Parse(markup)
	return err
}

// Serialize renders doc back to an XHTML string.
func Serialize(doc *xmlquery.Node) string {
	return doc.OutputXML(true)
}

// Root returns the first element child of doc (skipping the XML
// declaration and any comments), or nil if doc has none.
func Root(doc *xmlquery.Node) *xmlquery.Node {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

// GetAttr returns the value of attribute name on n and whether it was present.
func GetAttr(n *xmlquery.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets attribute name to value on n, adding it if absent.
func SetAttr(n *xmlquery.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Name.Local == name {
			n.Attr[i].Value = value
			return
		}
	}
	n.Attr = append(n.Attr, xmlquery.Attr{Name: xml.Name{Local: name}, Value: value})
}

// RemoveAttr deletes attribute name from n, if present.
func RemoveAttr(n *xmlquery.Node, name string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Name.Local != name {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// WalkElements calls fn for every element node in the tree rooted at n,
// pre-order. fn returning false stops the walk.
func WalkElements(n *xmlquery.Node, fn func(*xmlquery.Node) bool) {
	var rec func(*xmlquery.Node) bool
	rec = func(cur *xmlquery.Node) bool {
		if cur.Type == xmlquery.ElementNode {
			if !fn(cur) {
				return false
			}
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if !rec(c) {
				return false
			}
		}
		return true
	}
	rec(n)
}

// WalkTextNodes calls fn for every text node in the tree rooted at n,
// skipping the contents of elements named in skipTags (case-insensitive;
// callers typically pass "script" and "style" to avoid touching code or
// stylesheet text when doing text-only substitutions).
func WalkTextNodes(n *xmlquery.Node, skipTags map[string]bool, fn func(*xmlquery.Node)) {
	var rec func(*xmlquery.Node)
	rec = func(cur *xmlquery.Node) {
		if cur.Type == xmlquery.ElementNode && skipTags[strings.ToLower(cur.Data)] {
			return
		}
		if cur.Type == xmlquery.TextNode {
			fn(cur)
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
}

// FindByTag returns every element with the given tag name (case-sensitive,
// matching XHTML's lowercase convention) anywhere under n.
func FindByTag(n *xmlquery.Node, tag string) []*xmlquery.Node {
	var out []*xmlquery.Node
	WalkElements(n, func(e *xmlquery.Node) bool {
		if e.Data == tag {
			out = append(out, e)
		}
		return true
	})
	return out
}

// FindElements returns every element node anywhere under n, document order.
func FindElements(n *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	WalkElements(n, func(e *xmlquery.Node) bool {
		out = append(out, e)
		return true
	})
	return out
}

// First returns the first element with the given tag name, or nil.
func First(n *xmlquery.Node, tag string) *xmlquery.Node {
	found := FindByTag(n, tag)
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// Query runs an XPath expression against n.
func Query(n *xmlquery.Node, expr string) ([]*xmlquery.Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("xhtml: invalid xpath %q: %w", expr, err)
	}
	return xmlquery.QueryAll(n, expr)
}

// NewElement constructs a detached element node with the given tag and
// attributes (iterated in the order given, for deterministic output).
func NewElement(tag string, attrPairs ...string) *xmlquery.Node {
	n := &xmlquery.Node{Type: xmlquery.ElementNode, Data: tag}
	for i := 0; i+1 < len(attrPairs); i += 2 {
		SetAttr(n, attrPairs[i], attrPairs[i+1])
	}
	return n
}

// NewText constructs a detached text node.
func NewText(s string) *xmlquery.Node {
	return &xmlquery.Node{Type: xmlquery.TextNode, Data: s}
}

// AppendChild appends child to the end of parent's child list.
func AppendChild(parent, child *xmlquery.Node) {
	child.Parent = parent
	if parent.FirstChild == nil {
		parent.FirstChild = child
		parent.LastChild = child
		return
	}
	child.PrevSibling = parent.LastChild
	parent.LastChild.NextSibling = child
	parent.LastChild = child
}

// Remove unlinks n from its parent's child list. It is a no-op if n has
// no parent.
func Remove(n *xmlquery.Node) {
	if n.Parent == nil {
		return
	}
	if n.PrevSibling != nil {
		n.PrevSibling.NextSibling = n.NextSibling
	} else {
		n.Parent.FirstChild = n.NextSibling
	}
	if n.NextSibling != nil {
		n.NextSibling.PrevSibling = n.PrevSibling
	} else {
		n.Parent.LastChild = n.PrevSibling
	}
	n.Parent, n.PrevSibling, n.NextSibling = nil, nil, nil
}

// ReplaceWith substitutes old with the given replacement nodes, preserving
// position among old's siblings. If replacements is empty, this is
// equivalent to Remove(old).
func ReplaceWith(old *xmlquery.Node, replacements ...*xmlquery.Node) {
	parent := old.Parent
	if parent == nil {
		return
	}
	prev := old.PrevSibling
	Remove(old)
	anchor := prev
	for _, r := range replacements {
		insertAfter(parent, anchor, r)
		anchor = r
	}
}

// insertAfter inserts node immediately after anchor within parent's
// child list (anchor == nil inserts at the front).
func insertAfter(parent, anchor, node *xmlquery.Node) {
	node.Parent = parent
	if anchor == nil {
		node.NextSibling = parent.FirstChild
		if parent.FirstChild != nil {
			parent.FirstChild.PrevSibling = node
		}
		parent.FirstChild = node
		if parent.LastChild == nil {
			parent.LastChild = node
		}
		return
	}
	node.PrevSibling = anchor
	node.NextSibling = anchor.NextSibling
	if anchor.NextSibling != nil {
		anchor.NextSibling.PrevSibling = node
	} else {
		parent.LastChild = node
	}
	anchor.NextSibling = node
}

// InnerText returns the concatenated text content of n's subtree.
func InnerText(n *xmlquery.Node) string { return n.InnerText() }

// OuterXML renders n and its subtree as XML.
func OuterXML(n *xmlquery.Node) string { return n.OutputXML(true) }

// EscapeText returns s with &, <, > escaped, matching the convention
// used when building markup fragments outside the DOM tree (e.g. the
// Jacket transform's synthesized XHTML document).
func EscapeText(s string) string { return encoding.EscapeXMLText(s) }
