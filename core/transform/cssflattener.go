package transform

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/antchfx/xmlquery"

	"bookforge/core/config"
	"bookforge/core/ir"
	"bookforge/core/plugins"
	"bookforge/core/xhtml"
)

// CSSFlattener resolves stylesheets (linked CSS items, inline <style>
// blocks, and extra_css) against each XHTML item's elements and writes
// the result onto a per-element style attribute, retaining only the
// rules it cannot safely inline: media queries, keyframes, font-face
// blocks, and selectors outside the grammar below.
//
// Selectors are parsed with a small participle grammar (cssSelectorGrammar)
// rather than a full CSS engine, the same narrow-grammar-plus-custom-lexer
// shape this codebase already uses for other small domain languages.
// Declaration values are not run through participle: they are free-form
// text (URLs with embedded colons, font lists, numeric units) that the
// lexer would have to tokenize without knowing the parser is in "value"
// position, so a value ends up split across whatever Ident/Punct tokens
// its own characters happen to match instead of arriving as one token.
// Parsing only the declaration list (prop ":" value ";") runs into the
// same problem one level up. Declaration and at-rule handling stay on
// the regexp/string-split pass below; selector parsing is the one place
// the input is a small closed token vocabulary a grammar actually fits.
type CSSFlattener struct{}

func (CSSFlattener) Name() string                       { return "CSSFlattener" }
func (CSSFlattener) ShouldRun(opts config.Options) bool { return true }

type cssDecl struct {
	prop  string
	value string
}

type cssRule struct {
	selectors []parsedSelector
	decls     []cssDecl
}

// cssSelectorGrammar is a participle grammar for the selector subset
// CSSFlattener resolves: one or more whitespace-joined compound
// selectors, each an optional type name followed by any number of
// ".class"/"#id"/":pseudo" bits in any order. A selector using a
// combinator other than whitespace, an attribute selector, "*", or a
// pseudo-class besides :link has no token in cssSelectorLexer for
// those characters and fails to parse; the caller then retains the
// whole rule verbatim instead of inlining it.
type cssSelectorGrammar struct {
	Compounds []*cssCompound `@@+`
}

type cssCompound struct {
	Type string       `( @Ident`
	Bits []*cssSelBit `  @@* | @@+ )`
}

type cssSelBit struct {
	Class  string `"." @Ident`
	ID     string `| "#" @Ident`
	Pseudo string `| ":" @Ident`
}

var cssSelectorLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_-]*`},
	{Name: "Punct", Pattern: `[.#:]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var cssSelectorParser = participle.MustBuild[cssSelectorGrammar](
	participle.Lexer(cssSelectorLexer),
	participle.Elide("Whitespace"),
)

// parsedCompound is one type/id/class/pseudo group in a descendant
// chain, after resolving a cssCompound parse tree into the shape
// matchesCompound actually walks.
type parsedCompound struct {
	typ     string
	id      string
	classes []string
	link    bool
}

// parsedSelector is a full descendant chain: compounds[len-1] must
// match the element itself, each earlier compound a strict ancestor,
// in order.
type parsedSelector struct {
	raw       string
	compounds []parsedCompound
}

// parseSelector parses one comma-free selector, reporting ok=false if
// it falls outside cssSelectorGrammar (see CSSFlattener's doc comment).
func parseSelector(sel string) (parsedSelector, bool) {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return parsedSelector{}, false
	}
	ast, err := cssSelectorParser.ParseString("", sel)
	if err != nil {
		return parsedSelector{}, false
	}
	ps := parsedSelector{raw: sel}
	for _, c := range ast.Compounds {
		pc := parsedCompound{typ: c.Type}
		for _, b := range c.Bits {
			switch {
			case b.Class != "":
				pc.classes = append(pc.classes, b.Class)
			case b.ID != "":
				pc.id = b.ID
			case b.Pseudo != "":
				if b.Pseudo != "link" {
					return parsedSelector{}, false
				}
				pc.link = true
			}
		}
		ps.compounds = append(ps.compounds, pc)
	}
	return ps, true
}

// parseSelectors parses every comma-split selector in raw, failing the
// whole group (and so the rule it belongs to) if any one of them is
// unsupported — matching the pre-participle behavior of rejecting the
// entire rule rather than partially applying it.
func parseSelectors(raw []string) ([]parsedSelector, bool) {
	out := make([]parsedSelector, 0, len(raw))
	for _, s := range raw {
		ps, ok := parseSelector(s)
		if !ok {
			return nil, false
		}
		out = append(out, ps)
	}
	return out, true
}

type cssSource struct {
	cssItem   *ir.ManifestItem // non-nil if this source is a linked CSS manifest item
	styleNode *xmlquery.Node   // non-nil if this source is an inline <style> element
	rules     []cssRule
	retained  string // verbatim text of blocks/rules that could not be inlined
}

var importPattern = regexp.MustCompile(`@import\s+(?:url\(\s*['"]?([^'")]+)['"]?\s*\)|['"]([^'"]+)['"])\s*;?`)
var atBlockPattern = regexp.MustCompile(`(?s)@(media|keyframes|-webkit-keyframes|font-face|page|supports)[^{]*\{.*?\}\s*\}`)
var commentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)

func (CSSFlattener) Apply(ctx context.Context, book *ir.BookIR, opts config.Options, progress plugins.ProgressFunc) error {
	items := book.Manifest.Items()
	total := len(items)
	for i, item := range items {
		if item.Data.Kind != ir.DataXhtml {
			continue
		}
		if err := flattenItem(book, item, opts); err != nil {
			return err
		}
		if progress != nil && total > 0 {
			progress(float64(i+1)/float64(total), "flattening css")
		}
	}
	return nil
}

func flattenItem(book *ir.BookIR, item *ir.ManifestItem, opts config.Options) error {
	doc, err := xhtml.Parse(item.Data.Xhtml)
	if err != nil {
		return err
	}

	var sources []*cssSource
	for _, link := range xhtml.FindByTag(doc, "link") {
		rel, _ := xhtml.GetAttr(link, "rel")
		if !strings.EqualFold(rel, "stylesheet") {
			continue
		}
		href, ok := xhtml.GetAttr(link, "href")
		if !ok {
			continue
		}
		cssItem, ok := book.Manifest.ByHref(ir.StripFragment(href))
		if !ok || cssItem.Data.Kind != ir.DataCSS {
			continue
		}
		resolved := resolveImports(book, cssItem.Href, cssItem.Data.CSS, map[string]bool{cssItem.Href: true})
		src := &cssSource{cssItem: cssItem}
		src.rules, src.retained = parseStylesheet(resolved)
		sources = append(sources, src)
	}
	for _, style := range xhtml.FindByTag(doc, "style") {
		text := xhtml.InnerText(style)
		resolved := resolveImports(book, item.Href, text, map[string]bool{item.Href: true})
		src := &cssSource{styleNode: style}
		src.rules, src.retained = parseStylesheet(resolved)
		sources = append(sources, src)
	}
	if strings.TrimSpace(opts.ExtraCSS) != "" {
		rules, _ := parseStylesheet(opts.ExtraCSS)
		sources = append(sources, &cssSource{rules: rules})
	}
	if len(sources) == 0 {
		return nil
	}

	type match struct {
		specificity int
		order       int
		decl        cssDecl
	}
	matches := make(map[*xmlquery.Node][]match)
	order := 0
	for _, src := range sources {
		for _, rule := range src.rules {
			for _, sel := range rule.selectors {
				spec := selectorSpecificity(sel)
				for _, el := range xhtml.FindElements(doc) {
					if !matchesSelector(sel, el) {
						continue
					}
					for _, d := range rule.decls {
						matches[el] = append(matches[el], match{specificity: spec, order: order, decl: d})
					}
				}
			}
			order++
		}
	}

	for el, ms := range matches {
		sort.SliceStable(ms, func(a, b int) bool {
			if ms[a].specificity != ms[b].specificity {
				return ms[a].specificity < ms[b].specificity
			}
			return ms[a].order < ms[b].order
		})
		final := make(map[string]string)
		var keys []string
		for _, m := range ms {
			if _, exists := final[m.decl.prop]; !exists {
				keys = append(keys, m.decl.prop)
			}
			final[m.decl.prop] = resolveDeclValue(m.decl.prop, m.decl.value)
		}
		if existing, ok := xhtml.GetAttr(el, "style"); ok {
			for _, d := range parseDeclBlock(existing) {
				if _, exists := final[d.prop]; !exists {
					keys = append(keys, d.prop)
				}
				final[d.prop] = d.value
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s: %s;", k, final[k])
		}
		xhtml.SetAttr(el, "style", b.String())
	}

	for _, src := range sources {
		switch {
		case src.cssItem != nil:
			src.cssItem.Data.CSS = src.retained
		case src.styleNode != nil:
			if strings.TrimSpace(src.retained) == "" {
				xhtml.Remove(src.styleNode)
			} else {
				for c := src.styleNode.FirstChild; c != nil; {
					next := c.NextSibling
					xhtml.Remove(c)
					c = next
				}
				xhtml.AppendChild(src.styleNode, xhtml.NewText(src.retained))
			}
		}
	}

	item.Data.Xhtml = xhtml.Serialize(doc)
	return nil
}

// resolveImports inlines @import targets transitively. A cycle (an
// href already in visited) resolves to an empty string for that
// import, per the no-infinite-expansion rule.
func resolveImports(book *ir.BookIR, selfHref, text string, visited map[string]bool) string {
	return importPattern.ReplaceAllStringFunc(text, func(stmt string) string {
		m := importPattern.FindStringSubmatch(stmt)
		target := m[1]
		if target == "" {
			target = m[2]
		}
		target = ir.StripFragment(target)
		if visited[target] {
			return ""
		}
		cssItem, ok := book.Manifest.ByHref(target)
		if !ok || cssItem.Data.Kind != ir.DataCSS {
			return ""
		}
		nextVisited := make(map[string]bool, len(visited)+1)
		for k := range visited {
			nextVisited[k] = true
		}
		nextVisited[target] = true
		return resolveImports(book, target, cssItem.Data.CSS, nextVisited)
	})
}

// parseStylesheet splits text into inlineable rules and a retained
// remainder (at-rule blocks and rules using unsupported selectors).
func parseStylesheet(text string) ([]cssRule, string) {
	text = commentPattern.ReplaceAllString(text, "")

	var retained strings.Builder
	text = atBlockPattern.ReplaceAllStringFunc(text, func(block string) string {
		retained.WriteString(block)
		retained.WriteString("\n")
		return ""
	})

	var rules []cssRule
	for _, block := range splitTopLevelRules(text) {
		selPart, declPart, ok := strings.Cut(block, "{")
		if !ok {
			continue
		}
		declPart = strings.TrimSuffix(strings.TrimSpace(declPart), "}")
		decls := parseDeclBlock(declPart)
		if len(decls) == 0 {
			continue
		}
		selectors, ok := parseSelectors(strings.Split(selPart, ","))
		if !ok {
			retained.WriteString(strings.TrimSpace(block))
			retained.WriteString("\n")
			continue
		}
		rules = append(rules, cssRule{selectors: selectors, decls: decls})
	}
	return rules, retained.String()
}

func splitTopLevelRules(text string) []string {
	var out []string
	depth := 0
	start := 0
	for i, c := range text {
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				out = append(out, text[start:i+1])
				start = i + 1
			}
		}
	}
	return out
}

func parseDeclBlock(block string) []cssDecl {
	var out []cssDecl
	for _, stmt := range strings.Split(block, ";") {
		prop, value, ok := strings.Cut(stmt, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(value)
		if prop == "" || value == "" {
			continue
		}
		out = append(out, cssDecl{prop: prop, value: value})
	}
	return out
}

func selectorSpecificity(sel parsedSelector) int {
	spec := 0
	for _, c := range sel.compounds {
		if c.id != "" {
			spec += 100
		}
		spec += len(c.classes) * 10
		if c.typ != "" {
			spec++
		}
	}
	return spec
}

// matchesSelector matches a descendant-combinator chain against el,
// the rightmost compound against el itself and each earlier one
// against some strict ancestor, in order.
func matchesSelector(sel parsedSelector, el *xmlquery.Node) bool {
	n := len(sel.compounds)
	if n == 0 {
		return false
	}
	if !matchesCompound(sel.compounds[n-1], el) {
		return false
	}
	cur := el
	for i := n - 2; i >= 0; i-- {
		var found *xmlquery.Node
		for anc := cur.Parent; anc != nil; anc = anc.Parent {
			if anc.Type != xmlquery.ElementNode {
				continue
			}
			if matchesCompound(sel.compounds[i], anc) {
				found = anc
				break
			}
		}
		if found == nil {
			return false
		}
		cur = found
	}
	return true
}

func matchesCompound(c parsedCompound, el *xmlquery.Node) bool {
	if c.typ != "" && c.typ != el.Data {
		return false
	}
	if c.id != "" {
		if v, ok := xhtml.GetAttr(el, "id"); !ok || v != c.id {
			return false
		}
	}
	for _, class := range c.classes {
		v, ok := xhtml.GetAttr(el, "class")
		if !ok {
			return false
		}
		found := false
		for _, cl := range strings.Fields(v) {
			if cl == class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

var namedFontSizes = map[string]float64{
	"xx-small": 6.75, "x-small": 7.5, "small": 9.75, "medium": 12,
	"large": 13.5, "x-large": 18, "xx-large": 24,
}

var fontSizeOrder = []string{"xx-small", "x-small", "small", "medium", "large", "x-large", "xx-large"}

func resolveDeclValue(prop, value string) string {
	if prop != "font-size" {
		return value
	}
	key := strings.ToLower(strings.TrimSpace(value))
	if pt, ok := namedFontSizes[key]; ok {
		return formatPt(pt)
	}
	switch key {
	case "smaller":
		return formatPt(namedFontSizes[fontSizeOrder[2]]) // one rank below medium
	case "larger":
		return formatPt(namedFontSizes[fontSizeOrder[4]]) // one rank above medium
	default:
		return value
	}
}

func formatPt(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "pt"
}
