package transform

import (
	"context"
	"regexp"

	"github.com/antchfx/xmlquery"

	"bookforge/core/config"
	"bookforge/core/ir"
	"bookforge/core/plugins"
	"bookforge/core/xhtml"
)

// ManifestTrimmer removes every manifest item not reachable from the
// spine, guide, and TOC by following <img src>, <link
// rel="stylesheet" href>, <script src>, and CSS url(...) references.
// It must run last: every earlier transform may still be creating or
// renaming references that this pass needs to see.
type ManifestTrimmer struct{}

func (ManifestTrimmer) Name() string                       { return "ManifestTrimmer" }
func (ManifestTrimmer) ShouldRun(opts config.Options) bool { return true }

var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

func (ManifestTrimmer) Apply(ctx context.Context, book *ir.BookIR, opts config.Options, progress plugins.ProgressFunc) error {
	reachable := make(map[string]bool)
	var queue []string
	addRoot := func(href string) {
		h := ir.StripFragment(href)
		if h == "" || reachable[h] {
			return
		}
		reachable[h] = true
		queue = append(queue, h)
	}

	for _, idref := range book.Spine.IDRefs() {
		if item, ok := book.Manifest.ByID(idref); ok {
			addRoot(item.Href)
		}
	}
	for _, ref := range book.Guide.Refs {
		addRoot(ref.Href)
	}
	book.TOC.Walk(func(e *ir.TocEntry, depth int) { addRoot(e.Href) })

	for len(queue) > 0 {
		href := queue[0]
		queue = queue[1:]
		item, ok := book.Manifest.ByHref(href)
		if !ok {
			continue
		}
		switch item.Data.Kind {
		case ir.DataXhtml:
			doc, err := xhtml.Parse(item.Data.Xhtml)
			if err != nil {
				continue
			}
			xhtml.WalkElements(doc, func(n *xmlquery.Node) bool {
				for idx := range n.Attr {
					name := n.Attr[idx].Name.Local
					if name == "src" || (name == "href" && n.Data == "link") {
						addRoot(n.Attr[idx].Value)
					}
				}
				if n.Data == "style" {
					for _, m := range cssURLPattern.FindAllStringSubmatch(xhtml.InnerText(n), -1) {
						addRoot(m[1])
					}
				}
				return true
			})
		case ir.DataCSS:
			for _, m := range cssURLPattern.FindAllStringSubmatch(item.Data.CSS, -1) {
				addRoot(m[1])
			}
		}
	}

	var toRemove []string
	for _, item := range book.Manifest.Items() {
		if !reachable[item.Href] {
			toRemove = append(toRemove, item.ID)
		}
	}
	for _, id := range toRemove {
		book.Manifest.Remove(id)
	}

	if progress != nil {
		progress(1.0, "trimmed unreachable manifest items")
	}
	return nil
}
