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

// UnsmartenPunctuation rewrites curly quotes, en/em dashes, and
// ellipsis characters to their plain-ASCII equivalents in text
// content, leaving markup and attributes untouched.
type UnsmartenPunctuation struct{}

func (UnsmartenPunctuation) Name() string                       { return "UnsmartenPunctuation" }
func (UnsmartenPunctuation) ShouldRun(opts config.Options) bool { return opts.UnsmartenPunctuation }

var unsmartenSkipTags = map[string]bool{"script": true, "style": true}

var unsmartenReplacer = strings.NewReplacer(
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
	"–", "-",
	"—", "--",
	"…", "...",
)

func (UnsmartenPunctuation) Apply(ctx context.Context, book *ir.BookIR, opts config.Options, progress plugins.ProgressFunc) error {
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
		xhtml.WalkTextNodes(doc, unsmartenSkipTags, func(n *xmlquery.Node) {
			rewritten := unsmartenReplacer.Replace(n.Data)
			if rewritten != n.Data {
				n.Data = rewritten
				changed = true
			}
		})
		if changed {
			item.Data.Xhtml = xhtml.Serialize(doc)
		}
		if progress != nil && total > 0 {
			progress(float64(i+1)/float64(total), "unsmartening punctuation")
		}
	}
	return nil
}
