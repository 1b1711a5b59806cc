package transform

import (
	"context"

	"bookforge/core/config"
	"bookforge/core/ir"
	"bookforge/core/plugins"
)

// CleanGuide promotes vendor cover-image aliases to the canonical cover
// guide type, then drops guide entries whose href does not resolve to a
// manifest item, preserving the order of the remainder.
type CleanGuide struct{}

func (CleanGuide) Name() string                       { return "CleanGuide" }
func (CleanGuide) ShouldRun(opts config.Options) bool { return true }

func (CleanGuide) Apply(ctx context.Context, book *ir.BookIR, opts config.Options, progress plugins.ProgressFunc) error {
	promoteCoverAlias(book)

	kept := book.Guide.Refs[:0]
	for _, ref := range book.Guide.Refs {
		if _, ok := book.Manifest.ByHref(ir.StripFragment(ref.Href)); ok {
			kept = append(kept, ref)
		}
	}
	book.Guide.Refs = kept
	if progress != nil {
		progress(1.0, "cleaned guide references")
	}
	return nil
}

// promoteCoverAlias finds the first vendor cover-image alias reference
// (e.g. a Word-to-EPUB exporter's "other.ms-coverimage-standard") and
// adds a canonical "cover" guide reference pointing at the same href,
// unless a cover reference already exists. The alias entry itself is
// left in place; the href-resolution pass above still governs whether
// it survives.
func promoteCoverAlias(book *ir.BookIR) {
	if _, ok := book.Guide.Get(ir.GuideCover); ok {
		return
	}
	for _, ref := range book.Guide.Refs {
		if ir.IsCoverAlias(ref.Type) {
			book.Guide.Add(ir.GuideRef{Type: ir.GuideCover, Title: ref.Title, Href: ref.Href})
			return
		}
	}
}
