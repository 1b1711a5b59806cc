// Package transform implements the twelve-stage normalization pipeline
// that runs between an input plugin's parse and an output plugin's
// write. Transforms run in a fixed, non-reorderable order (see All);
// each depends on the postconditions of the ones before it.
package transform

import (
	"context"

	"bookforge/core/config"
	"bookforge/core/ir"
	"bookforge/core/plugins"
)

// Transform is a single named unit of BookIR mutation.
type Transform interface {
	// Name is the stable identifier used in progress reporting and dump
	// filenames (e.g. "DataURL", "SplitChapters").
	Name() string
	// ShouldRun reports whether this transform applies given opts.
	// Unconditional transforms always return true.
	ShouldRun(opts config.Options) bool
	// Apply mutates book in place. It must preserve invariants I1-I4 on
	// return and must not retain a reference to book after returning.
	Apply(ctx context.Context, book *ir.BookIR, opts config.Options, progress plugins.ProgressFunc) error
}

// All returns the twelve transforms in the spec's authoritative,
// non-reorderable order.
func All() []Transform {
	return []Transform{
		DataURL{},
		CleanGuide{},
		MergeMetadata{},
		DetectStructure{},
		Jacket{},
		LinearizeTables{},
		UnsmartenPunctuation{},
		CSSFlattener{},
		PageMargin{},
		ImageRescale{},
		SplitChapters{},
		ManifestTrimmer{},
	}
}

// noopProgress is a ProgressFunc that discards every report.
func noopProgress(float64, string) {}
