package pipeline

import (
	"context"

	"bookforge/core/cache"
	"bookforge/core/config"
	bferrors "bookforge/core/errors"
	"bookforge/core/ir"
	"bookforge/core/plugins"
	"bookforge/core/transform"
)

// Builder assembles a Conversion from explicit plugin instances rather
// than a registry lookup by format id, for callers that have already
// resolved (or hand-rolled) the plugins they want. If no transforms are
// added, Build substitutes the fixed §4.3 order.
type Builder struct {
	input      plugins.InputPlugin
	output     plugins.OutputPlugin
	transforms []transform.Transform
	progress   plugins.ProgressFunc
	imageCache *cache.TranscodeCache
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Input sets the plugin that parses the source. Returns b for chaining.
func (b *Builder) Input(p plugins.InputPlugin) *Builder {
	b.input = p
	return b
}

// Output sets the plugin that serializes the result. Returns b for
// chaining.
func (b *Builder) Output(p plugins.OutputPlugin) *Builder {
	b.output = p
	return b
}

// Transform appends t to the transform order, overriding the fixed
// §4.3 default once any transform has been added explicitly. Returns b
// for chaining.
func (b *Builder) Transform(t transform.Transform) *Builder {
	b.transforms = append(b.transforms, t)
	return b
}

// ProgressReporter sets the callback that receives overall fractional
// progress. Returns b for chaining.
func (b *Builder) ProgressReporter(f plugins.ProgressFunc) *Builder {
	b.progress = f
	return b
}

// WithImageCache attaches a transcode cache used when Build falls back
// to the default transform order. Returns b for chaining.
func (b *Builder) WithImageCache(c *cache.TranscodeCache) *Builder {
	b.imageCache = c
	return b
}

// Build validates that an input and output plugin were given and
// returns a Conversion bound to them.
func (b *Builder) Build() (*Conversion, error) {
	if b.input == nil {
		return nil, bferrors.NewConfig("input", "", "no input plugin specified")
	}
	if b.output == nil {
		return nil, bferrors.NewConfig("output", "", "no output plugin specified")
	}

	transforms := b.transforms
	if len(transforms) == 0 {
		transforms = defaultTransforms(b.imageCache)
	}

	return &Conversion{
		input:      b.input,
		output:     b.output,
		transforms: transforms,
		progress:   b.progress,
	}, nil
}

// Conversion is a Builder-assembled, ready-to-run pipeline bound to a
// fixed input plugin, output plugin, and transform order.
type Conversion struct {
	input      plugins.InputPlugin
	output     plugins.OutputPlugin
	transforms []transform.Transform
	progress   plugins.ProgressFunc
}

// Run executes the conversion against src and sink.
func (c *Conversion) Run(ctx context.Context, src plugins.Source, sink plugins.Sink, opts config.Options) (*ir.BookIR, error) {
	progress := c.progress
	if progress == nil {
		progress = func(float64, string) {}
	}
	return runConversion(ctx, c.input, src, c.output, sink, opts, progress, c.transforms)
}
