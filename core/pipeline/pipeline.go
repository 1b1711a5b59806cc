// Package pipeline implements the three-phase conversion orchestrator:
// Input, Transforms, Output. It is single-threaded and sequential
// across phases and across transforms; the only parallelism in a run
// lives inside individual transforms (see core/transform).
package pipeline

import (
	"context"

	"bookforge/core/cache"
	"bookforge/core/config"
	bferrors "bookforge/core/errors"
	"bookforge/core/ir"
	"bookforge/core/plugins"
	"bookforge/core/transform"
	"bookforge/internal/logging"
)

const (
	inputPhaseStart = 0.00
	inputPhaseEnd   = 0.34
	transformsEnd   = 0.90
	outputPhaseEnd  = 1.00
)

// Pipeline resolves plugins from a registry and runs conversions
// through them. The zero value is not usable; construct with New.
type Pipeline struct {
	registry   *plugins.Registry
	imageCache *cache.TranscodeCache
}

// New returns a Pipeline that resolves input/output plugins from
// registry. A nil registry is equivalent to plugins.Default().
func New(registry *plugins.Registry) *Pipeline {
	if registry == nil {
		registry = plugins.Default()
	}
	return &Pipeline{registry: registry}
}

// WithImageCache attaches a transcode cache that ImageRescale will
// consult and populate, and returns p for chaining.
func (p *Pipeline) WithImageCache(c *cache.TranscodeCache) *Pipeline {
	p.imageCache = c
	return p
}

// transforms returns the fixed transform order, substituting this
// pipeline's image cache into ImageRescale.
func (p *Pipeline) transforms() []transform.Transform {
	return defaultTransforms(p.imageCache)
}

// defaultTransforms returns the fixed §4.3 transform order, substituting
// imageCache into ImageRescale (a nil cache disables transcode caching).
func defaultTransforms(imageCache *cache.TranscodeCache) []transform.Transform {
	all := transform.All()
	for i, t := range all {
		if _, ok := t.(transform.ImageRescale); ok {
			all[i] = transform.ImageRescale{Cache: imageCache}
		}
	}
	return all
}

// Run resolves the input and output plugins for the given format
// identifiers and executes the full conversion: parse src into a fresh
// BookIR, apply the transform pipeline in the fixed §4.3 order, then
// write the result to sink. progress receives overall fractional
// progress (0.0-1.0) across all three phases; it may be nil.
//
// ctx is polled for cancellation at each phase boundary and between
// transforms; a cancelled run returns a CancelledError and discards
// the IR.
func (p *Pipeline) Run(ctx context.Context, src plugins.Source, inputFormat string, sink plugins.Sink, outputFormat string, opts config.Options) (*ir.BookIR, error) {
	return p.RunWithProgress(ctx, src, inputFormat, sink, outputFormat, opts, nil)
}

// RunWithProgress is Run with an explicit progress callback.
func (p *Pipeline) RunWithProgress(ctx context.Context, src plugins.Source, inputFormat string, sink plugins.Sink, outputFormat string, opts config.Options, progress plugins.ProgressFunc) (*ir.BookIR, error) {
	if progress == nil {
		progress = func(float64, string) {}
	}

	inputPlugin, ok := p.registry.Input(inputFormat)
	if !ok {
		return nil, bferrors.NewUnknownFormat("input", inputFormat)
	}
	outputPlugin, ok := p.registry.Output(outputFormat)
	if !ok {
		return nil, bferrors.NewUnknownFormat("output", outputFormat)
	}

	logging.PipelineStart(ctx, inputFormat, outputFormat)
	return runConversion(ctx, inputPlugin, src, outputPlugin, sink, opts, progress, p.transforms())
}

// runConversion executes the three phases against an already-resolved
// input/output plugin pair and transform order. Both Pipeline (registry
// lookup by format id) and Builder (explicit plugin instances) funnel
// through this.
func runConversion(ctx context.Context, inputPlugin plugins.InputPlugin, src plugins.Source, outputPlugin plugins.OutputPlugin, sink plugins.Sink, opts config.Options, progress plugins.ProgressFunc, transforms []transform.Transform) (*ir.BookIR, error) {
	dumper := newDumper(opts.DebugPipeline)

	if err := checkCancelled(ctx, "input"); err != nil {
		return nil, err
	}
	book, err := runInputPhase(ctx, inputPlugin, src, opts, progress)
	if err != nil {
		return nil, err
	}
	if err := dumper.dump("input", book); err != nil {
		return nil, err
	}

	if err := checkCancelled(ctx, "transforms"); err != nil {
		return nil, err
	}
	if err := runTransformPhase(ctx, book, opts, progress, dumper, transforms); err != nil {
		return nil, err
	}

	if err := checkCancelled(ctx, "output"); err != nil {
		return nil, err
	}
	if err := runOutputPhase(ctx, outputPlugin, book, sink, opts, progress); err != nil {
		return nil, err
	}

	return book, nil
}

func runInputPhase(ctx context.Context, plugin plugins.InputPlugin, src plugins.Source, opts config.Options, progress plugins.ProgressFunc) (*ir.BookIR, error) {
	rescale := func(fraction float64, label string) {
		progress(inputPhaseStart+fraction*(inputPhaseEnd-inputPhaseStart), label)
	}
	book, err := plugin.Parse(src, opts, rescale)
	if err != nil {
		return nil, bferrors.NewParse(plugin.Name(), err.Error(), err)
	}
	progress(inputPhaseEnd, "input complete")
	return book, nil
}

func runTransformPhase(ctx context.Context, book *ir.BookIR, opts config.Options, progress plugins.ProgressFunc, dumper *dumper, transforms []transform.Transform) error {
	var enabled []transform.Transform
	for _, t := range transforms {
		if t.ShouldRun(opts) {
			enabled = append(enabled, t)
		} else {
			logging.TransformSkipped(ctx, t.Name(), "should_run returned false")
		}
	}
	if len(enabled) == 0 {
		return nil
	}

	span := transformsEnd - inputPhaseEnd
	slot := span / float64(len(enabled))
	for i, t := range enabled {
		if err := checkCancelled(ctx, "transform:"+t.Name()); err != nil {
			return err
		}
		start := inputPhaseEnd + float64(i)*slot
		rescale := func(fraction float64, label string) {
			progress(start+fraction*slot, label)
		}

		if err := t.Apply(ctx, book, opts, rescale); err != nil {
			return bferrors.Wrap(err, "transform "+t.Name())
		}

		if opts.DebugPipeline != "" {
			if errs := ir.Validate(book); len(errs) > 0 {
				for _, verr := range errs {
					logging.InvariantViolation(ctx, invariantTag(verr), t.Name(), verr.Error())
				}
				return bferrors.NewInvariantViolation(invariantTag(errs[0]), t.Name(), errs[0].Error())
			}
		}
		if err := dumper.dump(t.Name(), book); err != nil {
			return err
		}

		progress(start+slot, "completed "+t.Name())
	}
	return nil
}

func runOutputPhase(ctx context.Context, plugin plugins.OutputPlugin, book *ir.BookIR, sink plugins.Sink, opts config.Options, progress plugins.ProgressFunc) error {
	progress(transformsEnd, "writing output")
	if err := plugin.Write(book, sink, opts); err != nil {
		return bferrors.Wrap(err, "output plugin "+plugin.Name())
	}
	progress(outputPhaseEnd, "output complete")
	return nil
}

func checkCancelled(ctx context.Context, phase string) error {
	select {
	case <-ctx.Done():
		return bferrors.NewCancelled(phase)
	default:
		return nil
	}
}

// invariantTag extracts the "I1".."I4" prefix an ir.ValidationError
// carries, falling back to a generic tag for any other error shape.
func invariantTag(err error) string {
	if verr, ok := err.(*ir.ValidationError); ok {
		return verr.Invariant
	}
	return "invariant"
}
