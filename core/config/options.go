// Package config defines the recognized pipeline configuration keys and
// loads them from a TOML file, with CLI flags taking precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	bferrors "bookforge/core/errors"
)

// PdfEngine selects the PDF input plugin's extraction strategy.
type PdfEngine string

const (
	PdfEngineAuto      PdfEngine = "auto"
	PdfEngineTextOnly  PdfEngine = "text-only"
	PdfEngineImageOnly PdfEngine = "image-only"
)

// ChapterMark selects the marker style DetectStructure/SplitChapters use.
type ChapterMark string

const (
	ChapterMarkPageBreak ChapterMark = "page-break"
	ChapterMarkRule      ChapterMark = "rule"
	ChapterMarkBoth      ChapterMark = "both"
	ChapterMarkNone      ChapterMark = "none"
)

// EpubVersion selects the EPUB output plugin's container version.
type EpubVersion string

const (
	EpubVersion2 EpubVersion = "2"
	EpubVersion3 EpubVersion = "3"
)

// Options carries every configuration key recognized by the pipeline
// (§6.2). Default() returns the documented defaults; a Has flag
// distinguishes "absent" from "explicitly set" where the default alone
// cannot (MaxImageSize, Margins).
type Options struct {
	Verbose int

	ExtraCSS string

	MaxImageSize    ImageSize // zero value means "use profile default"
	HasMaxImageSize bool

	JPEGQuality int

	PdfEngine PdfEngine
	PdfDPI    int

	ChapterMark ChapterMark
	EpubVersion EpubVersion

	UnsmartenPunctuation bool
	LinearizeTables      bool
	InsertMetadata       bool

	// RemoveFirstImageAfterJacket mirrors the original implementation's
	// Jacket companion option; the distilled spec names it directly in
	// §4.3 step (5) without giving it a config key of its own, so it is
	// exposed here for callers that want the behavior.
	RemoveFirstImageAfterJacket bool

	MarginTop    float64
	MarginBottom float64
	MarginLeft   float64
	MarginRight  float64
	HasMargins   bool

	PrettyPrint bool

	// DebugPipeline is the directory to dump per-phase IR snapshots into,
	// or "" to disable dumping.
	DebugPipeline string
}

// ImageSize is a parsed "WxH" dimension bound.
type ImageSize struct {
	Width  int
	Height int
}

// String renders s back in "WxH" form.
func (s ImageSize) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// ParseImageSize parses a "WxH" string, returning a ConfigError on
// malformed input.
func ParseImageSize(s string) (ImageSize, error) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return ImageSize{}, bferrors.NewConfig("max_image_size", s, `expected "WxH"`)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil || w <= 0 {
		return ImageSize{}, bferrors.NewConfig("max_image_size", s, "invalid width")
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil || h <= 0 {
		return ImageSize{}, bferrors.NewConfig("max_image_size", s, "invalid height")
	}
	return ImageSize{Width: w, Height: h}, nil
}

// Default returns the documented default Options.
func Default() Options {
	return Options{
		Verbose:     0,
		JPEGQuality: 80,
		PdfEngine:   PdfEngineAuto,
		PdfDPI:      200,
		ChapterMark: ChapterMarkPageBreak,
		EpubVersion: EpubVersion2,
		MarginTop:    5.0,
		MarginBottom: 5.0,
		MarginLeft:   5.0,
		MarginRight:  5.0,
	}
}

// fileOptions is the TOML-decodable shape; pointer fields distinguish
// "absent from file" from "explicitly zero".
type fileOptions struct {
	Verbose *int `toml:"verbose"`

	ExtraCSS *string `toml:"extra_css"`

	MaxImageSize *string `toml:"max_image_size"`
	JPEGQuality  *int    `toml:"jpeg_quality"`

	PdfEngine *string `toml:"pdf_engine"`
	PdfDPI    *int    `toml:"pdf_dpi"`

	ChapterMark *string `toml:"chapter_mark"`
	EpubVersion *string `toml:"epub_version"`

	UnsmartenPunctuation *bool `toml:"unsmarten_punctuation"`
	LinearizeTables      *bool `toml:"linearize_tables"`
	InsertMetadata       *bool `toml:"insert_metadata"`

	MarginTop    *float64 `toml:"margin_top"`
	MarginBottom *float64 `toml:"margin_bottom"`
	MarginLeft   *float64 `toml:"margin_left"`
	MarginRight  *float64 `toml:"margin_right"`

	PrettyPrint   *bool   `toml:"pretty_print"`
	DebugPipeline *string `toml:"debug_pipeline"`
}

// Load reads a TOML file at path and merges it onto Default(), returning
// a ConfigError if the file is malformed or a value is out of range. A
// missing file is not an error; Default() is returned unchanged.
func Load(path string) (Options, error) {
	opts := Default()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, bferrors.NewIO("read", path, err)
	}

	var fo fileOptions
	if err := toml.Unmarshal(data, &fo); err != nil {
		return opts, bferrors.NewConfig(path, "", "malformed toml: "+err.Error())
	}
	return mergeFile(opts, fo)
}

// mergeFile applies fo onto base, validating each recognized key.
func mergeFile(base Options, fo fileOptions) (Options, error) {
	opts := base
	if fo.Verbose != nil {
		opts.Verbose = *fo.Verbose
	}
	if fo.ExtraCSS != nil {
		opts.ExtraCSS = *fo.ExtraCSS
	}
	if fo.MaxImageSize != nil {
		size, err := ParseImageSize(*fo.MaxImageSize)
		if err != nil {
			return base, err
		}
		opts.MaxImageSize = size
		opts.HasMaxImageSize = true
	}
	if fo.JPEGQuality != nil {
		if *fo.JPEGQuality < 1 || *fo.JPEGQuality > 100 {
			return base, bferrors.NewConfig("jpeg_quality", strconv.Itoa(*fo.JPEGQuality), "must be 1-100")
		}
		opts.JPEGQuality = *fo.JPEGQuality
	}
	if fo.PdfEngine != nil {
		e := PdfEngine(*fo.PdfEngine)
		switch e {
		case PdfEngineAuto, PdfEngineTextOnly, PdfEngineImageOnly:
			opts.PdfEngine = e
		default:
			return base, bferrors.NewConfig("pdf_engine", *fo.PdfEngine, "must be auto, text-only, or image-only")
		}
	}
	if fo.PdfDPI != nil {
		if *fo.PdfDPI <= 0 {
			return base, bferrors.NewConfig("pdf_dpi", strconv.Itoa(*fo.PdfDPI), "must be positive")
		}
		opts.PdfDPI = *fo.PdfDPI
	}
	if fo.ChapterMark != nil {
		c := ChapterMark(*fo.ChapterMark)
		switch c {
		case ChapterMarkPageBreak, ChapterMarkRule, ChapterMarkBoth, ChapterMarkNone:
			opts.ChapterMark = c
		default:
			return base, bferrors.NewConfig("chapter_mark", *fo.ChapterMark, "must be page-break, rule, both, or none")
		}
	}
	if fo.EpubVersion != nil {
		v := EpubVersion(*fo.EpubVersion)
		switch v {
		case EpubVersion2, EpubVersion3:
			opts.EpubVersion = v
		default:
			return base, bferrors.NewConfig("epub_version", *fo.EpubVersion, "must be 2 or 3")
		}
	}
	if fo.UnsmartenPunctuation != nil {
		opts.UnsmartenPunctuation = *fo.UnsmartenPunctuation
	}
	if fo.LinearizeTables != nil {
		opts.LinearizeTables = *fo.LinearizeTables
	}
	if fo.InsertMetadata != nil {
		opts.InsertMetadata = *fo.InsertMetadata
	}
	if fo.MarginTop != nil || fo.MarginBottom != nil || fo.MarginLeft != nil || fo.MarginRight != nil {
		opts.HasMargins = true
		if fo.MarginTop != nil {
			opts.MarginTop = *fo.MarginTop
		}
		if fo.MarginBottom != nil {
			opts.MarginBottom = *fo.MarginBottom
		}
		if fo.MarginLeft != nil {
			opts.MarginLeft = *fo.MarginLeft
		}
		if fo.MarginRight != nil {
			opts.MarginRight = *fo.MarginRight
		}
	}
	if fo.PrettyPrint != nil {
		opts.PrettyPrint = *fo.PrettyPrint
	}
	if fo.DebugPipeline != nil {
		opts.DebugPipeline = *fo.DebugPipeline
	}
	return opts, nil
}

// DefaultMaxImageSize returns the output-profile default bound for
// max_image_size when the option was not explicitly set, per the
// original implementation's OutputProfile concept.
func DefaultMaxImageSize(outputFormat string) ImageSize {
	switch outputFormat {
	case "epub", "mobi", "azw3":
		return ImageSize{Width: 1600, Height: 2400}
	case "pdf":
		return ImageSize{Width: 2480, Height: 3508} // A4 @ 300dpi
	default:
		return ImageSize{Width: 4000, Height: 4000}
	}
}

// EffectiveMaxImageSize returns o.MaxImageSize if explicitly set, else
// the profile default for outputFormat.
func (o Options) EffectiveMaxImageSize(outputFormat string) ImageSize {
	if o.HasMaxImageSize {
		return o.MaxImageSize
	}
	return DefaultMaxImageSize(outputFormat)
}
