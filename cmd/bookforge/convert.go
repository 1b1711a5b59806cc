package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"bookforge/core/config"
	"bookforge/core/pipeline"
	"bookforge/core/plugins"
	"bookforge/internal/logging"
)

// ConvertCmd converts a single ebook from one format to another.
type ConvertCmd struct {
	Input  string `arg:"" help:"Source file path"`
	Output string `arg:"" help:"Destination file path"`

	From string `help:"Input format override (defaults to the input file's extension)"`
	To   string `help:"Output format override (defaults to the output file's extension)"`

	Config string `help:"Path to a TOML config file" type:"path"`

	MaxImageSize  string `name:"max-image-size" help:"Maximum image bound, WxH"`
	JPEGQuality   int    `name:"jpeg-quality" help:"JPEG re-encode quality, 1-100"`
	PdfEngine     string `name:"pdf-engine" help:"auto, text-only, or image-only"`
	ChapterMark   string `name:"chapter-mark" help:"page-break, rule, both, or none"`
	EpubVersion   string `name:"epub-version" help:"2 or 3"`
	DebugPipeline string `name:"debug-pipeline" help:"Directory to dump per-phase IR snapshots into" type:"path"`
}

func (c *ConvertCmd) Run(ctx context.Context) error {
	opts, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if err := c.applyFlags(&opts); err != nil {
		return err
	}

	fromFormat := c.From
	if fromFormat == "" {
		fromFormat = formatFromExt(c.Input)
	}
	toFormat := c.To
	if toFormat == "" {
		toFormat = formatFromExt(c.Output)
	}

	p := pipeline.New(plugins.Default())

	start := time.Now()
	_, err = p.RunWithProgress(ctx, plugins.PathSource(c.Input), fromFormat, plugins.PathSink(c.Output), toFormat, opts, func(fraction float64, label string) {
		fmt.Printf("[%5.1f%%] %s\n", fraction*100, label)
	})
	if err != nil {
		return err
	}
	logging.PipelineDone(ctx, time.Since(start))
	fmt.Printf("wrote %s\n", c.Output)
	return nil
}

func (c *ConvertCmd) applyFlags(opts *config.Options) error {
	if c.MaxImageSize != "" {
		size, err := config.ParseImageSize(c.MaxImageSize)
		if err != nil {
			return err
		}
		opts.MaxImageSize = size
		opts.HasMaxImageSize = true
	}
	if c.JPEGQuality != 0 {
		opts.JPEGQuality = c.JPEGQuality
	}
	if c.PdfEngine != "" {
		opts.PdfEngine = config.PdfEngine(c.PdfEngine)
	}
	if c.ChapterMark != "" {
		opts.ChapterMark = config.ChapterMark(c.ChapterMark)
	}
	if c.EpubVersion != "" {
		opts.EpubVersion = config.EpubVersion(c.EpubVersion)
	}
	if c.DebugPipeline != "" {
		opts.DebugPipeline = c.DebugPipeline
	}
	return nil
}

// formatFromExt derives a format identifier from a file's extension,
// e.g. "book.epub" -> "epub".
func formatFromExt(path string) string {
	ext := filepath.Ext(path)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
