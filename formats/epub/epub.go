// Package epub registers the EPUB input and output plugins, wrapping
// core/epub's container codec in the plugins.InputPlugin/OutputPlugin
// contracts.
package epub

import (
	"bookforge/core/config"
	coreepub "bookforge/core/epub"
	bferrors "bookforge/core/errors"
	"bookforge/core/ir"
	"bookforge/core/plugins"
)

func init() {
	plugins.Default().RegisterInput(inputPlugin{})
	plugins.Default().RegisterOutput(outputPlugin{})
}

type inputPlugin struct{}

func (inputPlugin) Name() string      { return "formats/epub" }
func (inputPlugin) Formats() []string { return []string{"epub"} }

func (inputPlugin) Parse(src plugins.Source, opts config.Options, progress plugins.ProgressFunc) (*ir.BookIR, error) {
	data, err := src.ReadAll()
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(0.15, "parse start")
	}
	book, err := coreepub.Read(data)
	if err != nil {
		return nil, bferrors.NewParse("formats/epub", "malformed container", err)
	}
	if progress != nil {
		progress(0.88, "postprocessing complete")
	}
	return book, nil
}

type outputPlugin struct{}

func (outputPlugin) Name() string      { return "formats/epub" }
func (outputPlugin) Formats() []string { return []string{"epub"} }

func (outputPlugin) Write(book *ir.BookIR, sink plugins.Sink, opts config.Options) error {
	data, err := coreepub.Write(book, opts)
	if err != nil {
		return err
	}
	return sink.WriteAll(data)
}
