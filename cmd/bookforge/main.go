// Command bookforge converts ebooks between formats through BookIR, the
// in-memory intermediate representation shared by every format plugin.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"bookforge/internal/logging"

	_ "bookforge/formats/epub"
	_ "bookforge/formats/html"
	_ "bookforge/formats/pdf"
	_ "bookforge/formats/txt"
)

const version = "0.1.0"

// CLI defines bookforge's command-line interface.
var CLI struct {
	PluginDir string `name:"plugin-dir" short:"p" help:"Reserved for future out-of-process plugins" type:"path"`
	Verbose   int    `name:"verbose" short:"v" type:"counter" help:"Increase log verbosity (-v, -vv)"`

	Convert ConvertCmd `cmd:"" help:"Convert an ebook from one format to another"`
	Plugins PluginsCmd `cmd:"" help:"List registered format plugins"`
	Dump    DumpCmd    `cmd:"" help:"Inspect or bundle a debug_pipeline dump directory"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kctx := kong.Parse(&CLI,
		kong.Name("bookforge"),
		kong.Description("Convert ebooks between formats through a shared intermediate representation."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	level := logging.LevelInfo
	if CLI.Verbose >= 1 {
		level = logging.LevelDebug
	}
	logging.InitLogger(level, logging.FormatText)

	err := kctx.Run(ctx)
	kctx.FatalIfErrorf(err)
}

// VersionCmd prints the CLI version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("bookforge version %s\n", version)
	return nil
}
