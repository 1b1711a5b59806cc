package main

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"bookforge/internal/archive"
)

// DumpCmd inspects or bundles a debug_pipeline dump directory, the
// per-phase IR snapshots written when convert --debug-pipeline is set.
type DumpCmd struct {
	Dir string `arg:"" optional:"" help:"Dump directory to inspect (omit when using --from-bundle)" type:"path"`

	Bundle     string `help:"Bundle the dump directory into a .tar.xz at this path" type:"path"`
	FromBundle string `help:"Inspect a previously bundled .tar.xz instead of a directory" type:"path"`
	Extract    string `help:"With --from-bundle, write one snapshot file's contents to stdout instead of listing"`
}

func (c *DumpCmd) Run() error {
	switch {
	case c.Bundle != "":
		return c.runBundle()
	case c.FromBundle != "":
		return c.runFromBundle()
	default:
		if c.Dir == "" {
			return fmt.Errorf("dump: DIR is required unless --from-bundle is set")
		}
		return c.runList()
	}
}

func (c *DumpCmd) runBundle() error {
	lock, err := archive.AcquireDumpLock(c.Dir)
	if err != nil {
		return err
	}
	if lock == nil {
		return fmt.Errorf("dump directory %s is locked by another process", c.Dir)
	}
	defer lock.Release()

	if err := archive.BundleDumpDir(c.Dir, c.Bundle); err != nil {
		return err
	}
	fmt.Printf("bundled %s -> %s\n", c.Dir, c.Bundle)
	return nil
}

// runFromBundle lists the snapshot files inside a bundled dump archive,
// or, if Extract names one, writes that single file's content to
// stdout instead of a directory listing.
func (c *DumpCmd) runFromBundle() error {
	if c.Extract != "" {
		ok, err := archive.ContainsPath(c.FromBundle, func(name string) bool {
			return strings.HasSuffix(name, c.Extract)
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("dump: no snapshot matching %q in %s", c.Extract, c.FromBundle)
		}

		data, _, err := archive.FindFile(c.FromBundle, func(name string) bool {
			return strings.HasSuffix(name, c.Extract)
		})
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	headers := []string{"SNAPSHOT", "SIZE"}
	var rows [][]string
	err := archive.IterateArchive(c.FromBundle, func(header *tar.Header, _ io.Reader) (bool, error) {
		if header.Typeflag == tar.TypeDir {
			return false, nil
		}
		rows = append(rows, []string{header.Name, humanize.Bytes(uint64(header.Size))})
		return false, nil
	})
	if err != nil {
		return err
	}
	fmt.Println(renderTable(headers, rows))
	return nil
}

func (c *DumpCmd) runList() error {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return fmt.Errorf("read dump directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	headers := []string{"SNAPSHOT", "SIZE"}
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		info, err := os.Stat(filepath.Join(c.Dir, name))
		if err != nil {
			continue
		}
		rows = append(rows, []string{name, humanize.Bytes(uint64(info.Size()))})
	}

	fmt.Println(renderTable(headers, rows))
	return nil
}
