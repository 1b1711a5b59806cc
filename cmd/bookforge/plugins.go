package main

import (
	"fmt"
	"sort"

	"bookforge/core/plugins"
)

// PluginsCmd lists the format plugins registered in the process-wide
// registry, one row per format identifier with its input/output
// support.
type PluginsCmd struct{}

func (c *PluginsCmd) Run() error {
	reg := plugins.Default()

	formats := make(map[string][2]bool) // format -> [hasInput, hasOutput]
	for _, f := range reg.InputFormats() {
		e := formats[f]
		e[0] = true
		formats[f] = e
	}
	for _, f := range reg.OutputFormats() {
		e := formats[f]
		e[1] = true
		formats[f] = e
	}

	names := make([]string, 0, len(formats))
	for f := range formats {
		names = append(names, f)
	}
	sort.Strings(names)

	headers := []string{"FORMAT", "INPUT", "OUTPUT"}
	rows := make([][]string, 0, len(names))
	for _, f := range names {
		e := formats[f]
		rows = append(rows, []string{f, yesNo(e[0]), yesNo(e[1])})
	}

	fmt.Println(renderTable(headers, rows))
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
