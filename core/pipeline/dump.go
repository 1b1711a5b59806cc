package pipeline

import "bookforge/core/ir"

// dumper writes numbered per-step IR snapshots to a debug directory, or
// does nothing if no directory was configured. The sequence starts at
// 1 for the input phase and increments once per transform, matching
// the "NN-after-<name>.json" naming in core/ir.WriteDump.
type dumper struct {
	dir string
	seq int
}

func newDumper(dir string) *dumper {
	return &dumper{dir: dir}
}

func (d *dumper) dump(name string, book *ir.BookIR) error {
	if d.dir == "" {
		return nil
	}
	d.seq++
	return ir.WriteDump(d.dir, d.seq, name, book)
}
