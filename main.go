// Command omfseg inspects relocatable object modules: it dumps raw record
// layouts, lists segments with their inferred permissions and assigned
// addresses, and reconstructs a segment's byte image.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/alecthomas/kong"

	"moria.us/omfseg/omf"
)

var cli struct {
	Dump     DumpCmd     `cmd:"" help:"Print the structured layout of the module's segment records."`
	Segments SegmentsCmd `cmd:"" help:"List segments with names, permissions, and load addresses."`
	Image    ImageCmd    `cmd:"" help:"Write the reconstructed byte image of one segment."`
}

// DumpCmd prints raw record layouts.
type DumpCmd struct {
	Path string `arg:"" help:"Object module to read." type:"existingfile"`
}

func (c *DumpCmd) Run() error {
	f, err := omf.Open(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(os.Stdout)
	f.DumpText(w, "")
	return w.Flush()
}

// SegmentsCmd lists segments after a relocation pass.
type SegmentsCmd struct {
	Path  string `arg:"" help:"Object module to read." type:"existingfile"`
	Base  uint64 `help:"Load address for the first relocatable segment." default:"4096"`
	Align int    `help:"Alignment code forced on every segment; -1 keeps each segment's own." default:"-1"`
}

func (c *SegmentsCmd) Run() error {
	f, err := omf.Open(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.RelocateAll(c.Base, c.Align); err != nil {
		return err
	}
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for i, seg := range f.Segments {
		addr := "unplaced"
		if a, ok := seg.Address(); ok {
			addr = fmt.Sprintf("%#08x", a)
		}
		fmt.Fprintf(w, "%3d  %s  %s  %#8x  %-16s  %s\n",
			i+1, addr, seg.Permissions(), seg.Length(), seg.Name(), seg.ClassName())
	}
	return nil
}

// ImageCmd reconstructs one segment's bytes.
type ImageCmd struct {
	Path    string `arg:"" help:"Object module to read." type:"existingfile"`
	Segment string `arg:"" help:"Segment name, or 1-based index."`
	Output  string `short:"o" help:"Output file (default stdout)."`
	MaxFill uint64 `help:"Largest zero-fill hole to synthesize." default:"8192"`
}

func (c *ImageCmd) Run() error {
	f, err := omf.Open(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	seg, err := findSegment(f, c.Segment)
	if err != nil {
		return err
	}
	var out io.Writer = os.Stdout
	if c.Output != "" {
		fp, err := os.Create(c.Output)
		if err != nil {
			return err
		}
		defer fp.Close()
		out = fp
	}
	_, err = io.Copy(out, omf.NewImageReader(seg, c.MaxFill, nil))
	return err
}

func findSegment(f *omf.File, key string) (*omf.Segment, error) {
	if n, err := strconv.Atoi(key); err == nil {
		if n < 1 || n > len(f.Segments) {
			return nil, fmt.Errorf("segment index %d out of range 1..%d", n, len(f.Segments))
		}
		return f.Segments[n-1], nil
	}
	for _, seg := range f.Segments {
		if seg.Name() == key {
			return seg, nil
		}
	}
	return nil, errors.New("no segment named " + strconv.Quote(key))
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("omfseg"),
		kong.Description("Inspect relocatable object modules."),
		kong.UsageOnError())
	ctx.FatalIfErrorf(ctx.Run())
}
