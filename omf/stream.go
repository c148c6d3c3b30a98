package omf

import (
	"fmt"
	"io"
	"log/slog"
)

// DefaultMaxFill is the default bound on a synthesized zero-fill run. Holes
// between data blocks larger than this come from corrupt length fields, not
// real programs.
const DefaultMaxFill = 0x2000

// An ImageReader streams the reconstructed byte image of a segment: the
// attached data blocks in offset order, with zero fill where the segment is
// not covered. It makes a single forward pass; reading the image again
// requires a fresh instance.
//
// A hole larger than the maxFill bound is fatal for the rest of the read
// (bytes already returned remain valid, every later Read returns the
// error). A block starting behind the cursor, an artifact of some
// toolchains, is only logged: the block is dropped and the stream
// continues.
type ImageReader struct {
	seg     *Segment
	maxFill uint64
	log     *slog.Logger

	pos    uint64 // image offset of the next byte to emit
	next   int    // index of the next unconsumed block
	buf    []byte
	bufPos int
	err    error // latched fatal error
}

// NewImageReader returns a reader over seg's image. maxFill bounds any
// single zero-fill run; pass DefaultMaxFill unless the host loader
// configures its own. A nil log falls back to slog.Default. The segment
// must be sealed and fully populated before the first Read.
func NewImageReader(seg *Segment, maxFill uint64, log *slog.Logger) *ImageReader {
	if log == nil {
		log = slog.Default()
	}
	return &ImageReader{seg: seg, maxFill: maxFill, log: log}
}

// Read implements io.Reader. It returns io.EOF once the declared length has
// been emitted.
func (r *ImageReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(p) && r.pos < r.seg.Length() {
		if r.bufPos == len(r.buf) {
			if r.err != nil {
				break
			}
			if err := r.fill(); err != nil {
				r.err = err
				break
			}
		}
		avail := r.buf[r.bufPos:]
		// Never emit past the declared length, even if a block's content
		// runs beyond it.
		if rem := r.seg.Length() - r.pos; uint64(len(avail)) > rem {
			avail = avail[:rem]
		}
		c := copy(p[n:], avail)
		n += c
		r.bufPos += c
		r.pos += uint64(c)
	}
	if n > 0 {
		return n, nil
	}
	if r.err != nil {
		return 0, r.err
	}
	return 0, io.EOF
}

// ReadByte implements io.ByteReader.
func (r *ImageReader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// fill loads the next run of bytes into the buffer: the next block if the
// cursor has reached it, or a zero-fill run up to it. Called only with the
// buffer exhausted and the cursor short of the declared length.
func (r *ImageReader) fill() error {
	for r.next < len(r.seg.blocks) {
		d := r.seg.blocks[r.next]
		off := d.DataOffset()
		switch {
		case r.pos < off:
			gap := off - r.pos
			if gap > r.maxFill {
				return fmt.Errorf("segment %q: unfilled hole of %#x bytes at %#x: %w",
					r.seg.name, gap, r.pos, ErrGapTooLarge)
			}
			r.buf = make([]byte, gap)
			r.bufPos = 0
			return nil
		case r.pos == off:
			data, err := d.Bytes()
			if err != nil {
				return fmt.Errorf("segment %q: data block %d: %w", r.seg.name, r.next, err)
			}
			r.next++
			if len(data) == 0 {
				continue
			}
			r.buf = data
			r.bufPos = 0
			return nil
		default:
			// Overlapping or out-of-order block. Drop it and retry the
			// same cursor position against the next one.
			r.log.Warn("dropping data block behind cursor",
				"segment", r.seg.name,
				"class", r.seg.class,
				"block", r.next,
				"offset", off,
				"pos", r.pos)
			r.next++
		}
	}
	// Filler after the last block.
	gap := r.seg.Length() - r.pos
	if gap > r.maxFill {
		return fmt.Errorf("segment %q: large hole of %#x bytes at end: %w",
			r.seg.name, gap, ErrGapTooLarge)
	}
	r.buf = make([]byte, gap)
	r.bufPos = 0
	return nil
}
