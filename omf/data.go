package omf

import (
	"math"
	"math/bits"
)

// maxIteratedExpand bounds the expanded size of a single iterated data
// block, so corrupt repeat counts cannot demand gigabytes.
const maxIteratedExpand = 0x100000

// satMul and satAdd saturate instead of wrapping, so nested repeat counts
// whose product overflows uint64 still exceed maxIteratedExpand.
func satMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

func satAdd(a, b uint64) uint64 {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return s
}

// A DataBlock is a contiguous span of bytes contributed to a segment at a
// declared offset. The image reader consumes blocks only through this
// capability; the two concrete kinds are EnumeratedData and IteratedData.
type DataBlock interface {
	// DataOffset is the block's offset within its segment.
	DataOffset() uint64
	// Length is the number of bytes the block produces.
	Length() uint64
	// Bytes materializes the block's content. Each call is idempotent.
	Bytes() ([]byte, error)
	// AllZeroes reports whether the materialized content contains no
	// non-zero byte.
	AllZeroes() bool
}

// EnumeratedData is a raw data block: the bytes appear literally in the
// record.
type EnumeratedData struct {
	offset uint64
	data   []byte
}

// NewEnumeratedData returns a raw data block at the given segment offset.
func NewEnumeratedData(offset uint64, data []byte) *EnumeratedData {
	return &EnumeratedData{offset: offset, data: data}
}

func (d *EnumeratedData) DataOffset() uint64 { return d.offset }

func (d *EnumeratedData) Length() uint64 { return uint64(len(d.data)) }

func (d *EnumeratedData) Bytes() ([]byte, error) { return d.data, nil }

func (d *EnumeratedData) AllZeroes() bool {
	for _, b := range d.data {
		if b != 0 {
			return false
		}
	}
	return true
}

// parseEnumeratedData decodes an LEDATA payload: segment index, data offset,
// then literal content running to the end of the record.
func parseEnumeratedData(r *Reader, big bool) (segIndex int, d *EnumeratedData, err error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return 0, nil, err
	}
	off, err := r.ReadInt2Or4(big)
	if err != nil {
		return 0, nil, err
	}
	data, err := r.ReadBytes(r.Len())
	if err != nil {
		return 0, nil, err
	}
	return int(idx.Value), NewEnumeratedData(off.Value, data), nil
}

// IteratedData is a run-length data block: a tree of repeat blocks whose
// expansion is deferred until the content is first needed.
type IteratedData struct {
	offset uint64
	length uint64 // expanded length
	blocks []repeatBlock
}

// A repeatBlock repeats its body repeat times. The body is either literal
// data or a list of nested blocks, never both.
type repeatBlock struct {
	repeat uint64
	nested []repeatBlock
	data   []byte
}

func (b *repeatBlock) length() uint64 {
	var n uint64
	if len(b.nested) == 0 {
		n = uint64(len(b.data))
	} else {
		for i := range b.nested {
			n = satAdd(n, b.nested[i].length())
		}
	}
	return satMul(n, b.repeat)
}

func (b *repeatBlock) fill(buf []byte) []byte {
	for i := uint64(0); i < b.repeat; i++ {
		if len(b.nested) == 0 {
			buf = append(buf, b.data...)
		} else {
			for j := range b.nested {
				buf = b.nested[j].fill(buf)
			}
		}
	}
	return buf
}

func (b *repeatBlock) allZeroes() bool {
	for _, c := range b.data {
		if c != 0 {
			return false
		}
	}
	for i := range b.nested {
		if !b.nested[i].allZeroes() {
			return false
		}
	}
	return true
}

func (d *IteratedData) DataOffset() uint64 { return d.offset }

func (d *IteratedData) Length() uint64 { return d.length }

// Bytes expands the repeat blocks into a fresh buffer.
func (d *IteratedData) Bytes() ([]byte, error) {
	buf := make([]byte, 0, d.length)
	for i := range d.blocks {
		buf = d.blocks[i].fill(buf)
	}
	return buf, nil
}

func (d *IteratedData) AllZeroes() bool {
	for i := range d.blocks {
		if !d.blocks[i].allZeroes() {
			return false
		}
	}
	return true
}

// parseIteratedData decodes an LIDATA payload: segment index, data offset,
// then repeat blocks running to the end of the record.
func parseIteratedData(r *Reader, big bool) (segIndex int, d *IteratedData, err error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return 0, nil, err
	}
	off, err := r.ReadInt2Or4(big)
	if err != nil {
		return 0, nil, err
	}
	d = &IteratedData{offset: off.Value}
	for r.Len() > 0 {
		blk, err := parseRepeatBlock(r, big)
		if err != nil {
			return 0, nil, err
		}
		d.blocks = append(d.blocks, blk)
		d.length = satAdd(d.length, blk.length())
		if d.length > maxIteratedExpand {
			return 0, nil, &ParseError{Offset: r.Pos(), Msg: "iterated data expansion too large"}
		}
	}
	return int(idx.Value), d, nil
}

func parseRepeatBlock(r *Reader, big bool) (repeatBlock, error) {
	repeat, err := r.ReadInt2Or4(big)
	if err != nil {
		return repeatBlock{}, err
	}
	count, err := r.ReadUint16()
	if err != nil {
		return repeatBlock{}, err
	}
	blk := repeatBlock{repeat: repeat.Value}
	if count == 0 {
		n, err := r.ReadByte()
		if err != nil {
			return repeatBlock{}, err
		}
		blk.data, err = r.ReadBytes(int(n))
		if err != nil {
			return repeatBlock{}, err
		}
		return blk, nil
	}
	for i := 0; i < int(count); i++ {
		nested, err := parseRepeatBlock(r, big)
		if err != nil {
			return repeatBlock{}, err
		}
		blk.nested = append(blk.nested, nested)
	}
	return blk, nil
}
