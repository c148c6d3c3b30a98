package omf

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// A File is one parsed object module: its name table, in file order, and
// its segments with data blocks attached and names resolved.
type File struct {
	ModuleName string     // from the THEADR record, if present
	Names      []string   // name-list table, referenced 1-based
	Segments   []*Segment // in file order

	mapped mmap.MMap
	fp     *os.File
}

// Open memory-maps the named file and parses it.
func Open(name string) (*File, error) {
	fp, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(fp, mmap.RDONLY, 0)
	if err != nil {
		fp.Close()
		return nil, err
	}
	f, err := Parse(m)
	if err != nil {
		m.Unmap()
		fp.Close()
		return nil, err
	}
	f.mapped = m
	f.fp = fp
	return f, nil
}

// Close releases the mapping backing the file's data blocks. Image readers
// over the file's segments must not be used afterwards.
func (f *File) Close() error {
	if f.mapped != nil {
		if err := f.mapped.Unmap(); err != nil {
			f.fp.Close()
			return err
		}
		f.mapped = nil
	}
	if f.fp != nil {
		err := f.fp.Close()
		f.fp = nil
		return err
	}
	return nil
}

// Parse decodes an object module image. Data blocks alias the image, which
// must stay valid for the life of the returned File. Record types outside
// the segment family are skipped by length; checksums are not validated.
func Parse(data []byte) (*File, error) {
	f := &File{}
	r := NewReader(data)
loop:
	for r.Len() > 0 {
		rec, err := ReadRecord(r)
		if err != nil {
			return nil, err
		}
		switch rec.Type {
		case RecTHEADR:
			if f.ModuleName, err = rec.Reader().ReadString(); err != nil {
				return nil, recErr(rec, err)
			}
		case RecLNAMES:
			rr := rec.Reader()
			for rr.Len() > 0 {
				name, err := rr.ReadString()
				if err != nil {
					return nil, recErr(rec, err)
				}
				f.Names = append(f.Names, name)
			}
		case RecSEGDEF, RecSEGDEF32:
			seg, err := ParseSegment(rec.Reader(), rec.Big())
			if err != nil {
				return nil, recErr(rec, err)
			}
			f.Segments = append(f.Segments, seg)
		case RecLEDATA, RecLEDATA32:
			idx, d, err := parseEnumeratedData(rec.Reader(), rec.Big())
			if err != nil {
				return nil, recErr(rec, err)
			}
			seg, err := f.segment(rec, idx)
			if err != nil {
				return nil, err
			}
			// Appendable on purpose: some toolchains emit enumerated data
			// past the declared segment length.
			if err := seg.AppendEnumerated(d); err != nil {
				return nil, recErr(rec, err)
			}
		case RecLIDATA, RecLIDATA32:
			idx, d, err := parseIteratedData(rec.Reader(), rec.Big())
			if err != nil {
				return nil, recErr(rec, err)
			}
			seg, err := f.segment(rec, idx)
			if err != nil {
				return nil, err
			}
			if err := seg.AddIterated(d); err != nil {
				return nil, recErr(rec, err)
			}
		case RecMODEND, RecMODEND32:
			break loop
		}
	}
	for _, seg := range f.Segments {
		if err := seg.ResolveNames(f.Names); err != nil {
			return nil, err
		}
		seg.Seal()
	}
	return f, nil
}

// segment maps a 1-based segment index from a data record to the segment it
// names.
func (f *File) segment(rec *Record, idx int) (*Segment, error) {
	if idx < 1 || idx > len(f.Segments) {
		return nil, &ParseError{
			Offset: rec.Offset,
			Msg:    fmt.Sprintf("%s segment index %d out of bounds", RecordName(rec.Type), idx),
		}
	}
	return f.Segments[idx-1], nil
}

// RelocateAll assigns load addresses to every relocatable segment in file
// order, starting at base. Absolute segments keep the address fixed at
// parse time and do not advance the cursor. Returns the first address past
// the last placed segment.
func (f *File) RelocateAll(base uint64, alignOverride int) (uint64, error) {
	var err error
	for _, seg := range f.Segments {
		if seg.Attr.Alignment == AlignAbsolute {
			continue
		}
		if base, err = seg.Relocate(base, alignOverride); err != nil {
			return base, err
		}
	}
	return base, nil
}

func recErr(rec *Record, err error) error {
	if pe, ok := err.(*ParseError); ok {
		// Rebase the payload-relative offset onto the file.
		return &ParseError{
			Offset: rec.Offset + 3 + pe.Offset,
			Msg:    RecordName(rec.Type) + ": " + pe.Msg,
			Err:    pe.Err,
		}
	}
	return fmt.Errorf("%s at offset %#x: %w", RecordName(rec.Type), rec.Offset, err)
}
