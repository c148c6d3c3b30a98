package omf

import (
	"fmt"
	"sort"
	"strconv"
)

// A Perm is a set of permission flags inferred for a segment.
type Perm uint8

const (
	// PermR indicates a readable segment.
	PermR Perm = 0x1
	// PermW indicates a writable segment.
	PermW Perm = 0x2
	// PermX indicates an executable segment.
	PermX Perm = 0x4
	// PermCode indicates the segment holds code rather than data.
	PermCode Perm = 0x8
)

func (p Perm) String() string {
	b := []byte("---")
	if p&PermR != 0 {
		b[0] = 'r'
	}
	if p&PermW != 0 {
		b[1] = 'w'
	}
	if p&PermX != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Segment kinds accepted by NewSyntheticSegment.
const (
	// SyntheticCode builds a default text segment.
	SyntheticCode = 1
	// SyntheticData builds a default data segment.
	SyntheticData = 2
)

// A Segment is one segment-definition record: its decoded attributes,
// declared length, name-table indices, assigned address, and the ordered
// data blocks contributed by sibling records.
type Segment struct {
	Attr Attributes

	frameNumber  uint16   // only meaningful for absolute segments
	frameOffset  uint8    // only meaningful for absolute segments
	length       Value2or4
	nameIndex    Index
	classIndex   Index
	overlayIndex Index

	name     string // populated by ResolveNames or the synthetic constructor
	class    string
	overlay  string
	resolved bool

	addr    uint64
	hasAddr bool // distinguishes unset from a legitimate zero address

	perm Perm

	blocks []DataBlock
	sealed bool // attachment phase over, blocks sorted and frozen
}

// ParseSegment decodes a SEGDEF payload. big selects 4-byte length fields
// and, when the ignore-length attribute bit is set, the 4 GiB length
// sentinel instead of the 64 KiB one. Name indices are stored but not
// validated here; ResolveNames checks them against the name table.
func ParseSegment(r *Reader, big bool) (*Segment, error) {
	attr, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	s := &Segment{Attr: DecodeAttributes(attr)}
	if s.Attr.HasExplicitFrame() {
		if s.frameNumber, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		if s.frameOffset, err = r.ReadByte(); err != nil {
			return nil, err
		}
		// The load address is the plain sum, with no paragraph scaling.
		s.addr = uint64(s.frameNumber) + uint64(s.frameOffset)
		s.hasAddr = true
	}
	if s.length, err = r.ReadInt2Or4(big); err != nil {
		return nil, err
	}
	if s.nameIndex, err = r.ReadIndex(); err != nil {
		return nil, err
	}
	if s.classIndex, err = r.ReadIndex(); err != nil {
		return nil, err
	}
	if s.overlayIndex, err = r.ReadIndex(); err != nil {
		return nil, err
	}
	if s.Attr.IgnoreLength {
		// The length field is overridden with a fixed size, but keeps its
		// encoded width for layout display.
		if big {
			s.length = Value2or4{Width: s.length.Width, Value: 1 << 32}
		} else {
			s.length = Value2or4{Width: s.length.Width, Value: 1 << 16}
		}
	}
	return s, nil
}

// NewSyntheticSegment builds a default segment without parsing, in the shape
// some toolchains expect to be injected: dword-aligned, public, 32-bit, with
// a generated name and fixed class and permissions.
func NewSyntheticSegment(num int, kind int) *Segment {
	s := &Segment{
		Attr:   DecodeAttributes(0xa9),
		length: Value2or4{Width: 2},
	}
	s.nameIndex = Index{Width: 1}
	s.classIndex = Index{Width: 1}
	s.overlayIndex = Index{Width: 1}
	switch kind {
	case SyntheticCode:
		s.name = "EXTRATEXT_"
		s.class = "TEXT"
		s.perm = PermR | PermX | PermCode
	case SyntheticData:
		s.name = "EXTRADATA_"
		s.class = "DATA"
		s.perm = PermR | PermW
	default:
		s.name = "EXTRA_"
		s.class = "DATA"
		s.perm = PermR | PermW
	}
	s.name += strconv.Itoa(num)
	s.resolved = true
	return s
}

// Name returns the segment name. Empty until ResolveNames runs.
func (s *Segment) Name() string { return s.name }

// ClassName returns the class name. Empty until ResolveNames runs.
func (s *Segment) ClassName() string { return s.class }

// OverlayName returns the overlay name, or the empty string.
func (s *Segment) OverlayName() string { return s.overlay }

// Length returns the segment length in bytes.
func (s *Segment) Length() uint64 { return s.length.Value }

// Address returns the assigned load address, and whether one has been
// assigned. Absolute segments carry an address from parsing; the rest gain
// one during relocation.
func (s *Segment) Address() (uint64, bool) { return s.addr, s.hasAddr }

// Permissions returns the flags inferred from the class name.
func (s *Segment) Permissions() Perm { return s.perm }

// resolveIndex maps a 1-based name index to its string, with 0 meaning no
// name.
func resolveIndex(idx Index, names []string, what string) (string, error) {
	if idx.Value == 0 {
		return "", nil
	}
	if int(idx.Value) > len(names) {
		return "", &ParseError{Msg: fmt.Sprintf("%s name index %d out of bounds", what, idx.Value)}
	}
	return names[idx.Value-1], nil
}

// ResolveNames looks up the segment, class, and overlay names in the
// name-list table and infers permissions from the class. Only the exact
// spellings "CODE" and "code" select a code segment; other casings fall
// through to the data default.
func (s *Segment) ResolveNames(names []string) error {
	var err error
	if s.name, err = resolveIndex(s.nameIndex, names, "segment"); err != nil {
		return err
	}
	if s.class, err = resolveIndex(s.classIndex, names, "class"); err != nil {
		return err
	}
	if s.overlay, err = resolveIndex(s.overlayIndex, names, "overlay"); err != nil {
		return err
	}
	if s.class == "CODE" || s.class == "code" {
		s.perm = PermR | PermX | PermCode
	} else {
		s.perm = PermR | PermW
	}
	s.resolved = true
	return nil
}

// Relocate assigns the segment's load address, given the first address not
// claimed by a prior segment. A non-negative alignOverride supersedes the
// segment's own alignment code. Returns the first valid address for the
// next segment.
func (s *Segment) Relocate(firstValid uint64, alignOverride int) (uint64, error) {
	align := s.Attr.Alignment
	if alignOverride >= 0 {
		align = alignOverride
	}
	switch align {
	case AlignAbsolute:
		return 0, fmt.Errorf("segment %q: %w", s.name, ErrNotRelocatable)
	case AlignByte:
	case AlignWord:
		firstValid = (firstValid + 1) &^ 1
	case AlignParagraph:
		firstValid = (firstValid + 15) &^ 15
	case AlignPage:
		firstValid = (firstValid + 4095) &^ 4095
	case AlignDword:
		firstValid = (firstValid + 3) &^ 3
	default:
		return 0, fmt.Errorf("alignment code %d: %w", align, ErrBadAlignment)
	}
	s.addr = firstValid
	s.hasAddr = true
	return firstValid + s.length.Value, nil
}

// AddEnumerated attaches a raw data block.
func (s *Segment) AddEnumerated(d *EnumeratedData) error {
	return s.addBlock(d)
}

// AppendEnumerated attaches a raw data block that may extend the segment:
// some toolchains emit data past the declared length, and the length grows
// to cover it.
func (s *Segment) AppendEnumerated(d *EnumeratedData) error {
	if err := s.addBlock(d); err != nil {
		return err
	}
	if end := d.DataOffset() + d.Length(); end > s.length.Value {
		s.length = Value2or4{Width: s.length.Width, Value: end}
	}
	return nil
}

// AddIterated attaches a run-length data block.
func (s *Segment) AddIterated(d *IteratedData) error {
	return s.addBlock(d)
}

func (s *Segment) addBlock(d DataBlock) error {
	if s.sealed {
		return fmt.Errorf("segment %q: %w", s.name, ErrSealed)
	}
	s.blocks = append(s.blocks, d)
	return nil
}

// HasNonZeroData reports whether any attached block contains a non-zero
// byte. Callers use this to decide between explicit storage and pure
// zero-initialization.
func (s *Segment) HasNonZeroData() bool {
	for _, d := range s.blocks {
		if !d.AllZeroes() {
			return true
		}
	}
	return false
}

// Seal ends the attachment phase: the block list is sorted ascending by
// offset (stable, so equal offsets keep record order) and frozen. Sealing
// twice is harmless.
func (s *Segment) Seal() {
	sort.SliceStable(s.blocks, func(i, j int) bool {
		return s.blocks[i].DataOffset() < s.blocks[j].DataOffset()
	})
	s.sealed = true
}
