package omf

// Alignment codes from the A field of the SEGDEF attribute byte. Codes 6 and
// 7 have no defined boundary; decoding accepts them, relocation rejects
// them.
const (
	AlignAbsolute  = 0 // not relocatable, explicit frame:offset follows
	AlignByte      = 1
	AlignWord      = 2 // 2-byte boundary
	AlignParagraph = 3 // 16-byte boundary
	AlignPage      = 4 // 4096-byte boundary
	AlignDword     = 5 // 4-byte boundary
)

// Attributes is the decoded SEGDEF attribute byte.
type Attributes struct {
	Alignment    int  // 3-bit alignment code
	Combine      int  // 3-bit combine code, surfaced but not interpreted
	Use32        bool // 32-bit segment when set, 16-bit otherwise
	IgnoreLength bool // declared length field is overridden by a fixed size
	raw          byte
}

// DecodeAttributes splits the attribute byte into its fields. Any 3-bit
// alignment value is accepted here; validity is enforced when relocation is
// attempted.
func DecodeAttributes(b byte) Attributes {
	return Attributes{
		Alignment:    int(b>>5) & 7,
		Combine:      int(b>>2) & 7,
		IgnoreLength: b>>1&1 != 0,
		Use32:        b&1 != 0,
		raw:          b,
	}
}

// HasExplicitFrame reports whether an explicit frame number and offset
// follow the attribute byte. True exactly for absolute segments, and it
// changes how many bytes the rest of the header parse consumes.
func (a Attributes) HasExplicitFrame() bool {
	return a.Alignment == AlignAbsolute
}

func alignName(code int) string {
	switch code {
	case AlignAbsolute:
		return "absolute"
	case AlignByte:
		return "byte"
	case AlignWord:
		return "word"
	case AlignParagraph:
		return "paragraph"
	case AlignPage:
		return "page"
	case AlignDword:
		return "dword"
	default:
		return "unknown"
	}
}

func combineName(code int) string {
	switch code {
	case 0:
		return "private"
	case 2, 4, 7:
		return "public"
	case 5:
		return "stack"
	case 6:
		return "common"
	default:
		return "unknown"
	}
}
