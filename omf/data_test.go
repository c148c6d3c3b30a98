package omf_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"moria.us/omfseg/omf"
)

// lidataModule builds a one-segment module whose only data record is an
// iterated-data record with the given payload, and parses it.
func lidataModule(declared uint16, typ byte, payload ...byte) (*omf.File, error) {
	var m []byte
	m = append(m, rec(omf.RecSEGDEF, 0x69, byte(declared), byte(declared>>8), 0, 0, 0)...)
	m = append(m, rec(typ, payload...)...)
	return omf.Parse(m)
}

func segmentImage(t *testing.T, f *omf.File) []byte {
	t.Helper()
	got, err := io.ReadAll(omf.NewImageReader(f.Segments[0], omf.DefaultMaxFill, discardLog()))
	if err != nil {
		t.Fatal("image:", err)
	}
	return got
}

func TestIteratedDataSimple(t *testing.T) {
	// Repeat 3 of the literal "AB".
	f, err := lidataModule(6, omf.RecLIDATA, 0x01, 0, 0, 3, 0, 0, 0, 2, 'A', 'B')
	if err != nil {
		t.Fatal("Parse:", err)
	}
	if got := segmentImage(t, f); string(got) != "ABABAB" {
		t.Errorf("image = %q, want ABABAB", got)
	}
	// Expansion is idempotent: a fresh reader sees the same bytes.
	if again := segmentImage(t, f); string(again) != "ABABAB" {
		t.Errorf("second expansion = %q, want ABABAB", again)
	}
}

func TestIteratedDataNested(t *testing.T) {
	// repeat 2 of (1 x "X", 2 x "Y") -> "XYYXYY".
	f, err := lidataModule(6, omf.RecLIDATA,
		0x01, 0x00, 0x00,
		2, 0, 2, 0, // outer: repeat 2, two nested blocks
		1, 0, 0, 0, 1, 'X',
		2, 0, 0, 0, 1, 'Y')
	if err != nil {
		t.Fatal("Parse:", err)
	}
	if got := segmentImage(t, f); string(got) != "XYYXYY" {
		t.Errorf("image = %q, want XYYXYY", got)
	}
}

func TestIteratedDataWideRepeat(t *testing.T) {
	// 32-bit record variant: 4-byte offset and repeat count.
	f, err := lidataModule(4, omf.RecLIDATA32,
		0x01, 0x00, 0x00, 0x00, 0x00,
		4, 0, 0, 0, 0, 0, 1, 'Z')
	if err != nil {
		t.Fatal("Parse:", err)
	}
	if got := segmentImage(t, f); string(got) != "ZZZZ" {
		t.Errorf("image = %q, want ZZZZ", got)
	}
}

func TestIteratedDataAllZeroes(t *testing.T) {
	// Repeat 8 of a single zero byte: pure zero fill.
	f, err := lidataModule(8, omf.RecLIDATA, 0x01, 0, 0, 8, 0, 0, 0, 1, 0)
	if err != nil {
		t.Fatal("Parse:", err)
	}
	if f.Segments[0].HasNonZeroData() {
		t.Error("zero fill reports non-zero content")
	}
	f, err = lidataModule(8, omf.RecLIDATA, 0x01, 0, 0, 8, 0, 0, 0, 1, 0xcc)
	if err != nil {
		t.Fatal("Parse:", err)
	}
	if !f.Segments[0].HasNonZeroData() {
		t.Error("non-zero content not detected")
	}
}

func TestIteratedDataExpansionLimit(t *testing.T) {
	payload := append([]byte{0x01, 0x00, 0x00, 0xff, 0xff, 0, 0, 255},
		bytes.Repeat([]byte{0xaa}, 255)...)
	_, err := lidataModule(8, omf.RecLIDATA, payload...)
	var pe *omf.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("oversized expansion = %v, want *ParseError", err)
	}
}

func TestIteratedDataExpansionOverflow(t *testing.T) {
	// Nested repeat counts 2^22 x 2^22 x 2^20 of one literal byte: the true
	// expansion is 2^64 bytes, which wraps a plain uint64 product to zero.
	// The size guard must still reject the record.
	_, err := lidataModule(8, omf.RecLIDATA32,
		0x01, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x40, 0x00, 1, 0, // outer: repeat 2^22, one nested block
		0x00, 0x00, 0x40, 0x00, 1, 0, // middle: repeat 2^22, one nested block
		0x00, 0x00, 0x10, 0x00, 0, 0, 1, 0xcc) // inner: repeat 2^20 of one byte
	var pe *omf.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("overflowing expansion = %v, want *ParseError", err)
	}
}

func TestIteratedDataTruncated(t *testing.T) {
	for _, payload := range [][]byte{
		{0x01},                                 // offset missing
		{0x01, 0x00, 0x00, 3},                  // repeat count cut short
		{0x01, 0x00, 0x00, 3, 0, 0},            // block count cut short
		{0x01, 0x00, 0x00, 3, 0, 0, 0, 4, 'A'}, // literal cut short
	} {
		if _, err := lidataModule(8, omf.RecLIDATA, payload...); !errors.Is(err, omf.ErrTruncated) {
			t.Errorf("Parse(% x) = %v, want ErrTruncated", payload, err)
		}
	}
}

func TestEnumeratedData(t *testing.T) {
	d := omf.NewEnumeratedData(4, []byte{0, 0, 1})
	if d.DataOffset() != 4 || d.Length() != 3 {
		t.Errorf("offset/length = %d/%d, want 4/3", d.DataOffset(), d.Length())
	}
	if d.AllZeroes() {
		t.Error("non-zero block reported all zeroes")
	}
	if !omf.NewEnumeratedData(0, []byte{0, 0}).AllZeroes() {
		t.Error("zero block not reported all zeroes")
	}
}
