// Package omf decodes segment-definition records of the relocatable object
// module format and reconstructs the byte image each segment contributes to
// a linked program.
package omf

import "encoding/binary"

// Record types understood by the parse loop. Odd types are the 32-bit
// variants of the preceding even type and use 4-byte length fields.
const (
	RecTHEADR   = 0x80
	RecCOMENT   = 0x88
	RecMODEND   = 0x8a
	RecMODEND32 = 0x8b
	RecEXTDEF   = 0x8c
	RecPUBDEF   = 0x90
	RecPUBDEF32 = 0x91
	RecLNAMES   = 0x96
	RecSEGDEF   = 0x98
	RecSEGDEF32 = 0x99
	RecGRPDEF   = 0x9a
	RecFIXUPP   = 0x9c
	RecFIXUPP32 = 0x9d
	RecLEDATA   = 0xa0
	RecLEDATA32 = 0xa1
	RecLIDATA   = 0xa2
	RecLIDATA32 = 0xa3
)

var recordNames = map[byte]string{
	RecTHEADR:   "THEADR",
	RecCOMENT:   "COMENT",
	RecMODEND:   "MODEND",
	RecMODEND32: "MODEND32",
	RecEXTDEF:   "EXTDEF",
	RecPUBDEF:   "PUBDEF",
	RecPUBDEF32: "PUBDEF32",
	RecLNAMES:   "LNAMES",
	RecSEGDEF:   "SEGDEF",
	RecSEGDEF32: "SEGDEF32",
	RecGRPDEF:   "GRPDEF",
	RecFIXUPP:   "FIXUPP",
	RecFIXUPP32: "FIXUPP32",
	RecLEDATA:   "LEDATA",
	RecLEDATA32: "LEDATA32",
	RecLIDATA:   "LIDATA",
	RecLIDATA32: "LIDATA32",
}

// RecordName returns the mnemonic for a record type, or a hex rendering for
// types the parse loop does not understand.
func RecordName(typ byte) string {
	if name, ok := recordNames[typ]; ok {
		return name
	}
	return "REC" + hexByte(typ)
}

func hexByte(b byte) string {
	return string([]byte{hexDigits[b>>4], hexDigits[b&15]})
}

// An Index is a compact 1-or-2-byte index as stored in a record. It
// remembers its encoded width so the raw layout can be reproduced.
type Index struct {
	Width uint8 // encoded size in bytes, 1 or 2
	Value uint16
}

// A Value2or4 is an integer stored with either a 2- or 4-byte encoding,
// selected by the enclosing record's width flag. The encoded width is kept
// alongside the value because downstream layout tooling must reproduce it
// even after the value is overridden.
type Value2or4 struct {
	Width uint8 // encoded size in bytes, 2 or 4
	Value uint64
}

// A Reader is a positioned little-endian reader over a record payload or a
// whole file image. All read failures are ParseErrors wrapping ErrTruncated.
type Reader struct {
	data []byte
	pos  int
}

// NewReader returns a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Pos returns the current byte offset.
func (r *Reader) Pos() int64 { return int64(r.pos) }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.data) - r.pos }

func (r *Reader) underrun(what string) error {
	return &ParseError{Offset: int64(r.pos), Msg: what, Err: ErrTruncated}
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.Len() < 1 {
		return 0, r.underrun("byte")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadUint16 reads a little-endian 16-bit value.
func (r *Reader) ReadUint16() (uint16, error) {
	if r.Len() < 2 {
		return 0, r.underrun("uint16")
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadUint32 reads a little-endian 32-bit value.
func (r *Reader) ReadUint32() (uint32, error) {
	if r.Len() < 4 {
		return 0, r.underrun("uint32")
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadBytes reads the next n bytes. The returned slice aliases the reader's
// backing array and must not be modified.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, r.underrun("byte run")
	}
	b := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadIndex reads a compact index: one byte if below 0x80, otherwise the low
// 7 bits become the high byte of a 2-byte value.
func (r *Reader) ReadIndex() (Index, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return Index{}, err
	}
	if b0&0x80 == 0 {
		return Index{Width: 1, Value: uint16(b0)}, nil
	}
	b1, err := r.ReadByte()
	if err != nil {
		return Index{}, err
	}
	return Index{Width: 2, Value: uint16(b0&0x7f)<<8 | uint16(b1)}, nil
}

// ReadInt2Or4 reads a 16-bit value, or a 32-bit value if big is set.
func (r *Reader) ReadInt2Or4(big bool) (Value2or4, error) {
	if big {
		v, err := r.ReadUint32()
		if err != nil {
			return Value2or4{}, err
		}
		return Value2or4{Width: 4, Value: uint64(v)}, nil
	}
	v, err := r.ReadUint16()
	if err != nil {
		return Value2or4{}, err
	}
	return Value2or4{Width: 2, Value: uint64(v)}, nil
}

// ReadString reads a length-prefixed string as stored in THEADR and LNAMES
// records.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// A Record is one framed record: a type byte, a 16-bit payload length, the
// payload, and a trailing additive checksum byte. Data excludes the
// checksum, which is carried but not validated.
type Record struct {
	Type     byte
	Offset   int64 // file offset of the type byte
	Data     []byte
	Checksum byte
}

// Big reports whether the record uses 4-byte length fields (odd type).
func (rec *Record) Big() bool { return rec.Type&1 != 0 }

// Reader returns a Reader over the record payload.
func (rec *Record) Reader() *Reader { return NewReader(rec.Data) }

// ReadRecord reads the next framed record from r.
func ReadRecord(r *Reader) (*Record, error) {
	off := r.Pos()
	typ, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	length, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, &ParseError{Offset: off, Msg: "record with zero length"}
	}
	body, err := r.ReadBytes(int(length))
	if err != nil {
		return nil, &ParseError{Offset: off, Msg: "record body", Err: ErrTruncated}
	}
	return &Record{
		Type:     typ,
		Offset:   off,
		Data:     body[:length-1],
		Checksum: body[length-1],
	}, nil
}
