package omf

import (
	"bufio"
	"strconv"
)

const indentLevel = "  "

const hexDigits = "0123456789abcdef"

func writeInt0(w *bufio.Writer, v uint64, sz uint) {
	for i := uint(sz * 2); i > 0; i-- {
		w.WriteByte(hexDigits[(v>>((i-1)*4))&15])
	}
}

func writeInt(w *bufio.Writer, v uint64, sz uint) {
	w.WriteString("0x")
	writeInt0(w, v, sz)
}

type field struct {
	name string
	data interface{}
	hint string
}

// dumpFields writes one aligned name/value table. Value widths follow the
// encoded widths of the record fields, so a 2-byte length prints as 4 hex
// digits and a 4-byte one as 8.
func dumpFields(w *bufio.Writer, prefix string, fields []field) {
	if len(fields) == 0 {
		return
	}
	var (
		minName = int(^uint(0) >> 1)
		maxName int
	)
	for _, f := range fields {
		if len(f.name) > maxName {
			maxName = len(f.name)
		}
		if len(f.name) < minName {
			minName = len(f.name)
		}
	}
	spaces := make([]byte, maxName+2-minName)
	for i := range spaces {
		spaces[i] = ' '
	}
	for _, f := range fields {
		w.WriteString(prefix)
		w.WriteString(f.name)
		w.WriteByte(':')
		w.Write(spaces[:maxName+2-len(f.name)])
		switch v := f.data.(type) {
		case uint8:
			writeInt(w, uint64(v), 1)
		case uint16:
			writeInt(w, uint64(v), 2)
		case uint32:
			writeInt(w, uint64(v), 4)
		case Value2or4:
			writeInt(w, v.Value, uint(v.Width))
		case Index:
			writeInt(w, uint64(v.Value), uint(v.Width))
		default:
			panic("unknown field type for " + f.name)
		}
		if f.hint != "" {
			w.WriteString("  ")
			w.WriteString(f.hint)
		}
		w.WriteByte('\n')
	}
}

func use32Hint(use32 bool) string {
	if use32 {
		return "use32"
	}
	return "use16"
}

// DumpText writes the segment's raw record layout, in text format, to the
// writer. Field widths match the encoding, including the 1-or-2-byte index
// forms and the 2-or-4-byte length.
func (s *Segment) DumpText(w *bufio.Writer, prefix string) {
	fields := []field{
		{"Segment Attr", s.Attr.raw,
			"align=" + alignName(s.Attr.Alignment) +
				" combine=" + combineName(s.Attr.Combine) +
				" " + use32Hint(s.Attr.Use32)},
	}
	if s.Attr.HasExplicitFrame() {
		fields = append(fields,
			field{"Frame Number", s.frameNumber, ""},
			field{"Frame Offset", s.frameOffset, ""})
	}
	fields = append(fields,
		field{"Segment Length", s.length, ""},
		field{"Segment Name Index", s.nameIndex, nameHint(s.resolved, s.name)},
		field{"Class Name Index", s.classIndex, nameHint(s.resolved, s.class)},
		field{"Overlay Name Index", s.overlayIndex, nameHint(s.resolved, s.overlay)})
	dumpFields(w, prefix, fields)
}

func nameHint(resolved bool, name string) string {
	if !resolved {
		return ""
	}
	return strconv.Quote(name)
}

// DumpText writes the module name, the name table, and each segment record,
// in text format, to the writer.
func (f *File) DumpText(w *bufio.Writer, prefix string) {
	nprefix := prefix + indentLevel
	w.WriteString(prefix)
	w.WriteString("Module: ")
	w.WriteString(strconv.Quote(f.ModuleName))
	w.WriteByte('\n')
	if len(f.Names) != 0 {
		w.WriteString(prefix)
		w.WriteString("Names:\n")
		for i, name := range f.Names {
			w.WriteString(nprefix)
			w.WriteString(strconv.Itoa(i + 1))
			w.WriteString(": ")
			w.WriteString(strconv.Quote(name))
			w.WriteByte('\n')
		}
	}
	for i, seg := range f.Segments {
		w.WriteString(prefix)
		w.WriteString("Segment ")
		w.WriteString(strconv.Itoa(i + 1))
		w.WriteString(":\n")
		seg.DumpText(w, nprefix)
	}
}
