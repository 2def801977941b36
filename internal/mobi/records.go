package mobi

import "encoding/binary"

// FDSTRecord is the KF8 flow descriptor table. Each entry holds the start
// and end text offsets of one flow.
type FDSTRecord struct {
	Entries [][2]uint32
}

// NewFDSTSingleFlow describes a book whose whole text is one flow.
func NewFDSTSingleFlow(textLength uint32) *FDSTRecord {
	return &FDSTRecord{Entries: [][2]uint32{{0, textLength}}}
}

// Bytes serializes "FDST", the entry count, the table offset (12) and the entries.
func (f *FDSTRecord) Bytes() []byte {
	b := make([]byte, 0, 12+len(f.Entries)*8)
	b = append(b, "FDST"...)
	b = binary.BigEndian.AppendUint32(b, uint32(len(f.Entries)))
	b = binary.BigEndian.AppendUint32(b, 12)
	for _, e := range f.Entries {
		b = binary.BigEndian.AppendUint32(b, e[0])
		b = binary.BigEndian.AppendUint32(b, e[1])
	}
	return b
}

// FlowCount returns the number of flows.
func (f *FDSTRecord) FlowCount() uint32 {
	return uint32(len(f.Entries))
}

// FLISRecord returns the fixed 36-byte FLIS record.
func FLISRecord() []byte {
	b := []byte("FLIS")
	b = binary.BigEndian.AppendUint32(b, 8)
	b = binary.BigEndian.AppendUint16(b, 0x41)
	b = binary.BigEndian.AppendUint16(b, 0)
	b = binary.BigEndian.AppendUint32(b, 0)
	b = binary.BigEndian.AppendUint32(b, noIndex)
	b = binary.BigEndian.AppendUint16(b, 1)
	b = binary.BigEndian.AppendUint16(b, 3)
	b = binary.BigEndian.AppendUint32(b, 3)
	b = binary.BigEndian.AppendUint32(b, 1)
	return binary.BigEndian.AppendUint32(b, noIndex)
}

// FCISRecord returns the 44-byte FCIS record carrying the text length at offset 20.
func FCISRecord(textLength uint32) []byte {
	b := []byte("FCIS")
	for _, v := range []uint32{0x14, 0x10, 1, 0, textLength, 0, 0x20, 8} {
		b = binary.BigEndian.AppendUint32(b, v)
	}
	b = binary.BigEndian.AppendUint16(b, 1)
	b = binary.BigEndian.AppendUint16(b, 1)
	return binary.BigEndian.AppendUint32(b, 0)
}

// EOFRecord returns the end-of-file marker record.
func EOFRecord() []byte {
	return []byte{0xE9, 0x8E, 0x0D, 0x0A}
}
