package mobi

// RecordSize is the uncompressed size of a full text record.
const RecordSize = int(MaxRecordSize)

// SplitTextRecords cuts text into RecordSize chunks and compresses each.
// A nil compressor stores the chunks verbatim.
func SplitTextRecords(text []byte, c Compressor) [][]byte {
	if c == nil {
		c = NoCompression{}
	}
	records := make([][]byte, 0, TextRecordCount(text))
	for off := 0; off < len(text); off += RecordSize {
		records = append(records, c.Compress(text[off:min(off+RecordSize, len(text))]))
	}
	return records
}

// TextRecordCount returns the number of records needed for text.
func TextRecordCount(text []byte) int {
	return (len(text) + RecordSize - 1) / RecordSize
}

// trailingEntriesSize returns the number of bytes of trailing entries at the
// end of a text record, as declared by the extra record data flags.
// Bit 0 marks multibyte overlap bytes; each higher bit marks an entry whose
// size is a backward-encoded variable-width integer.
func trailingEntriesSize(rec []byte, flags uint16) int {
	size := len(rec)
	n := 0
	for f := flags >> 1; f != 0; f >>= 1 {
		if f&1 != 0 {
			n += backwardVarint(rec[:max(size-n, 0)])
		}
	}
	if flags&1 != 0 && size-n > 0 {
		n += int(rec[size-n-1]&0x3) + 1
	}
	return min(n, size)
}

// backwardVarint decodes the size value stored at the end of b.
func backwardVarint(b []byte) int {
	v, shift := 0, 0
	for i := len(b) - 1; i >= 0; i-- {
		c := b[i]
		v |= int(c&0x7F) << shift
		shift += 7
		if c&0x80 != 0 || shift >= 28 {
			break
		}
	}
	return v
}
