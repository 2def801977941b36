package mobi

import "github.com/yuanying/ebookkit/internal/ebook"

// Compressor encodes one text record.
type Compressor interface {
	Compress(data []byte) []byte
	Type() uint16
}

// NoCompression stores records verbatim (type 1).
type NoCompression struct{}

func (NoCompression) Compress(data []byte) []byte {
	return append([]byte(nil), data...)
}

func (NoCompression) Type() uint16 { return CompressionNone }

// PalmDocCompressor is the LZ77 variant used by PalmDOC (type 2).
type PalmDocCompressor struct{}

func (PalmDocCompressor) Type() uint16 { return CompressionPalmDoc }

// Compress encodes data as literals, space+char pairs, back references of
// 3-10 bytes within 2047 bytes, and escaped runs of high bytes.
func (PalmDocCompressor) Compress(data []byte) []byte {
	out := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		if n, dist := findMatch(data, i); n >= 3 {
			out = append(out, byte(0x80|(dist>>5)), byte((dist&0x1F)<<3|(n-3)))
			i += n
			continue
		}

		if spaceChar(data, i) {
			out = append(out, data[i+1]^0x80)
			i += 2
			continue
		}

		if b := data[i]; b == 0x00 || (b >= 0x09 && b <= 0x7F) {
			out = append(out, b)
			i++
			continue
		}

		// run of up to 8 bytes that need escaping
		start := i
		for i < len(data) && i-start < 8 {
			b := data[i]
			if b == 0x00 || (b >= 0x09 && b <= 0x7F) || spaceChar(data, i) {
				break
			}
			if n, _ := findMatch(data, i); n >= 3 {
				break
			}
			i++
		}
		out = append(out, byte(i-start))
		out = append(out, data[start:i]...)
	}
	return out
}

func spaceChar(data []byte, i int) bool {
	return data[i] == 0x20 && i+1 < len(data) && data[i+1] >= 0x40 && data[i+1] <= 0x7F
}

// findMatch returns the longest earlier match at pos as (length, distance),
// or (0, 0) when none of at least three bytes exists.
func findMatch(data []byte, pos int) (int, int) {
	if pos+3 > len(data) {
		return 0, 0
	}
	maxDist := min(2047, pos)
	maxLen := min(10, len(data)-pos)

	bestLen, bestDist := 0, 0
	for dist := 1; dist <= maxDist; dist++ {
		start := pos - dist
		n := 0
		for n < maxLen && data[start+n] == data[pos+n] {
			n++
		}
		if n >= 3 && n > bestLen {
			bestLen, bestDist = n, dist
			if n == maxLen {
				break
			}
		}
	}
	return bestLen, bestDist
}

// PalmDocDecompress decodes a PalmDoc-compressed record.
func PalmDocDecompress(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data)*2)
	for i := 0; i < len(data); {
		b := data[i]
		i++
		switch {
		case b == 0x00 || (b >= 0x09 && b <= 0x7F):
			out = append(out, b)

		case b <= 0x08:
			n := int(b)
			if i+n > len(data) {
				return nil, ebook.Errorf(ebook.KindParse, "PalmDoc literal run overflows at offset %d", i-1)
			}
			out = append(out, data[i:i+n]...)
			i += n

		case b <= 0xBF:
			if i >= len(data) {
				return nil, ebook.Errorf(ebook.KindParse, "PalmDoc back reference truncated at offset %d", i-1)
			}
			low := data[i]
			i++
			dist := int(b&0x3F)<<5 | int(low>>3)
			n := int(low&0x07) + 3
			if dist == 0 || dist > len(out) {
				return nil, ebook.Errorf(ebook.KindParse, "PalmDoc back reference distance %d out of range", dist)
			}
			start := len(out) - dist
			for j := range n {
				out = append(out, out[start+j])
			}

		default:
			out = append(out, ' ', b^0x80)
		}
	}
	return out, nil
}

// decompressor returns the decoder for a PalmDOC compression type.
func decompressor(compression uint16) (func([]byte) ([]byte, error), error) {
	switch compression {
	case CompressionNone:
		return func(b []byte) ([]byte, error) { return b, nil }, nil
	case CompressionPalmDoc:
		return PalmDocDecompress, nil
	case CompressionHuffCDIC:
		return nil, ebook.Errorf(ebook.KindNotSupported, "HUFF/CDIC compressed text")
	default:
		return nil, ebook.Errorf(ebook.KindInvalidStructure, "unknown compression type %d", compression)
	}
}
