package mobi

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/yuanying/ebookkit/internal/ebook"
)

// languageCodeMap maps BCP 47 language tags to Windows locale ids.
var languageCodeMap = map[string]uint32{
	"en": 0x0409,
	"ja": 0x0411,
	"de": 0x0407,
	"fr": 0x040C,
	"es": 0x040A,
	"it": 0x0410,
	"pt": 0x0416,
	"zh": 0x0804,
	"ko": 0x0412,
	"nl": 0x0413,
	"ru": 0x0419,
}

const (
	defaultLanguageCode = 0x0409

	CompressionNone     uint16 = 1
	CompressionPalmDoc  uint16 = 2
	CompressionHuffCDIC uint16 = 17480

	// MaxRecordSize is the uncompressed size of one text record.
	MaxRecordSize uint16 = 4096

	PalmDOCHeaderSize = 16

	// MOBIHeaderSize is the KF8 MOBI header length, counted from "MOBI".
	MOBIHeaderSize = 248

	EncodingUTF8   uint32 = 65001
	EncodingCP1252 uint32 = 1252

	MOBITypeKF8    uint32 = 248
	FileVersionKF8 uint32 = 8

	// EXTHFlagPresent is set in the EXTH flags when an EXTH block follows.
	EXTHFlagPresent uint32 = 0x40

	noIndex uint32 = 0xFFFFFFFF
)

// Record 0 field offsets, counted from the start of the record.
const (
	offCompression     = 0
	offTextLength      = 4
	offTextRecordCount = 8
	offRecordSize      = 10
	offEncryption      = 12
	offIdentifier      = 16
	offHeaderLength    = 20
	offMOBIType        = 24
	offEncoding        = 28
	offUniqueID        = 32
	offFileVersion     = 36
	offFirstNonBook    = 80
	offFullNameOffset  = 84
	offFullNameLength  = 88
	offLocale          = 92
	offMinVersion      = 104
	offFirstImage      = 108
	offEXTHFlags       = 128
	offDRMOffset       = 168
	offFDSTIndex       = 192
	offFDSTCount       = 196
	offFCIS            = 200
	offFLIS            = 208
	offExtraFlags      = 240
	offNCXIndex        = 244
)

// LanguageCode converts a language tag to a locale id, defaulting to en-US.
func LanguageCode(lang string) uint32 {
	if code, ok := languageCodeMap[lang]; ok {
		return code
	}
	return defaultLanguageCode
}

// LanguageTag converts a locale id back to a language tag by its primary
// language byte. Unknown ids yield "".
func LanguageTag(code uint32) string {
	for tag, c := range languageCodeMap {
		if c&0xFF == code&0xFF {
			return tag
		}
	}
	return ""
}

// MOBIHeaderConfig holds the values written into Record 0.
type MOBIHeaderConfig struct {
	Compression          uint16
	TextLength           uint32
	TextRecordCount      uint16
	Language             string
	UniqueID             *uint32 // random when nil
	FirstImageIndex      uint32
	FirstNonBookIndex    uint32
	FCISRecordNumber     uint32
	FLISRecordNumber     uint32
	ExtraRecordDataFlags uint32
	FDSTIndex            uint32
	FDSTFlowCount        uint32
}

// MOBIHeader is the resolved state of Record 0.
type MOBIHeader struct {
	MOBIHeaderConfig
	LanguageCode uint32
	UniqueID     uint32
}

// NewMOBIHeader resolves cfg, generating a unique id when none is given.
func NewMOBIHeader(cfg MOBIHeaderConfig) (*MOBIHeader, error) {
	h := &MOBIHeader{MOBIHeaderConfig: cfg, LanguageCode: LanguageCode(cfg.Language)}
	if cfg.UniqueID != nil {
		h.UniqueID = *cfg.UniqueID
		return h, nil
	}
	uid, err := generateUniqueID()
	if err != nil {
		return nil, err
	}
	h.UniqueID = uid
	return h, nil
}

// PalmDOCHeaderBytes serializes the 16-byte PalmDOC header.
func (h *MOBIHeader) PalmDOCHeaderBytes() []byte {
	b := make([]byte, PalmDOCHeaderSize)
	binary.BigEndian.PutUint16(b[offCompression:], h.Compression)
	binary.BigEndian.PutUint32(b[offTextLength:], h.TextLength)
	binary.BigEndian.PutUint16(b[offTextRecordCount:], h.TextRecordCount)
	binary.BigEndian.PutUint16(b[offRecordSize:], MaxRecordSize)
	return b
}

// Record0Bytes assembles Record 0: PalmDOC header, MOBI header, EXTH and
// the full title, padded to a four-byte boundary.
func (h *MOBIHeader) Record0Bytes(exth []byte, title string) []byte {
	headerEnd := PalmDOCHeaderSize + MOBIHeaderSize
	nameOffset := headerEnd + len(exth)
	size := nameOffset + len(title)
	size += 4 - size%4 // always leaves a NUL after the name

	b := make([]byte, size)
	copy(b, h.PalmDOCHeaderBytes())

	put := func(off int, v uint32) { binary.BigEndian.PutUint32(b[off:], v) }
	copy(b[offIdentifier:], "MOBI")
	put(offHeaderLength, MOBIHeaderSize)
	put(offMOBIType, MOBITypeKF8)
	put(offEncoding, EncodingUTF8)
	put(offUniqueID, h.UniqueID)
	put(offFileVersion, FileVersionKF8)
	for off := 40; off < offFirstNonBook; off += 4 {
		put(off, noIndex)
	}
	put(offFirstNonBook, h.FirstNonBookIndex)
	put(offFullNameOffset, uint32(nameOffset))
	put(offFullNameLength, uint32(len(title)))
	put(offLocale, h.LanguageCode)
	put(offMinVersion, FileVersionKF8)
	put(offFirstImage, h.FirstImageIndex)
	if len(exth) > 0 {
		put(offEXTHFlags, EXTHFlagPresent|0x10)
	}
	put(164, noIndex)
	put(offDRMOffset, noIndex)
	put(offFDSTIndex, h.FDSTIndex)
	put(offFDSTCount, h.FDSTFlowCount)
	put(offFCIS, h.FCISRecordNumber)
	put(offFCIS+4, 1)
	put(offFLIS, h.FLISRecordNumber)
	put(offFLIS+4, 1)
	put(224, noIndex)
	put(232, noIndex)
	put(236, noIndex)
	put(offExtraFlags, h.ExtraRecordDataFlags)
	put(offNCXIndex, noIndex)

	copy(b[headerEnd:], exth)
	copy(b[nameOffset:], title)
	return b
}

func generateUniqueID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, ebook.Wrap(ebook.KindIO, err, "generate unique id")
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// Record0 is the decoded content of Record 0.
type Record0 struct {
	Compression     uint16
	TextLength      uint32
	TextRecordCount uint16
	Encryption      uint16

	HasMOBI         bool
	HeaderLength    uint32
	MOBIType        uint32
	Encoding        uint32
	FileVersion     uint32
	Title           string
	LanguageCode    uint32
	FirstImageIndex uint32
	ExtraFlags      uint16
	EXTH            []EXTHRecord
}

// ParseRecord0 decodes the PalmDOC and MOBI headers with bounds checks.
func ParseRecord0(rec []byte) (*Record0, error) {
	if len(rec) < PalmDOCHeaderSize {
		return nil, ebook.Errorf(ebook.KindInvalidStructure, "record 0 too small: %d bytes", len(rec))
	}
	r := &Record0{
		Compression:     binary.BigEndian.Uint16(rec[offCompression:]),
		TextLength:      binary.BigEndian.Uint32(rec[offTextLength:]),
		TextRecordCount: binary.BigEndian.Uint16(rec[offTextRecordCount:]),
		Encryption:      binary.BigEndian.Uint16(rec[offEncryption:]),
		Encoding:        EncodingCP1252,
		FirstImageIndex: noIndex,
	}
	if len(rec) < offHeaderLength+4 || string(rec[offIdentifier:offIdentifier+4]) != "MOBI" {
		return r, nil
	}

	r.HasMOBI = true
	r.HeaderLength = binary.BigEndian.Uint32(rec[offHeaderLength:])
	headerEnd := offIdentifier + int(r.HeaderLength)
	if headerEnd > len(rec) {
		return nil, ebook.Errorf(ebook.KindInvalidStructure, "MOBI header length %d exceeds record 0", r.HeaderLength)
	}
	u32 := func(off int) (uint32, bool) {
		if off+4 > headerEnd {
			return 0, false
		}
		return binary.BigEndian.Uint32(rec[off:]), true
	}

	r.MOBIType, _ = u32(offMOBIType)
	if enc, ok := u32(offEncoding); ok {
		r.Encoding = enc
	}
	r.FileVersion, _ = u32(offFileVersion)
	r.LanguageCode, _ = u32(offLocale)
	if idx, ok := u32(offFirstImage); ok {
		r.FirstImageIndex = idx
	}
	if off, ok := u32(offFullNameOffset); ok {
		n, _ := u32(offFullNameLength)
		if end := int(off) + int(n); n > 0 && end <= len(rec) {
			r.Title = string(rec[off:end])
		}
	}
	if r.HeaderLength >= 0xE4 && offExtraFlags+4 <= headerEnd {
		r.ExtraFlags = binary.BigEndian.Uint16(rec[offExtraFlags+2:])
	}

	if flags, _ := u32(offEXTHFlags); flags&EXTHFlagPresent != 0 {
		exth, err := ParseEXTH(rec[headerEnd:])
		if err != nil {
			return nil, err
		}
		r.EXTH = exth
	}
	return r, nil
}
