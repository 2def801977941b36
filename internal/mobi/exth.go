package mobi

import (
	"bytes"
	"encoding/binary"
	"regexp"
	"strings"
	"time"

	"github.com/yuanying/ebookkit/internal/ebook"
)

// EXTH record types.
const (
	EXTHAuthor        uint32 = 100
	EXTHPublisher     uint32 = 101
	EXTHDescription   uint32 = 103
	EXTHISBN          uint32 = 104
	EXTHSubject       uint32 = 105
	EXTHPublishedDate uint32 = 106
	EXTHRights        uint32 = 109
	EXTHKF8Boundary   uint32 = 121
	EXTHKF8Count      uint32 = 125
	EXTHCoverOffset   uint32 = 201
	EXTHTitle         uint32 = 503
	EXTHLanguage      uint32 = 524
)

var isbnPattern = regexp.MustCompile(`(?:^|\D)(\d{13}|\d{9}[\dXx])(?:\D|$)`)

// EXTHRecord is a single EXTH metadata record.
type EXTHRecord struct {
	Type uint32
	Data []byte
}

// EXTHHeader holds the EXTH records. Records[0] and Records[1] are the
// KF8 boundary (121) and record count (125).
type EXTHHeader struct {
	Records []EXTHRecord
}

// NewEXTHHeader creates a header with the two KF8 records in place.
func NewEXTHHeader(boundaryOffset, recordCount uint32) *EXTHHeader {
	return &EXTHHeader{Records: []EXTHRecord{
		makeUint32Record(EXTHKF8Boundary, boundaryOffset),
		makeUint32Record(EXTHKF8Count, recordCount),
	}}
}

func (h *EXTHHeader) AddStringRecord(recordType uint32, value string) {
	h.Records = append(h.Records, EXTHRecord{Type: recordType, Data: []byte(value)})
}

func (h *EXTHHeader) AddUint32Record(recordType, value uint32) {
	h.Records = append(h.Records, makeUint32Record(recordType, value))
}

// Bytes serializes "EXTH", length, count, the records and zero padding to a
// four-byte boundary.
func (h *EXTHHeader) Bytes() []byte {
	size := h.Size()
	b := make([]byte, 0, size)
	b = append(b, "EXTH"...)
	b = binary.BigEndian.AppendUint32(b, uint32(size))
	b = binary.BigEndian.AppendUint32(b, uint32(len(h.Records)))
	for _, rec := range h.Records {
		b = binary.BigEndian.AppendUint32(b, rec.Type)
		b = binary.BigEndian.AppendUint32(b, uint32(8+len(rec.Data)))
		b = append(b, rec.Data...)
	}
	for len(b) < size {
		b = append(b, 0)
	}
	return b
}

// Size returns the serialized size including padding.
func (h *EXTHHeader) Size() int {
	n := 12
	for _, rec := range h.Records {
		n += 8 + len(rec.Data)
	}
	return n + (4-n%4)%4
}

// EXTHFromMetadata builds the EXTH block for meta. Empty fields are skipped.
func EXTHFromMetadata(meta ebook.Metadata, boundaryOffset, recordCount uint32) *EXTHHeader {
	h := NewEXTHHeader(boundaryOffset, recordCount)

	add := func(t uint32, v string) {
		if v = strings.TrimSpace(v); v != "" {
			h.AddStringRecord(t, v)
		}
	}
	add(EXTHAuthor, meta.Author)
	add(EXTHPublisher, meta.Publisher)
	add(EXTHDescription, meta.Description)
	if isbn, ok := extractISBN(meta.ISBN); ok {
		h.AddStringRecord(EXTHISBN, isbn)
	}
	add(EXTHSubject, joinSubjects(meta.Tags))
	add(EXTHPublishedDate, normalizeDate(meta.PublicationDate))
	add(EXTHRights, meta.Custom["rights"])
	add(EXTHTitle, meta.Title)
	add(EXTHLanguage, meta.Language)
	return h
}

// ParseEXTH decodes an EXTH block starting at data[0].
func ParseEXTH(data []byte) ([]EXTHRecord, error) {
	if len(data) < 12 || !bytes.Equal(data[:4], []byte("EXTH")) {
		return nil, ebook.Errorf(ebook.KindInvalidStructure, "EXTH block not found")
	}
	count := int(binary.BigEndian.Uint32(data[8:]))
	records := make([]EXTHRecord, 0, min(count, 256))
	pos := 12
	for i := range count {
		if pos+8 > len(data) {
			return nil, ebook.Errorf(ebook.KindInvalidStructure, "EXTH record %d truncated", i)
		}
		typ := binary.BigEndian.Uint32(data[pos:])
		n := int(binary.BigEndian.Uint32(data[pos+4:]))
		if n < 8 || pos+n > len(data) {
			return nil, ebook.Errorf(ebook.KindInvalidStructure, "EXTH record %d has invalid length %d", i, n)
		}
		records = append(records, EXTHRecord{Type: typ, Data: data[pos+8 : pos+n]})
		pos += n
	}
	return records, nil
}

// ApplyEXTH copies EXTH metadata onto meta and returns the cover offset, or
// -1 when the book declares no cover.
func ApplyEXTH(meta *ebook.Metadata, records []EXTHRecord) int {
	cover := -1
	var authors []string
	for _, rec := range records {
		v := strings.TrimSpace(string(rec.Data))
		switch rec.Type {
		case EXTHAuthor:
			authors = append(authors, v)
		case EXTHPublisher:
			meta.Publisher = v
		case EXTHDescription:
			meta.Description = v
		case EXTHISBN:
			meta.ISBN = v
		case EXTHSubject:
			for _, s := range strings.Split(v, ";") {
				if s = strings.TrimSpace(s); s != "" {
					meta.Tags = append(meta.Tags, s)
				}
			}
		case EXTHPublishedDate:
			meta.PublicationDate = v
		case EXTHRights:
			meta.SetCustom("rights", v)
		case EXTHTitle:
			meta.Title = v
		case EXTHLanguage:
			meta.Language = v
		case EXTHCoverOffset:
			if len(rec.Data) == 4 {
				cover = int(binary.BigEndian.Uint32(rec.Data))
			}
		}
	}
	if len(authors) > 0 {
		meta.Author = strings.Join(authors, " & ")
	}
	return cover
}

func joinSubjects(subjects []string) string {
	var filtered []string
	for _, s := range subjects {
		if s = strings.TrimSpace(s); s != "" {
			filtered = append(filtered, s)
		}
	}
	return strings.Join(filtered, "; ")
}

// extractISBN finds an ISBN-10 or ISBN-13 in identifier, ignoring hyphens.
func extractISBN(identifier string) (string, bool) {
	m := isbnPattern.FindStringSubmatch(strings.ReplaceAll(identifier, "-", ""))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// normalizeDate converts ISO 8601 timestamps to YYYY-MM-DD. Unparseable
// input is returned unchanged.
func normalizeDate(date string) string {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return date
}

func makeUint32Record(recordType, value uint32) EXTHRecord {
	return EXTHRecord{Type: recordType, Data: binary.BigEndian.AppendUint32(nil, value)}
}
