package mobi

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
	"unicode/utf8"

	"github.com/yuanying/ebookkit/internal/ebook"
)

// PalmEpochOffset is the number of seconds between 1904-01-01 and the Unix epoch.
const PalmEpochOffset = 2082844800

const (
	pdbHeaderSize   = 78
	recordEntrySize = 8
)

// PDBHeader is the fixed 78-byte Palm Database header, big-endian.
type PDBHeader struct {
	Name               [32]byte
	Attributes         uint16
	Version            uint16
	CreationDate       uint32
	ModificationDate   uint32
	BackupDate         uint32
	ModificationNumber uint32
	AppInfoOffset      uint32
	SortInfoOffset     uint32
	Type               [4]byte // "BOOK"
	Creator            [4]byte // "MOBI"
	UniqueSeed         uint32
	NextRecordList     uint32
	NumRecords         uint16
}

// RecordEntry is one entry of the record list.
type RecordEntry struct {
	Offset     uint32
	Attributes uint8
	UniqueID   [3]byte
}

// PDB is a Palm database header plus its record list.
type PDB struct {
	Header  PDBHeader
	Records []RecordEntry
}

// NewPDB lays out a database holding records of the given sizes.
// Zero times default to the current UTC time.
func NewPDB(title string, recordSizes []int, creation, modification time.Time) (*PDB, error) {
	if len(recordSizes) > math.MaxUint16 {
		return nil, ebook.Errorf(ebook.KindInvalidStructure, "record count exceeds PalmDB limit: %d", len(recordSizes))
	}
	for i, size := range recordSizes {
		if size < 0 {
			return nil, ebook.Errorf(ebook.KindInvalidStructure, "record %d has negative size", i)
		}
	}

	if creation.IsZero() {
		creation = time.Now().UTC()
	}
	if modification.IsZero() {
		modification = creation
	}

	records := buildRecordEntries(recordSizes)
	return &PDB{
		Header: PDBHeader{
			Name:             truncateDatabaseName(title),
			CreationDate:     PalmEpochSeconds(creation),
			ModificationDate: PalmEpochSeconds(modification),
			Type:             [4]byte{'B', 'O', 'O', 'K'},
			Creator:          [4]byte{'M', 'O', 'B', 'I'},
			NumRecords:       uint16(len(records)),
		},
		Records: records,
	}, nil
}

// PalmEpochSeconds converts t to seconds since the Palm epoch.
func PalmEpochSeconds(t time.Time) uint32 {
	return uint32(t.Unix()) + PalmEpochOffset
}

// HeaderBytes encodes the 78-byte header.
func (p *PDB) HeaderBytes() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, pdbHeaderSize))
	if err := binary.Write(buf, binary.BigEndian, p.Header); err != nil {
		return nil, ebook.Wrap(ebook.KindIO, err, "encode PDB header")
	}
	return buf.Bytes(), nil
}

// RecordListBytes encodes the record list followed by two bytes of padding.
func (p *PDB) RecordListBytes() []byte {
	out := make([]byte, 0, len(p.Records)*recordEntrySize+2)
	for _, rec := range p.Records {
		out = binary.BigEndian.AppendUint32(out, rec.Offset)
		out = append(out, rec.Attributes)
		out = append(out, rec.UniqueID[:]...)
	}
	return append(out, 0, 0)
}

// buildRecordEntries assigns offsets:
//
//	first = 78 + 8*count + 2
//	next  = previous + previous size
func buildRecordEntries(recordSizes []int) []RecordEntry {
	records := make([]RecordEntry, len(recordSizes))
	offset := uint32(pdbHeaderSize + len(recordSizes)*recordEntrySize + 2)
	for i, size := range recordSizes {
		records[i] = RecordEntry{
			Offset:   offset,
			UniqueID: encodeUniqueID(uint32(i)),
		}
		offset += uint32(size)
	}
	return records
}

// truncateDatabaseName keeps at most 31 bytes of name and NUL-pads the rest.
func truncateDatabaseName(name string) [32]byte {
	var result [32]byte
	copy(result[:], truncateUTF8(name, 31))
	return result
}

// truncateUTF8 cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateUTF8(s string, n int) string {
	end := 0
	for end < len(s) {
		_, size := utf8.DecodeRuneInString(s[end:])
		if end+size > n {
			break
		}
		end += size
	}
	return s[:end]
}

func encodeUniqueID(id uint32) [3]byte {
	return [3]byte{byte(id >> 16), byte(id >> 8), byte(id)}
}

// Database is a decoded Palm database.
type Database struct {
	Name    string
	Type    string
	Creator string
	records [][]byte
}

// ParseDatabase decodes the header and slices every record out of data.
func ParseDatabase(data []byte) (*Database, error) {
	if len(data) < pdbHeaderSize {
		return nil, ebook.Errorf(ebook.KindInvalidStructure, "file too small for a Palm database: %d bytes", len(data))
	}

	var hdr PDBHeader
	if err := binary.Read(bytes.NewReader(data[:pdbHeaderSize]), binary.BigEndian, &hdr); err != nil {
		return nil, ebook.Wrap(ebook.KindInvalidStructure, err, "decode PDB header")
	}

	n := int(hdr.NumRecords)
	listEnd := pdbHeaderSize + n*recordEntrySize
	if len(data) < listEnd {
		return nil, ebook.Errorf(ebook.KindInvalidStructure, "record list truncated: %d records", n)
	}

	offsets := make([]int, n+1)
	for i := range n {
		offsets[i] = int(binary.BigEndian.Uint32(data[pdbHeaderSize+i*recordEntrySize:]))
	}
	offsets[n] = len(data)

	db := &Database{
		Name:    string(bytes.TrimRight(hdr.Name[:], "\x00")),
		Type:    string(hdr.Type[:]),
		Creator: string(hdr.Creator[:]),
		records: make([][]byte, n),
	}
	for i := range n {
		start, end := offsets[i], offsets[i+1]
		if start < listEnd || start > end || end > len(data) {
			return nil, ebook.Errorf(ebook.KindInvalidStructure, "record %d has invalid bounds [%d, %d)", i, start, end)
		}
		db.records[i] = data[start:end]
	}
	return db, nil
}

// NumRecords returns the record count.
func (db *Database) NumRecords() int {
	return len(db.records)
}

// Record returns record i, or nil when out of range.
func (db *Database) Record(i int) []byte {
	if i < 0 || i >= len(db.records) {
		return nil
	}
	return db.records[i]
}
