package mobi

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/yuanying/ebookkit/internal/ebook"
	"github.com/yuanying/ebookkit/internal/htmltext"
)

// bookMagic is the type and creator of a Mobipocket Palm database.
const bookMagic = "BOOKMOBI"

// isPalmBook reports whether data starts with a Mobipocket Palm database.
func isPalmBook(data []byte) bool {
	return len(data) >= 68 && string(data[60:68]) == bookMagic
}

// decodedBook is the content of a Palm database book.
type decodedBook struct {
	meta   ebook.Metadata
	html   string
	text   string
	toc    []ebook.TocEntry
	images []ebook.ImageData
}

// decodeBook decodes a Mobipocket Palm database: Record 0 headers, EXTH
// metadata, text records and image records.
func decodeBook(data []byte) (*decodedBook, error) {
	db, err := ParseDatabase(data)
	if err != nil {
		return nil, err
	}
	if db.NumRecords() < 1 {
		return nil, ebook.Errorf(ebook.KindInvalidStructure, "database has no records")
	}
	r0, err := ParseRecord0(db.Record(0))
	if err != nil {
		return nil, err
	}
	if r0.Encryption != 0 {
		return nil, ebook.Errorf(ebook.KindNotSupported, "encrypted book (scheme %d)", r0.Encryption)
	}

	raw, err := readText(db, r0)
	if err != nil {
		return nil, err
	}
	markup := decodeRecordText(raw, r0.Encoding)

	text, err := htmltext.Extract([]byte(markup))
	if err != nil {
		return nil, ebook.Wrap(ebook.KindParse, err, "flatten book text")
	}

	b := &decodedBook{html: markup, text: text}
	cover := ApplyEXTH(&b.meta, r0.EXTH)
	if b.meta.Title == "" {
		b.meta.Title = r0.Title
	}
	if b.meta.Title == "" {
		b.meta.Title = db.Name
	}
	if b.meta.Language == "" {
		b.meta.Language = LanguageTag(r0.LanguageCode)
	}

	b.images = readImages(db, r0.FirstImageIndex)
	if cover >= 0 && cover < len(b.images) {
		b.meta.CoverImage = bytes.Clone(b.images[cover].Data)
		b.meta.CoverImagePath = b.images[cover].Name
	}

	b.toc = readTOC(db, r0)
	if len(b.toc) == 0 {
		b.toc = headingTOC(text)
	}
	slog.Debug("decoded Palm book", "records", db.NumRecords(), "textLength", len(raw), "images", len(b.images))
	return b, nil
}

// readText decompresses the text records and truncates the result to the
// declared text length.
func readText(db *Database, r0 *Record0) ([]byte, error) {
	decode, err := decompressor(r0.Compression)
	if err != nil {
		return nil, err
	}
	count := int(r0.TextRecordCount)
	if count >= db.NumRecords() {
		return nil, ebook.Errorf(ebook.KindInvalidStructure, "text record count %d exceeds %d records", count, db.NumRecords())
	}

	var out bytes.Buffer
	for i := 1; i <= count; i++ {
		rec := db.Record(i)
		rec = rec[:len(rec)-trailingEntriesSize(rec, r0.ExtraFlags)]
		chunk, err := decode(rec)
		if err != nil {
			return nil, ebook.Wrap(ebook.KindParse, err, "text record %d", i)
		}
		out.Write(chunk)
	}
	text := out.Bytes()
	if int(r0.TextLength) < len(text) {
		text = text[:r0.TextLength]
	}
	return text, nil
}

// readImages collects the consecutive image records starting at first.
func readImages(db *Database, first uint32) []ebook.ImageData {
	if first == noIndex {
		return nil
	}
	var images []ebook.ImageData
	for i := int(first); i < db.NumRecords(); i++ {
		rec := db.Record(i)
		ext, ok := sniffImage(rec)
		if !ok {
			break
		}
		name := fmt.Sprintf("image_%04d.%s", len(images)+1, ext)
		images = append(images, ebook.NewImageData(name, bytes.Clone(rec)))
	}
	return images
}

// readTOC looks for a navigation record after the text and parses it.
func readTOC(db *Database, r0 *Record0) []ebook.TocEntry {
	for i := int(r0.TextRecordCount) + 1; i < db.NumRecords(); i++ {
		rec := db.Record(i)
		if !isNCXRecord(rec) {
			continue
		}
		toc, err := ParseNCXRecord(rec)
		if err != nil {
			slog.Warn("ignoring malformed navigation record", "record", i, "error", err)
			return nil
		}
		return toc
	}
	return nil
}
