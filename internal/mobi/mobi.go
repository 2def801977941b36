package mobi

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"strings"

	"github.com/yuanying/ebookkit/internal/ebook"
)

const (
	// minFileSize is the size of the synthetic header written by MobiHandler.
	minFileSize = 78
	// magicOffset is where "MOBI" or "BOOKMOBI" starts.
	magicOffset = 60
	// legacyTitleSize is the NUL-padded title of a PalmDOC-only file.
	legacyTitleSize = 32
	// fixedLayoutSize is the smallest file holding the whole fixed header.
	fixedLayoutSize = magicOffset + 232
)

// languageIDs maps the fixed-layout language id to a language tag.
var languageIDs = []string{"en", "fr", "de", "it", "es", "nl", "sv", "nb", "da", "fi", "ja", "zh", "ko", "ar"}

// Header is the fixed-layout MOBI header found at offset 60.
type Header struct {
	Magic           string
	HeaderLength    uint32
	MOBIType        uint32
	TextEncoding    uint32
	FirstImageIndex uint32
	Title           string
	Language        string
}

// parseHeader decodes the fixed layout at magicOffset. Every offset is
// checked against the file size before it is read.
func parseHeader(data []byte) (*Header, error) {
	const pos = magicOffset
	if len(data) < fixedLayoutSize {
		return nil, ebook.Errorf(ebook.KindInvalidStructure, "MOBI header truncated: %d bytes", len(data))
	}
	u32 := func(off int) uint32 { return binary.BigEndian.Uint32(data[pos+off:]) }

	h := &Header{
		Magic:           string(data[pos : pos+4]),
		HeaderLength:    u32(4),
		MOBIType:        u32(8),
		TextEncoding:    u32(16),
		FirstImageIndex: u32(76),
		Language:        "en",
	}
	nameLen := int(data[pos+88])
	if end := pos + 92 + nameLen; nameLen > 0 && end <= len(data) {
		h.Title = strings.TrimRight(string(data[pos+92:end]), "\x00")
	}
	if id := int(binary.BigEndian.Uint16(data[pos+108:])); id < len(languageIDs) {
		h.Language = languageIDs[id]
	}
	return h, nil
}

// MobiHandler reads MOBI files and writes a minimal synthetic layout.
// Palm database books are decoded record by record.
type MobiHandler struct {
	meta    ebook.Metadata
	content string
	toc     []ebook.TocEntry
	images  []ebook.ImageData
	header  *Header
	raw     []byte
}

var _ ebook.Operator = (*MobiHandler)(nil)

func NewMobiHandler() *MobiHandler {
	return &MobiHandler{}
}

// ReadFile parses filename, replacing any buffered state.
func (h *MobiHandler) ReadFile(filename string) error {
	slog.Info("reading MOBI", "path", filename)

	data, err := ebook.ReadAll(filename)
	if err != nil {
		return err
	}
	if len(data) < minFileSize {
		return ebook.Errorf(ebook.KindInvalidStructure, "%s: file too small for MOBI (%d bytes)", filename, len(data))
	}

	if isPalmBook(data) {
		b, err := decodeBook(data)
		if err != nil {
			return err
		}
		b.meta.Format = ebook.FormatMOBI.Label()
		h.meta, h.content, h.toc, h.images = b.meta, b.text, b.toc, b.images
		h.header, h.raw = nil, data
		return nil
	}

	meta := ebook.Metadata{Format: ebook.FormatMOBI.Label()}
	start := minFileSize
	var header *Header
	if string(data[magicOffset:magicOffset+4]) == "MOBI" {
		if header, err = parseHeader(data); err != nil {
			return err
		}
		meta.Title = header.Title
		meta.Language = header.Language
		start = int(header.HeaderLength) + magicOffset
	} else {
		meta.Title = strings.TrimSpace(string(bytes.TrimRight(data[:legacyTitleSize], "\x00")))
	}
	start = min(start, len(data))

	content := cleanMarkup(decodeText(data[start:]))

	h.meta = meta
	h.content = content
	h.toc = headingTOC(content)
	h.images = nil
	h.header = header
	h.raw = data
	return nil
}

// Header returns the fixed-layout header of the last file read, or nil.
func (h *MobiHandler) Header() *Header {
	if h.header == nil {
		return nil
	}
	c := *h.header
	return &c
}

func (h *MobiHandler) Metadata() ebook.Metadata  { return h.meta.Clone() }
func (h *MobiHandler) Content() string           { return h.content }
func (h *MobiHandler) TOC() []ebook.TocEntry     { return ebook.CloneTOC(h.toc) }
func (h *MobiHandler) Images() []ebook.ImageData { return ebook.CloneImages(h.images) }

func (h *MobiHandler) SetMetadata(meta ebook.Metadata) { h.meta = meta.Clone() }
func (h *MobiHandler) SetContent(content string)       { h.content = content }

// AddChapter appends content followed by a newline. The title is not kept.
func (h *MobiHandler) AddChapter(_, content string) {
	h.content += content + "\n"
}

// AddImage buffers an image. The synthetic layout does not store images.
func (h *MobiHandler) AddImage(name string, data []byte) {
	h.images = append(h.images, ebook.NewImageData(name, data))
}

// WriteFile writes a 78-byte header holding the title, then the content.
func (h *MobiHandler) WriteFile(filename string) error {
	slog.Info("writing MOBI", "path", filename)

	title := h.meta.Title
	if title == "" {
		title = ebook.DefaultTitle
	}
	out := make([]byte, minFileSize, minFileSize+len(h.content))
	copy(out, truncateUTF8(title, legacyTitleSize))
	out = append(out, h.content...)
	return ebook.WriteAll(filename, out)
}

func (h *MobiHandler) ConvertTo(target ebook.Format, _ string) error {
	return ebook.NotSupported(ebook.FormatMOBI, target)
}

// Validate reports whether the handler holds a file or content.
func (h *MobiHandler) Validate() bool {
	return len(h.raw) > 0 || h.content != ""
}

func (h *MobiHandler) Repair() {
	ebook.RepairTitle(&h.meta, ebook.DefaultTitle)
}
