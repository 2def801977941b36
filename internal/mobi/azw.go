package mobi

import (
	"bytes"
	"log/slog"
	"os"
	"strings"

	"github.com/yuanying/ebookkit/internal/ebook"
	"github.com/yuanying/ebookkit/internal/htmltext"
)

// AzwHandler reads and writes KF8 (AZW3) books.
type AzwHandler struct {
	meta     ebook.Metadata
	content  string
	html     string
	toc      []ebook.TocEntry
	images   []ebook.ImageData
	chapters []ebook.Chapter

	// Compression selects the text record compression used by WriteFile.
	Compression uint16
}

var (
	_ ebook.Operator         = (*AzwHandler)(nil)
	_ ebook.ImageOptimizable = (*AzwHandler)(nil)
)

func NewAzwHandler() *AzwHandler {
	return &AzwHandler{Compression: CompressionPalmDoc}
}

// ReadFile decodes a Palm database book, replacing any buffered state.
func (h *AzwHandler) ReadFile(filename string) error {
	slog.Info("reading AZW", "path", filename)

	data, err := ebook.ReadAll(filename)
	if err != nil {
		return err
	}
	b, err := decodeBook(data)
	if err != nil {
		return err
	}
	b.meta.Format = ebook.FormatAZW.Label()

	h.meta = b.meta
	h.content = b.text
	h.html = b.html
	h.toc = b.toc
	h.images = b.images
	h.chapters = nil
	return nil
}

func (h *AzwHandler) Metadata() ebook.Metadata  { return h.meta.Clone() }
func (h *AzwHandler) Content() string           { return h.content }
func (h *AzwHandler) TOC() []ebook.TocEntry     { return ebook.CloneTOC(h.toc) }
func (h *AzwHandler) Images() []ebook.ImageData { return ebook.CloneImages(h.images) }

// HTML returns the decoded text flow of the last book read.
func (h *AzwHandler) HTML() string { return h.html }

func (h *AzwHandler) SetMetadata(meta ebook.Metadata) { h.meta = meta.Clone() }

func (h *AzwHandler) SetContent(content string) {
	h.content = content
	h.html = ""
}

// AddChapter buffers a chapter; each chapter starts on a new page.
func (h *AzwHandler) AddChapter(title, content string) {
	h.chapters = append(h.chapters, ebook.Chapter{Title: title, Content: content})
	h.html = ""
}

func (h *AzwHandler) AddImage(name string, data []byte) {
	h.images = append(h.images, ebook.NewImageData(name, data))
}

// bookChapters returns the buffered chapters, or the content as a single
// untitled chapter.
func (h *AzwHandler) bookChapters() []ebook.Chapter {
	if len(h.chapters) > 0 {
		return h.chapters
	}
	return []ebook.Chapter{{Content: h.content}}
}

// WriteFile writes the buffered document as a KF8 Palm database.
func (h *AzwHandler) WriteFile(filename string) error {
	slog.Info("writing AZW", "path", filename)

	title := h.meta.Title
	if title == "" {
		title = ebook.DefaultTitle
	}
	chapters := h.bookChapters()
	html, offsets := bookHTML(title, chapters)

	var entries []NCXEntry
	for i, ch := range chapters {
		if ch.Title != "" {
			entries = append(entries, NCXEntry{Label: ch.Title, FilePos: offsets[i]})
		}
	}
	var ncx []byte
	if len(entries) > 0 {
		ncx = GenerateNCXRecord(NCXRecordConfig{
			Title:   title,
			Entries: entries,
			Guide:   []GuideReference{{Type: "text", Title: "Beginning", FilePos: offsets[0]}},
		})
	}

	var records [][]byte
	var coverIndex *int
	if len(h.meta.CoverImage) > 0 {
		coverIndex = new(int)
		records = append(records, h.meta.CoverImage)
	}
	for _, img := range h.images {
		if coverIndex != nil && bytes.Equal(img.Data, h.meta.CoverImage) {
			continue
		}
		records = append(records, img.Data)
	}

	meta := h.meta
	meta.Title = title
	w, err := NewBookWriter(BookConfig{
		Title:        title,
		HTML:         html,
		Metadata:     meta,
		ImageRecords: records,
		NCXRecord:    ncx,
		Compression:  h.Compression,
		CoverIndex:   coverIndex,
	})
	if err != nil {
		return err
	}

	if err := ebook.EnsureParentDir(filename); err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return ebook.Wrap(ebook.KindIO, err, "create %s", filename)
	}
	defer f.Close()
	if _, err := w.WriteTo(f); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return ebook.Wrap(ebook.KindIO, err, "close %s", filename)
	}
	slog.Debug("wrote AZW", "path", filename, "chapters", len(chapters), "images", len(records))
	return nil
}

// ConvertTo supports Markdown export of the book HTML.
func (h *AzwHandler) ConvertTo(target ebook.Format, filename string) error {
	if target != ebook.FormatMarkdown {
		return ebook.NotSupported(ebook.FormatAZW, target)
	}
	doc := h.html
	if doc == "" {
		b, _ := bookHTML(h.meta.Title, h.bookChapters())
		doc = string(b)
	}
	md, err := htmltext.ToMarkdown(doc)
	if err != nil {
		return ebook.Wrap(ebook.KindConversion, err, "render book as Markdown")
	}
	return ebook.WriteAll(filename, []byte(strings.TrimSpace(md)+"\n"))
}

// Validate reports whether the book has text.
func (h *AzwHandler) Validate() bool {
	return strings.TrimSpace(h.content) != "" || len(h.chapters) > 0
}

func (h *AzwHandler) Repair() {
	ebook.RepairTitle(&h.meta, ebook.DefaultTitle)
}

// OptimizeImages re-encodes the buffered images with o.
func (h *AzwHandler) OptimizeImages(o ebook.ImageOptimizer) int {
	return ebook.OptimizeImages(h.images, o)
}
