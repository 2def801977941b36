// Package txt reads and writes plain-text documents.
package txt

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/yuanying/ebookkit/internal/ebook"
)

const (
	// StreamingThreshold is the file size above which the streaming
	// variants switch to buffered I/O.
	StreamingThreshold = 10 * 1024 * 1024

	readBufferSize  = 128 * 1024
	writeBufferSize = 128 * 1024
	writeChunkSize  = 64 * 1024
)

// Handler holds a plain-text document.
type Handler struct {
	meta      ebook.Metadata
	content   string
	threshold int64
}

var _ ebook.Operator = (*Handler)(nil)

func New() *Handler {
	return &Handler{threshold: StreamingThreshold}
}

// SetStreamingThreshold sets the size above which ReadFileStreaming reads
// line by line. Values below 1 restore StreamingThreshold.
func (h *Handler) SetStreamingThreshold(n int64) {
	if n < 1 {
		n = StreamingThreshold
	}
	h.threshold = n
}

// ReadFile loads filename. The title is the file stem.
func (h *Handler) ReadFile(filename string) error {
	slog.Info("reading TXT", "path", filename)

	data, err := ebook.ReadAll(filename)
	if err != nil {
		return err
	}
	h.load(filename, data)
	return nil
}

func (h *Handler) load(filename string, data []byte) {
	h.content = decode(data)
	h.meta = ebook.Metadata{
		Title:  ebook.TitleFromPath(filename),
		Format: ebook.FormatTXT.Label(),
	}
}

// decode returns data as UTF-8 when valid, Windows-1252 otherwise.
func decode(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	s, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(s)
}

// ReadFileStreaming behaves like ReadFile but reads large files line by
// line through a buffered reader.
func (h *Handler) ReadFileStreaming(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return ebook.Wrap(ebook.KindIO, err, "open %s", filename)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return ebook.Wrap(ebook.KindIO, err, "stat %s", filename)
	}
	if fi.Size() <= h.threshold {
		return h.ReadFile(filename)
	}

	slog.Info("streaming large TXT file", "path", filename, "bytes", fi.Size())
	var buf bytes.Buffer
	buf.Grow(int(fi.Size()))
	r := bufio.NewReaderSize(f, readBufferSize)
	for {
		line, err := r.ReadSlice('\n')
		buf.Write(line)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ebook.Wrap(ebook.KindIO, err, "read %s", filename)
		}
	}
	h.load(filename, buf.Bytes())
	return nil
}

func (h *Handler) Metadata() ebook.Metadata  { return h.meta.Clone() }
func (h *Handler) Content() string           { return h.content }
func (h *Handler) Images() []ebook.ImageData { return []ebook.ImageData{} }

// TOC lists lines starting with "Chapter " or "CHAPTER " as level 1 entries.
func (h *Handler) TOC() []ebook.TocEntry {
	toc := []ebook.TocEntry{}
	for _, line := range strings.Split(h.content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Chapter ") || strings.HasPrefix(line, "CHAPTER ") {
			toc = append(toc, ebook.TocEntry{ID: len(toc) + 1, Title: line, Level: 1})
		}
	}
	return toc
}

func (h *Handler) SetMetadata(meta ebook.Metadata) { h.meta = meta.Clone() }
func (h *Handler) SetContent(content string)       { h.content = content }

func (h *Handler) AddChapter(title, content string) {
	h.content += "\n\n" + title + "\n\n" + content
}

// AddImage is a no-op.
func (h *Handler) AddImage(string, []byte) {}

func (h *Handler) WriteFile(filename string) error {
	slog.Info("writing TXT", "path", filename)
	return ebook.WriteAll(filename, []byte(h.content))
}

// WriteFileStreaming writes the content in chunks through a buffered
// writer. The output is identical to WriteFile.
func (h *Handler) WriteFileStreaming(filename string) error {
	if err := ebook.EnsureParentDir(filename); err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return ebook.Wrap(ebook.KindIO, err, "create %s", filename)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, writeBufferSize)
	for rest := h.content; len(rest) > 0; {
		n := min(writeChunkSize, len(rest))
		if _, err := w.WriteString(rest[:n]); err != nil {
			return ebook.Wrap(ebook.KindIO, err, "write %s", filename)
		}
		rest = rest[n:]
	}
	if err := w.Flush(); err != nil {
		return ebook.Wrap(ebook.KindIO, err, "flush %s", filename)
	}
	if err := f.Close(); err != nil {
		return ebook.Wrap(ebook.KindIO, err, "close %s", filename)
	}
	return nil
}

// ConvertTo writes Markdown with the title as a level 1 heading.
func (h *Handler) ConvertTo(target ebook.Format, path string) error {
	if target != ebook.FormatMarkdown {
		return ebook.NotSupported(ebook.FormatTXT, target)
	}
	title := h.meta.Title
	if title == "" {
		title = ebook.DefaultTitle
	}
	return ebook.WriteAll(path, []byte("# "+title+"\n\n"+h.content))
}

// Validate reports whether the document has content.
func (h *Handler) Validate() bool {
	return h.content != ""
}

// Repair trims surrounding whitespace and defaults the title.
func (h *Handler) Repair() {
	h.content = strings.TrimSpace(h.content)
	ebook.RepairTitle(&h.meta, ebook.DefaultTitle)
}
