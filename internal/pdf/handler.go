// Package pdf reads text and document information from PDF files and
// writes minimal single-page documents.
package pdf

import (
	"bytes"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/yuanying/ebookkit/internal/ebook"
)

var disableConfigDir sync.Once

// Handler holds the text and document information of a PDF.
type Handler struct {
	meta    ebook.Metadata
	content string
	pages   int
	loaded  bool
}

var _ ebook.Operator = (*Handler)(nil)

func New() *Handler {
	return &Handler{}
}

func newConfiguration() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// ReadFile parses filename with pdfcpu, replacing any buffered state.
func (h *Handler) ReadFile(filename string) error {
	slog.Info("reading PDF", "path", filename)

	f, err := os.Open(filename)
	if err != nil {
		return ebook.Wrap(ebook.KindIO, err, "open %s", filename)
	}
	defer f.Close()

	ctx, err := api.ReadValidateAndOptimize(f, newConfiguration())
	if err != nil {
		return ebook.Wrap(ebook.KindPDF, err, "read %s", filename)
	}

	meta := ebook.Metadata{Format: ebook.FormatPDF.Label()}
	if info := infoDict(ctx); info != nil {
		meta.Title = infoString(ctx, info, "Title")
		meta.Author = infoString(ctx, info, "Author")
		meta.Publisher = infoString(ctx, info, "Subject")
	}

	var text strings.Builder
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil {
			return ebook.Wrap(ebook.KindPDF, err, "page %d content", pageNr)
		}
		if r != nil {
			data, err := io.ReadAll(r)
			if err != nil {
				return ebook.Wrap(ebook.KindPDF, err, "page %d content", pageNr)
			}
			text.WriteString(scanText(data))
			text.WriteByte('\n')
		}
		text.WriteString(pageMarker(pageNr))
	}

	h.meta = meta
	h.content = cleanText(text.String())
	h.pages = ctx.PageCount
	h.loaded = true
	slog.Debug("read PDF", "pages", ctx.PageCount, "chars", len(h.content))
	return nil
}

// infoDict dereferences the trailer's Info dictionary.
func infoDict(ctx *model.Context) types.Dict {
	if ctx.Info == nil {
		return nil
	}
	d, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil {
		slog.Warn("ignoring unreadable Info dictionary", "error", err)
		return nil
	}
	return d
}

// infoString returns a text entry of the Info dictionary, following
// indirect references. Literal and hex strings are supported.
func infoString(ctx *model.Context, info types.Dict, key string) string {
	obj, ok := info.Find(key)
	if !ok {
		return ""
	}
	obj, err := ctx.Dereference(obj)
	if err != nil {
		return ""
	}
	switch v := obj.(type) {
	case types.StringLiteral:
		return strings.TrimSpace(decodeBytes(unescape([]byte(v))))
	case types.HexLiteral:
		b, err := hex.DecodeString(strings.Join(strings.Fields(string(v)), ""))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(decodeBytes(b))
	}
	return ""
}

func (h *Handler) Metadata() ebook.Metadata  { return h.meta.Clone() }
func (h *Handler) Content() string           { return h.content }
func (h *Handler) TOC() []ebook.TocEntry     { return []ebook.TocEntry{} }
func (h *Handler) Images() []ebook.ImageData { return []ebook.ImageData{} }

// PageCount returns the number of pages of the last file read.
func (h *Handler) PageCount() int { return h.pages }

func (h *Handler) SetMetadata(meta ebook.Metadata) { h.meta = meta.Clone() }
func (h *Handler) SetContent(content string)       { h.content = content }

// AddChapter appends content after a blank line; the title is dropped.
func (h *Handler) AddChapter(_, content string) {
	h.content += "\n\n" + content
}

// AddImage is a no-op: written documents hold text only.
func (h *Handler) AddImage(string, []byte) {}

// WriteFile writes the content onto a single page.
func (h *Handler) WriteFile(filename string) error {
	slog.Info("writing PDF", "path", filename)

	var buf bytes.Buffer
	if err := writeDocument(&buf, h.meta, h.content); err != nil {
		return err
	}
	return ebook.WriteAll(filename, buf.Bytes())
}

func (h *Handler) ConvertTo(target ebook.Format, _ string) error {
	return ebook.NotSupported(ebook.FormatPDF, target)
}

// Validate reports whether a document was read.
func (h *Handler) Validate() bool {
	return h.loaded
}

func (h *Handler) Repair() {
	ebook.RepairTitle(&h.meta, ebook.DefaultTitle)
}
