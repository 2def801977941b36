package epub

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/yuanying/ebookkit/internal/ebook"
	"github.com/yuanying/ebookkit/internal/htmltext"
)

// StreamingThreshold is the file size above which callers should prefer
// streaming access.
const StreamingThreshold = 50 * 1024 * 1024

var imageExtensions = []string{"jpg", "jpeg", "png", "gif", "svg", "webp"}

// Handler reads and writes EPUB files.
type Handler struct {
	meta     ebook.Metadata
	content  string
	toc      []ebook.TocEntry
	images   []ebook.ImageData
	chapters []ebook.Chapter
	version  Version

	newID func() string
}

var (
	_ ebook.Operator         = (*Handler)(nil)
	_ ebook.ImageOptimizable = (*Handler)(nil)
)

// New returns an empty EPUB 3 handler.
func New() *Handler {
	return &Handler{version: V3, newID: newBookID}
}

// SetVersion selects the package version used by WriteFile.
func (h *Handler) SetVersion(v Version) {
	h.version = v
}

// Version returns the package version used by WriteFile.
func (h *Handler) Version() Version {
	return h.version
}

// ReadFile parses an EPUB file, replacing any buffered state.
func (h *Handler) ReadFile(filename string) error {
	slog.Info("reading EPUB", "path", filename)

	a, err := Open(filename)
	if err != nil {
		return err
	}
	defer a.Close()

	opfData, err := a.ReadFile(a.OPFPath())
	if err != nil {
		return err
	}
	opf, err := ParseOPF(opfData, path.Dir(a.OPFPath()))
	if err != nil {
		return err
	}

	meta := opf.Metadata.Common()
	if cover := opf.DetectCover(); cover != nil {
		meta.CoverImagePath = cover.Href
		if data, err := a.ReadFile(cover.Href); err == nil {
			meta.CoverImage = data
		}
	}

	var (
		content  strings.Builder
		chapters []ebook.Chapter
		toc      []ebook.TocEntry
	)
	for i, ref := range opf.Spine {
		item, ok := opf.Manifest[ref.IDRef]
		if !ok {
			slog.Warn("spine item missing from manifest", "idref", ref.IDRef)
			continue
		}
		data, err := a.ReadFile(item.Href)
		if err != nil {
			slog.Warn("skipping unreadable spine item", "href", item.Href, "error", err)
			continue
		}
		sec, err := LoadSection(item.ID, item.Href, data)
		if err != nil {
			slog.Warn("skipping malformed spine item", "href", item.Href, "error", err)
			continue
		}

		title := sec.Title
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}
		content.WriteString(sec.Text)
		content.WriteString("\n")
		chapters = append(chapters, ebook.Chapter{Title: title, Content: string(data)})
		toc = append(toc, ebook.TocEntry{ID: i, Title: title, Level: 1, Href: item.Href})
	}

	var images []ebook.ImageData
	for _, name := range a.Names() {
		if !ebook.IsImageName(name, imageExtensions...) {
			continue
		}
		data, err := a.ReadFile(name)
		if err != nil {
			slog.Warn("skipping unreadable image", "name", name, "error", err)
			continue
		}
		images = append(images, ebook.NewImageData(name, data))
	}

	h.meta = meta
	h.content = content.String()
	h.chapters = chapters
	h.toc = toc
	h.images = images
	slog.Debug("read EPUB", "chapters", len(chapters), "images", len(images))
	return nil
}

func (h *Handler) Metadata() ebook.Metadata { return h.meta.Clone() }
func (h *Handler) Content() string          { return h.content }
func (h *Handler) TOC() []ebook.TocEntry    { return ebook.CloneTOC(h.toc) }
func (h *Handler) Images() []ebook.ImageData {
	return ebook.CloneImages(h.images)
}

// Chapters returns the buffered chapters.
func (h *Handler) Chapters() []ebook.Chapter {
	out := make([]ebook.Chapter, len(h.chapters))
	copy(out, h.chapters)
	return out
}

func (h *Handler) SetMetadata(meta ebook.Metadata) { h.meta = meta.Clone() }
func (h *Handler) SetContent(content string)       { h.content = content }

// AddChapter buffers a chapter; chapters are written as chapter<N>.xhtml.
func (h *Handler) AddChapter(title, content string) {
	h.chapters = append(h.chapters, ebook.Chapter{Title: title, Content: content})
}

// AddImage buffers an image written under OEBPS/.
func (h *Handler) AddImage(name string, data []byte) {
	h.images = append(h.images, ebook.NewImageData(name, data))
}

// WriteFile writes the buffered document as an OCF container.
func (h *Handler) WriteFile(filename string) error {
	slog.Info("writing EPUB", "path", filename, "version", h.version.String())

	chapters := h.chapters
	if len(chapters) == 0 && h.content != "" {
		chapters = []ebook.Chapter{{Title: orDefault(h.meta.Title, "Chapter 1"), Content: h.content}}
	}

	images := make([]ebook.ImageData, len(h.images))
	for i, img := range h.images {
		img.Name = strings.TrimPrefix(img.Name, "OEBPS/")
		images[i] = img
	}

	newID := h.newID
	if newID == nil {
		newID = newBookID
	}
	version := h.version
	if version != V2 {
		version = V3
	}
	return writeBook(filename, &book{
		version:  version,
		id:       newID(),
		meta:     h.meta,
		chapters: chapters,
		images:   images,
	})
}

// ConvertTo supports Markdown export of the buffered chapters.
func (h *Handler) ConvertTo(target ebook.Format, filename string) error {
	if target != ebook.FormatMarkdown {
		return ebook.NotSupported(ebook.FormatEPUB, target)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", orDefault(h.meta.Title, ebook.DefaultTitle))
	if len(h.chapters) == 0 {
		b.WriteString(h.content)
	}
	for _, ch := range h.chapters {
		md := ch.Content
		if strings.Contains(md, "<") {
			var err error
			if md, err = htmltext.ToMarkdown(ch.Content); err != nil {
				return ebook.Wrap(ebook.KindConversion, err, "render %q as Markdown", ch.Title)
			}
		} else {
			md = "## " + ch.Title + "\n\n" + md
		}
		b.WriteString(strings.TrimSpace(md))
		b.WriteString("\n\n")
	}
	return ebook.WriteAll(filename, []byte(b.String()))
}

// Validate reports whether the document has a title.
func (h *Handler) Validate() bool {
	return strings.TrimSpace(h.meta.Title) != ""
}

// Repair assigns a default title.
func (h *Handler) Repair() {
	ebook.RepairTitle(&h.meta, ebook.DefaultTitle)
}

// OptimizeImages re-encodes the buffered images with o.
func (h *Handler) OptimizeImages(o ebook.ImageOptimizer) int {
	return ebook.OptimizeImages(h.images, o)
}

// ShouldUseStreaming reports whether filename exceeds StreamingThreshold.
func ShouldUseStreaming(filename string) bool {
	fi, err := os.Stat(filename)
	return err == nil && fi.Size() > StreamingThreshold
}

// Verify checks the container structure of an EPUB file: the mimetype entry
// and the presence of every spine document.
func Verify(filename string) error {
	a, err := Open(filename)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.VerifyMimetype(); err != nil {
		return ebook.Wrap(ebook.KindValidation, err, "%s", filename)
	}
	opfData, err := a.ReadFile(a.OPFPath())
	if err != nil {
		return err
	}
	opf, err := ParseOPF(opfData, path.Dir(a.OPFPath()))
	if err != nil {
		return err
	}

	var missing []error
	for _, ref := range opf.Spine {
		item, ok := opf.Manifest[ref.IDRef]
		if !ok {
			missing = append(missing, fmt.Errorf("spine item %q not in manifest", ref.IDRef))
			continue
		}
		if _, ok := a.Files()[item.Href]; !ok {
			missing = append(missing, fmt.Errorf("spine document %s: %w", item.Href, ErrFileNotFound))
		}
	}
	if len(missing) > 0 {
		return ebook.Wrap(ebook.KindValidation, errors.Join(missing...), "%s", filename)
	}
	return nil
}
