// Package cbz reads and writes comic book archives: a zip of page images
// with an optional ComicInfo.xml sidecar.
package cbz

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/yuanying/ebookkit/internal/ebook"
)

// DefaultTitle is assigned by Repair.
const DefaultTitle = "Untitled Comic"

var imageExtensions = []string{"jpg", "jpeg", "png", "gif", "webp"}

// Handler holds the pages and metadata of a comic archive.
type Handler struct {
	meta      ebook.Metadata
	images    []ebook.ImageData
	comicInfo *ComicInfo
}

var (
	_ ebook.Operator         = (*Handler)(nil)
	_ ebook.ImageOptimizable = (*Handler)(nil)
)

func New() *Handler {
	return &Handler{}
}

// ReadFile parses a CBZ archive, replacing any buffered state.
func (h *Handler) ReadFile(filename string) error {
	slog.Info("reading CBZ", "path", filename)

	zr, err := zip.OpenReader(filename)
	if err != nil {
		return ebook.Wrap(ebook.KindZip, err, "open %s", filename)
	}
	defer zr.Close()

	var (
		meta      ebook.Metadata
		comicInfo *ComicInfo
		images    []ebook.ImageData
	)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if f.Name == ComicInfoName {
			data, err := readEntry(f)
			if err != nil {
				return err
			}
			ci, err := ParseComicInfo(data)
			if err != nil {
				slog.Warn("ignoring malformed ComicInfo.xml", "path", filename, "error", err)
				continue
			}
			comicInfo = ci
			meta = ci.ToMetadata()
			continue
		}
		if !ebook.IsImageName(f.Name, imageExtensions...) {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return err
		}
		images = append(images, ebook.NewImageData(f.Name, data))
	}

	if meta.Title == "" {
		meta.Title = ebook.TitleFromPath(filename)
	}
	meta.Format = ebook.FormatCBZ.Label()
	sortPages(images)

	if comicInfo != nil {
		count := uint32(len(images))
		comicInfo.PageCount = &count
	}
	h.meta = meta
	h.images = images
	h.comicInfo = comicInfo
	slog.Debug("read CBZ", "pages", len(images), "comicInfo", comicInfo != nil)
	return nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, ebook.Wrap(ebook.KindZip, err, "open entry %s", f.Name)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, ebook.Wrap(ebook.KindZip, err, "read entry %s", f.Name)
	}
	return data, nil
}

// sortPages orders images by archive name, which is the page order.
func sortPages(images []ebook.ImageData) {
	slices.SortStableFunc(images, func(a, b ebook.ImageData) int {
		return strings.Compare(a.Name, b.Name)
	})
}

func (h *Handler) Metadata() ebook.Metadata { return h.meta.Clone() }

// Content describes the archive; comics carry no text.
func (h *Handler) Content() string {
	return fmt.Sprintf("CBZ archive with %d images", len(h.images))
}

func (h *Handler) TOC() []ebook.TocEntry     { return []ebook.TocEntry{} }
func (h *Handler) Images() []ebook.ImageData { return ebook.CloneImages(h.images) }

// ComicInfo returns a copy of the parsed sidecar, or nil.
func (h *Handler) ComicInfo() *ComicInfo {
	if h.comicInfo == nil {
		return nil
	}
	c := *h.comicInfo
	c.Tags = slices.Clone(h.comicInfo.Tags)
	return &c
}

func (h *Handler) SetMetadata(meta ebook.Metadata) { h.meta = meta.Clone() }
func (h *Handler) SetContent(string)               {}
func (h *Handler) AddChapter(string, string)       {}

// AddImage appends a page; pages are written in name order.
func (h *Handler) AddImage(name string, data []byte) {
	h.images = append(h.images, ebook.NewImageData(name, data))
}

// WriteFile writes ComicInfo.xml followed by every page, deflated.
// The sidecar starts from the parsed document, if any, overlaid with the
// current metadata; its page count always matches the pages written.
func (h *Handler) WriteFile(filename string) error {
	slog.Info("writing CBZ", "path", filename)

	ci := &ComicInfo{}
	if h.comicInfo != nil {
		ci = h.ComicInfo()
	}
	ci.Overlay(h.meta)
	count := uint32(len(h.images))
	ci.PageCount = &count
	xmlData, err := ci.Marshal()
	if err != nil {
		return err
	}

	pages := ebook.CloneImages(h.images)
	sortPages(pages)

	if err := ebook.EnsureParentDir(filename); err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return ebook.Wrap(ebook.KindIO, err, "create %s", filename)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	if err := writeEntry(zw, ComicInfoName, xmlData); err != nil {
		return err
	}
	for _, img := range pages {
		if err := writeEntry(zw, img.Name, img.Data); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return ebook.Wrap(ebook.KindZip, err, "finish %s", filename)
	}
	if err := f.Close(); err != nil {
		return ebook.Wrap(ebook.KindIO, err, "close %s", filename)
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return ebook.Wrap(ebook.KindZip, err, "create entry %s", name)
	}
	if _, err := w.Write(data); err != nil {
		return ebook.Wrap(ebook.KindZip, err, "write entry %s", name)
	}
	return nil
}

func (h *Handler) ConvertTo(target ebook.Format, _ string) error {
	return ebook.NotSupported(ebook.FormatCBZ, target)
}

// Validate reports whether the archive has pages.
func (h *Handler) Validate() bool {
	return len(h.images) > 0
}

func (h *Handler) Repair() {
	ebook.RepairTitle(&h.meta, DefaultTitle)
}

// OptimizeImages re-encodes the pages with o.
func (h *Handler) OptimizeImages(o ebook.ImageOptimizer) int {
	return ebook.OptimizeImages(h.images, o)
}
