package ebook

import (
	"log/slog"
	"strings"
)

// DefaultTitle is assigned by Repair when a document has no title.
const DefaultTitle = "Untitled"

// ChapterSeparator splits flattened content into chapters during conversion.
const ChapterSeparator = "\n\n---\n\n"

// Reader parses a document from disk and exposes its cached state.
// Accessors never touch the disk and return copies.
type Reader interface {
	ReadFile(path string) error
	Metadata() Metadata
	Content() string
	TOC() []TocEntry
	Images() []ImageData
}

// Writer buffers document state and serializes it to disk.
// WriteFile creates missing parent directories.
type Writer interface {
	SetMetadata(meta Metadata)
	SetContent(content string)
	AddChapter(title, content string)
	AddImage(name string, data []byte)
	WriteFile(path string) error
}

// Operator is implemented by every format handler.
type Operator interface {
	Reader
	Writer

	// ConvertTo performs a format-specific shortcut conversion.
	// Handlers without one return an error of kind NotSupported.
	ConvertTo(target Format, path string) error
	Validate() bool
	Repair()
}

// ImageOptimizer re-encodes a single image.
type ImageOptimizer interface {
	Optimize(data []byte, mimeType string) ([]byte, error)
}

// ImageOptimizable is implemented by handlers that carry optimizable images.
type ImageOptimizable interface {
	OptimizeImages(o ImageOptimizer) int
}

// OptimizeImages runs o over images in place. An image is replaced only when
// the result is strictly smaller; failures are logged and skipped.
// It returns the total number of bytes saved.
func OptimizeImages(images []ImageData, o ImageOptimizer) int {
	saved := 0
	for i := range images {
		img := &images[i]
		out, err := o.Optimize(img.Data, img.MIMEType)
		if err != nil {
			slog.Warn("skipping image optimization", "image", img.Name, "error", err)
			continue
		}
		if len(out) < len(img.Data) {
			saved += len(img.Data) - len(out)
			img.Data = out
		}
	}
	return saved
}

// RepairTitle defaults an absent or blank title.
func RepairTitle(meta *Metadata, fallback string) {
	if strings.TrimSpace(meta.Title) == "" {
		meta.Title = fallback
	}
}
