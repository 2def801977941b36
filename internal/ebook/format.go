package ebook

import (
	"os"
	"path/filepath"
	"strings"
)

// Format identifies an on-disk ebook format.
type Format string

const (
	FormatEPUB Format = "epub"
	FormatMOBI Format = "mobi"
	FormatAZW  Format = "azw"
	FormatFB2  Format = "fb2"
	FormatCBZ  Format = "cbz"
	FormatTXT  Format = "txt"
	FormatPDF  Format = "pdf"

	// FormatMarkdown is only valid as a ConvertTo target.
	FormatMarkdown Format = "md"
)

// Formats lists every readable and writable format.
func Formats() []Format {
	return []Format{FormatEPUB, FormatMOBI, FormatAZW, FormatFB2, FormatCBZ, FormatTXT, FormatPDF}
}

// Label returns the upper-case tag stored in Metadata.Format.
func (f Format) Label() string {
	return strings.ToUpper(string(f))
}

// Extension returns the canonical file extension including the dot.
func (f Format) Extension() string {
	if f == FormatAZW {
		return ".azw3"
	}
	return "." + string(f)
}

// ParseFormat resolves a user-supplied format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")) {
	case "epub":
		return FormatEPUB, nil
	case "mobi":
		return FormatMOBI, nil
	case "azw", "azw3":
		return FormatAZW, nil
	case "fb2":
		return FormatFB2, nil
	case "cbz":
		return FormatCBZ, nil
	case "txt":
		return FormatTXT, nil
	case "pdf":
		return FormatPDF, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	default:
		return "", Errorf(KindUnsupportedFormat, "unknown format %q", name)
	}
}

// DetectFormat resolves the format of path from its extension.
// There is no content sniffing.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return "", Errorf(KindUnsupportedFormat, "no file extension: %s", path)
	}
	switch ext {
	case "epub":
		return FormatEPUB, nil
	case "mobi":
		return FormatMOBI, nil
	case "azw", "azw3":
		return FormatAZW, nil
	case "fb2":
		return FormatFB2, nil
	case "cbz":
		return FormatCBZ, nil
	case "txt":
		return FormatTXT, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", Errorf(KindUnsupportedFormat, "unsupported extension: %s", ext)
	}
}

var mimeTypes = map[string]string{
	"jpg":   "image/jpeg",
	"jpeg":  "image/jpeg",
	"png":   "image/png",
	"gif":   "image/gif",
	"svg":   "image/svg+xml",
	"webp":  "image/webp",
	"html":  "application/xhtml+xml",
	"htm":   "application/xhtml+xml",
	"xhtml": "application/xhtml+xml",
	"css":   "text/css",
	"js":    "application/javascript",
}

// GuessMIMEType maps a file name to a MIME type by extension.
func GuessMIMEType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if m, ok := mimeTypes[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

// IsImageName reports whether name has one of the given image extensions.
func IsImageName(name string, exts ...string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// TitleFromPath returns the file name of path without its extension.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// EnsureParentDir creates the directory that will hold path.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Wrap(KindIO, err, "create directory %s", dir)
	}
	return nil
}

// ReadAll loads path into memory, mapping failures to KindIO.
func ReadAll(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Wrap(KindIO, err, "read %s", path)
	}
	return data, nil
}

// WriteAll writes data to path after creating its parent directory.
func WriteAll(path string, data []byte) error {
	if err := EnsureParentDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Wrap(KindIO, err, "write %s", path)
	}
	return nil
}

// ExtractImages writes images into dir under their base names and returns
// the written paths.
func ExtractImages(images []ImageData, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, Wrap(KindIO, err, "create directory %s", dir)
	}
	files := make([]string, 0, len(images))
	for _, img := range images {
		p := filepath.Join(dir, filepath.Base(filepath.FromSlash(img.Name)))
		if err := os.WriteFile(p, img.Data, 0o644); err != nil {
			return files, Wrap(KindIO, err, "write %s", p)
		}
		files = append(files, p)
	}
	return files, nil
}

// NotSupported reports an unavailable ConvertTo shortcut.
func NotSupported(from, to Format) error {
	return Errorf(KindNotSupported, "%s handler cannot convert to %s", from.Label(), to.Label())
}

// String implements fmt.Stringer.
func (f Format) String() string {
	return string(f)
}
