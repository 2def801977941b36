package ebook

import (
	"os"
	"path/filepath"
	"testing"
)

type stubReader struct {
	meta Metadata
	toc  []TocEntry
}

func (s stubReader) ReadFile(string) error { return nil }
func (s stubReader) Metadata() Metadata    { return s.meta }
func (s stubReader) Content() string       { return "12345" }
func (s stubReader) TOC() []TocEntry       { return s.toc }
func (s stubReader) Images() []ImageData {
	return []ImageData{NewImageData("a.png", nil), NewImageData("b.png", nil)}
}

func TestNewInfo(t *testing.T) {
	p := filepath.Join(t.TempDir(), "book.txt")
	if err := os.WriteFile(p, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := stubReader{
		meta: Metadata{Title: "T", Format: "TXT", CoverImage: []byte{1}},
		toc:  []TocEntry{{Title: "A", Children: []TocEntry{{Title: "A1"}}}, {Title: "B"}},
	}

	info := NewInfo(p, r)
	if info.Title != "T" || info.Format != "TXT" || !info.HasCover {
		t.Errorf("NewInfo() = %+v", info)
	}
	if info.TOCEntries != 3 || info.Images != 2 || info.ContentLength != 5 || info.Size != 3 {
		t.Errorf("NewInfo() counts = %+v", info)
	}
}
