package converter

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yuanying/ebookkit/internal/ebook"
	"github.com/yuanying/ebookkit/internal/epub"
	"github.com/yuanying/ebookkit/internal/txt"
)

func TestConverter_Open(t *testing.T) {
	dir := t.TempDir()
	p := writeSource(t, dir, ebook.FormatFB2)

	f, h, err := New(Options{}).Open(p)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if f != ebook.FormatFB2 {
		t.Errorf("format = %s, want fb2", f)
	}
	if got := h.Metadata().Title; got != "Source Book" {
		t.Errorf("Title = %q", got)
	}

	if _, _, err := New(Options{}).Open(""); !errors.Is(err, ebook.ErrValidation) {
		t.Errorf("Open(\"\") error = %v, want validation error", err)
	}
	if _, _, err := New(Options{}).Open(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("Open(missing) error = nil")
	}
}

func TestConverter_Validate(t *testing.T) {
	dir := t.TempDir()
	c := New(Options{})

	if f, problems := c.Validate(writeSource(t, dir, ebook.FormatEPUB)); f != ebook.FormatEPUB || len(problems) != 0 {
		t.Errorf("Validate(epub) = %s, %v", f, problems)
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, problems := c.Validate(empty); len(problems) != 1 {
		t.Errorf("Validate(empty) = %v, want one problem", problems)
	}

	broken := filepath.Join(dir, "broken.epub")
	if err := os.WriteFile(broken, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, problems := c.Validate(broken); len(problems) == 0 {
		t.Error("Validate(broken) reported no problems")
	}
}

func TestPopulate(t *testing.T) {
	meta := ebook.Metadata{Title: "T"}
	content := "one" + ebook.ChapterSeparator + "two"

	h := epub.New()
	Populate(h, ebook.FormatEPUB, meta, content)
	chapters := h.Chapters()
	if len(chapters) != 2 || chapters[0].Title != "Chapter 1" || chapters[1].Content != "two" {
		t.Errorf("Chapters() = %+v", chapters)
	}
	if h.Metadata().Title != "T" || h.Content() != content {
		t.Errorf("metadata or content not set")
	}

	th := txt.New()
	Populate(th, ebook.FormatTXT, meta, content)
	if !strings.Contains(th.Content(), "two") {
		t.Errorf("Content() = %q", th.Content())
	}
}
