package cbz

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/yuanying/ebookkit/internal/ebook"
)

const sampleComicInfo = `<?xml version="1.0"?>
<ComicInfo>
    <Title>Test Comic</Title>
    <Series>Test Series</Series>
    <Number>1</Number>
    <Writer>Test Writer</Writer>
    <Penciller>Artist</Penciller>
    <Publisher>Test Publisher</Publisher>
    <Summary>A test comic book</Summary>
    <LanguageISO>en</LanguageISO>
    <PageCount>24</PageCount>
    <Tags>Action, Adventure, </Tags>
</ComicInfo>`

func TestParseComicInfo(t *testing.T) {
	ci, err := ParseComicInfo([]byte(sampleComicInfo))
	if err != nil {
		t.Fatalf("ParseComicInfo() error = %v", err)
	}
	if ci.Title != "Test Comic" || ci.Series != "Test Series" || ci.Writer != "Test Writer" || ci.Penciller != "Artist" {
		t.Errorf("ParseComicInfo() = %+v", ci)
	}
	if ci.PageCount == nil || *ci.PageCount != 24 {
		t.Errorf("PageCount = %v, want 24", ci.PageCount)
	}
	if !slices.Equal(ci.Tags, []string{"Action", "Adventure"}) {
		t.Errorf("Tags = %q", ci.Tags)
	}
}

func TestParseComicInfo_BadPageCount(t *testing.T) {
	ci, err := ParseComicInfo([]byte(`<ComicInfo><PageCount>many</PageCount></ComicInfo>`))
	if err != nil {
		t.Fatalf("ParseComicInfo() error = %v", err)
	}
	if ci.PageCount != nil {
		t.Errorf("PageCount = %d, want nil", *ci.PageCount)
	}
}

func TestParseComicInfo_Malformed(t *testing.T) {
	_, err := ParseComicInfo([]byte(`<ComicInfo><Title>x</ComicInfo>`))
	if !errors.Is(err, ebook.ErrXML) {
		t.Errorf("ParseComicInfo() error = %v, want XML", err)
	}
}

func TestComicInfo_Marshal(t *testing.T) {
	count := uint32(24)
	ci := &ComicInfo{Title: "Test Comic", Writer: "Test Writer", PageCount: &count, Tags: []string{"a", "b"}}
	data, err := ci.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(data)
	for _, want := range []string{
		"<?xml",
		"<Title>Test Comic</Title>",
		"<Writer>Test Writer</Writer>",
		"<PageCount>24</PageCount>",
		"<Tags>a, b</Tags>",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("Marshal() missing %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "<Series>") {
		t.Errorf("empty fields should be omitted:\n%s", s)
	}

	back, err := ParseComicInfo(data)
	if err != nil {
		t.Fatalf("ParseComicInfo() error = %v", err)
	}
	if back.Title != ci.Title || *back.PageCount != 24 || !slices.Equal(back.Tags, ci.Tags) {
		t.Errorf("round trip = %+v", back)
	}
}

func TestComicInfo_MetadataMapping(t *testing.T) {
	meta := ebook.Metadata{Title: "Comic Title", Author: "Comic Author", Publisher: "Comic Publisher", Tags: []string{"x"}}
	ci := ComicInfoFromMetadata(meta)
	if ci.Title != "Comic Title" || ci.Writer != "Comic Author" || ci.Publisher != "Comic Publisher" {
		t.Errorf("ComicInfoFromMetadata() = %+v", ci)
	}
	back := ci.ToMetadata()
	if back.Title != "Comic Title" || back.Author != "Comic Author" || back.Format != "CBZ" {
		t.Errorf("ToMetadata() = %+v", back)
	}
}

type zipEntry struct {
	name string
	body string
}

func buildCBZ(t *testing.T, path string, entries []zipEntry) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func imageNames(images []ebook.ImageData) []string {
	names := make([]string, len(images))
	for i, img := range images {
		names[i] = img.Name
	}
	return names
}

func TestHandler_Read(t *testing.T) {
	path := filepath.Join(t.TempDir(), "My Comic.cbz")
	buildCBZ(t, path, []zipEntry{
		{"page10.png", "p10"},
		{ComicInfoName, sampleComicInfo},
		{"page02.jpg", "p02"},
		{"notes.txt", "ignored"},
		{"page01.webp", "p01"},
	})

	h := New()
	if err := h.ReadFile(path); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	meta := h.Metadata()
	if meta.Title != "Test Comic" || meta.Author != "Test Writer" || meta.Description != "A test comic book" || meta.Format != "CBZ" {
		t.Errorf("Metadata() = %+v", meta)
	}
	if meta.Custom["series"] != "Test Series" {
		t.Errorf("series = %q", meta.Custom["series"])
	}
	if got, want := imageNames(h.Images()), []string{"page01.webp", "page02.jpg", "page10.png"}; !slices.Equal(got, want) {
		t.Errorf("Images() = %v, want %v", got, want)
	}
	if h.Content() != "CBZ archive with 3 images" {
		t.Errorf("Content() = %q", h.Content())
	}
	if ci := h.ComicInfo(); ci == nil || *ci.PageCount != 3 {
		t.Errorf("ComicInfo() page count not updated: %+v", ci)
	}
	if len(h.TOC()) != 0 {
		t.Errorf("TOC() should be empty")
	}
}

func TestHandler_ReadFallbackTitle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Volume 3.cbz")
	buildCBZ(t, path, []zipEntry{
		{ComicInfoName, "<ComicInfo><Title>broken"},
		{"a.png", "a"},
	})
	h := New()
	if err := h.ReadFile(path); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if h.Metadata().Title != "Volume 3" {
		t.Errorf("Title = %q, want file stem", h.Metadata().Title)
	}
	if h.ComicInfo() != nil {
		t.Errorf("malformed ComicInfo should be ignored")
	}
}

func TestHandler_ReadNotZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cbz")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := New().ReadFile(path); !errors.Is(err, ebook.ErrZip) {
		t.Errorf("ReadFile() error = %v, want Zip", err)
	}
}

func TestHandler_RoundTripPageOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.cbz")

	w := New()
	w.SetMetadata(ebook.Metadata{Title: "Round", Author: "Someone", Language: "ja", Tags: []string{"t1", "t2"}})
	for _, name := range []string{"c.png", "a.jpg", "b.gif"} {
		w.AddImage(name, []byte(name))
	}
	w.SetContent("ignored")
	w.AddChapter("ignored", "ignored")
	if err := w.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	if zr.File[0].Name != ComicInfoName || zr.File[1].Method != zip.Deflate {
		t.Errorf("unexpected archive layout: %s, method %d", zr.File[0].Name, zr.File[1].Method)
	}
	zr.Close()

	r := New()
	if err := r.ReadFile(path); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	meta := r.Metadata()
	if meta.Title != "Round" || meta.Author != "Someone" || meta.Language != "ja" || !slices.Equal(meta.Tags, []string{"t1", "t2"}) {
		t.Errorf("Metadata() = %+v", meta)
	}
	if got, want := imageNames(r.Images()), []string{"a.jpg", "b.gif", "c.png"}; !slices.Equal(got, want) {
		t.Errorf("Images() = %v, want %v", got, want)
	}
}

func TestHandler_WriteKeepsComicInfoFields(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.cbz")
	buildCBZ(t, src, []zipEntry{{ComicInfoName, sampleComicInfo}, {"1.png", "1"}})

	h := New()
	if err := h.ReadFile(src); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	meta := h.Metadata()
	meta.Title = "Renamed"
	h.SetMetadata(meta)

	dst := filepath.Join(dir, "dst.cbz")
	if err := h.WriteFile(dst); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	r := New()
	if err := r.ReadFile(dst); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	ci := r.ComicInfo()
	if ci.Title != "Renamed" || ci.Penciller != "Artist" || *ci.PageCount != 1 {
		t.Errorf("ComicInfo() = %+v", ci)
	}
}

type halfOptimizer struct{}

func (halfOptimizer) Optimize(data []byte, _ string) ([]byte, error) {
	return data[:len(data)/2], nil
}

func TestHandler_Operator(t *testing.T) {
	h := New()
	if h.Validate() {
		t.Errorf("Validate() = true without pages")
	}
	h.Repair()
	h.Repair()
	if h.Metadata().Title != DefaultTitle {
		t.Errorf("Repair() title = %q", h.Metadata().Title)
	}
	h.AddImage("p.png", []byte("12345678"))
	if !h.Validate() {
		t.Errorf("Validate() = false with pages")
	}
	if saved := h.OptimizeImages(halfOptimizer{}); saved != 4 {
		t.Errorf("OptimizeImages() = %d, want 4", saved)
	}
	if err := h.ConvertTo(ebook.FormatPDF, "x.pdf"); !errors.Is(err, ebook.ErrNotSupported) {
		t.Errorf("ConvertTo() error = %v", err)
	}
}
