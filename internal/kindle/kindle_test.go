package kindle

import (
	"archive/zip"
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yuanying/ebookkit/internal/ebook"
	"github.com/yuanying/ebookkit/internal/mobi"
	"github.com/yuanying/ebookkit/internal/optimize"
)

type zipEntry struct {
	name string
	body []byte
}

func writeEPUB(t *testing.T, entries []zipEntry) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "book.epub")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create %s: %v", p, err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, e := range entries {
		method := zip.Deflate
		if e.name == "mimetype" {
			method = zip.Store
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		if err != nil {
			t.Fatalf("create entry %s: %v", e.name, err)
		}
		if _, err := fw.Write(e.body); err != nil {
			t.Fatalf("write entry %s: %v", e.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return p
}

func pngImage(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

const containerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`

const bookOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Kindle Book</dc:title>
    <dc:creator>Jane Roe</dc:creator>
    <dc:language>en</dc:language>
    <dc:identifier id="id">urn:uuid:42</dc:identifier>
    <meta name="cover" content="cover-img"/>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="css" href="style.css" media-type="text/css"/>
    <item id="c1" href="text/one.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="text/two.xhtml" media-type="application/xhtml+xml"/>
    <item id="cover-img" href="images/cover.png" media-type="image/png"/>
    <item id="pic" href="images/pic.png" media-type="image/png"/>
    <item id="vector" href="images/line.svg" media-type="image/svg+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="c1"/>
    <itemref idref="c2"/>
  </spine>
</package>`

const bookNCX = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <docTitle><text>Kindle Book</text></docTitle>
  <navMap>
    <navPoint id="n1" playOrder="1"><navLabel><text>Opening</text></navLabel><content src="text/one.xhtml"/></navPoint>
    <navPoint id="n2" playOrder="2"><navLabel><text>Later</text></navLabel><content src="text/two.xhtml#later"/></navPoint>
  </navMap>
</ncx>`

func bookEntries(t *testing.T) []zipEntry {
	return []zipEntry{
		{name: "mimetype", body: []byte("application/epub+zip")},
		{name: "META-INF/container.xml", body: []byte(containerXML)},
		{name: "OEBPS/content.opf", body: []byte(bookOPF)},
		{name: "OEBPS/toc.ncx", body: []byte(bookNCX)},
		{name: "OEBPS/style.css", body: []byte(`#later { position: fixed; font-size: 24px; }`)},
		{name: "OEBPS/text/one.xhtml", body: []byte(`<html><head><link rel="stylesheet" href="../style.css"/></head>
<body><h1>Opening</h1><p>First text.</p><img src="../images/pic.png"/></body></html>`)},
		{name: "OEBPS/text/two.xhtml", body: []byte(`<html><head><link rel="stylesheet" href="../style.css"/></head>
<body><h2 id="later">Later</h2><p>Second text.</p></body></html>`)},
		{name: "OEBPS/images/cover.png", body: pngImage(t, 6, 8, color.RGBA{R: 200, A: 255})},
		{name: "OEBPS/images/pic.png", body: pngImage(t, 4, 4, color.RGBA{B: 200, A: 255})},
		{name: "OEBPS/images/line.svg", body: []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`)},
	}
}

func TestBuild(t *testing.T) {
	input := writeEPUB(t, bookEntries(t))
	output := filepath.Join(t.TempDir(), "out", "book.azw3")

	opts := Options{Images: optimize.New(optimize.DefaultOptions())}
	if err := Build(input, output, opts); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	h := mobi.NewAzwHandler()
	if err := h.ReadFile(output); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	meta := h.Metadata()
	if meta.Title != "Kindle Book" || meta.Author != "Jane Roe" {
		t.Errorf("Metadata() = %+v", meta)
	}
	if len(meta.CoverImage) == 0 {
		t.Errorf("cover image not recorded")
	}

	content := h.Content()
	for _, want := range []string{"First text.", "Second text.", "Opening"} {
		if !strings.Contains(content, want) {
			t.Errorf("Content() missing %q: %q", want, content)
		}
	}
	if strings.Index(content, "First text.") > strings.Index(content, "Second text.") {
		t.Errorf("chapters out of spine order")
	}

	if n := len(h.Images()); n != 2 {
		t.Errorf("Images() = %d, want 2 (svg skipped)", n)
	}

	toc := h.TOC()
	if len(toc) != 2 || toc[0].Title != "Opening" || toc[1].Title != "Later" {
		t.Errorf("TOC() = %+v", toc)
	}
}

func TestBuild_Markup(t *testing.T) {
	input := writeEPUB(t, bookEntries(t))
	output := filepath.Join(t.TempDir(), "book.azw3")
	if err := Build(input, output, Options{Compression: mobi.CompressionNone}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	h := mobi.NewAzwHandler()
	if err := h.ReadFile(output); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	html := h.HTML()
	for _, want := range []string{`id="ch01"`, `id="ch02-later"`, `#ch02-later`, `src="kindle:embed:0002"`, `<div id="toc">`} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML() missing %s", want)
		}
	}
	if strings.Contains(html, "position") || strings.Contains(html, "24px") {
		t.Errorf("stylesheet not sanitized")
	}
	if strings.Contains(html, "images/pic.png") {
		t.Errorf("image reference not rewritten")
	}
}

func TestBuild_NoChapters(t *testing.T) {
	entries := bookEntries(t)
	entries[2].body = []byte(strings.NewReplacer(
		`<itemref idref="c1"/>`, "",
		`<itemref idref="c2"/>`, `<itemref idref="pic"/>`,
	).Replace(bookOPF))

	input := writeEPUB(t, entries)
	err := Build(input, filepath.Join(t.TempDir(), "book.azw3"), Options{})
	if !errors.Is(err, ebook.ErrInvalidStructure) {
		t.Errorf("Build() error = %v, want %v", err, ebook.ErrInvalidStructure)
	}
}

func TestBuild_MissingInput(t *testing.T) {
	err := Build(filepath.Join(t.TempDir(), "nope.epub"), filepath.Join(t.TempDir(), "x.azw3"), Options{})
	if err == nil {
		t.Fatalf("Build() error = nil for missing input")
	}
}
