package fb2

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yuanying/ebookkit/internal/ebook"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<FictionBook xmlns="http://www.gribuser.ru/xml/fictionbook/2.0">
  <description>
    <title-info>
      <genre>sf</genre>
      <author>
        <first-name>Arthur</first-name>
        <last-name>Clarke</last-name>
      </author>
      <book-title>Rendezvous</book-title>
      <lang>en</lang>
    </title-info>
    <document-info>
      <author><first-name>Editor</first-name></author>
    </document-info>
  </description>
  <body>
    <section>
      <title><p>Chapter 1</p></title>
      <p>First &amp; <emphasis>foremost</emphasis>.</p>
      <p>Second.</p>
    </section>
  </body>
  <binary id="cover.png" content-type="image/png">iVBORw0KGgo=</binary>
</FictionBook>`

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestHandler_Read(t *testing.T) {
	h := New()
	if err := h.ReadFile(writeFile(t, "book.fb2", []byte(sample))); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	meta := h.Metadata()
	if meta.Title != "Rendezvous" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.Author != "Arthur Clarke" {
		t.Errorf("Author = %q, want %q", meta.Author, "Arthur Clarke")
	}
	if meta.Language != "en" || meta.Format != "FB2" {
		t.Errorf("Language = %q, Format = %q", meta.Language, meta.Format)
	}
	if len(meta.Tags) != 1 || meta.Tags[0] != "sf" {
		t.Errorf("Tags = %v", meta.Tags)
	}

	want := "Chapter 1 \nFirst & foremost . \nSecond. \n"
	if got := h.Content(); got != want {
		t.Errorf("Content() = %q, want %q", got, want)
	}

	images := h.Images()
	if len(images) != 1 || images[0].Name != "cover.png" || images[0].MIMEType != "image/png" {
		t.Fatalf("Images() = %+v", images)
	}
	if !bytes.HasPrefix(images[0].Data, []byte("\x89PNG")) {
		t.Errorf("image data not decoded: %q", images[0].Data)
	}
	if !h.Validate() {
		t.Errorf("Validate() = false")
	}
}

func TestHandler_ReadLegacyCharset(t *testing.T) {
	// "Привет" in Windows-1251.
	title := []byte{0xCF, 0xF0, 0xE8, 0xE2, 0xE5, 0xF2}
	var doc bytes.Buffer
	doc.WriteString(`<?xml version="1.0" encoding="windows-1251"?><FictionBook><description><title-info><book-title>`)
	doc.Write(title)
	doc.WriteString(`</book-title></title-info></description><body><p>x</p></body></FictionBook>`)

	h := New()
	if err := h.ReadFile(writeFile(t, "ru.fb2", doc.Bytes())); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := h.Metadata().Title; got != "Привет" {
		t.Errorf("Title = %q, want %q", got, "Привет")
	}
}

func TestHandler_ReadMalformed(t *testing.T) {
	h := New()
	err := h.ReadFile(writeFile(t, "bad.fb2", []byte("<FictionBook><body><p>open</body>")))
	if !errors.Is(err, ebook.ErrXML) {
		t.Errorf("ReadFile() error = %v, want ErrXML", err)
	}
}

func TestHandler_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.fb2")

	w := New()
	w.SetMetadata(ebook.Metadata{Title: "Tom & Jerry", Author: "Hanna Barbera", Language: "ja"})
	w.SetContent("Hello <world>\nSecond line")
	w.AddImage("pic.gif", []byte("GIF89a"))
	if err := w.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	r := New()
	if err := r.ReadFile(path); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	meta := r.Metadata()
	if meta.Title != "Tom & Jerry" || meta.Author != "Hanna Barbera" || meta.Language != "ja" {
		t.Errorf("Metadata() = %+v", meta)
	}
	if got, want := r.Content(), "Hello <world> \nSecond line \n"; got != want {
		t.Errorf("Content() = %q, want %q", got, want)
	}
	if imgs := r.Images(); len(imgs) != 1 || string(imgs[0].Data) != "GIF89a" || imgs[0].MIMEType != "image/gif" {
		t.Errorf("Images() = %+v", imgs)
	}
}

func TestHandler_WriteDefaults(t *testing.T) {
	h := New()
	h.SetContent("Body")
	h.AddChapter("Two", "More text")
	out := string(h.render())

	for _, want := range []string{
		"<book-title>Untitled</book-title>",
		"<first-name>Unknown</first-name>",
		"<lang>en</lang>",
		"<p>Body</p>\n      <p>More text</p>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render() missing %q in:\n%s", want, out)
		}
	}
}

func TestHandler_RenderIsDeterministic(t *testing.T) {
	h := New()
	h.SetMetadata(ebook.Metadata{Title: "Same"})
	h.SetContent("a\nb")
	if !bytes.Equal(h.render(), h.render()) {
		t.Errorf("render() output differs between calls")
	}
}

func TestHandler_ValidateRepair(t *testing.T) {
	h := New()
	if h.Validate() {
		t.Errorf("Validate() = true without title")
	}
	h.Repair()
	h.Repair()
	if !h.Validate() || h.Metadata().Title != ebook.DefaultTitle {
		t.Errorf("Repair() title = %q", h.Metadata().Title)
	}
	if err := h.ConvertTo(ebook.FormatTXT, "x.txt"); !errors.Is(err, ebook.ErrNotSupported) {
		t.Errorf("ConvertTo() error = %v, want ErrNotSupported", err)
	}
}
