package epub

import (
	"archive/zip"
	"fmt"
	"html"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/yuanying/ebookkit/internal/ebook"
)

// Version selects the package document version written by the handler.
type Version int

const (
	V2 Version = 2
	V3 Version = 3
)

// ParseVersion maps "2", "2.0", "3", "3.0" to a Version.
func ParseVersion(s string) (Version, error) {
	switch strings.TrimSpace(s) {
	case "2", "2.0":
		return V2, nil
	case "3", "3.0", "":
		return V3, nil
	}
	return 0, ebook.Errorf(ebook.KindInvalidMetadata, "unknown EPUB version %q", s)
}

func (v Version) String() string {
	if v == V2 {
		return "2.0"
	}
	return "3.0"
}

const (
	defaultAuthor   = "Unknown"
	defaultLanguage = "en"
)

// book is the normalized state serialized by writeBook.
type book struct {
	version  Version
	id       string
	meta     ebook.Metadata
	chapters []ebook.Chapter
	images   []ebook.ImageData
}

func writeBook(path string, b *book) (err error) {
	if err := ebook.EnsureParentDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return ebook.Wrap(ebook.KindIO, err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = ebook.Wrap(ebook.KindIO, cerr, "close %s", path)
		}
	}()

	zw := zip.NewWriter(f)
	if err := b.writeEntries(zw); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return ebook.Wrap(ebook.KindZip, err, "finish %s", path)
	}
	return nil
}

func (b *book) writeEntries(zw *zip.Writer) error {
	// mimetype must be first and stored
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return ebook.Wrap(ebook.KindZip, err, "create mimetype")
	}
	if _, err := io.WriteString(w, MediaType); err != nil {
		return ebook.Wrap(ebook.KindZip, err, "write mimetype")
	}

	entries := []struct {
		name string
		body string
	}{
		{containerPath, containerXML},
		{"OEBPS/content.opf", b.packageDocument()},
		{"OEBPS/toc.ncx", b.ncxDocument()},
	}
	if b.version == V3 {
		entries = append(entries, struct {
			name string
			body string
		}{"OEBPS/nav.xhtml", b.navDocument()})
	}
	for i, ch := range b.chapters {
		entries = append(entries, struct {
			name string
			body string
		}{"OEBPS/" + chapterFile(i), chapterDocument(ch)})
	}

	for _, e := range entries {
		if err := writeDeflated(zw, e.name, []byte(e.body)); err != nil {
			return err
		}
	}
	for _, img := range b.images {
		if err := writeDeflated(zw, "OEBPS/"+img.Name, img.Data); err != nil {
			return err
		}
	}
	return nil
}

func writeDeflated(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return ebook.Wrap(ebook.KindZip, err, "create %s", name)
	}
	if _, err := w.Write(data); err != nil {
		return ebook.Wrap(ebook.KindZip, err, "write %s", name)
	}
	return nil
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

func chapterFile(i int) string {
	return fmt.Sprintf("chapter%d.xhtml", i+1)
}

func esc(s string) string {
	return html.EscapeString(s)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func (b *book) title() string    { return orDefault(b.meta.Title, ebook.DefaultTitle) }
func (b *book) author() string   { return orDefault(b.meta.Author, defaultAuthor) }
func (b *book) language() string { return orDefault(b.meta.Language, defaultLanguage) }

func (b *book) packageDocument() string {
	var s strings.Builder
	s.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&s, `<package xmlns="http://www.idpf.org/2007/opf" version="%s" unique-identifier="BookID">`+"\n", b.version)
	s.WriteString(`  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">` + "\n")
	fmt.Fprintf(&s, "    <dc:title>%s</dc:title>\n", esc(b.title()))
	fmt.Fprintf(&s, "    <dc:creator>%s</dc:creator>\n", esc(b.author()))
	fmt.Fprintf(&s, "    <dc:language>%s</dc:language>\n", esc(b.language()))
	fmt.Fprintf(&s, "    <dc:identifier id=\"BookID\">urn:uuid:%s</dc:identifier>\n", b.id)
	if b.meta.Publisher != "" {
		fmt.Fprintf(&s, "    <dc:publisher>%s</dc:publisher>\n", esc(b.meta.Publisher))
	}
	if b.meta.Description != "" {
		fmt.Fprintf(&s, "    <dc:description>%s</dc:description>\n", esc(b.meta.Description))
	}
	if b.meta.PublicationDate != "" {
		fmt.Fprintf(&s, "    <dc:date>%s</dc:date>\n", esc(b.meta.PublicationDate))
	}
	for _, tag := range b.meta.Tags {
		fmt.Fprintf(&s, "    <dc:subject>%s</dc:subject>\n", esc(tag))
	}
	s.WriteString("  </metadata>\n  <manifest>\n")
	if b.version == V3 {
		s.WriteString(`    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>` + "\n")
	}
	s.WriteString(`    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>` + "\n")
	for i := range b.chapters {
		fmt.Fprintf(&s, `    <item id="ch%d" href="%s" media-type="application/xhtml+xml"/>`+"\n", i+1, chapterFile(i))
	}
	for i, img := range b.images {
		fmt.Fprintf(&s, `    <item id="img%d" href="%s" media-type="%s"/>`+"\n", i+1, esc(img.Name), esc(img.MIMEType))
	}
	s.WriteString("  </manifest>\n  <spine toc=\"ncx\">\n")
	for i := range b.chapters {
		fmt.Fprintf(&s, "    <itemref idref=\"ch%d\"/>\n", i+1)
	}
	s.WriteString("  </spine>\n</package>\n")
	return s.String()
}

func (b *book) ncxDocument() string {
	var s strings.Builder
	s.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	s.WriteString(`<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">` + "\n")
	s.WriteString("  <head>\n")
	fmt.Fprintf(&s, "    <meta name=\"dtb:uid\" content=\"urn:uuid:%s\"/>\n", b.id)
	s.WriteString("    <meta name=\"dtb:depth\" content=\"1\"/>\n")
	s.WriteString("  </head>\n")
	fmt.Fprintf(&s, "  <docTitle><text>%s</text></docTitle>\n", esc(b.title()))
	s.WriteString("  <navMap>\n")
	for i, ch := range b.chapters {
		fmt.Fprintf(&s, "    <navPoint id=\"navpoint-%d\" playOrder=\"%d\">\n", i+1, i+1)
		fmt.Fprintf(&s, "      <navLabel><text>%s</text></navLabel>\n", esc(ch.Title))
		fmt.Fprintf(&s, "      <content src=\"%s\"/>\n", chapterFile(i))
		s.WriteString("    </navPoint>\n")
	}
	s.WriteString("  </navMap>\n</ncx>\n")
	return s.String()
}

func (b *book) navDocument() string {
	var s strings.Builder
	s.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	s.WriteString("<!DOCTYPE html>\n")
	s.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">` + "\n")
	fmt.Fprintf(&s, "<head><title>%s</title></head>\n<body>\n", esc(b.title()))
	s.WriteString("  <nav epub:type=\"toc\" id=\"toc\">\n    <ol>\n")
	for i, ch := range b.chapters {
		fmt.Fprintf(&s, "      <li><a href=\"%s\">%s</a></li>\n", chapterFile(i), esc(ch.Title))
	}
	s.WriteString("    </ol>\n  </nav>\n</body>\n</html>\n")
	return s.String()
}

// chapterDocument wraps plain text in a minimal XHTML page. Content that is
// already an XHTML document is written as is.
func chapterDocument(ch ebook.Chapter) string {
	if looksLikeXHTML(ch.Content) {
		return ch.Content
	}
	var s strings.Builder
	s.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	s.WriteString("<!DOCTYPE html>\n")
	s.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml">` + "\n")
	fmt.Fprintf(&s, "<head><title>%s</title></head>\n", esc(ch.Title))
	fmt.Fprintf(&s, "<body><div style=\"white-space: pre-wrap\">%s</div></body>\n", esc(ch.Content))
	s.WriteString("</html>\n")
	return s.String()
}

func looksLikeXHTML(content string) bool {
	head := strings.TrimSpace(content)
	if len(head) > 256 {
		head = head[:256]
	}
	head = strings.ToLower(head)
	return strings.HasPrefix(head, "<?xml") || strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}

func newBookID() string {
	return uuid.NewString()
}
