package epub

import (
	"bytes"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yuanying/ebookkit/internal/ebook"
	"github.com/yuanying/ebookkit/internal/htmltext"
)

// Section is a parsed XHTML spine document.
type Section struct {
	ID        string            // manifest id
	Path      string            // archive path
	Title     string            // first h1/h2/title, "" if none
	Text      string            // flattened visible text
	Document  *goquery.Document // parsed markup
	ImageRefs []string          // resolved image paths
}

// LoadSection parses an XHTML document stored at p in the archive.
func LoadSection(id, p string, data []byte) (*Section, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, ebook.Wrap(ebook.KindParse, err, "parse %s", p)
	}
	text, err := htmltext.Extract(data)
	if err != nil {
		return nil, ebook.Wrap(ebook.KindParse, err, "extract text from %s", p)
	}

	s := &Section{
		ID:       id,
		Path:     p,
		Document: doc,
		Text:     text,
		Title:    sectionTitle(doc),
	}

	baseDir := path.Dir(p)
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok {
			s.ImageRefs = append(s.ImageRefs, resolvePath(baseDir, src))
		}
	})
	return s, nil
}

func sectionTitle(doc *goquery.Document) string {
	for _, sel := range []string{"body h1", "body h2", "head title"} {
		if t := collapse(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// HTML returns the inner markup of the body element.
func (s *Section) HTML() string {
	h, err := s.Document.Find("body").Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(h)
}
