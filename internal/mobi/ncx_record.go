package mobi

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yuanying/ebookkit/internal/ebook"
)

// ncxPrefix starts every navigation record.
const ncxPrefix = "<html><head>"

// NCXRecordConfig describes the navigation record of a book.
type NCXRecordConfig struct {
	Title   string
	Entries []NCXEntry
	Guide   []GuideReference
}

// NCXEntry is a navigation entry pointing at a text offset.
type NCXEntry struct {
	Label    string
	FilePos  uint32
	Children []NCXEntry
}

// GuideReference is a guide entry of the navigation record.
type GuideReference struct {
	Type    string
	Title   string
	FilePos uint32
}

// GenerateNCXRecord renders the navigation record as filepos-linked HTML.
func GenerateNCXRecord(cfg NCXRecordConfig) []byte {
	var b strings.Builder
	b.WriteString(ncxPrefix)
	if len(cfg.Guide) > 0 {
		b.WriteString("<guide>")
		for _, ref := range cfg.Guide {
			fmt.Fprintf(&b, `<reference type="%s" title="%s" filepos="%08d"/>`,
				html.EscapeString(ref.Type), html.EscapeString(ref.Title), ref.FilePos)
		}
		b.WriteString("</guide>")
	}
	b.WriteString("</head><body>")
	fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(cfg.Title))
	if len(cfg.Entries) > 0 {
		writeNCXEntries(&b, cfg.Entries)
	}
	b.WriteString("</body></html>")
	return []byte(b.String())
}

func writeNCXEntries(b *strings.Builder, entries []NCXEntry) {
	b.WriteString("<ul>")
	for _, e := range entries {
		fmt.Fprintf(b, `<li><a filepos="%08d">%s</a>`, e.FilePos, html.EscapeString(e.Label))
		if len(e.Children) > 0 {
			writeNCXEntries(b, e.Children)
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
}

// isNCXRecord reports whether rec is a navigation record.
func isNCXRecord(rec []byte) bool {
	return bytes.HasPrefix(rec, []byte(ncxPrefix))
}

// ParseNCXRecord reads the nested list of a navigation record back into
// table-of-contents entries. Href holds the "filepos:NNNNNNNN" target.
func ParseNCXRecord(rec []byte) ([]ebook.TocEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rec))
	if err != nil {
		return nil, ebook.Wrap(ebook.KindParse, err, "parse navigation record")
	}
	id := 0
	var walk func(ul *goquery.Selection, level int) []ebook.TocEntry
	walk = func(ul *goquery.Selection, level int) []ebook.TocEntry {
		var out []ebook.TocEntry
		ul.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			a := li.ChildrenFiltered("a").First()
			id++
			e := ebook.TocEntry{
				ID:    id,
				Title: strings.TrimSpace(a.Text()),
				Level: level,
			}
			if pos, ok := a.Attr("filepos"); ok {
				e.Href = "filepos:" + pos
			}
			e.Children = walk(li.ChildrenFiltered("ul").First(), level+1)
			out = append(out, e)
		})
		return out
	}
	return walk(doc.Find("body > ul").First(), 1), nil
}
