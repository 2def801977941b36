package kindle

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"path"
	"strings"

	"github.com/yuanying/ebookkit/internal/epub"
	"github.com/yuanying/ebookkit/internal/mobi"
)

const inlineTOCID = "toc"

// navigator maps navigation points onto the merged document.
type navigator struct {
	nav *epub.NCX
	ids map[string]string // archive path -> chapter id
}

func newNavigator(nav *epub.NCX, ids map[string]string) *navigator {
	return &navigator{nav: nav, ids: ids}
}

func (n *navigator) empty() bool {
	return n.nav == nil || len(n.nav.NavPoints) == 0
}

// targetID returns the merged element id a navigation point refers to,
// or "" when its document was not assembled.
func (n *navigator) targetID(contentPath, fragment string) string {
	id, ok := n.ids[path.Clean(contentPath)]
	if !ok {
		return ""
	}
	if fragment == "" {
		return id
	}
	return id + "-" + fragmentID(fragment)
}

// inlineTOC renders the navigation as a linked nested list.
func (n *navigator) inlineTOC() string {
	if n.empty() {
		return ""
	}
	title := n.nav.DocTitle
	if title == "" {
		title = "Table of Contents"
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<div id="%s"><h1>%s</h1>`, inlineTOCID, html.EscapeString(title))
	n.writeList(&b, n.nav.NavPoints)
	b.WriteString("</div>")
	return b.String()
}

func (n *navigator) writeList(b *strings.Builder, points []epub.NavPoint) {
	b.WriteString("<ul>")
	for _, p := range points {
		href := "#"
		if id := n.targetID(p.ContentPath, p.Fragment); id != "" {
			href += id
		}
		fmt.Fprintf(b, `<li><a href="%s">%s</a>`, html.EscapeString(href), html.EscapeString(p.Label))
		if len(p.Children) > 0 {
			n.writeList(b, p.Children)
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
}

// insertInlineTOC places the inline table of contents right after <body>.
func (n *navigator) insertInlineTOC(doc string) string {
	toc := n.inlineTOC()
	if toc == "" {
		return doc
	}
	start := strings.Index(doc, "<body")
	if start < 0 {
		return doc
	}
	end := strings.IndexByte(doc[start:], '>')
	if end < 0 {
		return doc
	}
	at := start + end + 1
	return doc[:at] + toc + doc[at:]
}

// entries resolves navigation points to byte offsets in the final text.
// Unresolvable fragments fall back to their chapter start; points whose
// chapter is missing are dropped.
func (n *navigator) entries(text []byte) []mobi.NCXEntry {
	if n.empty() {
		return nil
	}
	return n.resolve(text, n.nav.NavPoints)
}

func (n *navigator) resolve(text []byte, points []epub.NavPoint) []mobi.NCXEntry {
	out := make([]mobi.NCXEntry, 0, len(points))
	for _, p := range points {
		pos, ok := tagOffset(text, n.targetID(p.ContentPath, p.Fragment))
		if !ok && p.Fragment != "" {
			if pos, ok = tagOffset(text, n.targetID(p.ContentPath, "")); ok {
				slog.Warn("navigation fragment not found, using chapter start",
					"fragment", p.Fragment, "path", p.ContentPath)
			}
		}
		if !ok {
			slog.Warn("dropping unresolved navigation point", "label", p.Label, "path", p.ContentPath)
			continue
		}
		e := mobi.NCXEntry{Label: p.Label, FilePos: pos}
		if len(p.Children) > 0 {
			e.Children = n.resolve(text, p.Children)
		}
		out = append(out, e)
	}
	return out
}

// tagOffset returns the offset of the '<' opening the element with id.
func tagOffset(text []byte, id string) (uint32, bool) {
	if id == "" {
		return 0, false
	}
	idx := bytes.Index(text, []byte(`id="`+id+`"`))
	if idx < 0 {
		return 0, false
	}
	idx = bytes.LastIndexByte(text[:idx], '<')
	if idx < 0 {
		return 0, false
	}
	return uint32(idx), true
}

// guideReferences points the guide "toc" entry at the inline table of
// contents when one was inserted.
func guideReferences(text []byte) []mobi.GuideReference {
	pos, ok := tagOffset(text, inlineTOCID)
	if !ok {
		return nil
	}
	return []mobi.GuideReference{{Type: "toc", Title: "Table of Contents", FilePos: pos}}
}
