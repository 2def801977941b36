package kindle

import (
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yuanying/ebookkit/internal/ebook"
	"github.com/yuanying/ebookkit/internal/epub"
)

// inheritedAttrs are copied from <html>/<body> onto the chapter wrapper.
var inheritedAttrs = []string{"class", "dir", "lang", "xml:lang"}

type chapter struct {
	id    string // "ch01", "ch02", ...
	path  string // archive path of the source document
	doc   *goquery.Document
	attrs map[string]string
}

// assembler merges spine documents into the single flow KF8 stores.
// Every chapter becomes a <div id="chNN"> and every element id inside it
// is prefixed with the chapter id.
type assembler struct {
	chapters []*chapter
	styles   []string
	ids      map[string]string // archive path -> chapter id
	paths    map[string]string // chapter id -> archive path
}

func newAssembler() *assembler {
	return &assembler{ids: make(map[string]string), paths: make(map[string]string)}
}

// add registers a section and returns its chapter id. Image sources are
// rewritten to archive paths so they match the manifest.
func (a *assembler) add(sec *epub.Section) string {
	id := fmt.Sprintf("ch%02d", len(a.chapters)+1)
	a.ids[sec.Path] = id
	a.paths[id] = sec.Path

	dir := path.Dir(sec.Path)
	sec.Document.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		s.SetAttr("src", path.Clean(path.Join(dir, src)))
	})

	attrs := make(map[string]string)
	for _, sel := range []string{"html", "body"} {
		node := sec.Document.Find(sel).First()
		for _, name := range inheritedAttrs {
			if v, ok := node.Attr(name); ok {
				attrs[name] = v
			}
		}
	}

	a.chapters = append(a.chapters, &chapter{id: id, path: sec.Path, doc: sec.Document, attrs: attrs})
	return id
}

// addStylesheet appends a chapter stylesheet, sanitized and scoped to the
// chapter. An empty chapter id adds it unscoped.
func (a *assembler) addStylesheet(chapterID, css string) {
	css = sanitizeCSS(css)
	if chapterID != "" {
		css = scopeIDSelectors(chapterID, css)
	}
	a.styles = append(a.styles, css)
}

func (a *assembler) chapterIDs() map[string]string {
	return maps.Clone(a.ids)
}

// removeImages drops every <img>, used when no image could be stored.
func (a *assembler) removeImages() {
	for _, ch := range a.chapters {
		ch.doc.Find("img").Remove()
	}
}

// build renders the merged document.
func (a *assembler) build() (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html xmlns="http://www.w3.org/1999/xhtml"><head></head><body></body></html>`))
	if err != nil {
		return "", ebook.Wrap(ebook.KindParse, err, "create book document")
	}

	if len(a.styles) > 0 {
		css := strings.ReplaceAll(strings.Join(a.styles, "\n"), "</style>", `<\/style>`)
		doc.Find("head").AppendHtml("<style>" + css + "</style>")
	}

	body := doc.Find("body")
	for _, ch := range a.chapters {
		downgradeMarkup(ch.doc)
		src := ch.doc.Find("body")
		scopeElementIDs(ch.id, src)

		var b strings.Builder
		fmt.Fprintf(&b, `<div id="%s"`, ch.id)
		for _, name := range inheritedAttrs {
			if v, ok := ch.attrs[name]; ok {
				fmt.Fprintf(&b, ` %s="%s"`, name, v)
			}
		}
		b.WriteString("><mbp:pagebreak/>")

		var childErr error
		src.Children().EachWithBreak(func(i int, s *goquery.Selection) bool {
			h, err := goquery.OuterHtml(s)
			if err != nil {
				childErr = ebook.Wrap(ebook.KindParse, err, "render %s child %d", ch.id, i)
				return false
			}
			b.WriteString(h)
			return true
		})
		if childErr != nil {
			return "", childErr
		}
		b.WriteString("</div>")
		body.AppendHtml(b.String())
	}

	a.rewriteLinks(body)

	out, err := doc.Html()
	if err != nil {
		return "", ebook.Wrap(ebook.KindParse, err, "render book document")
	}
	return out, nil
}

// scopeElementIDs prefixes element ids with the chapter id. kobo.* span ids
// are kept as they are.
func scopeElementIDs(chapterID string, body *goquery.Selection) {
	body.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		if id == "" || strings.HasPrefix(id, "kobo.") {
			return
		}
		s.SetAttr("id", chapterID+"-"+fragmentID(id))
	})
}

// fragmentID makes a URL fragment safe to use inside an id attribute.
func fragmentID(fragment string) string {
	return url.QueryEscape(fragment)
}

// rewriteLinks points cross-document links at the merged chapter ids.
// Absolute URLs are left alone.
func (a *assembler) rewriteLinks(body *goquery.Selection) {
	body.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := url.Parse(href)
		if err != nil || u.IsAbs() {
			return
		}

		if u.Path == "" {
			if u.Fragment == "" {
				return
			}
			if strings.HasPrefix(u.Fragment, "kobo.") {
				warnMissingKobo(body, u.Fragment)
				return
			}
			if id := a.enclosingChapter(s); id != "" {
				s.SetAttr("href", "#"+id+"-"+fragmentID(u.Fragment))
			}
			return
		}

		target := u.Path
		if from := a.paths[a.enclosingChapter(s)]; from != "" {
			target = path.Clean(path.Join(path.Dir(from), u.Path))
		}
		id, ok := a.ids[target]
		if !ok {
			id, ok = a.idByBase(path.Base(target))
		}
		if !ok {
			return
		}

		switch {
		case u.Fragment == "":
			s.SetAttr("href", "#"+id)
		case strings.HasPrefix(u.Fragment, "kobo."):
			warnMissingKobo(body, u.Fragment)
			s.SetAttr("href", "#"+u.Fragment)
		default:
			s.SetAttr("href", "#"+id+"-"+fragmentID(u.Fragment))
		}
	})
}

func (a *assembler) idByBase(base string) (string, bool) {
	for p, id := range a.ids {
		if path.Base(p) == base {
			return id, true
		}
	}
	return "", false
}

// enclosingChapter returns the id of the chapter div holding s.
func (a *assembler) enclosingChapter(s *goquery.Selection) string {
	for p := s.Parent(); p.Length() > 0; p = p.Parent() {
		if id, ok := p.Attr("id"); ok {
			if _, known := a.paths[id]; known {
				return id
			}
		}
	}
	return ""
}

func warnMissingKobo(body *goquery.Selection, id string) {
	if body.Find(`[id="`+strings.ReplaceAll(id, `"`, `\"`)+`"]`).Length() == 0 {
		slog.Warn("link target not found", "fragment", id)
	}
}
