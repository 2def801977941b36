package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yuanying/ebookkit/internal/ebook"
)

// NCX is the navigation structure read from an NCX or EPUB 3 nav document.
type NCX struct {
	UID       string
	Depth     int
	DocTitle  string
	NavPoints []NavPoint
}

// NavPoint is a single navigation point.
type NavPoint struct {
	ID          string
	PlayOrder   int
	Label       string
	ContentPath string // fragment-free archive path
	Fragment    string // without '#'
	Children    []NavPoint
}

type ncxDocument struct {
	Meta     []ncxMeta     `xml:"head>meta"`
	DocTitle string        `xml:"docTitle>text"`
	Points   []ncxNavPoint `xml:"navMap>navPoint"`
}

type ncxMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type ncxNavPoint struct {
	ID        string        `xml:"id,attr"`
	PlayOrder string        `xml:"playOrder,attr"`
	Label     string        `xml:"navLabel>text"`
	Src       ncxContent    `xml:"content"`
	Children  []ncxNavPoint `xml:"navPoint"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// LoadNCX loads the book navigation, preferring the NCX document and
// falling back to the EPUB 3 nav document. It returns nil when neither exists.
func LoadNCX(a *Archive, opf *OPF) (*NCX, error) {
	if opf.NCXPath != "" {
		data, err := a.ReadFile(opf.NCXPath)
		switch {
		case err == nil:
			return parseNCX(data, path.Dir(opf.NCXPath))
		case !errors.Is(err, ErrFileNotFound):
			return nil, err
		}
	}

	navPath, ok := findNAVPath(opf)
	if !ok {
		return nil, nil
	}
	data, err := a.ReadFile(navPath)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return parseNAV(data, path.Dir(navPath))
}

func parseNCX(data []byte, baseDir string) (*NCX, error) {
	var doc ncxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, ebook.Wrap(ebook.KindXML, err, "parse NCX")
	}

	ncx := &NCX{DocTitle: strings.TrimSpace(doc.DocTitle)}
	for _, m := range doc.Meta {
		switch m.Name {
		case "dtb:uid":
			ncx.UID = m.Content
		case "dtb:depth":
			ncx.Depth, _ = strconv.Atoi(m.Content)
		}
	}
	ncx.NavPoints = convertNavPoints(doc.Points, baseDir)
	return ncx, nil
}

func convertNavPoints(points []ncxNavPoint, baseDir string) []NavPoint {
	var out []NavPoint
	for _, p := range points {
		order, _ := strconv.Atoi(p.PlayOrder)
		contentPath, fragment := splitFragment(p.Src.Src)
		out = append(out, NavPoint{
			ID:          p.ID,
			PlayOrder:   order,
			Label:       strings.TrimSpace(p.Label),
			ContentPath: resolvePath(baseDir, contentPath),
			Fragment:    fragment,
			Children:    convertNavPoints(p.Children, baseDir),
		})
	}
	return out
}

// findNAVPath returns the href of the manifest item with the "nav" property.
func findNAVPath(opf *OPF) (string, bool) {
	for _, item := range opf.orderedItems() {
		if slices.Contains(item.Properties, "nav") {
			return item.Href, true
		}
	}
	return "", false
}

func parseNAV(data []byte, baseDir string) (*NCX, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, ebook.Wrap(ebook.KindParse, err, "parse nav document")
	}

	ncx := &NCX{DocTitle: strings.TrimSpace(doc.Find("title").First().Text())}
	doc.Find("nav").EachWithBreak(func(_ int, nav *goquery.Selection) bool {
		epubType, _ := nav.Attr("epub:type")
		if !hasToken(epubType, "toc") {
			return true
		}
		order := 0
		ncx.NavPoints = parseNAVList(nav.ChildrenFiltered("ol").First(), baseDir, &order)
		return false
	})
	return ncx, nil
}

func parseNAVList(ol *goquery.Selection, baseDir string, order *int) []NavPoint {
	var points []NavPoint
	ol.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		*order++
		np := NavPoint{
			ID:        "nav-" + strconv.Itoa(*order),
			PlayOrder: *order,
		}

		link := li.ChildrenFiltered("a").First()
		if link.Length() == 0 {
			link = li.Children().Not("ol").Find("a").First()
		}
		if href, ok := link.Attr("href"); ok {
			p, frag := splitFragment(href)
			np.ContentPath = resolvePath(baseDir, p)
			np.Fragment = frag
			np.Label = collapse(link.Text())
		} else {
			np.Label = collapse(li.Contents().Not("ol").Text())
		}

		np.Children = parseNAVList(li.ChildrenFiltered("ol").First(), baseDir, order)
		points = append(points, np)
	})
	return points
}

// TOC converts navigation points to the shared table-of-contents model.
func (n *NCX) TOC() []ebook.TocEntry {
	id := 0
	var convert func([]NavPoint, int) []ebook.TocEntry
	convert = func(points []NavPoint, level int) []ebook.TocEntry {
		var out []ebook.TocEntry
		for _, p := range points {
			id++
			href := p.ContentPath
			if p.Fragment != "" {
				href += "#" + p.Fragment
			}
			out = append(out, ebook.TocEntry{
				ID:       id,
				Title:    p.Label,
				Level:    level,
				Href:     href,
				Children: convert(p.Children, level+1),
			})
		}
		return out
	}
	return convert(n.NavPoints, 1)
}

// splitFragment splits a source path into the path and fragment identifier.
func splitFragment(src string) (string, string) {
	p, fragment, _ := strings.Cut(src, "#")
	return p, fragment
}

// resolvePath resolves rel against an archive directory.
func resolvePath(baseDir, rel string) string {
	if rel == "" {
		return ""
	}
	if baseDir == "" || baseDir == "." {
		return path.Clean(rel)
	}
	return path.Clean(path.Join(baseDir, rel))
}

func hasToken(list, token string) bool {
	return slices.Contains(strings.Fields(list), token)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
