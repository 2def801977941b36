// Package kindle builds KF8 books directly from EPUB packages. Unlike a
// conversion through flattened text it keeps the markup, stylesheets,
// navigation and images of the source.
package kindle

import (
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yuanying/ebookkit/internal/ebook"
	"github.com/yuanying/ebookkit/internal/epub"
	"github.com/yuanying/ebookkit/internal/mobi"
	"github.com/yuanying/ebookkit/internal/optimize"
)

// Options controls a build.
type Options struct {
	// Images re-encodes every image except the cover. Nil stores images
	// as they are.
	Images *optimize.Optimizer

	// Compression is mobi.CompressionNone or mobi.CompressionPalmDoc.
	// Zero selects PalmDoc.
	Compression uint16
}

// Build converts the EPUB at input into a KF8 book at output.
func Build(input, output string, opts Options) error {
	slog.Info("building KF8 book", "input", input, "output", output)

	a, err := epub.Open(input)
	if err != nil {
		return err
	}
	defer a.Close()

	opfData, err := a.ReadFile(a.OPFPath())
	if err != nil {
		return err
	}
	opf, err := epub.ParseOPF(opfData, path.Dir(a.OPFPath()))
	if err != nil {
		return err
	}

	asm, err := assemble(a, opf)
	if err != nil {
		return err
	}

	cover := findCover(a, opf)
	images := collectImages(a, opf, cover, opts.Images)
	if len(images.Images) == 0 {
		asm.removeImages()
	}

	doc, err := asm.build()
	if err != nil {
		return err
	}

	var ncx []byte
	nav, err := epub.LoadNCX(a, opf)
	if err != nil {
		slog.Warn("ignoring unreadable navigation document", "error", err)
	}
	navi := newNavigator(nav, asm.chapterIDs())
	doc = navi.insertInlineTOC(doc)
	doc = mobi.TransformImageReferences(doc, images)

	text := []byte(doc)
	meta := opf.Metadata.Common()
	title := meta.Title
	if title == "" {
		title = ebook.DefaultTitle
	}
	if entries := navi.entries(text); len(entries) > 0 {
		ncx = mobi.GenerateNCXRecord(mobi.NCXRecordConfig{
			Title:   title,
			Entries: entries,
			Guide:   guideReferences(text),
		})
	}

	cfg := mobi.BookConfig{
		Title:        title,
		HTML:         text,
		Metadata:     meta,
		ImageRecords: images.ImageRecordData(),
		NCXRecord:    ncx,
		Compression:  opts.Compression,
	}
	if cfg.Compression == 0 {
		cfg.Compression = mobi.CompressionPalmDoc
	}
	if cover != nil {
		if idx, ok := images.PathToIndex[cover.Href]; ok {
			cfg.CoverIndex = &idx
		}
	}

	w, err := mobi.NewBookWriter(cfg)
	if err != nil {
		return err
	}
	if err := ebook.EnsureParentDir(output); err != nil {
		return err
	}
	f, err := os.Create(output)
	if err != nil {
		return ebook.Wrap(ebook.KindIO, err, "create %s", output)
	}
	defer f.Close()

	if _, err := w.WriteTo(f); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return ebook.Wrap(ebook.KindIO, err, "close %s", output)
	}
	slog.Debug("built KF8 book", "chapters", len(asm.chapters), "images", len(images.Images), "bytes", len(text))
	return nil
}

type stylesheetRef struct {
	chapterID string
	path      string
}

// assemble loads every XHTML spine document and its linked stylesheets.
func assemble(a *epub.Archive, opf *epub.OPF) (*assembler, error) {
	asm := newAssembler()
	var sheets []stylesheetRef

	for _, ref := range opf.Spine {
		item, ok := opf.Manifest[ref.IDRef]
		if !ok {
			slog.Warn("spine item missing from manifest", "idref", ref.IDRef)
			continue
		}
		if !strings.Contains(item.MediaType, "html") {
			continue
		}
		data, err := a.ReadFile(item.Href)
		if err != nil {
			slog.Warn("skipping unreadable spine item", "href", item.Href, "error", err)
			continue
		}
		sec, err := epub.LoadSection(item.ID, item.Href, data)
		if err != nil {
			slog.Warn("skipping malformed spine item", "href", item.Href, "error", err)
			continue
		}

		id := asm.add(sec)
		for _, href := range stylesheetLinks(sec) {
			sheets = append(sheets, stylesheetRef{chapterID: id, path: href})
		}
	}
	if len(asm.chapters) == 0 {
		return nil, ebook.Errorf(ebook.KindInvalidStructure, "no XHTML documents in spine")
	}

	cache := make(map[string]string)
	for _, s := range sheets {
		css, ok := cache[s.path]
		if !ok {
			data, err := a.ReadFile(s.path)
			if err != nil {
				slog.Warn("skipping unreadable stylesheet", "href", s.path, "error", err)
				continue
			}
			css = string(data)
			cache[s.path] = css
		}
		asm.addStylesheet(s.chapterID, css)
	}
	return asm, nil
}

// stylesheetLinks returns the archive paths of a section's stylesheets.
func stylesheetLinks(sec *epub.Section) []string {
	var links []string
	dir := path.Dir(sec.Path)
	sec.Document.Find(`link[href]`).Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		if !strings.EqualFold(strings.TrimSpace(rel), "stylesheet") {
			return
		}
		href, _ := s.Attr("href")
		links = append(links, path.Clean(path.Join(dir, href)))
	})
	return links
}
