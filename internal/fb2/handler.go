// Package fb2 reads and writes FictionBook 2.0 documents.
package fb2

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/yuanying/ebookkit/internal/ebook"
)

const (
	namespace      = "http://www.gribuser.ru/xml/fictionbook/2.0"
	defaultAuthor  = "Unknown"
	defaultLang    = "en"
	paragraphBreak = "</p>\n      <p>"
)

// Handler holds a FictionBook document as flattened text.
type Handler struct {
	meta     ebook.Metadata
	content  string
	chapters []ebook.Chapter
	images   []ebook.ImageData
}

var _ ebook.Operator = (*Handler)(nil)

func New() *Handler {
	return &Handler{}
}

// ReadFile scans the document once. Text inside <title-info> fills the
// metadata; text inside <body> is concatenated with a newline after each
// paragraph. <binary> elements become images.
func (h *Handler) ReadFile(filename string) error {
	slog.Info("reading FB2", "path", filename)

	data, err := ebook.ReadAll(filename)
	if err != nil {
		return err
	}
	doc, err := parse(data)
	if err != nil {
		return err
	}

	h.meta = doc.meta
	h.content = doc.content
	h.chapters = nil
	h.images = doc.images
	slog.Debug("read FB2", "title", doc.meta.Title, "images", len(doc.images))
	return nil
}

type document struct {
	meta    ebook.Metadata
	content string
	images  []ebook.ImageData
}

func parse(data []byte) (*document, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel

	doc := &document{meta: ebook.Metadata{Format: ebook.FormatFB2.Label()}}
	var (
		text        strings.Builder
		current     string
		inTitleInfo bool
		inBody      bool
		binary      *ebook.ImageData
		binaryData  strings.Builder
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ebook.Wrap(ebook.KindXML, err, "parse FictionBook")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			current = t.Name.Local
			switch current {
			case "title-info":
				inTitleInfo = true
			case "body":
				inBody = true
			case "binary":
				binary = &ebook.ImageData{Name: attr(t, "id"), MIMEType: attr(t, "content-type")}
				binaryData.Reset()
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "title-info":
				inTitleInfo = false
			case "body":
				inBody = false
			case "p":
				if inBody {
					text.WriteByte('\n')
				}
			case "binary":
				if binary != nil {
					addBinary(doc, binary, binaryData.String())
					binary = nil
				}
			}

		case xml.CharData:
			if binary != nil {
				binaryData.Write(t)
				continue
			}
			s := strings.TrimSpace(string(t))
			if s == "" {
				continue
			}
			if inTitleInfo {
				applyTitleInfo(&doc.meta, current, s)
			}
			if inBody {
				text.WriteString(s)
				text.WriteByte(' ')
			}
		}
	}

	doc.content = text.String()
	return doc, nil
}

func applyTitleInfo(meta *ebook.Metadata, element, s string) {
	switch element {
	case "book-title":
		meta.Title = s
	case "first-name", "last-name":
		if meta.Author != "" {
			meta.Author += " "
		}
		meta.Author += s
	case "lang":
		meta.Language = s
	case "genre":
		meta.Tags = append(meta.Tags, s)
	}
}

func addBinary(doc *document, img *ebook.ImageData, payload string) {
	data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(payload), ""))
	if err != nil {
		slog.Warn("skipping undecodable binary", "id", img.Name, "error", err)
		return
	}
	img.Data = data
	if img.MIMEType == "" {
		img.MIMEType = ebook.GuessMIMEType(img.Name)
	}
	doc.images = append(doc.images, *img)
}

func attr(e xml.StartElement, name string) string {
	for _, a := range e.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (h *Handler) Metadata() ebook.Metadata  { return h.meta.Clone() }
func (h *Handler) Content() string           { return h.content }
func (h *Handler) TOC() []ebook.TocEntry     { return []ebook.TocEntry{} }
func (h *Handler) Images() []ebook.ImageData { return ebook.CloneImages(h.images) }

func (h *Handler) SetMetadata(meta ebook.Metadata) { h.meta = meta.Clone() }
func (h *Handler) SetContent(content string)       { h.content = content }

// AddChapter buffers a chapter; chapters are written after the content.
func (h *Handler) AddChapter(title, content string) {
	h.chapters = append(h.chapters, ebook.Chapter{Title: title, Content: content})
}

func (h *Handler) AddImage(name string, data []byte) {
	h.images = append(h.images, ebook.NewImageData(name, data))
}

// WriteFile writes the fixed FictionBook skeleton. Every newline of the
// content starts a new paragraph.
func (h *Handler) WriteFile(filename string) error {
	slog.Info("writing FB2", "path", filename)
	return ebook.WriteAll(filename, h.render())
}

func (h *Handler) render() []byte {
	title := orDefault(h.meta.Title, ebook.DefaultTitle)
	author := orDefault(h.meta.Author, defaultAuthor)
	lang := orDefault(h.meta.Language, defaultLang)

	body := h.content
	for _, ch := range h.chapters {
		if body != "" && !strings.HasSuffix(body, "\n") {
			body += "\n"
		}
		body += ch.Content
	}

	var b bytes.Buffer
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, "<FictionBook xmlns=%q xmlns:l=\"http://www.w3.org/1999/xlink\">\n", namespace)
	b.WriteString("  <description>\n    <title-info>\n")
	for _, genre := range h.meta.Tags {
		fmt.Fprintf(&b, "      <genre>%s</genre>\n", escape(genre))
	}
	fmt.Fprintf(&b, "      <book-title>%s</book-title>\n", escape(title))
	fmt.Fprintf(&b, "      <author>\n        <first-name>%s</first-name>\n      </author>\n", escape(author))
	fmt.Fprintf(&b, "      <lang>%s</lang>\n", escape(lang))
	b.WriteString("    </title-info>\n  </description>\n")
	b.WriteString("  <body>\n    <section>\n      <p>")
	b.WriteString(strings.ReplaceAll(escape(body), "\n", paragraphBreak))
	b.WriteString("</p>\n    </section>\n  </body>\n")
	for _, img := range h.images {
		fmt.Fprintf(&b, "  <binary id=\"%s\" content-type=\"%s\">%s</binary>\n",
			escape(img.Name), escape(img.MIMEType), base64.StdEncoding.EncodeToString(img.Data))
	}
	b.WriteString("</FictionBook>\n")
	return b.Bytes()
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	// EscapeText encodes newlines as character references.
	return strings.ReplaceAll(b.String(), "&#xA;", "\n")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func (h *Handler) ConvertTo(target ebook.Format, _ string) error {
	return ebook.NotSupported(ebook.FormatFB2, target)
}

// Validate reports whether the document has a title.
func (h *Handler) Validate() bool {
	return h.meta.Title != ""
}

func (h *Handler) Repair() {
	ebook.RepairTitle(&h.meta, ebook.DefaultTitle)
}
