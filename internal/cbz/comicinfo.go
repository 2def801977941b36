package cbz

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/yuanying/ebookkit/internal/ebook"
)

// ComicInfoName is the archive path of the metadata sidecar.
const ComicInfoName = "ComicInfo.xml"

// ComicInfo is the subset of the ComicRack metadata schema kept by the
// handler. Empty fields are omitted when written.
type ComicInfo struct {
	XMLName     xml.Name `xml:"ComicInfo"`
	XSI         string   `xml:"xmlns:xsi,attr,omitempty"`
	XSD         string   `xml:"xmlns:xsd,attr,omitempty"`
	Title       string   `xml:"Title,omitempty"`
	Series      string   `xml:"Series,omitempty"`
	Number      string   `xml:"Number,omitempty"`
	Volume      string   `xml:"Volume,omitempty"`
	Summary     string   `xml:"Summary,omitempty"`
	Publisher   string   `xml:"Publisher,omitempty"`
	Writer      string   `xml:"Writer,omitempty"`
	Penciller   string   `xml:"Penciller,omitempty"`
	Inker       string   `xml:"Inker,omitempty"`
	Colorist    string   `xml:"Colorist,omitempty"`
	Letterer    string   `xml:"Letterer,omitempty"`
	CoverArtist string   `xml:"CoverArtist,omitempty"`
	Editor      string   `xml:"Editor,omitempty"`
	Year        string   `xml:"Year,omitempty"`
	Month       string   `xml:"Month,omitempty"`
	Day         string   `xml:"Day,omitempty"`
	LanguageISO string   `xml:"LanguageISO,omitempty"`
	PageCount   *uint32  `xml:"-"`
	Genre       string   `xml:"Genre,omitempty"`
	Tags        []string `xml:"-"`
	Web         string   `xml:"Web,omitempty"`
}

// comicInfoXML carries the fields that need conversion on the wire.
type comicInfoXML struct {
	ComicInfo
	PageCount string `xml:"PageCount,omitempty"`
	Tags      string `xml:"Tags,omitempty"`
}

// ParseComicInfo decodes a ComicInfo.xml document. An unparseable page
// count is ignored; tags are split on commas.
func ParseComicInfo(data []byte) (*ComicInfo, error) {
	var raw comicInfoXML
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, ebook.Wrap(ebook.KindXML, err, "parse %s", ComicInfoName)
	}
	ci := raw.ComicInfo
	ci.XSI, ci.XSD = "", ""
	if n, err := strconv.ParseUint(strings.TrimSpace(raw.PageCount), 10, 32); err == nil {
		count := uint32(n)
		ci.PageCount = &count
	}
	for _, tag := range strings.Split(raw.Tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			ci.Tags = append(ci.Tags, tag)
		}
	}
	return &ci, nil
}

// Marshal renders the document with an XML declaration.
func (ci *ComicInfo) Marshal() ([]byte, error) {
	raw := comicInfoXML{ComicInfo: *ci, Tags: strings.Join(ci.Tags, ", ")}
	raw.XSI = "http://www.w3.org/2001/XMLSchema-instance"
	raw.XSD = "http://www.w3.org/2001/XMLSchema"
	if ci.PageCount != nil {
		raw.PageCount = strconv.FormatUint(uint64(*ci.PageCount), 10)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(raw); err != nil {
		return nil, ebook.Wrap(ebook.KindXML, err, "encode %s", ComicInfoName)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// ComicInfoFromMetadata maps the common metadata onto a new document.
// The author becomes the writer and the description the summary.
func ComicInfoFromMetadata(meta ebook.Metadata) *ComicInfo {
	ci := &ComicInfo{}
	ci.Overlay(meta)
	return ci
}

// Overlay copies the non-empty mapped fields of meta onto ci.
func (ci *ComicInfo) Overlay(meta ebook.Metadata) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&ci.Title, meta.Title)
	set(&ci.Publisher, meta.Publisher)
	set(&ci.Summary, meta.Description)
	set(&ci.LanguageISO, meta.Language)
	set(&ci.Writer, meta.Author)
	set(&ci.Series, meta.Custom["series"])
	set(&ci.Number, meta.Custom["number"])
	if len(meta.Tags) > 0 {
		ci.Tags = append([]string(nil), meta.Tags...)
	}
}

// ToMetadata maps the document onto the common metadata. Role fields other
// than the writer are dropped; series and number are kept as custom fields.
func (ci *ComicInfo) ToMetadata() ebook.Metadata {
	meta := ebook.Metadata{
		Title:       ci.Title,
		Author:      ci.Writer,
		Publisher:   ci.Publisher,
		Description: ci.Summary,
		Language:    ci.LanguageISO,
		Format:      ebook.FormatCBZ.Label(),
	}
	if len(ci.Tags) > 0 {
		meta.Tags = append([]string(nil), ci.Tags...)
	}
	if ci.Series != "" {
		meta.SetCustom("series", ci.Series)
	}
	if ci.Number != "" {
		meta.SetCustom("number", ci.Number)
	}
	return meta
}
