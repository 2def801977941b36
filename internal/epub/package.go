package epub

import (
	"encoding/xml"
	"path"
	"strings"

	"github.com/yuanying/ebookkit/internal/ebook"
)

// OPF represents the parsed Open Package Format document.
type OPF struct {
	Version                  string
	Metadata                 Metadata
	Manifest                 map[string]ManifestItem // id -> item
	ManifestOrder            []string                // ids in declaration order
	Spine                    []SpineItem
	Guide                    []GuideReference
	NCXPath                  string
	PageProgressionDirection string
}

// Metadata represents the metadata section of the OPF.
type Metadata struct {
	Title       string
	Creators    []Creator
	Language    string
	Identifier  string
	Publisher   string
	Date        string
	Description string
	Subjects    []string
	Rights      string
	CoverID     string // manifest id from meta name="cover"
}

// Creator represents a creator (author, editor, etc.) of the book.
type Creator struct {
	Name string
	Role string // e.g., "aut" for author, "edt" for editor
	Lang string
}

// ManifestItem represents an item in the manifest.
type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties []string
}

// SpineItem represents an item reference in the spine.
type SpineItem struct {
	IDRef  string
	Linear bool
}

// GuideReference represents an EPUB 2 guide reference.
type GuideReference struct {
	Type  string
	Title string
	Href  string
}

type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
	Guide    opfGuide    `xml:"guide"`
}

type opfMetadata struct {
	Title       []string        `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creator     []opfCreator    `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Language    []string        `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifier  []opfIdentifier `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Publisher   []string        `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Date        []string        `xml:"http://purl.org/dc/elements/1.1/ date"`
	Description []string        `xml:"http://purl.org/dc/elements/1.1/ description"`
	Subject     []string        `xml:"http://purl.org/dc/elements/1.1/ subject"`
	Rights      []string        `xml:"http://purl.org/dc/elements/1.1/ rights"`
	Meta        []opfMeta       `xml:"meta"`
}

type opfCreator struct {
	Name string `xml:",chardata"`
	Role string `xml:"http://www.idpf.org/2007/opf role,attr"`
	Lang string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	ID   string `xml:"id,attr"`
}

type opfIdentifier struct {
	Value  string `xml:",chardata"`
	ID     string `xml:"id,attr"`
	Scheme string `xml:"http://www.idpf.org/2007/opf scheme,attr"`
}

type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"` // EPUB 2.0
	Value    string `xml:",chardata"`    // EPUB 3.0
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	Toc                      string       `xml:"toc,attr"`
	PageProgressionDirection string       `xml:"page-progression-direction,attr"`
	ItemRefs                 []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

type opfGuide struct {
	References []opfReference `xml:"reference"`
}

type opfReference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

// ParseOPF parses package document content. opfDir is the archive
// directory containing the OPF file (e.g., "OEBPS").
func ParseOPF(content []byte, opfDir string) (*OPF, error) {
	var pkg opfPackage
	if err := xml.Unmarshal(content, &pkg); err != nil {
		return nil, ebook.Wrap(ebook.KindXML, err, "parse OPF")
	}

	opf := &OPF{
		Version:                  pkg.Version,
		Manifest:                 make(map[string]ManifestItem, len(pkg.Manifest.Items)),
		PageProgressionDirection: pkg.Spine.PageProgressionDirection,
	}
	opf.Metadata = parseMetadata(&pkg.Metadata)

	for _, item := range pkg.Manifest.Items {
		mi := ManifestItem{
			ID:         item.ID,
			Href:       joinPath(opfDir, item.Href),
			MediaType:  item.MediaType,
			Properties: strings.Fields(item.Properties),
		}
		if _, dup := opf.Manifest[item.ID]; !dup {
			opf.ManifestOrder = append(opf.ManifestOrder, item.ID)
		}
		opf.Manifest[item.ID] = mi
	}

	for _, ref := range pkg.Spine.ItemRefs {
		opf.Spine = append(opf.Spine, SpineItem{
			IDRef:  ref.IDRef,
			Linear: ref.Linear != "no",
		})
	}

	for _, ref := range pkg.Guide.References {
		opf.Guide = append(opf.Guide, GuideReference{
			Type:  ref.Type,
			Title: ref.Title,
			Href:  joinPath(opfDir, ref.Href),
		})
	}

	if pkg.Spine.Toc != "" {
		if item, ok := opf.Manifest[pkg.Spine.Toc]; ok {
			opf.NCXPath = item.Href
		}
	}
	if opf.NCXPath == "" {
		for _, id := range opf.ManifestOrder {
			if item := opf.Manifest[id]; item.MediaType == "application/x-dtbncx+xml" {
				opf.NCXPath = item.Href
				break
			}
		}
	}

	return opf, nil
}

func parseMetadata(meta *opfMetadata) Metadata {
	md := Metadata{
		Title:       first(meta.Title),
		Language:    first(meta.Language),
		Publisher:   first(meta.Publisher),
		Date:        first(meta.Date),
		Description: first(meta.Description),
		Rights:      first(meta.Rights),
		Identifier:  firstIdentifier(meta.Identifier),
	}
	for _, s := range meta.Subject {
		if s = strings.TrimSpace(s); s != "" {
			md.Subjects = append(md.Subjects, s)
		}
	}
	for _, c := range meta.Creator {
		md.Creators = append(md.Creators, Creator{
			Name: strings.TrimSpace(c.Name),
			Role: c.Role,
			Lang: c.Lang,
		})
	}
	processCreatorRoles(&md, meta)

	for _, m := range meta.Meta {
		if m.Name == "cover" && m.Content != "" {
			md.CoverID = m.Content
			break
		}
	}
	return md
}

// firstIdentifier returns the first non-empty dc:identifier.
func firstIdentifier(ids []opfIdentifier) string {
	for _, id := range ids {
		if v := strings.TrimSpace(id.Value); v != "" {
			return v
		}
	}
	return ""
}

// processCreatorRoles applies EPUB 3.0 role refinements to creators.
func processCreatorRoles(md *Metadata, meta *opfMetadata) {
	creatorMap := make(map[string]int)
	for i, c := range meta.Creator {
		if c.ID != "" {
			creatorMap["#"+c.ID] = i
		}
	}
	for _, m := range meta.Meta {
		if m.Property != "role" || m.Refines == "" {
			continue
		}
		if idx, ok := creatorMap[m.Refines]; ok {
			if m.Value != "" {
				md.Creators[idx].Role = strings.TrimSpace(m.Value)
			} else {
				md.Creators[idx].Role = m.Content
			}
		}
	}
}

// Author returns the first creator whose role is author or unspecified.
func (m Metadata) Author() string {
	for _, c := range m.Creators {
		role := strings.TrimSpace(c.Role)
		if c.Name != "" && (role == "" || strings.EqualFold(role, "aut")) {
			return c.Name
		}
	}
	if len(m.Creators) > 0 {
		return m.Creators[0].Name
	}
	return ""
}

// Common converts the package metadata to the shared document model.
func (m Metadata) Common() ebook.Metadata {
	out := ebook.Metadata{
		Title:           strings.TrimSpace(m.Title),
		Author:          m.Author(),
		Publisher:       strings.TrimSpace(m.Publisher),
		Description:     strings.TrimSpace(m.Description),
		Language:        strings.TrimSpace(m.Language),
		ISBN:            m.Identifier,
		PublicationDate: strings.TrimSpace(m.Date),
		Tags:            m.Subjects,
		Format:          ebook.FormatEPUB.Label(),
	}
	if m.Rights != "" {
		out.SetCustom("rights", m.Rights)
	}
	return out
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// joinPath joins the OPF directory with a relative href using forward slashes.
func joinPath(base, rel string) string {
	if base == "" || base == "." {
		return rel
	}
	frag := ""
	if i := strings.Index(rel, "#"); i >= 0 {
		rel, frag = rel[:i], rel[i:]
	}
	return path.Join(base, rel) + frag
}
