package ebook

import (
	"maps"
	"slices"
)

// Metadata holds the bibliographic fields shared by every format.
// An empty string or nil slice means the field is absent.
type Metadata struct {
	Title           string
	Author          string
	Publisher       string
	Description     string
	Language        string
	ISBN            string
	PublicationDate string
	CoverImage      []byte
	CoverImagePath  string
	Tags            []string
	Format          string
	Custom          map[string]string
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	c := m
	c.CoverImage = slices.Clone(m.CoverImage)
	c.Tags = slices.Clone(m.Tags)
	if m.Custom != nil {
		c.Custom = maps.Clone(m.Custom)
	}
	return c
}

// SetCustom stores a free-form key/value pair.
func (m *Metadata) SetCustom(key, value string) {
	if m.Custom == nil {
		m.Custom = make(map[string]string)
	}
	m.Custom[key] = value
}

// TocEntry is a table-of-contents node.
// Level is 1-based; 0 means the handler does not know the nesting depth.
type TocEntry struct {
	ID       int
	Title    string
	Level    int
	Href     string
	Children []TocEntry
}

// Indent returns the indentation depth used when rendering the entry.
// Level 0 and level 1 both render at depth 0.
func (e TocEntry) Indent() int {
	return max(e.Level-1, 0)
}

// Clone returns a deep copy of e including its children.
func (e TocEntry) Clone() TocEntry {
	c := e
	if e.Children != nil {
		c.Children = CloneTOC(e.Children)
	}
	return c
}

// CloneTOC deep-copies a list of entries. It never returns nil.
func CloneTOC(entries []TocEntry) []TocEntry {
	out := make([]TocEntry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

// Walk visits every entry depth-first, passing the nesting depth starting at 0.
func Walk(entries []TocEntry, fn func(e TocEntry, depth int)) {
	var visit func([]TocEntry, int)
	visit = func(list []TocEntry, depth int) {
		for _, e := range list {
			fn(e, depth)
			visit(e.Children, depth+1)
		}
	}
	visit(entries, 0)
}

// ImageData is an image resource carried by a document.
type ImageData struct {
	Name     string
	MIMEType string
	Data     []byte
}

// NewImageData builds an ImageData whose MIME type is guessed from name.
func NewImageData(name string, data []byte) ImageData {
	return ImageData{
		Name:     name,
		MIMEType: GuessMIMEType(name),
		Data:     data,
	}
}

// Clone returns a deep copy of img.
func (img ImageData) Clone() ImageData {
	c := img
	c.Data = slices.Clone(img.Data)
	return c
}

// CloneImages deep-copies a list of images. It never returns nil.
func CloneImages(images []ImageData) []ImageData {
	out := make([]ImageData, len(images))
	for i, img := range images {
		out[i] = img.Clone()
	}
	return out
}

// Chapter is a titled section of a document buffered by a writer.
type Chapter struct {
	Title   string
	Content string
}
