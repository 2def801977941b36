package ebook

import "os"

// Info is a serializable summary of a document that has been read.
type Info struct {
	Path            string            `json:"path" yaml:"path"`
	Format          string            `json:"format" yaml:"format"`
	Title           string            `json:"title,omitempty" yaml:"title,omitempty"`
	Author          string            `json:"author,omitempty" yaml:"author,omitempty"`
	Publisher       string            `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Description     string            `json:"description,omitempty" yaml:"description,omitempty"`
	Language        string            `json:"language,omitempty" yaml:"language,omitempty"`
	ISBN            string            `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	PublicationDate string            `json:"publication_date,omitempty" yaml:"publication_date,omitempty"`
	Tags            []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Custom          map[string]string `json:"custom,omitempty" yaml:"custom,omitempty"`
	CoverImagePath  string            `json:"cover_image_path,omitempty" yaml:"cover_image_path,omitempty"`
	HasCover        bool              `json:"has_cover" yaml:"has_cover"`
	TOCEntries      int               `json:"toc_entries" yaml:"toc_entries"`
	Images          int               `json:"images" yaml:"images"`
	ContentLength   int               `json:"content_length" yaml:"content_length"`
	Size            int64             `json:"size_bytes" yaml:"size_bytes"`
}

// NewInfo summarizes r, which has read path. TOCEntries counts nested
// entries too.
func NewInfo(path string, r Reader) Info {
	m := r.Metadata()
	info := Info{
		Path:            path,
		Format:          m.Format,
		Title:           m.Title,
		Author:          m.Author,
		Publisher:       m.Publisher,
		Description:     m.Description,
		Language:        m.Language,
		ISBN:            m.ISBN,
		PublicationDate: m.PublicationDate,
		Tags:            m.Tags,
		Custom:          m.Custom,
		CoverImagePath:  m.CoverImagePath,
		HasCover:        len(m.CoverImage) > 0,
		Images:          len(r.Images()),
		ContentLength:   len(r.Content()),
	}
	Walk(r.TOC(), func(TocEntry, int) { info.TOCEntries++ })
	if fi, err := os.Stat(path); err == nil {
		info.Size = fi.Size()
	}
	return info
}
