package converter

import (
	"strconv"

	"github.com/yuanying/ebookkit/internal/ebook"
	"github.com/yuanying/ebookkit/internal/epub"
)

// Open detects the format of path from its extension and reads it.
func (c *Converter) Open(path string) (ebook.Format, ebook.Operator, error) {
	if path == "" {
		return "", nil, ebook.Errorf(ebook.KindValidation, "path is required")
	}
	f, err := ebook.DetectFormat(path)
	if err != nil {
		return "", nil, err
	}
	h, err := c.NewHandler(f)
	if err != nil {
		return "", nil, err
	}
	if err := h.ReadFile(path); err != nil {
		return f, nil, err
	}
	return f, h, nil
}

// Validate reads path and returns the problems found. EPUB files also get
// their container structure checked. A nil slice means the file is valid.
func (c *Converter) Validate(path string) (ebook.Format, []string) {
	f, h, err := c.Open(path)
	if err != nil {
		return f, []string{ebook.Describe(err)}
	}
	var problems []string
	if f == ebook.FormatEPUB {
		if err := epub.Verify(path); err != nil {
			problems = append(problems, ebook.Describe(err))
		}
	}
	if !h.Validate() {
		problems = append(problems, "required content or metadata is missing")
	}
	return f, problems
}

// Populate loads meta and content into w. Targets that keep chapters get one
// chapter per piece of content.
func Populate(w ebook.Writer, target ebook.Format, meta ebook.Metadata, content string) {
	w.SetMetadata(meta)
	w.SetContent(content)
	if !chapterFormats[target] {
		return
	}
	for i, ch := range SplitChapters(content) {
		w.AddChapter("Chapter "+strconv.Itoa(i+1), ch)
	}
}
