package mobi

import (
	"bytes"
	"fmt"
	"regexp"
)

// ImageRecord is one image stored in its own PDB record.
type ImageRecord struct {
	Data         []byte
	OriginalPath string
	MediaType    string
}

// ImageMapper assigns record positions to image paths.
type ImageMapper struct {
	Images      []ImageRecord
	PathToIndex map[string]int
}

func NewImageMapper() *ImageMapper {
	return &ImageMapper{PathToIndex: make(map[string]int)}
}

// AddImage registers an image. Duplicate paths are ignored.
func (m *ImageMapper) AddImage(path string, data []byte, mediaType string) {
	if _, ok := m.PathToIndex[path]; ok {
		return
	}
	m.PathToIndex[path] = len(m.Images)
	m.Images = append(m.Images, ImageRecord{Data: data, OriginalPath: path, MediaType: mediaType})
}

// KindleEmbedRef returns the kindle:embed reference for path, whose four hex
// digits are the 1-based image position.
func (m *ImageMapper) KindleEmbedRef(path string) (string, bool) {
	idx, ok := m.PathToIndex[path]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("kindle:embed:%04X", idx+1), true
}

// ImageRecordData returns the raw record payloads in order.
func (m *ImageMapper) ImageRecordData() [][]byte {
	records := make([][]byte, len(m.Images))
	for i, img := range m.Images {
		records[i] = img.Data
	}
	return records
}

var imgSrcRe = regexp.MustCompile(`(<img\s[^>]*?)src="([^"]*)"`)

// TransformImageReferences rewrites img src attributes that name a mapped
// image to kindle:embed references.
func TransformImageReferences(html string, m *ImageMapper) string {
	if m == nil || len(m.Images) == 0 {
		return html
	}
	return imgSrcRe.ReplaceAllStringFunc(html, func(match string) string {
		sub := imgSrcRe.FindStringSubmatch(match)
		ref, ok := m.KindleEmbedRef(sub[2])
		if !ok {
			return match
		}
		return sub[1] + `src="` + ref + `"`
	})
}

// sniffImage reports the extension of a JPEG, PNG or GIF payload.
func sniffImage(data []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "jpg", true
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "png", true
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return "gif", true
	}
	return "", false
}
