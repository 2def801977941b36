package epub

import (
	"maps"
	"path"
	"slices"
	"strings"
)

// CoverInfo describes a detected cover image.
type CoverInfo struct {
	ManifestID      string
	Href            string
	MediaType       string
	DetectionMethod string // "properties", "meta", "guide", "filename"
}

func coverFrom(item ManifestItem, method string) *CoverInfo {
	return &CoverInfo{
		ManifestID:      item.ID,
		Href:            item.Href,
		MediaType:       item.MediaType,
		DetectionMethod: method,
	}
}

// DetectCover finds the cover image in priority order:
//  1. properties="cover-image" (EPUB 3.0)
//  2. meta name="cover" (EPUB 2.0)
//  3. guide type="cover" pointing at an image item
//  4. an image item whose basename contains "cover" (SVG excluded)
//
// Returns nil if no cover image is found.
func (opf *OPF) DetectCover() *CoverInfo {
	items := opf.orderedItems()
	for _, item := range items {
		for _, prop := range item.Properties {
			if prop == "cover-image" {
				return coverFrom(item, "properties")
			}
		}
	}

	if opf.Metadata.CoverID != "" {
		if item, ok := opf.Manifest[opf.Metadata.CoverID]; ok {
			return coverFrom(item, "meta")
		}
	}

	for _, ref := range opf.Guide {
		if ref.Type != "cover" {
			continue
		}
		href, _ := splitFragment(ref.Href)
		for _, item := range items {
			if isImageMediaType(item.MediaType) && item.Href == href {
				return coverFrom(item, "guide")
			}
		}
	}

	for _, item := range items {
		if !isImageMediaType(item.MediaType) {
			continue
		}
		if strings.Contains(strings.ToLower(path.Base(item.Href)), "cover") {
			return coverFrom(item, "filename")
		}
	}

	return nil
}

// FindCoverImage returns the href of the detected cover image.
func (opf *OPF) FindCoverImage() (string, bool) {
	if c := opf.DetectCover(); c != nil {
		return c.Href, true
	}
	return "", false
}

// isImageMediaType reports whether mediaType is a raster image (SVG excluded).
func isImageMediaType(mediaType string) bool {
	if mediaType == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}

// orderedItems returns manifest items in declaration order, falling back to
// id order for manifests built without ManifestOrder.
func (opf *OPF) orderedItems() []ManifestItem {
	ids := opf.ManifestOrder
	if len(ids) == 0 {
		ids = slices.Sorted(maps.Keys(opf.Manifest))
	}
	items := make([]ManifestItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := opf.Manifest[id]; ok {
			items = append(items, item)
		}
	}
	return items
}
