package kindle

import (
	"log/slog"
	"strings"

	"github.com/yuanying/ebookkit/internal/epub"
	"github.com/yuanying/ebookkit/internal/mobi"
	"github.com/yuanying/ebookkit/internal/optimize"
)

// kindleImageTypes are the formats KF8 image records may hold.
var kindleImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// findCover detects the cover image. When the package only names a cover
// page, the first image on that page is used.
func findCover(a *epub.Archive, opf *epub.OPF) *epub.CoverInfo {
	if c := opf.DetectCover(); c != nil {
		return c
	}
	for _, ref := range opf.Guide {
		if !strings.EqualFold(ref.Type, "cover") {
			continue
		}
		page, _, _ := strings.Cut(ref.Href, "#")
		data, err := a.ReadFile(page)
		if err != nil {
			continue
		}
		sec, err := epub.LoadSection("", page, data)
		if err != nil || len(sec.ImageRefs) == 0 {
			continue
		}
		for _, id := range opf.ManifestOrder {
			item := opf.Manifest[id]
			if item.Href == sec.ImageRefs[0] && strings.HasPrefix(item.MediaType, "image/") {
				return &epub.CoverInfo{
					ManifestID:      item.ID,
					Href:            item.Href,
					MediaType:       item.MediaType,
					DetectionMethod: "guide-page",
				}
			}
		}
	}
	return nil
}

// collectImages reads manifest images in declaration order. Images are
// re-encoded with opt when given; the cover keeps its size. Formats KF8
// cannot store are dropped unless re-encoding turned them into PNG.
func collectImages(a *epub.Archive, opf *epub.OPF, cover *epub.CoverInfo, opt *optimize.Optimizer) *mobi.ImageMapper {
	m := mobi.NewImageMapper()
	for _, id := range opf.ManifestOrder {
		item, ok := opf.Manifest[id]
		if !ok || item.MediaType == "image/svg+xml" || !strings.HasPrefix(item.MediaType, "image/") {
			continue
		}
		data, err := a.ReadFile(item.Href)
		if err != nil {
			slog.Warn("skipping unreadable image", "href", item.Href, "error", err)
			continue
		}

		mediaType := item.MediaType
		isCover := cover != nil && cover.Href == item.Href
		if opt != nil && !isCover {
			res, err := opt.Process(data, mediaType)
			if err != nil {
				slog.Warn("storing image unoptimized", "href", item.Href, "error", err)
			} else {
				if res.Warning != "" {
					slog.Warn("image optimization incomplete", "href", item.Href, "warning", res.Warning)
				}
				data, mediaType = res.Data, formatMediaType(res.Format, mediaType)
			}
		}
		if !kindleImageTypes[mediaType] {
			slog.Warn("skipping image format unsupported by KF8", "href", item.Href, "type", mediaType)
			continue
		}
		m.AddImage(item.Href, data, mediaType)
	}
	return m
}

func formatMediaType(format, fallback string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	}
	return fallback
}
