// Package optimize resizes and re-encodes raster images.
package optimize

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/png"
	"log/slog"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/yuanying/ebookkit/internal/ebook"
)

const (
	defaultMaxDimension = 1920
	defaultQuality      = 85
	minJPEGQuality      = 60
	defaultMaxPixels    = 100 * 1000 * 1000 // 100 megapixels
)

// Options controls resizing and encoding. Zero MaxWidth or MaxHeight
// leaves that side unbounded.
type Options struct {
	MaxWidth            int
	MaxHeight           int
	Quality             int // JPEG quality, 1-100
	PreserveAspectRatio bool

	// MaxFileSize, when positive, lowers JPEG quality in steps of 5 down
	// to 60 until the output fits.
	MaxFileSize int
}

// DefaultOptions bounds images to 1920x1920 at quality 85.
func DefaultOptions() Options {
	return Options{
		MaxWidth:            defaultMaxDimension,
		MaxHeight:           defaultMaxDimension,
		Quality:             defaultQuality,
		PreserveAspectRatio: true,
	}
}

// NoResize re-encodes at default quality without changing dimensions.
func NoResize() Options {
	return Options{Quality: defaultQuality, PreserveAspectRatio: true}
}

// Optimizer re-encodes images according to its options.
type Optimizer struct {
	opts      Options
	maxPixels int // decode limit on width * height
}

var _ ebook.ImageOptimizer = (*Optimizer)(nil)

func New(opts Options) *Optimizer {
	if opts.Quality <= 0 {
		opts.Quality = defaultQuality
	}
	if opts.Quality > 100 {
		opts.Quality = 100
	}
	return &Optimizer{opts: opts, maxPixels: defaultMaxPixels}
}

// Options returns the effective options.
func (o *Optimizer) Options() Options { return o.opts }

// Result describes one processed image. Warning is set when the input was
// returned unchanged or when MaxFileSize could not be met.
type Result struct {
	Data    []byte
	Width   int
	Height  int
	Format  string
	Warning string
}

// Optimize implements ebook.ImageOptimizer. Inputs that Process passes
// through unchanged are reported as errors so callers keep the original.
func (o *Optimizer) Optimize(data []byte, mimeType string) ([]byte, error) {
	res, err := o.Process(data, mimeType)
	if err != nil {
		return nil, err
	}
	if res.Warning != "" && bytes.Equal(res.Data, data) {
		return nil, ebook.Errorf(ebook.KindImage, "%s", res.Warning)
	}
	return res.Data, nil
}

// Process decodes data, resizes it to fit the options and re-encodes it.
// JPEG stays JPEG; every other format becomes PNG. Animated GIFs and images
// above the pixel limit are returned as is with a warning.
func (o *Optimizer) Process(data []byte, mimeType string) (Result, error) {
	out := Result{Data: data, Format: mediaTypeToFormat(mimeType)}

	cfg, cfgFormat, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return out, ebook.Wrap(ebook.KindImage, err, "decode %s", mimeType)
	}
	out.Width, out.Height = cfg.Width, cfg.Height
	if out.Format == "" {
		out.Format = strings.ToLower(cfgFormat)
	}
	if pixels := uint64(cfg.Width) * uint64(cfg.Height); o.maxPixels > 0 && pixels > uint64(o.maxPixels) {
		out.Warning = fmt.Sprintf("image too large to decode: %dx%d (%d pixels)", cfg.Width, cfg.Height, pixels)
		return out, nil
	}
	if cfgFormat == "gif" {
		if animated, err := isAnimatedGIF(data); err == nil && animated {
			out.Warning = "animated gif kept as is"
			return out, nil
		}
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return out, ebook.Wrap(ebook.KindImage, err, "decode %s", mimeType)
	}
	processed := o.resize(src)

	var encoded []byte
	if out.Format == "jpeg" {
		var quality int
		encoded, quality, err = o.encodeJPEGWithSizeLimit(processed)
		if err != nil {
			return out, err
		}
		if o.opts.MaxFileSize > 0 && len(encoded) > o.opts.MaxFileSize {
			out.Warning = fmt.Sprintf("jpeg size %d exceeds limit %d bytes at quality %d", len(encoded), o.opts.MaxFileSize, quality)
		}
	} else {
		out.Format = "png"
		encoded, err = encode(processed, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
		if err != nil {
			return out, ebook.Wrap(ebook.KindImage, err, "png encode")
		}
		if o.opts.MaxFileSize > 0 && len(encoded) > o.opts.MaxFileSize {
			out.Warning = fmt.Sprintf("image size %d exceeds limit %d bytes", len(encoded), o.opts.MaxFileSize)
		}
	}

	out.Data = encoded
	out.Width = processed.Bounds().Dx()
	out.Height = processed.Bounds().Dy()
	slog.Debug("optimized image", "format", out.Format, "before", len(data), "after", len(encoded))
	return out, nil
}

// resize fits img into the configured bounds. With PreserveAspectRatio the
// image is scaled uniformly; otherwise each side is clamped on its own.
func (o *Optimizer) resize(img image.Image) image.Image {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	maxW, maxH := o.opts.MaxWidth, o.opts.MaxHeight
	if maxW <= 0 {
		maxW = w
	}
	if maxH <= 0 {
		maxH = h
	}
	if w <= maxW && h <= maxH {
		return img
	}
	if o.opts.PreserveAspectRatio {
		return imaging.Fit(img, maxW, maxH, imaging.Lanczos)
	}
	return imaging.Resize(img, min(w, maxW), min(h, maxH), imaging.Lanczos)
}

func (o *Optimizer) encodeJPEGWithSizeLimit(img image.Image) ([]byte, int, error) {
	quality := o.opts.Quality
	best, err := encode(img, imaging.JPEG, imaging.JPEGQuality(quality))
	if err != nil {
		return nil, 0, ebook.Wrap(ebook.KindImage, err, "jpeg encode")
	}
	if o.opts.MaxFileSize <= 0 || len(best) <= o.opts.MaxFileSize {
		return best, quality, nil
	}

	bestQuality := quality
	for q := quality - 5; q >= minJPEGQuality; q -= 5 {
		candidate, err := encode(img, imaging.JPEG, imaging.JPEGQuality(q))
		if err != nil {
			return nil, 0, ebook.Wrap(ebook.KindImage, err, "jpeg re-encode at quality %d", q)
		}
		best, bestQuality = candidate, q
		if len(candidate) <= o.opts.MaxFileSize {
			break
		}
	}
	return best, bestQuality, nil
}

func encode(img image.Image, format imaging.Format, opts ...imaging.EncodeOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mediaTypeToFormat(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "image/jpeg", "image/jpg":
		return "jpeg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return ""
	}
}

func isAnimatedGIF(data []byte) (bool, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return false, err
	}
	return len(g.Image) > 1, nil
}

// Savings returns the percentage of bytes saved going from original to
// optimized. A zero original size yields 0.
func Savings(original, optimized int) float64 {
	if original <= 0 {
		return 0
	}
	return (1 - float64(optimized)/float64(original)) * 100
}
