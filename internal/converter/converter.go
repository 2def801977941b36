// Package converter routes conversions between ebook formats. Every route
// reads the source with one handler and writes the target with another,
// carrying only metadata and flattened content across, except EPUB to AZW
// which is rebuilt from the source markup.
package converter

import (
	"log/slog"
	"strings"

	"github.com/yuanying/ebookkit/internal/cbz"
	"github.com/yuanying/ebookkit/internal/ebook"
	"github.com/yuanying/ebookkit/internal/epub"
	"github.com/yuanying/ebookkit/internal/fb2"
	"github.com/yuanying/ebookkit/internal/kindle"
	"github.com/yuanying/ebookkit/internal/mobi"
	"github.com/yuanying/ebookkit/internal/optimize"
	"github.com/yuanying/ebookkit/internal/pdf"
	"github.com/yuanying/ebookkit/internal/txt"
)

// Pair is a source and target format.
type Pair struct {
	From ebook.Format
	To   ebook.Format
}

func (p Pair) String() string {
	return string(p.From) + " -> " + string(p.To)
}

type route int

const (
	viaContent route = iota
	viaKindle
)

// pairs lists every supported conversion in display order.
var pairs = []struct {
	Pair
	route route
}{
	{Pair{ebook.FormatTXT, ebook.FormatEPUB}, viaContent},
	{Pair{ebook.FormatTXT, ebook.FormatPDF}, viaContent},
	{Pair{ebook.FormatTXT, ebook.FormatMOBI}, viaContent},
	{Pair{ebook.FormatTXT, ebook.FormatFB2}, viaContent},
	{Pair{ebook.FormatTXT, ebook.FormatAZW}, viaContent},
	{Pair{ebook.FormatEPUB, ebook.FormatTXT}, viaContent},
	{Pair{ebook.FormatEPUB, ebook.FormatPDF}, viaContent},
	{Pair{ebook.FormatEPUB, ebook.FormatFB2}, viaContent},
	{Pair{ebook.FormatEPUB, ebook.FormatAZW}, viaKindle},
	{Pair{ebook.FormatMOBI, ebook.FormatTXT}, viaContent},
	{Pair{ebook.FormatAZW, ebook.FormatTXT}, viaContent},
	{Pair{ebook.FormatFB2, ebook.FormatTXT}, viaContent},
	{Pair{ebook.FormatFB2, ebook.FormatEPUB}, viaContent},
	{Pair{ebook.FormatPDF, ebook.FormatTXT}, viaContent},
}

// chapterFormats split flattened content back into chapters.
var chapterFormats = map[ebook.Format]bool{
	ebook.FormatEPUB: true,
	ebook.FormatAZW:  true,
}

// Pairs returns the supported conversions.
func Pairs() []Pair {
	out := make([]Pair, len(pairs))
	for i, p := range pairs {
		out[i] = p.Pair
	}
	return out
}

// Supported reports whether from can be converted to to.
func Supported(from, to ebook.Format) bool {
	_, ok := lookup(from, to)
	return ok
}

func lookup(from, to ebook.Format) (route, bool) {
	for _, p := range pairs {
		if p.From == from && p.To == to {
			return p.route, true
		}
	}
	return 0, false
}

// Options configures a Converter.
type Options struct {
	// Progress receives the read, transform and write steps.
	Progress func(Progress)

	// EpubVersion is applied to every EPUB handler. Zero keeps the
	// handler default.
	EpubVersion epub.Version

	// TxtStreamingThreshold is applied to TXT handlers. Zero keeps the
	// handler default.
	TxtStreamingThreshold int64

	// Images re-encodes images when EPUB is rebuilt as AZW.
	Images *optimize.Optimizer
}

// Converter dispatches conversions.
type Converter struct {
	Options Options
}

func New(opts Options) *Converter {
	return &Converter{Options: opts}
}

// NewHandler returns an empty handler for f with default options.
func NewHandler(f ebook.Format) (ebook.Operator, error) {
	return New(Options{}).NewHandler(f)
}

// NewHandler returns an empty handler for f.
func (c *Converter) NewHandler(f ebook.Format) (ebook.Operator, error) {
	switch f {
	case ebook.FormatEPUB:
		h := epub.New()
		if c.Options.EpubVersion != 0 {
			h.SetVersion(c.Options.EpubVersion)
		}
		return h, nil
	case ebook.FormatMOBI:
		return mobi.NewMobiHandler(), nil
	case ebook.FormatAZW:
		return mobi.NewAzwHandler(), nil
	case ebook.FormatFB2:
		return fb2.New(), nil
	case ebook.FormatCBZ:
		return cbz.New(), nil
	case ebook.FormatPDF:
		return pdf.New(), nil
	case ebook.FormatTXT:
		h := txt.New()
		if c.Options.TxtStreamingThreshold != 0 {
			h.SetStreamingThreshold(c.Options.TxtStreamingThreshold)
		}
		return h, nil
	}
	return nil, ebook.Errorf(ebook.KindUnsupportedFormat, "no handler for format %q", f)
}

// Convert converts input into output in the target format with default
// options.
func Convert(input, output string, target ebook.Format) error {
	return New(Options{}).Convert(input, output, target)
}

type streamingReader interface {
	ReadFileStreaming(path string) error
}

type streamingWriter interface {
	WriteFileStreaming(path string) error
}

// Convert converts input into output in the target format. The source
// format comes from the input extension.
func (c *Converter) Convert(input, output string, target ebook.Format) error {
	from, err := ebook.DetectFormat(input)
	if err != nil {
		return err
	}
	r, ok := lookup(from, target)
	if !ok {
		return ebook.Errorf(ebook.KindNotSupported,
			"conversion from %s to %s is not supported", from, target)
	}
	slog.Info("converting", "input", input, "output", output, "from", from, "to", target)

	p := newTracker(c.Options.Progress)
	p.step("Reading input file")

	if r == viaKindle {
		p.step("Converting " + from.Label() + " to " + target.Label())
		p.step("Writing " + target.Label())
		if err := kindle.Build(input, output, kindle.Options{Images: c.Options.Images}); err != nil {
			return err
		}
		p.finish()
		return nil
	}

	src, err := c.NewHandler(from)
	if err != nil {
		return err
	}
	if sr, ok := src.(streamingReader); ok {
		err = sr.ReadFileStreaming(input)
	} else {
		err = src.ReadFile(input)
	}
	if err != nil {
		return err
	}

	p.step("Converting " + from.Label() + " to " + target.Label())
	dst, err := c.NewHandler(target)
	if err != nil {
		return err
	}
	Populate(dst, target, src.Metadata(), src.Content())

	p.step("Writing " + target.Label())
	if err := ebook.EnsureParentDir(output); err != nil {
		return err
	}
	if sw, ok := dst.(streamingWriter); ok {
		err = sw.WriteFileStreaming(output)
	} else {
		err = dst.WriteFile(output)
	}
	if err != nil {
		return err
	}
	p.finish()
	return nil
}

// SplitChapters splits content on ebook.ChapterSeparator and drops blank
// pieces. Content without a non-blank piece is returned whole.
func SplitChapters(content string) []string {
	var out []string
	for _, piece := range strings.Split(content, ebook.ChapterSeparator) {
		if strings.TrimSpace(piece) != "" {
			out = append(out, piece)
		}
	}
	if len(out) == 0 {
		return []string{content}
	}
	return out
}
