// Package htmltext flattens (X)HTML documents into plain text and Markdown.
package htmltext

import (
	"bytes"
	"errors"
	"html"
	"io"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PageBreak is emitted for Mobipocket page-break markers.
const PageBreak = "\n\n---\n\n"

// pageBreakTag is the tokenizer's lower-cased name of <mbp:pagebreak>.
const pageBreakTag = "mbp:pagebreak"

// blockTags insert a line break when they open.
var blockTags = map[atom.Atom]bool{
	atom.P:          true,
	atom.Br:         true,
	atom.Div:        true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Li:         true,
	atom.Tr:         true,
	atom.Blockquote: true,
	atom.Hr:         true,
	atom.Pre:        true,
	atom.Section:    true,
}

// skipTags have their content dropped.
var skipTags = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Head:   true,
	atom.Title:  true,
}

// voidTags never have an end tag.
var voidTags = map[atom.Atom]bool{
	atom.Br:    true,
	atom.Hr:    true,
	atom.Img:   true,
	atom.Meta:  true,
	atom.Link:  true,
	atom.Input: true,
}

type openTag struct {
	name     string
	preserve bool
}

// Extract returns the visible text of an HTML document.
// Block elements start new lines, <pre> and elements styled with
// "white-space: pre" keep their whitespace verbatim, and page-break
// markers become PageBreak.
func Extract(data []byte) (string, error) {
	z := xhtml.NewTokenizer(bytes.NewReader(data))

	var buf strings.Builder
	var stack []openTag
	skipDepth := 0
	lastWasNewline := true

	newline := func() {
		if buf.Len() > 0 && !lastWasNewline {
			buf.WriteByte('\n')
			lastWasNewline = true
		}
	}
	preserving := func() bool {
		for _, t := range stack {
			if t.preserve {
				return true
			}
		}
		return false
	}

	for {
		tt := z.Next()
		switch tt {
		case xhtml.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", err
			}
			return strings.TrimSpace(buf.String()), nil

		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			tn, hasAttr := z.TagName()
			name := string(tn)
			a := atom.Lookup(tn)
			if name == pageBreakTag {
				if skipDepth == 0 {
					buf.WriteString(PageBreak)
					lastWasNewline = true
				}
				continue
			}
			if skipTags[a] {
				if tt == xhtml.StartTagToken {
					skipDepth++
				}
				continue
			}
			if skipDepth > 0 {
				continue
			}
			if blockTags[a] && !preserving() {
				newline()
			}
			if tt == xhtml.StartTagToken && !voidTags[a] {
				stack = append(stack, openTag{name: name, preserve: a == atom.Pre || (hasAttr && preserveStyle(z))})
			}

		case xhtml.EndTagToken:
			tn, _ := z.TagName()
			a := atom.Lookup(tn)
			if skipTags[a] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			name := string(tn)
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].name == name {
					stack = stack[:i]
					break
				}
			}

		case xhtml.TextToken:
			if skipDepth > 0 {
				continue
			}
			raw := string(z.Text())
			if preserving() {
				buf.WriteString(raw)
				lastWasNewline = strings.HasSuffix(raw, "\n")
				continue
			}
			if text := collapseWhitespace(raw); text != "" {
				buf.WriteString(text)
				lastWasNewline = false
			}
		}
	}
}

// preserveStyle consumes the current tag's attributes and reports whether
// a style attribute requests preformatted whitespace.
func preserveStyle(z *xhtml.Tokenizer) bool {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "style" {
			s := strings.ToLower(string(val))
			if strings.Contains(s, "white-space:pre") || strings.Contains(s, "white-space: pre") {
				return true
			}
		}
		if !more {
			return false
		}
	}
}

// collapseWhitespace replaces whitespace runs with single spaces, keeping a
// leading or trailing space when the input had one.
func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	out := strings.Join(fields, " ")
	if isSpace(s[0]) {
		out = " " + out
	}
	if isSpace(s[len(s)-1]) {
		out += " "
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// StripTags removes all markup from s and unescapes entities.
func StripTags(s string) string {
	return html.UnescapeString(bluemonday.StrictPolicy().Sanitize(s))
}

var markdown = htmltomarkdown.NewConverter(
	htmltomarkdown.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// ToMarkdown renders an HTML fragment or document as Markdown.
func ToMarkdown(htmlDoc string) (string, error) {
	return markdown.ConvertString(htmlDoc)
}
