package mobi

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"

	"github.com/yuanying/ebookkit/internal/ebook"
	"github.com/yuanying/ebookkit/internal/htmltext"
)

// decodeText converts raw text bytes to a string: a UTF-16 byte order mark
// selects UTF-16, valid UTF-8 is used as is, anything else is Windows-1252.
func decodeText(data []byte) string {
	if len(data) >= 2 && (data[0] == 0xFE && data[1] == 0xFF || data[0] == 0xFF && data[1] == 0xFE) {
		dec := xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM).NewDecoder()
		if s, err := dec.Bytes(data); err == nil {
			return string(s)
		}
	}
	if utf8.Valid(data) {
		return string(data)
	}
	return decodeCP1252(data)
}

func decodeCP1252(data []byte) string {
	s, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(s)
}

// decodeRecordText decodes decompressed book text per the MOBI encoding field.
func decodeRecordText(data []byte, encoding uint32) string {
	if encoding == EncodingUTF8 {
		return strings.ToValidUTF8(string(data), "�")
	}
	return decodeCP1252(data)
}

// cleanMarkup normalizes Mobipocket page breaks and entities. Tags are only
// stripped when the payload is an HTML document, so a bare '<' in prose
// survives.
func cleanMarkup(s string) string {
	s = strings.ReplaceAll(s, "<mbp:pagebreak>", htmltext.PageBreak)
	s = strings.ReplaceAll(s, "<mbp:pagebreak/>", htmltext.PageBreak)
	s = strings.ReplaceAll(s, "</mbp:pagebreak>", "")
	if isHTMLDocument(s) {
		return htmltext.StripTags(s)
	}
	return html.UnescapeString(s)
}

func isHTMLDocument(s string) bool {
	head := strings.ToLower(strings.TrimSpace(s[:min(len(s), 512)]))
	if strings.HasPrefix(head, "<html") || strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<?xml") {
		return true
	}
	return strings.Contains(strings.ToLower(s), "<body")
}

// headingTOC infers chapter headings from line shape: lines starting with
// "Chapter ", "CHAPTER " or "# ", and short lines written in capitals.
func headingTOC(content string) []ebook.TocEntry {
	toc := []ebook.TocEntry{}
	for i, line := range strings.Split(content, "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if strings.HasPrefix(t, "Chapter ") || strings.HasPrefix(t, "CHAPTER ") ||
			strings.HasPrefix(t, "# ") || isCapsLine(t) {
			toc = append(toc, ebook.TocEntry{ID: i, Title: t})
		}
	}
	return toc
}

func isCapsLine(s string) bool {
	if len(s) >= 100 {
		return false
	}
	letters := 0
	for _, r := range s {
		switch {
		case r == ' ':
		case unicode.IsUpper(r):
			letters++
		default:
			return false
		}
	}
	return letters > 0
}

// bookHTML renders chapters as Mobipocket HTML, one paragraph per line and
// a page break between chapters. It returns the HTML and the byte offset of
// each chapter heading.
func bookHTML(title string, chapters []ebook.Chapter) ([]byte, []uint32) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body>", html.EscapeString(title))
	offsets := make([]uint32, len(chapters))
	for i, ch := range chapters {
		if i > 0 {
			b.WriteString("<mbp:pagebreak/>")
		}
		offsets[i] = uint32(b.Len())
		if ch.Title != "" {
			fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(ch.Title))
		}
		for _, line := range strings.Split(ch.Content, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(line))
		}
	}
	b.WriteString("</body></html>")
	return b.Bytes(), offsets
}
