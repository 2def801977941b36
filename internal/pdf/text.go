package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

// pageSeparator marks page boundaries before cleanup removes them.
const pageSeparator = "\n--- Page %d ---\n"

// scanText collects the string operand of every Tj and TJ operator in a
// content stream. Only the last literal string before each operator is
// taken, so TJ arrays contribute their final element.
func scanText(content []byte) string {
	var b strings.Builder
	for i := 0; i+1 < len(content); i++ {
		if content[i] != 'T' || (content[i+1] != 'j' && content[i+1] != 'J') {
			continue
		}
		b.WriteString(decodeBytes(lastLiteral(content[:i])))
		b.WriteByte(' ')
	}
	return b.String()
}

// lastLiteral walks backwards from the end of b to the last balanced
// parenthesized string and returns its unescaped bytes.
func lastLiteral(b []byte) []byte {
	end := -1
	depth := 0
	for i := len(b) - 1; i >= 0; i-- {
		if escaped(b, i) {
			continue
		}
		switch b[i] {
		case ')':
			if end < 0 {
				end = i
			}
			depth++
		case '(':
			if end < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return unescape(b[i+1 : end])
			}
		}
	}
	return nil
}

// escaped reports whether b[i] is preceded by an odd number of backslashes.
func escaped(b []byte, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && b[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

// unescape resolves the escape sequences of a literal string.
func unescape(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 == len(raw) {
			out = append(out, c)
			continue
		}
		i++
		switch c = raw[i]; c {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case '\n':
		case '\r':
			if i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
		default:
			if c >= '0' && c <= '7' {
				v := int(c - '0')
				for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
					i++
					v = v*8 + int(raw[i]-'0')
				}
				out = append(out, byte(v))
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

// escape prepares raw bytes for a literal string.
func escape(raw []byte) []byte {
	var b bytes.Buffer
	for _, c := range raw {
		switch c {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	return b.Bytes()
}

// decodeBytes converts string bytes to text: a UTF-16BE byte order mark
// selects UTF-16, valid UTF-8 is kept, anything else is Windows-1252.
func decodeBytes(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		if s, err := xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM).NewDecoder().Bytes(b); err == nil {
			return string(s)
		}
	}
	if utf8.Valid(b) {
		return string(b)
	}
	if s, err := charmap.Windows1252.NewDecoder().Bytes(b); err == nil {
		return string(s)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// encodeText converts text for a Helvetica content stream: Windows-1252
// when every rune fits, UTF-8 otherwise.
func encodeText(s string) []byte {
	if b, err := charmap.Windows1252.NewEncoder().Bytes([]byte(s)); err == nil {
		return b
	}
	return []byte(s)
}

// encodeInfoString returns a text string for the Info dictionary: ASCII as
// is, anything else as UTF-16BE with a byte order mark.
func encodeInfoString(s string) ([]byte, bool) {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return []byte(s), true
	}
	b, err := xunicode.UTF16(xunicode.BigEndian, xunicode.UseBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s), true
	}
	return b, false
}

// cleanText reverses leftover escapes and drops page separators, blank
// lines and trailing spaces.
func cleanText(text string) string {
	text = strings.NewReplacer(
		`\(`, "(", `\)`, ")",
		`\[`, "[", `\]`, "]",
		`\{`, "{", `\}`, "}",
		`\\`, `\`,
	).Replace(text)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "---") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func pageMarker(n int) string {
	return fmt.Sprintf(pageSeparator, n)
}
