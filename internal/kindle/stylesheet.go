package kindle

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	lengthRe      = regexp.MustCompile(`(\d+(?:\.\d+)?)(px|pt)`)
	declRe        = regexp.MustCompile(`(?i)^\s*([\w-]+)\s*:\s*(.*?)\s*;?\s*$`)
	negativeNumRe = regexp.MustCompile(`-\d`)
	idSelectorRe  = regexp.MustCompile(`^#([a-zA-Z_][a-zA-Z0-9_-]*)`)
)

// emDivisor converts absolute lengths to em at a 16px / 12pt base size.
var emDivisor = map[string]float64{"px": 16, "pt": 12}

// sanitizeCSS drops declarations Kindle readers mishandle and rewrites px
// and pt lengths as em. Comments pass through untouched.
func sanitizeCSS(css string) string {
	var out strings.Builder
	for i := 0; i < len(css); {
		switch c := css[i]; {
		case strings.HasPrefix(css[i:], "/*"):
			end := strings.Index(css[i+2:], "*/")
			if end < 0 {
				out.WriteString(css[i:])
				return out.String()
			}
			end += i + 4
			out.WriteString(css[i:end])
			i = end
			continue
		case c == '{' || c == '}' || c == ';':
			out.WriteByte(c)
			i++
			continue
		}

		end := declarationEnd(css, i)
		if end > i {
			decl := css[i:end]
			if m := declRe.FindStringSubmatch(strings.TrimSpace(decl)); m != nil {
				if unsupported(m[1], m[2]) {
					i = skipSemicolon(css, end)
					continue
				}
				out.WriteString(toEm(decl))
				i = end
				continue
			}
		}
		out.WriteByte(css[i])
		i++
	}
	return out.String()
}

// declarationEnd returns the index of the ';', '{' or '}' ending the
// declaration at pos, skipping quoted strings.
func declarationEnd(css string, pos int) int {
	for i := pos; i < len(css); i++ {
		switch css[i] {
		case ';', '{', '}':
			return i
		case '"', '\'':
			q := css[i]
			for i++; i < len(css) && css[i] != q; i++ {
				if css[i] == '\\' {
					i++
				}
			}
		}
	}
	return len(css)
}

// skipSemicolon advances past blanks and at most one ';'.
func skipSemicolon(css string, i int) int {
	for i < len(css) && (css[i] == ' ' || css[i] == '\t' || css[i] == ';') {
		i++
		if css[i-1] == ';' {
			break
		}
	}
	return i
}

func unsupported(property, value string) bool {
	p := strings.ToLower(strings.TrimSpace(property))
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case p == "position":
		return v == "fixed" || v == "absolute"
	case p == "transform", p == "transition", strings.HasPrefix(p, "transition-"):
		return true
	case p == "animation", strings.HasPrefix(p, "animation-"):
		return true
	case p == "margin", strings.HasPrefix(p, "margin-"):
		return negativeNumRe.MatchString(v)
	}
	return false
}

func toEm(s string) string {
	return lengthRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := lengthRe.FindStringSubmatch(m)
		v, err := strconv.ParseFloat(sub[1], 64)
		if err != nil {
			return m
		}
		return strconv.FormatFloat(v/emDivisor[sub[2]], 'f', -1, 64) + "em"
	})
}

// scopeIDSelectors prefixes ID selectors with the chapter id so that rules
// from different chapters cannot collide. Selectors inside declaration
// blocks (color values) and at-rule preludes are left alone.
func scopeIDSelectors(chapterID, css string) string {
	const (
		atBlock = iota
		declBlock
	)
	var (
		out       strings.Builder
		blocks    []int
		quote     byte
		escaped   bool
		stmtStart = true
		inPrelude bool
	)
	for i := 0; i < len(css); {
		c := css[i]

		if quote != 0 {
			out.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			i++
			continue
		}

		switch {
		case strings.HasPrefix(css[i:], "/*"):
			end := strings.Index(css[i+2:], "*/")
			if end < 0 {
				out.WriteString(css[i:])
				return out.String()
			}
			end += i + 4
			out.WriteString(css[i:end])
			i = end
			continue
		case c == '"' || c == '\'':
			quote = c
		case c == '@' && stmtStart:
			inPrelude = true
			stmtStart = false
		case c == '{':
			if inPrelude {
				blocks = append(blocks, atBlock)
			} else {
				blocks = append(blocks, declBlock)
			}
			inPrelude = false
			stmtStart = true
		case c == '}':
			if len(blocks) > 0 {
				blocks = blocks[:len(blocks)-1]
			}
			stmtStart = true
		case c == ';':
			inPrelude = false
			stmtStart = true
		case c == '#':
			inDecl := len(blocks) > 0 && blocks[len(blocks)-1] == declBlock
			if m := idSelectorRe.FindStringSubmatch(css[i:]); m != nil && !inDecl && !inPrelude {
				out.WriteString("#" + chapterID + "-" + m[1])
				i += len(m[0])
				stmtStart = false
				continue
			}
			stmtStart = false
		default:
			if !isCSSSpace(c) {
				stmtStart = false
			}
		}
		out.WriteByte(c)
		i++
	}
	return out.String()
}

func isCSSSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f'
}
