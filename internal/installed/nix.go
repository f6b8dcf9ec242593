// ABOUTME: Minimal Nix expression scanner for list-valued attribute assignments
// ABOUTME: Handles comments, strings, nested brackets, and `with pkgs;` prefixes

package installed

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// nixDocument reads `field = [ ... ];` assignments from Nix source.
type nixDocument struct {
	path string
	src  string
}

func (d *nixDocument) Path() string { return d.path }

var withPrefix = regexp.MustCompile(`^with\s+[A-Za-z_][\w.'-]*\s*;\s*`)

func (d *nixDocument) ArrayValues(fieldPath string) ([]string, error) {
	code := stripNixComments(d.src)

	assign := regexp.MustCompile(`(?:^|[\s;{])` + regexp.QuoteMeta(fieldPath) + `\s*=\s*`)
	loc := assign.FindStringIndex(code)
	if loc == nil {
		return nil, fmt.Errorf("%s: %w", fieldPath, ErrFieldNotFound)
	}

	rest := code[loc[1]:]
	for {
		m := withPrefix.FindStringIndex(rest)
		if m == nil {
			break
		}
		rest = rest[m[1]:]
	}

	if !strings.HasPrefix(rest, "[") {
		return nil, fmt.Errorf("%s: %w", fieldPath, ErrNotArray)
	}

	body, err := bracketBody(rest)
	if err != nil {
		return nil, &DocumentParseError{Path: d.path, Err: err}
	}
	return splitNixList(body), nil
}

// stripNixComments blanks `#` and `/* */` comments outside strings.
func stripNixComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))

	for i := 0; i < len(src); {
		switch {
		case src[i] == '"':
			end := skipString(src, i)
			b.WriteString(src[i:end])
			i = end
		case strings.HasPrefix(src[i:], "''"):
			end := skipIndentedString(src, i)
			b.WriteString(src[i:end])
			i = end
		case src[i] == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				i = len(src)
			} else {
				i += end + 4
			}
			b.WriteByte(' ')
		default:
			b.WriteByte(src[i])
			i++
		}
	}
	return b.String()
}

// skipString returns the index after the double-quoted string at start.
func skipString(src string, start int) int {
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(src)
}

// skipIndentedString returns the index after the '' string at start.
func skipIndentedString(src string, start int) int {
	for i := start + 2; i < len(src)-1; i++ {
		if src[i] != '\'' || src[i+1] != '\'' {
			continue
		}
		if i+2 < len(src) && strings.ContainsRune(`'$\`, rune(src[i+2])) {
			i += 2
			continue
		}
		return i + 2
	}
	return len(src)
}

// bracketBody returns the text between the leading '[' and its match.
func bracketBody(s string) (string, error) {
	depth := 0
	for i := 0; i < len(s); {
		switch {
		case s[i] == '"':
			i = skipString(s, i)
			continue
		case strings.HasPrefix(s[i:], "''"):
			i = skipIndentedString(s, i)
			continue
		case s[i] == '[' || s[i] == '(' || s[i] == '{':
			depth++
		case s[i] == ']' || s[i] == ')' || s[i] == '}':
			depth--
			if depth == 0 {
				if s[i] != ']' {
					return "", fmt.Errorf("mismatched %q closing list", s[i])
				}
				return s[1:i], nil
			}
		}
		i++
	}
	return "", fmt.Errorf("unterminated list")
}

// splitNixList splits list elements on whitespace at nesting depth zero.
func splitNixList(body string) []string {
	var (
		values []string
		start  = -1
		depth  int
	)

	flush := func(end int) {
		if start >= 0 {
			values = append(values, body[start:end])
			start = -1
		}
	}

	for i := 0; i < len(body); {
		c := body[i]
		if depth == 0 && unicode.IsSpace(rune(c)) {
			flush(i)
			i++
			continue
		}
		if start < 0 {
			start = i
		}
		switch {
		case c == '"':
			i = skipString(body, i)
			continue
		case strings.HasPrefix(body[i:], "''"):
			i = skipIndentedString(body, i)
			continue
		case c == '[' || c == '(' || c == '{':
			depth++
		case c == ']' || c == ')' || c == '}':
			depth--
		}
		i++
	}
	flush(len(body))
	return values
}
