package extract

import (
	"regexp"
	"strings"
)

var (
	// Reference definitions: [label]: destination
	refDefRegex = regexp.MustCompile(`^\[((?:[^\[\]\\\n]|\\.)+)\]:[ \t]*(?:\n[ \t]*)?(<[^<>\n]*>|[^\s<>]+)`)

	// URI autolinks: <https://example.com>
	autolinkRegex = regexp.MustCompile(`^<([A-Za-z][A-Za-z0-9+.\-]{1,31}:[^\s<>]*)>`)

	// Email autolinks: <someone@example.com>
	emailAutolinkRegex = regexp.MustCompile(`^<([A-Za-z0-9.!#$%&'*+/=?^_{|}~\-]+@[A-Za-z0-9](?:[A-Za-z0-9\-]{0,61}[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9\-]{0,61}[A-Za-z0-9])?)*)>`)

	// Raw HTML tags embedded in markdown that may carry a link.
	inlineTagRegex = regexp.MustCompile(`(?i)^<(a|img)\b[^>]*>`)

	listItemRegex = regexp.MustCompile(`^(?:[-*+]|\d{1,9}[.)])(?:[ \t]|$)`)
)

// region is a [start, end) byte range.
type region struct {
	start, end int
}

// jump makes the scanner skip from at to to. It is used to scan the text of
// a link for nested links (e.g. an image wrapped in a link) without scanning
// the destination a second time.
type jump struct {
	at, to int
}

type markdownScanner struct {
	src  string
	base string
	pos  int

	code    []region
	codeIdx int
	jumps   []jump

	numSkipped int
}

func newMarkdownScanner(src, base string) *markdownScanner {
	return &markdownScanner{
		src:  src,
		base: base,
		code: codeRegions(src),
	}
}

func (s *markdownScanner) skipped() int { return s.numSkipped }

func (s *markdownScanner) scan() (candidate, bool) {
	for s.pos < len(s.src) {
		if n := len(s.jumps); n > 0 && s.pos >= s.jumps[n-1].at {
			if s.pos < s.jumps[n-1].to {
				s.pos = s.jumps[n-1].to
			}
			s.jumps = s.jumps[:n-1]
			continue
		}

		if end, ok := s.inCode(s.pos); ok {
			s.pos = end
			continue
		}

		switch s.src[s.pos] {
		case '\\':
			s.pos += 2
			continue
		case '`':
			s.pos = s.skipCodeSpan(s.pos)
			continue
		case '<':
			if end, ok := commentEnd(s.src, s.pos); ok {
				s.pos = end
				continue
			}
			if c, next, ok := s.angle(s.pos); ok {
				s.pos = next
				return c, true
			}
		case '[':
			c, next, ok := s.bracket(s.pos)
			s.pos = next
			if ok {
				return c, true
			}
			continue
		}
		s.pos++
	}
	return candidate{}, false
}

// inCode reports whether pos falls inside a code block and returns the end of
// that block.
func (s *markdownScanner) inCode(pos int) (int, bool) {
	for s.codeIdx < len(s.code) && s.code[s.codeIdx].end <= pos {
		s.codeIdx++
	}
	if s.codeIdx < len(s.code) && s.code[s.codeIdx].start <= pos {
		return s.code[s.codeIdx].end, true
	}
	return 0, false
}

// skipCodeSpan returns the position right after the code span opening at i.
// A backtick run without a matching closing run is treated as literal text.
func (s *markdownScanner) skipCodeSpan(i int) int {
	n := 0
	for i+n < len(s.src) && s.src[i+n] == '`' {
		n++
	}

	for k := i + n; k < len(s.src); {
		if s.src[k] != '`' {
			k++
			continue
		}
		run := 0
		for k+run < len(s.src) && s.src[k+run] == '`' {
			run++
		}
		if run == n {
			return k + run
		}
		k += run
	}
	return i + n
}

// angle handles autolinks and raw <a>/<img> tags starting at i.
func (s *markdownScanner) angle(i int) (candidate, int, bool) {
	rest := s.src[i:]

	if m := autolinkRegex.FindStringSubmatchIndex(rest); m != nil {
		return candidate{
			target: rest[m[2]:m[3]],
			start:  i + m[2],
			end:    i + m[3],
			base:   s.base,
		}, i + m[1], true
	}

	if m := emailAutolinkRegex.FindStringSubmatchIndex(rest); m != nil {
		return candidate{
			target: "mailto:" + rest[m[2]:m[3]],
			start:  i + m[2],
			end:    i + m[3],
			base:   s.base,
		}, i + m[1], true
	}

	if m := inlineTagRegex.FindStringSubmatchIndex(rest); m != nil {
		tag := rest[:m[1]]
		attr := "href"
		if strings.EqualFold(rest[m[2]:m[3]], "img") {
			attr = "src"
		}
		if start, end, ok := locateAttr(tag, attr); ok {
			return candidate{
				target: strings.TrimSpace(tag[start:end]),
				start:  i + start,
				end:    i + end,
				base:   s.base,
			}, i + m[1], true
		}
	}

	return candidate{}, 0, false
}

// bracket handles inline links, images and reference definitions opening at
// i. It always returns the position to resume scanning from.
func (s *markdownScanner) bracket(i int) (candidate, int, bool) {
	image := i > 0 && s.src[i-1] == '!'

	if !image && s.atLineStart(i) {
		if m := refDefRegex.FindStringSubmatchIndex(s.src[i:]); m != nil {
			start, end := i+m[4], i+m[5]
			if s.src[start] == '<' {
				start, end = start+1, end-1
			}
			return candidate{
				target: s.src[start:end],
				start:  start,
				end:    end,
				base:   s.base,
				text:   plainText(s.src[i+m[2] : i+m[3]]),
			}, i + m[1], true
		}
	}

	j := s.matchBracket(i)
	if j < 0 || j+1 >= len(s.src) || s.src[j+1] != '(' {
		// Not an inline link; keep scanning inside the brackets.
		return candidate{}, i + 1, false
	}

	start, end, closing, ok := s.destination(j + 2)
	if !ok {
		s.numSkipped++
		return candidate{}, i + 1, false
	}

	c := candidate{
		target: s.src[start:end],
		start:  start,
		end:    end,
		base:   s.base,
		text:   plainText(s.src[i+1 : j]),
	}

	if strings.Contains(s.src[i+1:j], "[") {
		s.jumps = append(s.jumps, jump{at: j, to: closing + 1})
		return c, i + 1, true
	}
	return c, closing + 1, true
}

// matchBracket returns the index of the ']' closing the '[' at i or -1. The
// search stops at a blank line.
func (s *markdownScanner) matchBracket(i int) int {
	depth := 0
	for k := i; k < len(s.src); k++ {
		switch s.src[k] {
		case '\\':
			k++
		case '`':
			k = s.skipCodeSpan(k) - 1
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return k
			}
		case '\n':
			if isBlankLineAt(s.src, k+1) {
				return -1
			}
		}
	}
	return -1
}

// destination parses the destination and optional title of an inline link
// starting right after its opening parenthesis. It returns the destination
// bounds and the position of the closing parenthesis.
func (s *markdownScanner) destination(k int) (start, end, closing int, ok bool) {
	k = s.skipSpace(k)
	if k >= len(s.src) {
		return 0, 0, 0, false
	}

	if s.src[k] == '<' {
		e := strings.IndexAny(s.src[k+1:], ">\n")
		if e < 0 || s.src[k+1+e] != '>' {
			return 0, 0, 0, false
		}
		start, end = k+1, k+1+e
		k = end + 1
	} else {
		start = k
		depth := 0
	loop:
		for k < len(s.src) {
			switch c := s.src[k]; {
			case c == '\\':
				k += 2
				continue
			case c == '(':
				depth++
			case c == ')':
				if depth == 0 {
					break loop
				}
				depth--
			case c <= ' ':
				break loop
			}
			k++
		}
		if k > len(s.src) {
			k = len(s.src)
		}
		end = k
	}

	k = s.skipSpace(k)
	if k < len(s.src) && end > start && (s.src[k] == '"' || s.src[k] == '\'' || s.src[k] == '(') {
		delim := s.src[k]
		if delim == '(' {
			delim = ')'
		}
		e := strings.IndexByte(s.src[k+1:], delim)
		if e < 0 {
			return 0, 0, 0, false
		}
		k = s.skipSpace(k + 1 + e + 1)
	}

	if k >= len(s.src) || s.src[k] != ')' {
		return 0, 0, 0, false
	}
	return start, end, k, true
}

// skipSpace skips spaces, tabs and at most one line ending.
func (s *markdownScanner) skipSpace(k int) int {
	newline := false
	for k < len(s.src) {
		switch s.src[k] {
		case ' ', '\t', '\r':
		case '\n':
			if newline {
				return k
			}
			newline = true
		default:
			return k
		}
		k++
	}
	return k
}

// atLineStart reports whether i is preceded by at most three spaces on its
// line.
func (s *markdownScanner) atLineStart(i int) bool {
	spaces := 0
	for k := i - 1; k >= 0; k-- {
		switch s.src[k] {
		case '\n':
			return true
		case ' ':
			spaces++
			if spaces > 3 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func isBlankLineAt(src string, k int) bool {
	for ; k < len(src); k++ {
		switch src[k] {
		case ' ', '\t', '\r':
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}

// commentEnd returns the offset just past an HTML comment starting at pos.
// An unterminated "<!--" is plain text.
func commentEnd(src string, pos int) (int, bool) {
	if !strings.HasPrefix(src[pos:], "<!--") {
		return 0, false
	}
	i := strings.Index(src[pos+4:], "-->")
	if i < 0 {
		return 0, false
	}
	return pos + 4 + i + 3, true
}

// codeRegions returns the fenced and indented code blocks of a markdown
// document in ascending order.
func codeRegions(src string) []region {
	var (
		regions []region

		fenceChar  byte
		fenceLen   int
		fenceStart = -1

		prevBlank  = true
		inIndented bool
		inList     bool
	)

	for lineStart := 0; lineStart < len(src); {
		lineEnd := strings.IndexByte(src[lineStart:], '\n')
		next := len(src)
		if lineEnd < 0 {
			lineEnd = len(src)
		} else {
			lineEnd += lineStart
			next = lineEnd + 1
		}

		line := strings.TrimRight(src[lineStart:lineEnd], "\r")
		trimmed := strings.TrimLeft(line, " ")
		indent := len(line) - len(trimmed)
		blank := strings.TrimSpace(line) == ""
		tabbed := strings.HasPrefix(line, "\t")

		switch {
		case fenceStart >= 0:
			if indent < 4 && isFenceClose(trimmed, fenceChar, fenceLen) {
				regions = append(regions, region{start: fenceStart, end: next})
				fenceStart = -1
			}

		case indent < 4 && !tabbed && (strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")):
			fenceChar = trimmed[0]
			fenceLen = len(trimmed) - len(strings.TrimLeft(trimmed, string(fenceChar)))
			fenceStart = lineStart
			inIndented = false

		case (indent >= 4 || tabbed) && !blank && !inList && (prevBlank || inIndented):
			regions = append(regions, region{start: lineStart, end: next})
			inIndented = true

		case blank:
			// Blank lines neither open nor close indented code.

		default:
			inIndented = false
			if indent < 4 && !tabbed {
				inList = listItemRegex.MatchString(trimmed)
			}
		}

		prevBlank = blank
		lineStart = next
	}

	// An unterminated fence runs to the end of the document.
	if fenceStart >= 0 {
		regions = append(regions, region{start: fenceStart, end: len(src)})
	}
	return regions
}

func isFenceClose(trimmed string, ch byte, n int) bool {
	rest := strings.TrimLeft(trimmed, string(ch))
	return len(trimmed)-len(rest) >= n && strings.TrimSpace(rest) == ""
}
