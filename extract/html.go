package extract

import (
	"html"
	"io"
	"net/url"
	"path"
	"strings"

	xhtml "golang.org/x/net/html"
)

// linkAttrs lists, per element, the attributes that hold a link target.
var linkAttrs = map[string][]string{
	"a":      {"href"},
	"area":   {"href"},
	"link":   {"href"},
	"img":    {"src", "srcset"},
	"source": {"src", "srcset"},
	"script": {"src"},
	"iframe": {"src"},
	"audio":  {"src"},
	"video":  {"src", "poster"},
	"embed":  {"src"},
	"track":  {"src"},
}

// locateAttr returns the offsets of the value of the named attribute
// relative to the start of the raw tag. Attributes are walked in order, so
// text inside another attribute's quoted value never matches.
func locateAttr(rawTag, name string) (start, end int, ok bool) {
	i := strings.IndexAny(rawTag, " \t\r\n\f/>")
	if i < 0 {
		return 0, 0, false
	}

	for i < len(rawTag) {
		i = skipAttrSpace(rawTag, i)
		if i >= len(rawTag) || rawTag[i] == '>' {
			break
		}

		keyStart := i
		for i < len(rawTag) && !isAttrSpace(rawTag[i]) && (rawTag[i] != '=' || i == keyStart) && rawTag[i] != '/' && rawTag[i] != '>' {
			i++
		}
		key := rawTag[keyStart:i]

		j := skipSpace(rawTag, i)
		if j >= len(rawTag) || rawTag[j] != '=' {
			i = j
			continue
		}
		j = skipSpace(rawTag, j+1)
		if j >= len(rawTag) {
			break
		}

		var valStart, valEnd int
		switch q := rawTag[j]; q {
		case '"', '\'':
			valStart = j + 1
			k := strings.IndexByte(rawTag[valStart:], q)
			if k < 0 {
				return 0, 0, false
			}
			valEnd = valStart + k
			i = valEnd + 1
		default:
			valStart = j
			valEnd = j
			for valEnd < len(rawTag) && !isAttrSpace(rawTag[valEnd]) && rawTag[valEnd] != '>' {
				valEnd++
			}
			i = valEnd
		}

		if strings.EqualFold(key, name) {
			return valStart, valEnd, true
		}
	}
	return 0, 0, false
}

func isAttrSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '\f':
		return true
	}
	return false
}

func skipSpace(s string, i int) int {
	for i < len(s) && isAttrSpace(s[i]) {
		i++
	}
	return i
}

// skipAttrSpace also skips the slashes that may separate attributes.
func skipAttrSpace(s string, i int) int {
	for i < len(s) && (isAttrSpace(s[i]) || s[i] == '/') {
		i++
	}
	return i
}

type htmlScanner struct {
	z      *xhtml.Tokenizer
	offset int
	base   string

	// Candidates waiting to be returned, in document order.
	queue []candidate

	// An <a> element whose text is still being collected.
	anchor     *candidate
	anchorText strings.Builder

	numSkipped int
	eof        bool
}

func newHTMLScanner(src, base string) *htmlScanner {
	return &htmlScanner{
		z:    xhtml.NewTokenizer(strings.NewReader(src)),
		base: base,
	}
}

func (s *htmlScanner) skipped() int { return s.numSkipped }

func (s *htmlScanner) scan() (candidate, bool) {
	for len(s.queue) == 0 {
		if s.eof {
			return candidate{}, false
		}
		s.step()
	}

	c := s.queue[0]
	s.queue = s.queue[1:]
	return c, true
}

// step consumes a single token and queues any candidates it produced.
func (s *htmlScanner) step() {
	tt := s.z.Next()

	// Raw must be copied before calling any other tokenizer method.
	raw := string(s.z.Raw())
	tokStart := s.offset
	s.offset += len(raw)

	switch tt {
	case xhtml.ErrorToken:
		if err := s.z.Err(); err != io.EOF {
			s.numSkipped++
		}
		s.flushAnchor()
		s.eof = true

	case xhtml.TextToken:
		if s.anchor != nil {
			s.anchorText.WriteString(raw)
		}

	case xhtml.EndTagToken:
		if name, _ := s.z.TagName(); string(name) == "a" {
			s.flushAnchor()
		}

	case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
		tok := s.z.Token()
		if tok.Data == "base" {
			if href, ok := attrValue(tok, "href"); ok {
				s.base = resolveBase(s.base, href)
			}
			return
		}

		attrs, ok := linkAttrs[tok.Data]
		if !ok {
			return
		}

		var found []candidate
		for _, name := range attrs {
			value, present := attrValue(tok, name)
			if !present {
				continue
			}

			start, end, ok := locateAttr(raw, name)
			if !ok {
				s.numSkipped++
				continue
			}

			if name == "srcset" {
				found = append(found, s.splitSrcset(raw[start:end], tokStart+start)...)
				continue
			}

			found = append(found, candidate{
				target: strings.TrimSpace(value),
				start:  tokStart + start,
				end:    tokStart + end,
				base:   s.base,
			})
		}

		// Anything new ends the text of a pending anchor.
		if len(found) > 0 || tok.Data == "a" {
			s.flushAnchor()
		}

		if tok.Data == "a" && tt == xhtml.StartTagToken && len(found) == 1 {
			c := found[0]
			s.anchor = &c
			return
		}
		s.queue = append(s.queue, found...)
	}
}

func (s *htmlScanner) flushAnchor() {
	if s.anchor == nil {
		return
	}

	c := *s.anchor
	c.text = plainText(s.anchorText.String())
	s.queue = append(s.queue, c)

	s.anchor = nil
	s.anchorText.Reset()
}

// splitSrcset returns one candidate per image candidate listed in a srcset
// attribute. offset is the position of value inside the document.
func (s *htmlScanner) splitSrcset(value string, offset int) []candidate {
	var found []candidate
	pos := 0
	for _, part := range strings.Split(value, ",") {
		partStart := pos
		pos += len(part) + 1

		trimmed := strings.TrimLeft(part, " \t\r\n\f")
		lead := len(part) - len(trimmed)
		if i := strings.IndexAny(trimmed, " \t\r\n\f"); i >= 0 {
			trimmed = trimmed[:i]
		}
		if trimmed == "" {
			continue
		}

		start := offset + partStart + lead
		found = append(found, candidate{
			target: html.UnescapeString(trimmed),
			start:  start,
			end:    start + len(trimmed),
			base:   s.base,
		})
	}
	return found
}

func attrValue(tok xhtml.Token, name string) (string, bool) {
	for _, attr := range tok.Attr {
		if attr.Namespace == "" && attr.Key == name {
			return attr.Val, true
		}
	}
	return "", false
}

// resolveBase applies the href of a <base> tag to the current base. A
// result ending with a slash designates a directory; otherwise it names a
// document and relative targets resolve against that document's directory.
func resolveBase(current, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return current
	}

	if u, err := url.Parse(href); err == nil && u.IsAbs() {
		return href
	}

	if cu, err := url.Parse(current); err == nil && cu.IsAbs() && cu.Host != "" {
		if hu, err := url.Parse(href); err == nil {
			return cu.ResolveReference(hu).String()
		}
		return current
	}

	if path.IsAbs(href) || current == "" {
		return href
	}

	dir := current
	if !strings.HasSuffix(dir, "/") {
		dir = path.Dir(dir)
	}
	joined := path.Join(dir, href)
	if strings.HasSuffix(href, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}
