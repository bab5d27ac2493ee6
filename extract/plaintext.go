package extract

import (
	"regexp"

	"mvdan.cc/xurls/v2"
)

// Only URLs with an explicit scheme are considered; "example.com" on its
// own is too ambiguous to validate.
var bareURLRegex = xurls.Strict()

type plainTextScanner struct {
	src  string
	base string
	pos  int
	re   *regexp.Regexp
}

func newPlainTextScanner(src, base string) *plainTextScanner {
	return &plainTextScanner{src: src, base: base, re: bareURLRegex}
}

func (s *plainTextScanner) skipped() int { return 0 }

func (s *plainTextScanner) scan() (candidate, bool) {
	if s.pos >= len(s.src) {
		return candidate{}, false
	}

	loc := s.re.FindStringIndex(s.src[s.pos:])
	if loc == nil {
		s.pos = len(s.src)
		return candidate{}, false
	}

	start, end := s.pos+loc[0], s.pos+loc[1]
	s.pos = end
	return candidate{
		target: s.src[start:end],
		start:  start,
		end:    end,
		base:   s.base,
	}, true
}
