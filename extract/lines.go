package extract

import (
	"sort"
	"unicode/utf8"
)

// lineIndex maps byte offsets to 1-based line and rune column numbers.
type lineIndex struct {
	src string

	// starts[i] is the byte offset where line i+1 begins.
	starts []int
}

func newLineIndex(src string) *lineIndex {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{src: src, starts: starts}
}

func (li *lineIndex) position(offset int) (line, column int) {
	if offset < 0 {
		offset = 0
	} else if offset > len(li.src) {
		offset = len(li.src)
	}

	// Index of the first line starting after offset; the line we want is
	// the one before it.
	i := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
	return i + 1, utf8.RuneCountInString(li.src[li.starts[i]:offset]) + 1
}
