// Package extract discovers link candidates in HTML, Markdown and plain text
// documents.
package extract

import (
	"github.com/ejacobg/linkcheck/link"
	"github.com/google/uuid"
)

// Document describes the text handed to Links.
type Document struct {
	// Path (or URI) of the document. It is copied to every extracted link.
	Path string

	// Base that relative targets are resolved against. Defaults to Path.
	Base string

	Format link.Format
}

// Options control optional scanning behavior.
type Options struct {
	// BareURLs enables detection of URLs in plain text documents.
	BareURLs bool
}

// DefaultOptions returns the options used by the command line tool.
func DefaultOptions() Options {
	return Options{BareURLs: true}
}

// candidate is a link target found by a scanner, expressed as byte offsets
// into the source text.
type candidate struct {
	target     string
	start, end int
	base       string
	text       string
}

// scanner is implemented by the per-format link scanners. Each call to scan
// returns the next candidate or false once the input is exhausted.
type scanner interface {
	scan() (candidate, bool)

	// skipped returns the number of malformed fragments passed over so far.
	skipped() int
}

// Iterator yields the links of a single document. It is lazy and cannot be
// restarted; call Links again to rescan a document.
type Iterator struct {
	doc   Document
	sc    scanner
	lines *lineIndex

	latched link.Link
	done    bool
}

// Links returns an iterator over the links found in src.
func Links(src string, doc Document, opts Options) *Iterator {
	if doc.Base == "" {
		doc.Base = doc.Path
	}

	var sc scanner
	switch doc.Format {
	case link.HTML:
		sc = newHTMLScanner(src, doc.Base)
	case link.Markdown:
		sc = newMarkdownScanner(src, doc.Base)
	default:
		if opts.BareURLs {
			sc = newPlainTextScanner(src, doc.Base)
		} else {
			sc = emptyScanner{}
		}
	}

	return &Iterator{doc: doc, sc: sc, lines: newLineIndex(src)}
}

// Next advances the iterator. It returns false once no more links are
// available.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}

	c, ok := it.sc.scan()
	if !ok {
		it.done = true
		return false
	}

	line, col := it.lines.position(c.start)
	it.latched = link.Link{
		ID:     uuid.New(),
		Target: c.target,
		Span: link.Span{
			Start:  c.start,
			End:    c.end,
			Line:   line,
			Column: col,
		},
		Base:     c.base,
		Document: it.doc.Path,
		Format:   it.doc.Format,
		Text:     c.text,
	}
	return true
}

// Link returns the link the iterator currently points to.
func (it *Iterator) Link() link.Link {
	return it.latched
}

// Skipped returns the number of malformed fragments that were passed over.
func (it *Iterator) Skipped() int {
	return it.sc.skipped()
}

// All drains the iterator and returns the remaining links.
func All(it *Iterator) []link.Link {
	var links []link.Link
	for it.Next() {
		links = append(links, it.Link())
	}
	return links
}

type emptyScanner struct{}

func (emptyScanner) scan() (candidate, bool) { return candidate{}, false }
func (emptyScanner) skipped() int            { return 0 }
