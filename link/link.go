// Package link defines the data model shared by the extraction and
// validation stages: located links, their categories and the outcome of
// checking them.
package link

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Span describes where a link was found inside a document.
type Span struct {
	// Byte offsets of the link target, Start inclusive and End exclusive.
	Start int
	End   int

	// 1-based position of Start. Column counts runes, not bytes.
	Line   int
	Column int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// String implements fmt.Stringer.
func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Line, s.Column)
}

// Format identifies the markup language of a document.
type Format uint8

const (
	PlainText Format = iota
	HTML
	Markdown
)

func (f Format) String() string {
	switch f {
	case HTML:
		return "html"
	case Markdown:
		return "markdown"
	default:
		return "text"
	}
}

// FormatFromPath guesses a document format from its file extension.
// Unknown extensions are treated as plain text.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return HTML
	case ".md", ".markdown", ".mdown", ".mkd":
		return Markdown
	default:
		return PlainText
	}
}

// Link is a located, unvalidated reference discovered in a document. Links
// are never mutated once extracted.
type Link struct {
	// A unique identifier for the link.
	ID uuid.UUID

	// The target exactly as it appears in the document.
	Target string

	// The location of Target inside the document.
	Span Span

	// The path or URI that relative targets are resolved against. It
	// usually equals Document unless the document overrides it (e.g. an
	// HTML <base> tag).
	Base string

	// The document the link was found in.
	Document string

	// The format of the document the link was found in.
	Format Format

	// Plain-text label of the link (anchor text, markdown link text).
	Text string
}

// String implements fmt.Stringer.
func (l Link) String() string {
	if l.Document == "" {
		return fmt.Sprintf("%s: %s", l.Span, l.Target)
	}
	return fmt.Sprintf("%s:%s: %s", l.Document, l.Span, l.Target)
}
