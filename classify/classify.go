// Package classify maps link targets to categories.
package classify

import (
	"fmt"
	"net/mail"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ejacobg/linkcheck/link"
)

// DefaultSchemes lists the URL schemes recognised when Options.Schemes is
// empty.
var DefaultSchemes = []string{"http", "https", "ftp"}

// ignoredSchemes are never checked because they do not designate a
// resource that can be fetched.
var ignoredSchemes = map[string]string{
	"javascript": "javascript link",
	"data":       "inline data",
}

// windowsDriveRegex matches paths such as C:\foo or C:/foo, which url.Parse
// would otherwise report as having a one-letter scheme.
var windowsDriveRegex = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

// BaseResolver supplies the base path or URI for a given document.
type BaseResolver interface {
	Base(document string) (string, error)
}

// BaseResolverFunc adapts a function to the BaseResolver interface.
type BaseResolverFunc func(document string) (string, error)

// Base implements BaseResolver.
func (f BaseResolverFunc) Base(document string) (string, error) { return f(document) }

// DocumentBase is a BaseResolver that uses the absolute path of the document
// itself. URLs are returned unchanged.
var DocumentBase = BaseResolverFunc(func(document string) (string, error) {
	if document == "" {
		return "", fmt.Errorf("document has no path")
	}
	if u, err := url.Parse(document); err == nil && u.IsAbs() && !windowsDriveRegex.MatchString(document) {
		return document, nil
	}
	return filepath.Abs(document)
})

// Options configure a Classifier.
type Options struct {
	// Recognised URL schemes. Defaults to DefaultSchemes.
	Schemes []string

	// Targets matching any of these patterns are ignored.
	IgnorePatterns []*regexp.Regexp

	// When set, targets with a leading slash are resolved relative to Root
	// instead of the filesystem root.
	Root string

	// Resolver overrides the base of links that do not carry one. When nil,
	// the link's own Base is used.
	Resolver BaseResolver
}

// Classifier assigns a link.Category to links. It is safe for concurrent
// use.
type Classifier struct {
	schemes  map[string]bool
	ignore   []*regexp.Regexp
	root     string
	resolver BaseResolver
}

// New creates a Classifier.
func New(opts Options) *Classifier {
	schemes := opts.Schemes
	if len(schemes) == 0 {
		schemes = DefaultSchemes
	}

	c := &Classifier{
		schemes:  make(map[string]bool, len(schemes)),
		ignore:   opts.IgnorePatterns,
		root:     opts.Root,
		resolver: opts.Resolver,
	}
	for _, s := range schemes {
		c.schemes[strings.ToLower(s)] = true
	}
	return c
}

// Classify returns the category of l's target. Exactly one category is
// returned for every input.
func (c *Classifier) Classify(l link.Link) link.Category {
	target := strings.TrimSpace(l.Target)

	for _, re := range c.ignore {
		if re.MatchString(target) {
			return ignored(fmt.Sprintf("matches ignore pattern %q", re.String()))
		}
	}

	switch {
	case target == "":
		return ignored("empty target")
	case strings.HasPrefix(target, "#"):
		return ignored("fragment within the current document")
	}

	if hasPrefixFold(target, "mailto:") {
		return classifyMailTo(target[len("mailto:"):])
	}

	if u, err := url.Parse(target); err == nil && u.IsAbs() && !windowsDriveRegex.MatchString(target) {
		scheme := strings.ToLower(u.Scheme)
		switch {
		case scheme == "file":
			return c.filesystem(u.Path, u.Fragment)
		case c.schemes[scheme]:
			if u.Host == "" && u.Opaque == "" {
				return link.Category{Kind: link.Unknown, Note: "URL without a host"}
			}
			return link.Category{Kind: link.URL, URL: u}
		case ignoredSchemes[scheme] != "":
			return ignored(ignoredSchemes[scheme])
		default:
			return ignored(fmt.Sprintf("unsupported scheme %q", scheme))
		}
	}

	// Protocol-relative URLs inherit the scheme of an http(s) base.
	if strings.HasPrefix(target, "//") {
		base, err := c.base(l)
		if bu, ok := httpBase(base); err == nil && ok {
			if u, err := bu.Parse(target); err == nil {
				return link.Category{Kind: link.URL, URL: u}
			}
		}
		return link.Category{Kind: link.Unknown, Note: "protocol-relative URL without a web base"}
	}

	return c.relative(l, target)
}

// relative classifies targets that are not absolute URLs: paths, or
// references relative to a web base.
func (c *Classifier) relative(l link.Link, target string) link.Category {
	p, fragment := target, ""
	if i := strings.IndexByte(p, '#'); i >= 0 {
		p, fragment = p[:i], p[i+1:]
	}
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}

	base, err := c.base(l)
	if err != nil {
		return link.Category{Kind: link.Unknown, Note: err.Error()}
	}

	if bu, ok := httpBase(base); ok {
		ref, err := url.Parse(target)
		if err != nil {
			return link.Category{Kind: link.Unknown, Note: err.Error()}
		}
		return link.Category{Kind: link.URL, URL: bu.ResolveReference(ref)}
	}

	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
		if c.root == "" {
			return c.filesystem(p, fragment)
		}
		return c.filesystem(filepath.Join(c.root, filepath.FromSlash(p)), fragment)
	}

	if base == "" {
		return link.Category{Kind: link.Unknown, Note: "relative path without a base"}
	}

	// A base ending with a separator designates a directory; otherwise it
	// is a document and targets are relative to its directory.
	dir := base
	if !strings.HasSuffix(base, "/") && !strings.HasSuffix(base, string(filepath.Separator)) {
		dir = filepath.Dir(base)
	}
	if p == "" {
		// Only a query string; the target is the document itself.
		return c.filesystem(base, fragment)
	}
	return c.filesystem(filepath.Join(dir, filepath.FromSlash(p)), fragment)
}

func (c *Classifier) filesystem(p, fragment string) link.Category {
	if p == "" {
		return link.Category{Kind: link.Unknown, Note: "empty path"}
	}
	return link.Category{
		Kind:     link.Filesystem,
		Path:     filepath.Clean(p),
		Fragment: fragment,
	}
}

func (c *Classifier) base(l link.Link) (string, error) {
	if l.Base != "" {
		return l.Base, nil
	}
	if c.resolver == nil || l.Document == "" {
		return "", nil
	}

	base, err := c.resolver.Base(l.Document)
	if err != nil {
		return "", fmt.Errorf("resolving base of %q: %w", l.Document, err)
	}
	return base, nil
}

func classifyMailTo(rest string) link.Category {
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}
	if unescaped, err := url.PathUnescape(rest); err == nil {
		rest = unescaped
	}
	return link.Category{
		Kind:      link.MailTo,
		Address:   rest,
		AddressOK: validAddressList(rest),
	}
}

// validAddressList checks that every comma-separated address has exactly
// one '@' with non-empty local and domain parts.
func validAddressList(list string) bool {
	if strings.TrimSpace(list) == "" {
		return false
	}

	for _, addr := range strings.Split(list, ",") {
		addr = strings.TrimSpace(addr)
		at := strings.IndexByte(addr, '@')
		if at <= 0 || at == len(addr)-1 || strings.Count(addr, "@") != 1 {
			return false
		}
		if _, err := mail.ParseAddress(addr); err != nil {
			return false
		}
	}
	return true
}

func httpBase(base string) (*url.URL, bool) {
	if base == "" {
		return nil, false
	}
	u, err := url.Parse(base)
	if err != nil || !u.IsAbs() {
		return nil, false
	}
	scheme := strings.ToLower(u.Scheme)
	return u, scheme == "http" || scheme == "https"
}

func ignored(note string) link.Category {
	return link.Category{Kind: link.Ignored, Note: note}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
