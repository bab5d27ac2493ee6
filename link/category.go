package link

import (
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// Kind enumerates the possible categories of a link target.
type Kind uint8

const (
	// Unknown is assigned to targets that could not be resolved, e.g. a
	// relative path without a base to resolve it against.
	Unknown Kind = iota

	// Ignored targets are never handed to a checker.
	Ignored

	Filesystem
	MailTo
	URL
)

func (k Kind) String() string {
	switch k {
	case Ignored:
		return "ignored"
	case Filesystem:
		return "filesystem"
	case MailTo:
		return "mailto"
	case URL:
		return "url"
	default:
		return "unknown"
	}
}

// Key is the canonical identity of a link target. Links whose categories
// produce the same Key share a single validation result.
type Key string

// Category is the classification of a link target. Only the fields that
// belong to Kind are populated.
type Category struct {
	Kind Kind

	// Filesystem: the absolute, cleaned path and an optional fragment.
	Path     string
	Fragment string

	// MailTo: the address (without the mailto: prefix or query) and whether
	// it passed the syntax check.
	Address   string
	AddressOK bool

	// URL: the parsed absolute URL.
	URL *url.URL

	// Ignored and Unknown: a human readable explanation.
	Note string
}

// Checkable returns true if the category must be handed to a checker.
func (c Category) Checkable() bool {
	return c.Kind == Filesystem || c.Kind == MailTo || c.Kind == URL
}

// Key returns the canonical cache key for the category. Categories that are
// not checkable yield an empty key.
func (c Category) Key() Key {
	switch c.Kind {
	case Filesystem:
		k := "file://" + filepath.ToSlash(filepath.Clean(c.Path))
		if c.Fragment != "" {
			k += "#" + c.Fragment
		}
		return Key(k)
	case MailTo:
		return Key("mailto:" + normalizeAddress(c.Address))
	case URL:
		if c.URL == nil {
			return ""
		}
		return Key(normalizeURL(c.URL))
	default:
		return ""
	}
}

func (c Category) String() string {
	switch c.Kind {
	case Filesystem, MailTo, URL:
		return c.Kind.String() + "(" + string(c.Key()) + ")"
	default:
		if c.Note == "" {
			return c.Kind.String()
		}
		return c.Kind.String() + "(" + c.Note + ")"
	}
}

// normalizeAddress lower-cases the domain part of each address. Local parts
// are case-sensitive and kept as-is.
func normalizeAddress(addr string) string {
	parts := strings.Split(addr, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if at := strings.LastIndex(p, "@"); at >= 0 {
			p = p[:at+1] + strings.ToLower(p[at+1:])
		}
		parts[i] = p
	}
	return strings.Join(parts, ",")
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ftp":   "21",
}

func normalizeURL(u *url.URL) string {
	n := &url.URL{
		Scheme:   strings.ToLower(u.Scheme),
		Host:     strings.ToLower(u.Host),
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
		Opaque:   u.Opaque,
	}

	if host, port, err := net.SplitHostPort(n.Host); err == nil && defaultPorts[n.Scheme] == port {
		n.Host = host
		if strings.Contains(host, ":") {
			n.Host = "[" + host + "]"
		}
	}

	if n.Opaque == "" && n.Path == "" {
		n.Path = "/"
	}

	return n.String()
}
