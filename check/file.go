package check

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ejacobg/linkcheck/link"
)

// FileChecker validates links to local files.
type FileChecker struct {
	FS Filesystem

	// When set, links resolving outside Root are rejected.
	Root string

	// When set and FS implements DirChecker, a link to a directory is
	// checked against this file inside it (e.g. "index.html").
	DefaultFile string

	// When set and FS implements FileReader, fragments of links to HTML
	// files must name an element id or an anchor in the target.
	Fragments bool
}

// Check implements Checker.
func (c FileChecker) Check(ctx context.Context, cat link.Category) link.Outcome {
	if ctx.Err() != nil {
		return contextOutcome(ctx)
	}

	target := cat.Path
	if c.Root != "" && !within(c.Root, target) {
		return link.Invalid(link.Reason{Kind: link.NotFound}, target+" is outside "+c.Root)
	}
	if outcome, ok := c.exists(target); !ok {
		return outcome
	}

	if c.DefaultFile != "" {
		if dc, ok := c.FS.(DirChecker); ok {
			isDir, err := dc.IsDir(target)
			if err != nil {
				return fsFailure(err)
			}
			if isDir {
				target = filepath.Join(target, c.DefaultFile)
				if outcome, ok := c.exists(target); !ok {
					return outcome
				}
			}
		}
	}

	if c.Fragments && cat.Fragment != "" && isHTMLFile(target) {
		if fr, ok := c.FS.(FileReader); ok {
			return c.checkFragment(fr, target, cat.Fragment)
		}
	}
	return link.Valid()
}

func (c FileChecker) exists(path string) (link.Outcome, bool) {
	found, err := c.FS.Exists(path)
	if err != nil {
		return fsFailure(err), false
	}
	if !found {
		return link.Invalid(link.Reason{Kind: link.NotFound}, path), false
	}
	return link.Outcome{}, true
}

func (c FileChecker) checkFragment(fr FileReader, path, fragment string) link.Outcome {
	rc, err := fr.Open(path)
	if err != nil {
		return fsFailure(err)
	}
	defer func() { _ = rc.Close() }()

	found, err := hasFragment(rc, fragment)
	if err != nil {
		return link.Invalid(link.Reason{Kind: link.MissingFragment}, err.Error())
	}
	if !found {
		return link.Invalid(link.Reason{Kind: link.MissingFragment}, "#"+fragment)
	}
	return link.Valid()
}

// hasFragment returns true if the HTML document contains an element whose
// id, or an anchor whose name, equals fragment.
func hasFragment(r io.Reader, fragment string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return false, err
	}

	match := doc.Find("[id], a[name]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		if id, ok := s.Attr("id"); ok && id == fragment {
			return true
		}
		if goquery.NodeName(s) == "a" {
			if name, ok := s.Attr("name"); ok && name == fragment {
				return true
			}
		}
		return false
	})
	return match.Length() > 0, nil
}

func fsFailure(err error) link.Outcome {
	if errors.Is(err, fs.ErrPermission) {
		return link.Invalid(link.Reason{Kind: link.PermissionDenied}, err.Error())
	}
	return link.Invalid(link.Reason{Kind: link.NotFound}, err.Error())
}

func within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isHTMLFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// OSFilesystem implements Filesystem, DirChecker and FileReader on top of
// the local file system.
type OSFilesystem struct{}

// Exists implements Filesystem.
func (OSFilesystem) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// IsDir implements DirChecker.
func (OSFilesystem) IsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// Open implements FileReader.
func (OSFilesystem) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}
