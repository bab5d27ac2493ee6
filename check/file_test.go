package check_test

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ejacobg/linkcheck/check"
	"github.com/ejacobg/linkcheck/check/mocks"
	"github.com/ejacobg/linkcheck/link"
	"github.com/golang/mock/gomock"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(FileCheckerTestSuite))

type FileCheckerTestSuite struct {
	dir string
}

func (s *FileCheckerTestSuite) SetUpTest(c *gc.C) {
	s.dir = c.MkDir()

	files := map[string]string{
		"README.md":       "# readme\n",
		"guide.html":      `<html><body><h1 id="install">Install</h1><a name="legacy"></a><p data-id="fake"></p></body></html>`,
		"docs/index.html": `<html><body><section id="intro"></section></body></html>`,
		"empty/.keep":     "",
	}
	for name, contents := range files {
		path := filepath.Join(s.dir, filepath.FromSlash(name))
		c.Assert(os.MkdirAll(filepath.Dir(path), 0o755), gc.IsNil)
		c.Assert(os.WriteFile(path, []byte(contents), 0o644), gc.IsNil)
	}
}

func (s *FileCheckerTestSuite) TestExists(c *gc.C) {
	checker := check.FileChecker{FS: check.OSFilesystem{}}

	got := checker.Check(context.TODO(), s.category("README.md", ""))
	c.Assert(got, gc.DeepEquals, link.Valid())

	got = checker.Check(context.TODO(), s.category("docs", ""))
	c.Assert(got, gc.DeepEquals, link.Valid())
}

func (s *FileCheckerTestSuite) TestNotFound(c *gc.C) {
	checker := check.FileChecker{FS: check.OSFilesystem{}}

	got := checker.Check(context.TODO(), s.category("MISSING.md", ""))
	c.Assert(got.Reason.Kind, gc.Equals, link.NotFound)
	c.Assert(got.Note, gc.Equals, filepath.Join(s.dir, "MISSING.md"))
}

func (s *FileCheckerTestSuite) TestDefaultFile(c *gc.C) {
	checker := check.FileChecker{FS: check.OSFilesystem{}, DefaultFile: "index.html"}

	got := checker.Check(context.TODO(), s.category("docs", ""))
	c.Assert(got, gc.DeepEquals, link.Valid())

	got = checker.Check(context.TODO(), s.category("empty", ""))
	c.Assert(got.Reason.Kind, gc.Equals, link.NotFound)
}

func (s *FileCheckerTestSuite) TestFragments(c *gc.C) {
	checker := check.FileChecker{FS: check.OSFilesystem{}, DefaultFile: "index.html", Fragments: true}

	specs := []struct {
		path     string
		fragment string
		valid    bool
	}{
		{"guide.html", "install", true},
		{"guide.html", "legacy", true},
		{"guide.html", "fake", false},
		{"guide.html", "missing", false},
		{"docs", "intro", true},
		{"docs", "outro", false},
		// Fragments are only verified for HTML targets.
		{"README.md", "anything", true},
	}

	for _, spec := range specs {
		got := checker.Check(context.TODO(), s.category(spec.path, spec.fragment))
		c.Assert(got.IsValid(), gc.Equals, spec.valid, gc.Commentf("%s#%s: %v", spec.path, spec.fragment, got))
		if !spec.valid {
			c.Assert(got.Reason.Kind, gc.Equals, link.MissingFragment)
		}
	}

	// Without the flag fragments are not looked at.
	checker.Fragments = false
	got := checker.Check(context.TODO(), s.category("guide.html", "missing"))
	c.Assert(got, gc.DeepEquals, link.Valid())
}

func (s *FileCheckerTestSuite) TestOutsideRoot(c *gc.C) {
	checker := check.FileChecker{FS: check.OSFilesystem{}, Root: filepath.Join(s.dir, "docs")}

	got := checker.Check(context.TODO(), s.category("docs/index.html", ""))
	c.Assert(got, gc.DeepEquals, link.Valid())

	// README.md exists on disk but is not part of the site.
	got = checker.Check(context.TODO(), s.category("README.md", ""))
	c.Assert(got.IsInvalid(), gc.Equals, true)
	c.Assert(got.Reason.Kind, gc.Equals, link.NotFound)

	// A sibling sharing the root's prefix is still outside.
	got = checker.Check(context.TODO(), s.category("docs-old/x.md", ""))
	c.Assert(got.Reason.Kind, gc.Equals, link.NotFound)
}

func (s *FileCheckerTestSuite) TestPermissionDenied(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()
	fsys := mocks.NewMockFilesystem(ctrl)

	fsys.EXPECT().Exists("/secret/file").Return(false, &fs.PathError{Op: "stat", Path: "/secret/file", Err: fs.ErrPermission})

	got := check.FileChecker{FS: fsys}.Check(context.TODO(), link.Category{Kind: link.Filesystem, Path: "/secret/file"})
	c.Assert(got.Reason.Kind, gc.Equals, link.PermissionDenied)
}

func (s *FileCheckerTestSuite) TestOtherErrors(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()
	fsys := mocks.NewMockFilesystem(ctrl)

	fsys.EXPECT().Exists("/broken").Return(false, &fs.PathError{Op: "stat", Path: "/broken", Err: fs.ErrInvalid})

	got := check.FileChecker{FS: fsys}.Check(context.TODO(), link.Category{Kind: link.Filesystem, Path: "/broken"})
	c.Assert(got.Reason.Kind, gc.Equals, link.NotFound)
	c.Assert(got.Note, gc.Equals, "stat /broken: invalid argument")
}

func (s *FileCheckerTestSuite) TestCancelled(c *gc.C) {
	ctx, cancel := context.WithCancel(context.TODO())
	cancel()

	got := check.FileChecker{FS: check.OSFilesystem{}}.Check(ctx, s.category("README.md", ""))
	c.Assert(got.IsCancelled(), gc.Equals, true)
}

func (s *FileCheckerTestSuite) category(rel, fragment string) link.Category {
	return link.Category{
		Kind:     link.Filesystem,
		Path:     filepath.Join(s.dir, filepath.FromSlash(rel)),
		Fragment: fragment,
	}
}

var _ = gc.Suite(new(DispatchTestSuite))

type DispatchTestSuite struct{}

func (s *DispatchTestSuite) TestMailChecker(c *gc.C) {
	got := check.MailChecker{}.Check(context.TODO(), link.Category{Kind: link.MailTo, Address: "someone@example.com", AddressOK: true})
	c.Assert(got, gc.DeepEquals, link.Valid())

	got = check.MailChecker{}.Check(context.TODO(), link.Category{Kind: link.MailTo, Address: "someone.example.com"})
	c.Assert(got, gc.DeepEquals, link.Invalid(link.Reason{Kind: link.MalformedAddress}, "someone.example.com"))
}

func (s *DispatchTestSuite) TestTable(c *gc.C) {
	var calls []link.Kind
	record := check.CheckerFunc(func(_ context.Context, cat link.Category) link.Outcome {
		calls = append(calls, cat.Kind)
		return link.Valid()
	})

	table := check.Table{
		link.Filesystem: record,
		link.URL:        record,
	}

	c.Assert(table.Check(context.TODO(), link.Category{Kind: link.URL}), gc.DeepEquals, link.Valid())
	c.Assert(table.Check(context.TODO(), link.Category{Kind: link.Filesystem}), gc.DeepEquals, link.Valid())
	c.Assert(calls, gc.DeepEquals, []link.Kind{link.URL, link.Filesystem})

	got := table.Check(context.TODO(), link.Category{Kind: link.MailTo})
	c.Assert(got.Reason.Kind, gc.Equals, link.Unresolvable)
}
