package check

//go:generate mockgen -source=capabilities.go -destination=mocks/mock_capabilities.go -package=mocks

import (
	"context"
	"io"

	"github.com/ejacobg/linkcheck/fetch"
)

// Fetcher is implemented by objects that can send a single HTTP request
// without following redirects.
type Fetcher interface {
	Probe(ctx context.Context, method, url string) (fetch.Response, error)
}

// Filesystem is implemented by objects that can tell whether a path exists.
type Filesystem interface {
	Exists(path string) (bool, error)
}

// DirChecker is an optional Filesystem extension for telling directories
// apart from files.
type DirChecker interface {
	IsDir(path string) (bool, error)
}

// FileReader is an optional Filesystem extension for reading file contents.
type FileReader interface {
	Open(path string) (io.ReadCloser, error)
}

// PrivateNetworkDetector is implemented by objects that can detect whether a
// host resolves to a private network address.
type PrivateNetworkDetector interface {
	IsPrivate(ctx context.Context, host string) (bool, error)
}
