package validate

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/ejacobg/linkcheck/cache"
	"github.com/ejacobg/linkcheck/check"
	"github.com/ejacobg/linkcheck/classify"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// NoTimeout disables a timeout setting.
const NoTimeout time.Duration = -1

// ErrInvalidConfig is returned (wrapped) by New and Validate when the
// configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config encapsulates the settings for validating a batch of links.
type Config struct {
	// Maximum number of checks running at the same time.
	Concurrency int

	// Upper bound for a single check. NoTimeout disables it.
	PerCheckTimeout time.Duration

	// Upper bound for a whole batch. NoTimeout disables it; zero cancels
	// every check that is not answered by the cache.
	BatchTimeout time.Duration

	// URL schemes recognised by the classifier. Defaults to
	// classify.DefaultSchemes.
	Schemes []string

	// Targets matching any of these patterns are ignored.
	IgnorePatterns []*regexp.Regexp

	// When not empty, web links must match one of these patterns to be
	// checked; the rest are ignored.
	IncludePatterns []*regexp.Regexp

	// Root directory for links with a leading slash. Local links that
	// resolve outside Root are rejected.
	Root string

	// Supplies document bases. When nil, each link's own Base is used.
	Resolver classify.BaseResolver

	// Cache shared across batches. When nil, the validator creates an
	// in-memory cache of its own.
	Cache *cache.Cache

	// Capabilities used by the checkers. Default to an HTTP fetcher and
	// the local file system.
	Fetcher    check.Fetcher
	Filesystem check.Filesystem

	// Number of redirects followed for web links. Zero means
	// check.DefaultMaxRedirects; a negative value disables following.
	MaxRedirects int

	// File checked when a local link points at a directory.
	DefaultFile string

	// Verify that fragments of local HTML links name an existing element.
	CheckFragments bool

	// Ignore web links whose host resolves to a private network address.
	SkipPrivateNetworks bool

	// Detector used when SkipPrivateNetworks is set. Defaults to
	// privnet.NewDetector().
	PrivateNetworkDetector check.PrivateNetworkDetector

	// Logger for batch and per-check events. Defaults to the logrus
	// standard logger.
	Logger *logrus.Entry
}

// DefaultConfig returns the configuration used when the caller has no
// particular requirements.
func DefaultConfig() Config {
	return Config{
		Concurrency:     8,
		PerCheckTimeout: 30 * time.Second,
		BatchTimeout:    NoTimeout,
	}
}

// Validate returns every problem found in the configuration, or nil.
func (cfg *Config) Validate() error {
	var err error
	if cfg.Concurrency <= 0 {
		err = multierror.Append(err, xerrors.Errorf("concurrency must be at least 1, got %d", cfg.Concurrency))
	}
	if cfg.PerCheckTimeout == 0 {
		err = multierror.Append(err, xerrors.Errorf("per-check timeout must not be zero; use NoTimeout to disable it"))
	} else if cfg.PerCheckTimeout < 0 && cfg.PerCheckTimeout != NoTimeout {
		err = multierror.Append(err, xerrors.Errorf("invalid per-check timeout %s", cfg.PerCheckTimeout))
	}
	if cfg.BatchTimeout < 0 && cfg.BatchTimeout != NoTimeout {
		err = multierror.Append(err, xerrors.Errorf("invalid batch timeout %s", cfg.BatchTimeout))
	}
	for _, scheme := range cfg.Schemes {
		if scheme == "" || strings.ContainsAny(scheme, ":/ ") {
			err = multierror.Append(err, xerrors.Errorf("invalid URL scheme %q", scheme))
		}
	}
	for i, re := range cfg.IgnorePatterns {
		if re == nil {
			err = multierror.Append(err, xerrors.Errorf("ignore pattern %d is nil", i))
		}
	}
	for i, re := range cfg.IncludePatterns {
		if re == nil {
			err = multierror.Append(err, xerrors.Errorf("include pattern %d is nil", i))
		}
	}
	return err
}
