package main

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/ejacobg/linkcheck/cache"
	"github.com/ejacobg/linkcheck/cdb"
	"github.com/ejacobg/linkcheck/fetch"
	"github.com/ejacobg/linkcheck/inmem"
	"github.com/ejacobg/linkcheck/validate"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"
)

// settings collects everything that can be set from the command line or a
// YAML config file. Explicit flags take precedence over the file.
type settings struct {
	Concurrency         int           `yaml:"concurrency"`
	PerCheckTimeout     time.Duration `yaml:"per_check_timeout"`
	BatchTimeout        time.Duration `yaml:"batch_timeout"`
	Schemes             []string      `yaml:"schemes"`
	Ignore              []string      `yaml:"ignore"`
	Include             []string      `yaml:"include"`
	Root                string        `yaml:"root"`
	BareURLs            bool          `yaml:"bare_urls"`
	CheckFragments      bool          `yaml:"check_fragments"`
	DefaultFile         string        `yaml:"default_file"`
	SkipPrivateNetworks bool          `yaml:"skip_private_networks"`
	MaxRedirects        int           `yaml:"max_redirects"`
	UserAgent           string        `yaml:"user_agent"`
	CacheURI            string        `yaml:"cache_uri"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	LogLevel            string        `yaml:"log_level"`
}

func defaultSettings() settings {
	cfg := validate.DefaultConfig()
	return settings{
		Concurrency:     cfg.Concurrency,
		PerCheckTimeout: cfg.PerCheckTimeout,
		BareURLs:        true,
		UserAgent:       fetch.DefaultUserAgent,
		CacheURI:        "in-memory://",
		CacheTTL:        24 * time.Hour,
		LogLevel:        "warning",
	}
}

// loadSettings builds the effective settings from the defaults, the
// optional config file and the flags the user set explicitly.
func loadSettings(c *cli.Context) (settings, error) {
	s := defaultSettings()

	if path := c.String("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("could not read config file: %w", err)
		}
		if err = yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("could not parse config file %q: %w", path, err)
		}
	}

	if c.IsSet("concurrency") {
		s.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("per-check-timeout") {
		s.PerCheckTimeout = c.Duration("per-check-timeout")
	}
	if c.IsSet("batch-timeout") {
		s.BatchTimeout = c.Duration("batch-timeout")
	}
	if c.IsSet("scheme") {
		s.Schemes = c.StringSlice("scheme")
	}
	if c.IsSet("ignore") {
		s.Ignore = c.StringSlice("ignore")
	}
	if c.IsSet("include") {
		s.Include = c.StringSlice("include")
	}
	if c.IsSet("root") {
		s.Root = c.String("root")
	}
	if c.IsSet("no-bare-urls") {
		s.BareURLs = !c.Bool("no-bare-urls")
	}
	if c.IsSet("check-fragments") {
		s.CheckFragments = c.Bool("check-fragments")
	}
	if c.IsSet("default-file") {
		s.DefaultFile = c.String("default-file")
	}
	if c.IsSet("skip-private-networks") {
		s.SkipPrivateNetworks = c.Bool("skip-private-networks")
	}
	if c.IsSet("max-redirects") {
		s.MaxRedirects = c.Int("max-redirects")
	}
	if c.IsSet("user-agent") {
		s.UserAgent = c.String("user-agent")
	}
	if c.IsSet("cache-uri") {
		s.CacheURI = c.String("cache-uri")
	}
	if c.IsSet("cache-ttl") {
		s.CacheTTL = c.Duration("cache-ttl")
	}
	if c.IsSet("log-level") {
		s.LogLevel = c.String("log-level")
	}
	return s, nil
}

// validatorConfig turns settings into a validate.Config. The returned
// function releases the cache store.
func (s settings) validatorConfig(logger *logrus.Entry) (validate.Config, func(), error) {
	cfg := validate.DefaultConfig()
	cfg.Concurrency = s.Concurrency
	cfg.PerCheckTimeout = orNoTimeout(s.PerCheckTimeout)
	cfg.BatchTimeout = orNoTimeout(s.BatchTimeout)
	cfg.Schemes = s.Schemes
	cfg.Root = s.Root
	cfg.CheckFragments = s.CheckFragments
	cfg.DefaultFile = s.DefaultFile
	cfg.SkipPrivateNetworks = s.SkipPrivateNetworks
	cfg.MaxRedirects = s.MaxRedirects
	cfg.Fetcher = fetch.NewHTTP(fetch.Options{UserAgent: s.UserAgent})
	cfg.Logger = logger

	var err error
	if cfg.IgnorePatterns, err = compilePatterns(s.Ignore); err != nil {
		return cfg, nil, err
	}
	if cfg.IncludePatterns, err = compilePatterns(s.Include); err != nil {
		return cfg, nil, err
	}

	store, closeFn, err := getCacheStore(s.CacheURI, logger)
	if err != nil {
		return cfg, nil, err
	}
	cfg.Cache = cache.New(store, cache.Options{
		TTL:    s.CacheTTL,
		Logger: logger.WithField("component", "cache"),
	})
	return cfg, closeFn, nil
}

func getCacheStore(cacheURI string, logger *logrus.Entry) (cache.Store, func(), error) {
	if cacheURI == "" {
		return nil, nil, fmt.Errorf("cache URI must be specified with --cache-uri")
	}

	uri, err := url.Parse(cacheURI)
	if err != nil {
		return nil, nil, fmt.Errorf("could not parse cache URI: %w", err)
	}

	switch uri.Scheme {
	case "in-memory":
		logger.Debug("using in-memory cache")
		return inmem.NewStore(), func() {}, nil
	case "postgresql":
		logger.Debug("using CDB cache")
		store, err := cdb.NewStore(cacheURI)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.WithField("err", err).Warn("failed to close cache store")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache URI scheme: %q", uri.Scheme)
	}
}

func compilePatterns(exprs []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// On the command line a zero timeout means no timeout.
func orNoTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return validate.NoTimeout
	}
	return d
}
