package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ejacobg/linkcheck/extract"
	"github.com/ejacobg/linkcheck/link"
	"github.com/ejacobg/linkcheck/validate"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var (
	appName = "linkcheck"
	appSha  = "populated-at-link-time"
)

func main() {
	host, _ := os.Hostname()
	rootLogger := logrus.New()
	logger := rootLogger.WithFields(logrus.Fields{
		"app":  appName,
		"sha":  appSha,
		"host": host,
	})

	app := cli.NewApp()
	app.Name = appName
	app.Usage = "find broken links in HTML, Markdown and plain text files"
	app.UsageText = appName + " [options] FILE..."
	app.Version = appSha
	app.Flags = flags()
	app.Action = func(c *cli.Context) error {
		return runMain(c, rootLogger, logger)
	}

	if err := app.Run(os.Args); err != nil {
		logger.WithField("err", err).Error("shutting down due to error")
		os.Exit(2)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "Load settings from a YAML `FILE`; flags override its values"},
		cli.IntFlag{Name: "concurrency, c", Value: 8, Usage: "The maximum number of checks to run at the same time"},
		cli.DurationFlag{Name: "per-check-timeout", Value: defaultSettings().PerCheckTimeout, Usage: "The time limit for a single check (0 disables it)"},
		cli.DurationFlag{Name: "batch-timeout", Usage: "The time limit for the whole run (0 disables it)"},
		cli.StringSliceFlag{Name: "scheme", Usage: "A URL scheme to check (repeatable, defaults to http, https and ftp)"},
		cli.StringSliceFlag{Name: "ignore", Usage: "Ignore targets matching this regular expression (repeatable)"},
		cli.StringSliceFlag{Name: "include", Usage: "Only check web links matching this regular expression (repeatable)"},
		cli.StringFlag{Name: "root", Usage: "Resolve links with a leading slash against this directory and reject links outside it"},
		cli.BoolFlag{Name: "no-bare-urls", Usage: "Do not look for bare URLs in plain text files"},
		cli.BoolFlag{Name: "check-fragments", Usage: "Verify that fragments of local HTML links name an existing element"},
		cli.StringFlag{Name: "default-file", Usage: "The file to check when a local link points at a directory (e.g. index.html)"},
		cli.BoolFlag{Name: "skip-private-networks", Usage: "Ignore web links that resolve to private network addresses"},
		cli.IntFlag{Name: "max-redirects", Usage: "The number of redirects to follow (0 uses the default, negative disables)"},
		cli.StringFlag{Name: "user-agent", Value: defaultSettings().UserAgent, Usage: "The User-Agent header sent with web requests"},
		cli.StringFlag{Name: "cache-uri", Value: defaultSettings().CacheURI, Usage: "The URI of the outcome cache (supported URIs: in-memory://, postgresql://user@host:26257/linkcheck?sslmode=disable)"},
		cli.DurationFlag{Name: "cache-ttl", Value: defaultSettings().CacheTTL, Usage: "How long cached outcomes remain usable (0 keeps them forever)"},
		cli.StringFlag{Name: "log-level", Value: defaultSettings().LogLevel, Usage: "The logging level (debug, info, warning, error)"},
	}
}

func runMain(c *cli.Context, rootLogger *logrus.Logger, logger *logrus.Entry) error {
	if c.NArg() == 0 {
		return cli.NewExitError("no input files", 2)
	}

	s, err := loadSettings(c)
	if err != nil {
		return err
	}

	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	rootLogger.SetLevel(level)

	cfg, closeCache, err := s.validatorConfig(logger)
	if err != nil {
		return err
	}
	defer closeCache()

	links, err := extractLinks(c.Args(), s.BareURLs, logger)
	if err != nil {
		return err
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGHUP)
		select {
		case s := <-sigCh:
			logger.WithField("signal", s.String()).Infof("cancelling checks due to signal")
			cancelFn()
		case <-ctx.Done():
		}
	}()

	results, err := validate.Validate(ctx, links, cfg)
	if err != nil {
		return err
	}

	if report(os.Stdout, results) {
		return cli.NewExitError("", 1)
	}
	return nil
}

// extractLinks reads each file and collects its links.
func extractLinks(paths []string, bareURLs bool, logger *logrus.Entry) ([]link.Link, error) {
	var links []link.Link
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		src, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("could not read %q: %w", path, err)
		}

		it := extract.Links(string(src), extract.Document{
			Path:   abs,
			Format: link.FormatFromPath(abs),
		}, extract.Options{BareURLs: bareURLs})
		found := extract.All(it)

		logger.WithFields(logrus.Fields{
			"document": path,
			"links":    len(found),
			"skipped":  it.Skipped(),
		}).Debug("extracted links")
		links = append(links, found...)
	}
	return links, nil
}

// report prints every link that is not valid and returns true if any of
// them is invalid.
func report(w io.Writer, results *validate.Results) bool {
	var failed bool
	for _, r := range results.All() {
		if r.Outcome.IsValid() {
			continue
		}
		failed = failed || r.Outcome.IsInvalid()
		_, _ = fmt.Fprintf(w, "%s: %s\n", r.Link, r.Outcome)
	}

	counts := results.Counts()
	_, _ = fmt.Fprintf(w, "%d links: %d valid, %d ignored, %d invalid\n",
		results.Len(), counts.Valid, counts.Ignored, counts.Invalid)
	return failed
}
