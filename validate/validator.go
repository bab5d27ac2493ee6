// Package validate coordinates the validation of a batch of links: it
// classifies them, deduplicates targets through the cache and runs the
// remaining checks with bounded concurrency.
package validate

import (
	"context"
	"time"

	"github.com/ejacobg/linkcheck/cache"
	"github.com/ejacobg/linkcheck/check"
	"github.com/ejacobg/linkcheck/classify"
	"github.com/ejacobg/linkcheck/fetch"
	"github.com/ejacobg/linkcheck/inmem"
	"github.com/ejacobg/linkcheck/link"
	"github.com/ejacobg/linkcheck/pipeline"
	"github.com/ejacobg/linkcheck/privnet"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Validator validates batches of links. A Validator may be reused; outcomes
// cached by one batch answer later ones.
type Validator struct {
	cfg        Config
	classifier *classify.Classifier
	checker    check.Checker
	cache      *cache.Cache
	logger     *logrus.Entry
}

// New creates a Validator from cfg.
func New(cfg Config) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Errorf("validate: %w", multierror.Append(ErrInvalidConfig, err))
	}

	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New(inmem.NewStore(), cache.Options{Logger: cfg.Logger})
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = fetch.NewHTTP(fetch.Options{})
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = check.OSFilesystem{}
	}
	if cfg.SkipPrivateNetworks && cfg.PrivateNetworkDetector == nil {
		detector, err := privnet.NewDetector()
		if err != nil {
			return nil, xerrors.Errorf("validate: %w", err)
		}
		cfg.PrivateNetworkDetector = detector
	}

	urlChecker := check.URLChecker{
		Fetcher:      cfg.Fetcher,
		MaxRedirects: cfg.MaxRedirects,
		Include:      cfg.IncludePatterns,
	}
	if cfg.SkipPrivateNetworks {
		urlChecker.Private = cfg.PrivateNetworkDetector
	}

	return &Validator{
		cfg: cfg,
		classifier: classify.New(classify.Options{
			Schemes:        cfg.Schemes,
			IgnorePatterns: cfg.IgnorePatterns,
			Root:           cfg.Root,
			Resolver:       cfg.Resolver,
		}),
		checker: check.Table{
			link.Filesystem: check.FileChecker{
				FS:          cfg.Filesystem,
				Root:        cfg.Root,
				DefaultFile: cfg.DefaultFile,
				Fragments:   cfg.CheckFragments,
			},
			link.MailTo: check.MailChecker{},
			link.URL:    urlChecker,
		},
		cache:  cfg.Cache,
		logger: cfg.Logger,
	}, nil
}

// Validate is a convenience wrapper that creates a Validator from cfg and
// validates links with it.
func Validate(ctx context.Context, links []link.Link, cfg Config) (*Results, error) {
	v, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return v.Validate(ctx, links)
}

// Cache returns the cache used by the validator.
func (v *Validator) Cache() *cache.Cache {
	return v.cache
}

// Validate checks links and returns one outcome per link, in input order.
// Failing links never abort the batch; if ctx ends or the batch timeout
// expires, checks that have not completed are reported as cancelled.
func (v *Validator) Validate(ctx context.Context, links []link.Link) (*Results, error) {
	start := time.Now()
	logger := v.logger.WithField("batch_id", uuid.New())
	results := newResults(links)

	// Classify every link and group the checkable ones by target.
	var (
		jobs     []*job
		byKey    = make(map[link.Key]*job)
		linkJobs = make([]*job, len(links))
	)
	for i, l := range links {
		cat := v.classifier.Classify(l)
		switch {
		case cat.Kind == link.Ignored:
			results.set(i, link.Ignore(cat.Note))
		case !cat.Checkable():
			results.set(i, link.Invalid(link.Reason{Kind: link.Unresolvable}, cat.Note))
		default:
			key := cat.Key()
			j, ok := byKey[key]
			if !ok {
				j = &job{key: key, cat: cat}
				byKey[key] = j
				jobs = append(jobs, j)
			}
			linkJobs[i] = j
		}
	}

	// Answer what we can from the cache.
	var pending []*job
	for _, j := range jobs {
		if outcome, ok := v.cache.Peek(j.key); ok {
			j.outcome = outcome
			j.transition(Completed, logger)
			continue
		}
		pending = append(pending, j)
	}

	logger.WithFields(logrus.Fields{
		"links":   len(links),
		"targets": len(jobs),
		"cached":  len(jobs) - len(pending),
	}).Info("starting validation batch")

	batchCtx, cancel := v.batchContext(ctx)
	defer cancel()

	if len(pending) != 0 && batchCtx.Err() == nil {
		sink := new(countingSink)
		p := pipeline.New(
			pipeline.DynamicWorkerPool(v.checkProcessor(logger), v.cfg.Concurrency),
			pipeline.FIFO(recordProcessor(logger)),
		)
		if err := p.Process(batchCtx, &jobSource{jobs: pending}, sink); err != nil {
			return nil, xerrors.Errorf("validate: %w", err)
		}
		logger.WithField("checked", sink.count).Debug("pipeline drained")
	}

	// Whatever did not complete was cancelled, unless another flight for
	// the same key finished in the meantime.
	for _, j := range pending {
		if j.state.Done() && !j.outcome.IsCancelled() {
			continue
		}
		if outcome, ok := v.cache.Peek(j.key); ok {
			j.outcome = outcome
			j.transition(Completed, logger)
			continue
		}
		j.outcome = link.Invalid(link.Reason{Kind: link.Cancelled}, cancelNote(batchCtx))
		if j.state != Cancelled {
			j.transition(Cancelled, logger)
		}
	}

	for i, j := range linkJobs {
		if j != nil {
			results.set(i, j.outcome)
		}
	}

	counts := results.Counts()
	logger.WithFields(logrus.Fields{
		"valid":     counts.Valid,
		"ignored":   counts.Ignored,
		"invalid":   counts.Invalid,
		"cancelled": counts.Cancelled,
		"duration":  time.Since(start).String(),
	}).Info("validation batch complete")

	return results, nil
}

// checkProcessor runs the check for a payload's job through the cache.
func (v *Validator) checkProcessor(logger *logrus.Entry) pipeline.Processor {
	return pipeline.ProcessorFunc(func(ctx context.Context, p pipeline.Payload) (pipeline.Payload, error) {
		payload := p.(*checkPayload)
		j := payload.job
		if ctx.Err() != nil {
			payload.Outcome = link.Invalid(link.Reason{Kind: link.Cancelled}, ctx.Err().Error())
			return payload, nil
		}

		j.transition(InFlight, logger)
		payload.Outcome = v.cache.GetOrCompute(ctx, j.key, func(ctx context.Context) link.Outcome {
			return v.runCheck(ctx, j.cat)
		})
		return payload, nil
	})
}

// runCheck applies the per-check timeout. A timeout caused by the end of the
// batch is reported as a cancellation.
func (v *Validator) runCheck(ctx context.Context, cat link.Category) link.Outcome {
	if ctx.Err() != nil {
		return link.Invalid(link.Reason{Kind: link.Cancelled}, ctx.Err().Error())
	}

	checkCtx := ctx
	if v.cfg.PerCheckTimeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, v.cfg.PerCheckTimeout)
		defer cancel()
	}

	outcome := v.checker.Check(checkCtx, cat)
	if ctx.Err() != nil && outcome.IsInvalid() {
		switch outcome.Reason.Kind {
		case link.Timeout, link.Cancelled, link.Unreachable:
			return link.Invalid(link.Reason{Kind: link.Cancelled}, ctx.Err().Error())
		}
	}
	return outcome
}

// recordProcessor stores the outcome of a check on its job.
func recordProcessor(logger *logrus.Entry) pipeline.Processor {
	return pipeline.ProcessorFunc(func(_ context.Context, p pipeline.Payload) (pipeline.Payload, error) {
		payload := p.(*checkPayload)
		j := payload.job
		j.outcome = payload.Outcome

		switch {
		case payload.Outcome.IsCancelled():
			j.transition(Cancelled, logger)
		case payload.Outcome.IsInvalid():
			j.transition(Failed, logger)
		default:
			j.transition(Completed, logger)
		}

		logger.WithFields(logrus.Fields{
			"key":     j.key,
			"outcome": payload.Outcome,
		}).Debug("check finished")
		return payload, nil
	})
}

func (v *Validator) batchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.cfg.BatchTimeout == NoTimeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, v.cfg.BatchTimeout)
}

func cancelNote(ctx context.Context) string {
	if err := ctx.Err(); err != nil {
		return err.Error()
	}
	return "check did not complete"
}
