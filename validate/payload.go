package validate

import (
	"context"
	"sync"

	"github.com/ejacobg/linkcheck/link"
	"github.com/ejacobg/linkcheck/pipeline"
	"github.com/sirupsen/logrus"
)

var (
	_ pipeline.Payload = (*checkPayload)(nil)

	payloadPool = sync.Pool{
		New: func() interface{} { return new(checkPayload) },
	}
)

// job is a single distinct check. Links sharing a cache key share a job.
type job struct {
	key     link.Key
	cat     link.Category
	state   State
	outcome link.Outcome
}

func (j *job) transition(to State, logger *logrus.Entry) {
	logger.WithFields(logrus.Fields{
		"key":  j.key,
		"from": j.state,
		"to":   to,
	}).Debug("check state changed")
	j.state = to
}

type checkPayload struct {
	job *job

	// Populated by the check stage.
	Outcome link.Outcome
}

// Clone implements pipeline.Payload.
func (p *checkPayload) Clone() pipeline.Payload {
	newP := payloadPool.Get().(*checkPayload)
	newP.job = p.job
	newP.Outcome = p.Outcome
	return newP
}

// MarkAsProcessed implements pipeline.Payload.
func (p *checkPayload) MarkAsProcessed() {
	p.job = nil
	p.Outcome = link.Outcome{}
	payloadPool.Put(p)
}

// jobSource feeds pending jobs into the pipeline.
type jobSource struct {
	jobs []*job
	next int
}

func (s *jobSource) Error() error { return nil }

func (s *jobSource) Next(ctx context.Context) bool {
	if ctx.Err() != nil || s.next == len(s.jobs) {
		return false
	}
	s.next++
	return true
}

func (s *jobSource) Payload() pipeline.Payload {
	p := payloadPool.Get().(*checkPayload)
	p.job = s.jobs[s.next-1]
	return p
}

// countingSink counts the payloads that made it through the pipeline.
type countingSink struct {
	count int
}

func (s *countingSink) Consume(context.Context, pipeline.Payload) error {
	s.count++
	return nil
}
