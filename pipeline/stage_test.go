package pipeline_test

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ejacobg/linkcheck/pipeline"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(StageTestSuite))

type StageTestSuite struct{}

func (s *StageTestSuite) TestFIFO(c *gc.C) {
	stages := make([]pipeline.StageRunner, 10)
	for i := 0; i < len(stages); i++ {
		stages[i] = pipeline.FIFO(makePassthroughProcessor())
	}

	src := &sourceStub{data: stringPayloads(3)}
	sink := new(sinkStub)

	p := pipeline.New(stages...)
	err := p.Process(context.TODO(), src, sink)
	c.Assert(err, gc.IsNil)
	c.Assert(sink.data, gc.DeepEquals, src.data)
	assertAllProcessed(c, src.data)
}

func (s *StageTestSuite) TestFIFODiscardsNilOutputs(c *gc.C) {
	src := &sourceStub{data: stringPayloads(3)}
	sink := new(sinkStub)

	drop := pipeline.ProcessorFunc(func(context.Context, pipeline.Payload) (pipeline.Payload, error) {
		return nil, nil
	})

	err := pipeline.New(pipeline.FIFO(drop)).Process(context.TODO(), src, sink)
	c.Assert(err, gc.IsNil)
	c.Assert(sink.data, gc.HasLen, 0)
	assertAllProcessed(c, src.data)
}

func (s *StageTestSuite) TestFIFOProcessorError(c *gc.C) {
	src := &sourceStub{data: stringPayloads(3)}
	sink := new(sinkStub)

	failing := pipeline.ProcessorFunc(func(context.Context, pipeline.Payload) (pipeline.Payload, error) {
		return nil, errors.New("boom")
	})

	err := pipeline.New(pipeline.FIFO(failing)).Process(context.TODO(), src, sink)
	c.Assert(err, gc.ErrorMatches, "(?s).*pipeline stage 0: boom.*")
}

func (s *StageTestSuite) TestDynamicWorkerPool(c *gc.C) {
	const maxWorkers = 5
	const numPayloads = 20

	var running, peak int32
	proc := pipeline.ProcessorFunc(func(_ context.Context, p pipeline.Payload) (pipeline.Payload, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return p, nil
	})

	src := &sourceStub{data: stringPayloads(numPayloads)}
	sink := new(sinkStub)

	p := pipeline.New(pipeline.DynamicWorkerPool(proc, maxWorkers))
	err := p.Process(context.TODO(), src, sink)
	c.Assert(err, gc.IsNil)
	c.Assert(sink.data, gc.HasLen, numPayloads)
	c.Assert(atomic.LoadInt32(&peak) <= maxWorkers, gc.Equals, true, gc.Commentf("peak concurrency %d", peak))
	assertAllProcessed(c, src.data)

	// Outputs arrive in completion order, but nothing is lost.
	want := make([]string, 0, numPayloads)
	for _, p := range src.data {
		want = append(want, p.(*stringPayload).val)
	}
	sort.Strings(want)
	c.Assert(sink.sorted(), gc.DeepEquals, want)
}

func (s *StageTestSuite) TestDynamicWorkerPoolInvalidSize(c *gc.C) {
	c.Assert(func() { pipeline.DynamicWorkerPool(makePassthroughProcessor(), 0) }, gc.PanicMatches, ".*maxWorkers must be > 0")
}

func (s *StageTestSuite) TestDynamicWorkerPoolCancellation(c *gc.C) {
	ctx, cancel := context.WithCancel(context.TODO())
	release := make(chan struct{})

	proc := pipeline.ProcessorFunc(func(ctx context.Context, p pipeline.Payload) (pipeline.Payload, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return p, nil
	})

	src := &sourceStub{data: stringPayloads(10)}
	sink := new(sinkStub)

	done := make(chan error, 1)
	go func() {
		done <- pipeline.New(pipeline.DynamicWorkerPool(proc, 2)).Process(ctx, src, sink)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		c.Assert(err, gc.IsNil)
	case <-time.After(5 * time.Second):
		c.Fatal("Process did not return after cancellation")
	}
	close(release)
}

func makePassthroughProcessor() pipeline.Processor {
	return pipeline.ProcessorFunc(func(_ context.Context, p pipeline.Payload) (pipeline.Payload, error) {
		return p, nil
	})
}
