package pipeline

import (
	"context"
	"fmt"
	"sync"
)

type fifo struct {
	proc Processor
}

// FIFO returns a StageRunner that processes incoming payloads one at a time
// in arrival order. Each input is passed to proc and its output is emitted
// to the next stage.
func FIFO(proc Processor) StageRunner {
	return fifo{proc: proc}
}

// Run implements StageRunner.
func (r fifo) Run(ctx context.Context, params StageParams) {
	for {
		select {
		case <-ctx.Done():
			return
		case payloadIn, ok := <-params.Input():
			if !ok {
				return
			}

			if !process(ctx, r.proc, payloadIn, params) {
				return
			}
		}
	}
}

type dynamicWorkerPool struct {
	proc      Processor
	tokenPool chan struct{}
}

// DynamicWorkerPool returns a StageRunner that processes incoming payloads
// concurrently using at most maxWorkers goroutines at any time. Outputs are
// emitted in completion order.
func DynamicWorkerPool(proc Processor, maxWorkers int) StageRunner {
	if maxWorkers <= 0 {
		panic("DynamicWorkerPool: maxWorkers must be > 0")
	}

	tokenPool := make(chan struct{}, maxWorkers)
	for i := 0; i < maxWorkers; i++ {
		tokenPool <- struct{}{}
	}

	return &dynamicWorkerPool{proc: proc, tokenPool: tokenPool}
}

// Run implements StageRunner.
func (p *dynamicWorkerPool) Run(ctx context.Context, params StageParams) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case payloadIn, ok := <-params.Input():
			if !ok {
				return
			}

			// Block until a worker slot frees up.
			var token struct{}
			select {
			case token = <-p.tokenPool:
			case <-ctx.Done():
				payloadIn.MarkAsProcessed()
				return
			}

			wg.Add(1)
			go func(payloadIn Payload, token struct{}) {
				defer func() {
					p.tokenPool <- token
					wg.Done()
				}()

				process(ctx, p.proc, payloadIn, params)
			}(payloadIn, token)
		}
	}
}

// process runs proc on payloadIn and forwards the result. It returns false
// if the stage should stop.
func process(ctx context.Context, proc Processor, payloadIn Payload, params StageParams) bool {
	payloadOut, err := proc.Process(ctx, payloadIn)
	if err != nil {
		wrappedErr := fmt.Errorf("pipeline stage %d: %w", params.StageIndex(), err)
		maybeEmitError(wrappedErr, params.Error())
		return false
	}

	// A nil output means the processor consumed the payload.
	if payloadOut == nil {
		payloadIn.MarkAsProcessed()
		return true
	}

	select {
	case params.Output() <- payloadOut:
		return true
	case <-ctx.Done():
		payloadOut.MarkAsProcessed()
		return false
	}
}
