package embedder

import (
	"context"
	"sync"
	"time"
)

// pendingRequest is one caller's text awaiting a batched remote call.
type pendingRequest struct {
	ctx    context.Context
	text   string
	result chan batchResult
}

type batchResult struct {
	vec []float32
	err error
}

// batcher accumulates individual embed requests and flushes them as one
// HTTP call once maxItems requests are queued or window elapses, whichever
// comes first.
type batcher struct {
	owner     *Embedder
	maxItems  int
	window    time.Duration
	reqCh     chan pendingRequest
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newBatcher(owner *Embedder, maxItems int, window time.Duration) *batcher {
	if maxItems < 1 {
		maxItems = 1
	}
	if window <= 0 {
		window = 50 * time.Millisecond
	}
	b := &batcher{
		owner:    owner,
		maxItems: maxItems,
		window:   window,
		reqCh:    make(chan pendingRequest),
		closeCh:  make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// submit enqueues text and blocks until its embedding is computed (as part
// of whatever batch it lands in) or ctx is done.
func (b *batcher) submit(ctx context.Context, text string) ([]float32, error) {
	result := make(chan batchResult, 1)
	select {
	case b.reqCh <- pendingRequest{ctx: ctx, text: text, result: result}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.closeCh:
		return nil, context.Canceled
	}

	select {
	case r := <-result:
		return r.vec, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *batcher) run() {
	defer b.wg.Done()
	pending := make([]pendingRequest, 0, b.maxItems)
	timer := time.NewTimer(b.window)
	defer timer.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = make([]pendingRequest, 0, b.maxItems)
		b.owner.flushBatch(batch)
	}

	for {
		select {
		case req := <-b.reqCh:
			pending = append(pending, req)
			if len(pending) >= b.maxItems {
				flush()
				timer.Reset(b.window)
			}
		case <-timer.C:
			flush()
			timer.Reset(b.window)
		case <-b.closeCh:
			flush()
			return
		}
	}
}

func (b *batcher) close() {
	b.closeOnce.Do(func() { close(b.closeCh) })
	b.wg.Wait()
}

// flushBatch issues one remote call for every request in batch. On a
// whole-batch failure it splits and retries each text individually so one
// bad item never fails its neighbors.
func (e *Embedder) flushBatch(batch []pendingRequest) {
	texts := make([]string, len(batch))
	for i, req := range batch {
		texts[i] = req.text
	}

	vecs, err := e.requestBatch(context.Background(), texts)
	if err == nil {
		for i, req := range batch {
			req.result <- batchResult{vec: vecs[i]}
		}
		return
	}

	// Partial-failure fallback: retry each item alone so the rest of the
	// batch isn't held hostage by one bad input.
	for _, req := range batch {
		vec, itemErr := e.requestBatch(req.ctx, []string{req.text})
		if itemErr != nil {
			req.result <- batchResult{err: itemErr}
			continue
		}
		req.result <- batchResult{vec: vec[0]}
	}
}
