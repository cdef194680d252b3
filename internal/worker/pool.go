package worker

import (
	"context"
	"sync"
)

// Job is a unit of work executed by the pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of a job
type Result interface {
	GetError() error
}

// indexed pairs a job with its submission order so results come back in
// the order jobs were submitted
type indexed struct {
	seq int
	job Job
}

type indexedResult struct {
	seq    int
	result Result
}

// Pool runs jobs on a fixed number of workers
type Pool struct {
	workers   int
	jobQueue  chan indexed
	results   chan indexedResult
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	submitted int
	collected map[int]Result
	collectWG sync.WaitGroup
}

// NewPool creates a pool bound to ctx. Cancelling ctx stops the workers.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Pool{
		workers:   workers,
		jobQueue:  make(chan indexed, workers*2),
		results:   make(chan indexedResult, workers*2),
		ctx:       ctx,
		cancel:    cancel,
		collected: make(map[int]Result),
	}
}

// Start launches the workers and the result collector
func (p *Pool) Start() {
	p.collectWG.Add(1)
	go func() {
		defer p.collectWG.Done()
		for r := range p.results {
			p.collected[r.seq] = r.result
		}
	}()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case item, ok := <-p.jobQueue:
			if !ok {
				return
			}
			res := item.job.Execute(p.ctx)
			select {
			case p.results <- indexedResult{seq: item.seq, result: res}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job. It returns false if the pool was shut down before
// the job could be queued. Submit must not be called after Wait.
func (p *Pool) Submit(job Job) bool {
	item := indexed{seq: p.submitted, job: job}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- item:
		p.submitted++
		return true
	}
}

// Wait closes the queue, waits for every queued job and returns results in
// submission order. Jobs abandoned by a shutdown leave a nil slot.
func (p *Pool) Wait() []Result {
	close(p.jobQueue)
	p.wg.Wait()
	p.closeResults()
	p.collectWG.Wait()
	p.cancel()
	return p.ordered()
}

// Shutdown stops the workers without waiting for queued jobs. It returns
// the results of jobs that finished, with a nil slot for abandoned ones.
func (p *Pool) Shutdown() []Result {
	p.cancel()
	p.wg.Wait()
	p.closeResults()
	p.collectWG.Wait()
	return p.ordered()
}

func (p *Pool) ordered() []Result {
	out := make([]Result, p.submitted)
	for seq, r := range p.collected {
		out[seq] = r
	}
	return out
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
