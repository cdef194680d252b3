package worker

import "context"

// Func adapts a plain function to the Job interface
type Func func(ctx context.Context) Result

// Execute runs the function
func (f Func) Execute(ctx context.Context) Result {
	return f(ctx)
}

// ErrResult is a Result that only carries an error
type ErrResult struct {
	Err error
}

// GetError returns the wrapped error
func (r ErrResult) GetError() error {
	return r.Err
}

// RunAll executes jobs with at most concurrency running at once and
// returns their results in the order the jobs were given. Every job runs
// to completion even if others fail.
func RunAll(ctx context.Context, jobs []Job, concurrency int) []Result {
	if len(jobs) == 0 {
		return []Result{}
	}
	if concurrency > len(jobs) {
		concurrency = len(jobs)
	}

	pool := NewPool(ctx, concurrency)
	pool.Start()

	var results []Result
	for _, job := range jobs {
		if !pool.Submit(job) {
			results = pool.Shutdown()
			break
		}
	}
	if results == nil {
		results = pool.Wait()
	}
	if len(results) < len(jobs) {
		padded := make([]Result, len(jobs))
		copy(padded, results)
		results = padded
	}
	for i, r := range results {
		if r == nil {
			err := context.Cause(ctx)
			if err == nil {
				err = context.Canceled
			}
			results[i] = ErrResult{Err: err}
		}
	}
	return results
}
