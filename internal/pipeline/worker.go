package pipeline

import (
	"context"
	"sync"
)

// workerPool runs indexed jobs on a fixed number of goroutines.
type workerPool struct {
	workers int
}

func newWorkerPool(workers int) *workerPool {
	return &workerPool{workers: workers}
}

// run calls fn(i) for every i in [0, n) and waits for all calls to finish.
// Each index is handed to exactly one worker, so fn may write to slot i of
// a shared slice without locking. Once ctx is done no further indices are
// dispatched; the caller checks ctx.Err() to tell a partial run apart.
func (wp *workerPool) run(ctx context.Context, n int, fn func(i int)) {
	if n == 0 {
		return
	}

	workers := wp.workers
	if workers > n {
		workers = n
	}

	jobs := make(chan int, workers*2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				fn(i)
			}
		}()
	}

	// Feed jobs until done or cancelled.
	go func() {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
}
