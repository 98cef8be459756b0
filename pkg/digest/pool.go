package digest

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/ratelimit"

	"github.com/dedupfs/dfm/pkg/catalog"
)

const maxDefaultWorkers = 8

// Options bound the hashing worker pool.
type Options struct {
	// Workers is the pool size; 0 picks min(NumCPU, 8). Bounded so a
	// large candidate set cannot exhaust file descriptors.
	Workers int
	// RatePerSec caps hashed files per second; 0 means unlimited.
	RatePerSec int
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	n := runtime.NumCPU()
	if n > maxDefaultWorkers {
		n = maxDefaultWorkers
	}
	return n
}

func (o Options) limiter() ratelimit.Limiter {
	if o.RatePerSec > 0 {
		return ratelimit.New(o.RatePerSec)
	}
	return ratelimit.NewUnlimited()
}

// Result pairs a record with its computed digest or failure.
type Result struct {
	Rec    *catalog.FileRecord
	Digest string
	Err    error
}

// SumAll computes full digests for recs on a bounded worker pool and
// returns one result per record, in input order. Cancellation stops
// dispatching new files; results for undispatched records carry the
// context error.
func SumAll(ctx context.Context, recs []*catalog.FileRecord, opts Options) []Result {
	results := make([]Result, len(recs))

	jobs := make(chan int)
	rl := opts.limiter()

	var wg sync.WaitGroup
	for w := 0; w < opts.workers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				sum, err := SumFile(recs[i].Path)
				results[i] = Result{Rec: recs[i], Digest: sum, Err: err}
			}
		}()
	}

	for i := range recs {
		if err := ctx.Err(); err != nil {
			results[i] = Result{Rec: recs[i], Err: err}
			continue
		}
		rl.Take()
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
