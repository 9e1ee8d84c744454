package downloader

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"imgharvest/pkg/fingerprint"
	"imgharvest/pkg/logger"
)

// Job is one candidate URL to fetch and fingerprint
type Job struct {
	Index int
	URL   string
}

// Result is the outcome of a Job. Err is a fetch or decode error; on error
// Data and Fingerprint are empty.
type Result struct {
	Job         Job
	Data        []byte
	Fingerprint fingerprint.Fingerprint
	Err         error
	Duration    time.Duration
}

// Fetcher downloads raw bytes
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Hasher fingerprints raw bytes
type Hasher interface {
	Hash(data []byte) (fingerprint.Fingerprint, error)
}

// Pool fetches and hashes jobs on a bounded number of goroutines and hands
// results back in job order. With one worker it behaves like a plain loop.
type Pool struct {
	numWorkers int
	fetcher    Fetcher
	hasher     Hasher
	logger     logger.Logger
}

// NewPool creates a pool with numWorkers concurrent fetches
func NewPool(numWorkers int, fetcher Fetcher, hasher Hasher, log logger.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool{
		numWorkers: numWorkers,
		fetcher:    fetcher,
		hasher:     hasher,
		logger:     log.WithField("component", "downloader"),
	}
}

// Workers returns the concurrency limit
func (p *Pool) Workers() int {
	return p.numWorkers
}

// Process runs every job and calls deliver once per job, in slice order,
// from the calling goroutine. deliver may therefore touch shared state
// without locking.
func (p *Pool) Process(ctx context.Context, jobs []Job, deliver func(Result)) {
	if len(jobs) == 0 {
		return
	}

	slots := make([]chan Result, len(jobs))
	for i := range slots {
		slots[i] = make(chan Result, 1)
	}

	var g errgroup.Group
	g.SetLimit(p.numWorkers)

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for i, job := range jobs {
			g.Go(func() error {
				slots[i] <- p.run(ctx, job)
				return nil
			})
		}
	}()

	for i := range jobs {
		deliver(<-slots[i])
	}

	<-dispatched
	_ = g.Wait()
}

// run fetches and hashes a single job
func (p *Pool) run(ctx context.Context, job Job) Result {
	start := time.Now()
	res := Result{Job: job}

	data, err := p.fetcher.Fetch(ctx, job.URL)
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}

	fp, err := p.hasher.Hash(data)
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}

	res.Data = data
	res.Fingerprint = fp
	res.Duration = time.Since(start)

	p.logger.DebugWithFields("Candidate fetched", map[string]interface{}{
		"index":       job.Index,
		"size":        len(data),
		"fingerprint": string(fp),
		"duration":    res.Duration,
	})
	return res
}
