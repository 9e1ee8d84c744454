// Package session runs one query end to end: load the results page, expand
// it, extract candidates, then fetch, fingerprint, dedupe and persist each one.
//
// No single candidate can abort a session. Each candidate yields an Outcome
// with a SkipReason, and the Report counts them. Only failing to obtain any
// page content makes the whole session a no-op.
package session

import (
	"context"
	"net/url"
	"strings"
	"time"

	"imgharvest/internal/downloader"
	"imgharvest/pkg/config"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/extract"
	"imgharvest/pkg/logger"
	"imgharvest/pkg/metadata"
	"imgharvest/pkg/scroll"
)

// ErrNoCandidates is returned when the expanded page holds no image candidates
var ErrNoCandidates = errs.New(errs.TypeNoContent, "page yielded no image candidates")

// Deps are the collaborators a Session drives
type Deps struct {
	Surface   scroll.Surface
	Extractor CandidateExtractor
	Fetcher   downloader.Fetcher
	Hasher    downloader.Hasher
	Store     Deduper
	Blobs     BlobStore
}

// Session orchestrates queries against one shared surface and dedupe store.
// Sessions on the same surface must not run concurrently.
type Session struct {
	cfg        *config.Config
	deps       Deps
	pool       *downloader.Pool
	scrollOpts []scroll.Option
	logger     logger.Logger
}

// Option customises a Session
type Option func(*Session)

// WithScrollOptions passes options to every Expander the session creates
func WithScrollOptions(opts ...scroll.Option) Option {
	return func(s *Session) { s.scrollOpts = append(s.scrollOpts, opts...) }
}

// New creates a Session
func New(cfg *config.Config, deps Deps, log logger.Logger, opts ...Option) *Session {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Session{
		cfg:    cfg,
		deps:   deps,
		pool:   downloader.NewPool(cfg.Fetch.Concurrency, deps.Fetcher, deps.Hasher, log),
		logger: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchURL fills the query into the search URL template
func SearchURL(template, query string) string {
	return strings.ReplaceAll(template, "{query}", url.QueryEscape(query))
}

// Run executes one query. The returned report is never nil.
func (s *Session) Run(ctx context.Context, query string) (*Report, error) {
	start := time.Now()
	report := newReport(query)
	log := s.logger.WithField("query", query)
	defer func() { report.Duration = time.Since(start) }()

	target := SearchURL(s.cfg.Search.URLTemplate, query)
	if err := s.deps.Surface.Open(ctx, target); err != nil {
		log.WithError(err).Error("Failed to load results page")
		return report, errs.Wrap(errs.TypeNoContent, "failed to load results page", err)
	}

	expander := scroll.NewExpander(s.deps.Surface, scroll.ConfigFrom(s.cfg.Scroll), log, s.scrollOpts...)
	res, err := expander.Expand(ctx)
	report.Expansion = res
	if err != nil {
		// extract whatever did load
		log.WithError(err).Warn("Expansion stopped early")
	}

	markup, err := s.deps.Surface.Content(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to read page content")
		return report, errs.Wrap(errs.TypeNoContent, "failed to read page content", err)
	}

	candidates, err := s.deps.Extractor.Extract(markup)
	if err != nil {
		log.WithError(err).Error("Failed to extract candidates")
		return report, err
	}
	report.Candidates = len(candidates)
	log.WithField("candidates", len(candidates)).Info("Candidates extracted")

	if len(candidates) == 0 {
		logger.LogSessionSummary(log, query, 0, 0, time.Since(start))
		return report, ErrNoCandidates
	}

	if err := s.deps.Blobs.EnsureLayout(); err != nil {
		log.WithError(err).Error("Failed to prepare output directories")
		return report, err
	}

	s.process(ctx, query, candidates, report, log)

	logger.LogSessionSummary(log, query, report.Downloaded, report.Skipped, time.Since(start))
	return report, nil
}

// process prefilters candidates, fans fetch and hash out to the pool, then
// dedupes and persists in extraction order.
func (s *Session) process(ctx context.Context, query string, candidates []extract.Candidate, report *Report, log logger.Logger) {
	var jobs []downloader.Job
	filtered := make([]bool, len(candidates))
	for i, c := range candidates {
		if !s.deps.Extractor.Accept(c) {
			filtered[i] = true
			continue
		}
		jobs = append(jobs, downloader.Job{Index: i, URL: c.URL})
	}

	next := 0
	flushFiltered := func(upTo int) {
		for ; next < upTo; next++ {
			if filtered[next] {
				s.record(report, log, Outcome{Index: next, Candidate: candidates[next], Reason: ReasonFiltered})
			}
		}
	}

	s.pool.Process(ctx, jobs, func(r downloader.Result) {
		flushFiltered(r.Job.Index)
		next = r.Job.Index + 1
		s.record(report, log, s.retain(query, candidates[r.Job.Index], r, log))
	})
	flushFiltered(len(candidates))
}

// retain turns a fetch result into an outcome, persisting novel images
func (s *Session) retain(query string, c extract.Candidate, r downloader.Result, log logger.Logger) Outcome {
	o := Outcome{Index: r.Job.Index, Candidate: c, Fingerprint: r.Fingerprint}

	if r.Err != nil {
		o.Err = r.Err
		if errs.Is(r.Err, errs.TypeDecode) {
			o.Reason = ReasonDecodeFailed
		} else {
			o.Reason = ReasonFetchFailed
		}
		return o
	}

	if !s.deps.Store.CheckAndInsert(r.Fingerprint) {
		o.Reason = ReasonDuplicate
		return o
	}

	// From here on the fingerprint stays in the store even if writing fails.
	fp := string(r.Fingerprint)
	if err := s.deps.Blobs.SaveImage(fp, r.Data); err != nil {
		o.Reason, o.Err = ReasonStoreFailed, err
		return o
	}
	if err := s.deps.Blobs.SaveCaption(fp, c.Caption); err != nil {
		o.Reason, o.Err = ReasonStoreFailed, err
		return o
	}
	if s.deps.Blobs.MetadataEnabled() {
		rec := metadata.NewRecord(fp, c.URL, c.Caption, query, r.Data)
		if err := s.deps.Blobs.SaveMetadata(rec); err != nil {
			log.WithError(err).WithField("fingerprint", fp).Warn("Failed to write metadata sidecar")
		}
	}

	o.Reason = ReasonNone
	return o
}

func (s *Session) record(report *Report, log logger.Logger, o Outcome) {
	report.add(o)
	reason := string(o.Reason)
	if o.Downloaded() {
		reason = ""
	}
	logger.LogCandidate(log, o.Index+1, o.Candidate.URL, string(o.Fingerprint), reason, o.Err)
}
