package app

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly"
	"github.com/google/uuid"

	"regwatch/internal/logger"
	"regwatch/internal/models"
)

var (
	ErrDisallowedByRobots = errors.New("disallowed by robots.txt")
	ErrUnexpectedStatus   = errors.New("unexpected HTTP status")
	ErrNoResponse         = errors.New("request finished without a response")
)

const jobKey = "job"

// PageSink persists a fetched page and returns where it was written.
type PageSink interface {
	Save(page models.FetchedPage) (string, error)
}

// HistoryRecorder stores one outcome record per attempted source.
type HistoryRecorder interface {
	SaveHistory(ctx context.Context, h *models.CrawlHistory) error
}

type SpiderOptions struct {
	UserAgent      string
	Timeout        time.Duration
	Delay          time.Duration // minimum gap between outgoing requests
	MaxConcurrency int
	ObeyRobots     bool
	ExtractMode    ExtractMode
	// Now is the clock used for FetchedAt; defaults to time.Now.
	Now func() time.Time
}

// Stats summarizes one Run.
type Stats struct {
	Attempted int
	Succeeded int
	Failed    int
	Stored    int
}

// Spider fetches one page per source and hands every extracted page to a
// PageSink as soon as it is available.
type Spider struct {
	opts      SpiderOptions
	sink      PageSink
	history   HistoryRecorder
	extractor *Extractor
	log       logger.Logger
	runID     string

	attempted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	stored    atomic.Int64
}

type fetchJob struct {
	source  models.Source
	started time.Time
	once    sync.Once
}

// NewSpider builds a spider. history may be nil.
func NewSpider(opts SpiderOptions, sink PageSink, history HistoryRecorder, log logger.Logger, runID string) *Spider {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Spider{
		opts:      opts,
		sink:      sink,
		history:   history,
		extractor: NewExtractor(opts.ExtractMode),
		log:       log,
		runID:     runID,
	}
}

// Run fetches every source once using MaxConcurrency workers. Every HTTP
// exchange goes through one paced transport, so requests leave at least
// Delay apart. Cancelling ctx stops handing out sources and fails requests
// still waiting for the pacer; requests on the wire finish or time out.
// Per-source failures are logged and counted, never returned.
func (s *Spider) Run(ctx context.Context, srcs []models.Source) Stats {
	s.attempted.Store(0)
	s.succeeded.Store(0)
	s.failed.Store(0)
	s.stored.Store(0)

	transport := newPacedTransport(ctx, s.opts.Delay, s.opts.Timeout)

	c := colly.NewCollector(colly.UserAgent(s.opts.UserAgent))
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.WithTransport(transport)
	// The transport applies the timeout once the request has been paced.
	c.SetRequestTimeout(0)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: s.opts.MaxConcurrency,
	}); err != nil {
		s.log.Error("Invalid limit rule", logger.Error(err))
	}

	var robots *RobotsChecker
	if s.opts.ObeyRobots {
		robots = NewRobotsChecker(&http.Client{Transport: transport}, s.opts.UserAgent)
	}

	c.OnRequest(func(r *colly.Request) {
		job := jobFrom(r.Ctx)
		if job == nil {
			return
		}
		if robots != nil {
			allowed, err := robots.IsAllowed(ctx, r.URL.String())
			if err != nil {
				s.fail(ctx, job, models.StatusError, 0, err)
				r.Abort()
				return
			}
			if !allowed {
				s.fail(ctx, job, models.StatusBlocked, 0, ErrDisallowedByRobots)
				r.Abort()
				return
			}
		}
		s.log.Debug("Fetching source",
			logger.Int("source_id", job.source.ID),
			logger.String("url", r.URL.String()),
		)
	})

	c.OnResponse(func(r *colly.Response) {
		job := jobFrom(r.Ctx)
		if job == nil {
			return
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			s.fail(ctx, job, models.StatusError, r.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatus, r.StatusCode))
			return
		}
		s.handleResponse(ctx, job, r)
	})

	c.OnError(func(r *colly.Response, err error) {
		job := jobFrom(r.Ctx)
		if job == nil {
			return
		}
		s.fail(ctx, job, models.StatusError, r.StatusCode, err)
	})

	queue := make(chan models.Source)
	var wg sync.WaitGroup
	for i := 0; i < s.opts.MaxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range queue {
				if ctx.Err() != nil {
					continue
				}
				s.fetch(ctx, c, src)
			}
		}()
	}

feed:
	for _, src := range srcs {
		select {
		case queue <- src:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	stats := Stats{
		Attempted: int(s.attempted.Load()),
		Succeeded: int(s.succeeded.Load()),
		Failed:    int(s.failed.Load()),
		Stored:    int(s.stored.Load()),
	}
	if skipped := len(srcs) - stats.Attempted; skipped > 0 {
		s.log.Warn("Run cancelled, remaining sources not fetched",
			logger.Int("remaining", skipped),
		)
	}
	return stats
}

// fetch runs one source through the collector and guarantees the job is
// finished exactly once.
func (s *Spider) fetch(ctx context.Context, c *colly.Collector, src models.Source) {
	job := &fetchJob{source: src, started: time.Now()}
	s.attempted.Add(1)

	collyCtx := colly.NewContext()
	collyCtx.Put(jobKey, job)
	if err := c.Request(http.MethodGet, src.URL, nil, collyCtx, nil); err != nil {
		s.fail(ctx, job, models.StatusError, 0, err)
	}
	// Covers requests colly ends without running any callback.
	s.fail(ctx, job, models.StatusError, 0, ErrNoResponse)
}

func (s *Spider) handleResponse(ctx context.Context, job *fetchJob, r *colly.Response) {
	job.once.Do(func() {
		src := job.source
		extracted, err := s.extractor.Extract(r.Body, bodyContentType(r.Headers), r.Request.URL)
		if err != nil {
			s.recordFailure(ctx, job, models.StatusError, r.StatusCode, fmt.Errorf("extract: %w", err))
			return
		}

		page := models.FetchedPage{
			SourceID:   src.ID,
			SourceName: src.Name,
			URL:        src.URL,
			Title:      extracted.Title,
			Text:       extracted.Text,
			FetchedAt:  models.StampTime(s.opts.Now()),
		}
		s.succeeded.Add(1)

		entry := s.newHistory(job, models.StatusSuccess, r.StatusCode)
		entry.Title = page.Title
		entry.ContentHash = models.ComputeContentHash(page.Text)

		path, err := s.sink.Save(page)
		if err != nil {
			s.log.Error("Failed to store page",
				logger.Int("source_id", src.ID),
				logger.String("source", src.Name),
				logger.Error(err),
			)
			entry.Status = models.StatusError
			entry.ErrorMessage = err.Error()
			s.record(ctx, entry)
			return
		}
		s.stored.Add(1)
		entry.StoredPath = path

		s.log.Info("Stored page",
			logger.Int("source_id", src.ID),
			logger.String("source", src.Name),
			logger.String("path", path),
			logger.Int("text_length", len(page.Text)),
		)
		s.record(ctx, entry)
	})
}

// fail finishes a job as failed unless it already finished.
func (s *Spider) fail(ctx context.Context, job *fetchJob, status string, code int, err error) {
	job.once.Do(func() {
		s.recordFailure(ctx, job, status, code, err)
	})
}

func (s *Spider) recordFailure(ctx context.Context, job *fetchJob, status string, code int, err error) {
	s.failed.Add(1)
	fields := []logger.Field{
		logger.Int("source_id", job.source.ID),
		logger.String("source", job.source.Name),
		logger.String("url", job.source.URL),
		logger.Error(err),
	}
	if code != 0 {
		fields = append(fields, logger.Int("status_code", code))
	}
	if status == models.StatusBlocked {
		s.log.Warn("Source blocked by robots.txt", fields...)
	} else {
		s.log.Error("Failed to fetch source", fields...)
	}

	entry := s.newHistory(job, status, code)
	entry.ErrorMessage = err.Error()
	s.record(ctx, entry)
}

func (s *Spider) newHistory(job *fetchJob, status string, code int) *models.CrawlHistory {
	return &models.CrawlHistory{
		ID:         uuid.NewString(),
		RunID:      s.runID,
		SourceID:   job.source.ID,
		Source:     job.source.Name,
		URL:        job.source.URL,
		Status:     status,
		StatusCode: code,
		Timestamp:  s.opts.Now().Unix(),
		Duration:   int(time.Since(job.started).Milliseconds()),
	}
}

// record writes a history entry. Recorder errors never affect the run.
func (s *Spider) record(ctx context.Context, entry *models.CrawlHistory) {
	if s.history == nil {
		return
	}
	if err := s.history.SaveHistory(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Warn("Failed to record fetch history",
			logger.Int("source_id", entry.SourceID),
			logger.Error(err),
		)
	}
}

func jobFrom(ctx *colly.Context) *fetchJob {
	if ctx == nil {
		return nil
	}
	job, _ := ctx.GetAny(jobKey).(*fetchJob)
	return job
}

// bodyContentType returns the content type to decode the body with. colly
// already converts bodies with a declared charset to UTF-8.
func bodyContentType(h *http.Header) string {
	if h == nil {
		return ""
	}
	ct := h.Get("Content-Type")
	if _, params, err := mime.ParseMediaType(ct); err == nil {
		if _, ok := params["charset"]; ok {
			return "text/html; charset=utf-8"
		}
	}
	return ct
}
