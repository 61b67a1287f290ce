package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"regwatch/internal/config"
	"regwatch/internal/logger"
	"regwatch/internal/sources"
	"regwatch/internal/storage"
)

// SpiderApp runs one monitoring pass: load sources, fetch them, store pages.
type SpiderApp struct {
	config  *config.Config
	log     logger.Logger
	history HistoryRecorder
	now     func() time.Time
}

type RunOptions struct {
	// SourcesPath overrides paths.source_excel when set.
	SourcesPath string
	// Frequency restricts the run to sources crawled at this frequency.
	Frequency    string
	ValidateOnly bool
}

type Summary struct {
	RunID    string
	RowsSeen int
	Loaded   int
	Invalid  int
	Disabled int
	Fetched  int
	Failed   int
	Stored   int
}

// NewSpiderApp wires the pipeline. history may be nil.
func NewSpiderApp(cfg *config.Config, log logger.Logger, history HistoryRecorder) *SpiderApp {
	return &SpiderApp{
		config:  cfg,
		log:     log,
		history: history,
		now:     time.Now,
	}
}

// Run executes a single pass. Only a missing or unreadable source file, or
// an invalid frequency filter, is returned as an error; every per-row and
// per-source problem is logged and reflected in the Summary.
func (a *SpiderApp) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString()}
	log := a.log.With(logger.String("run_id", summary.RunID))

	path := opts.SourcesPath
	if path == "" {
		path = a.config.Paths.SourceExcel
	}

	store := storage.NewRawStore(a.config.Paths.RawData)
	log.Info("Starting monitoring run",
		logger.String("app", a.config.App.Name),
		logger.String("sources", path),
		logger.String("raw_data", store.Root()),
		logger.Duration("download_delay", a.config.DownloadDelay()),
		logger.Int("max_concurrency", a.config.Scraper.MaxConcurrency),
		logger.Bool("obey_robots", a.config.RespectRobots()),
	)

	result, err := sources.NewLoader(log).Load(path)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	summary.RowsSeen = result.TotalRows
	summary.Invalid = len(result.Invalid)
	summary.Disabled = result.Disabled

	srcs := result.Sources
	if opts.Frequency != "" {
		srcs, err = sources.FilterByFrequency(srcs, opts.Frequency)
		if err != nil {
			return nil, fmt.Errorf("filter sources: %w", err)
		}
		log.Info("Filtered sources by frequency",
			logger.String("frequency", opts.Frequency),
			logger.Int("selected", len(srcs)),
		)
	}
	summary.Loaded = len(srcs)

	if opts.ValidateOnly {
		for _, src := range srcs {
			log.Info("Valid source",
				logger.Int("source_id", src.ID),
				logger.String("source", src.Name),
				logger.String("url", src.URL),
				logger.String("frequency", src.Frequency),
			)
		}
		a.logSummary(log, summary)
		return summary, nil
	}

	if len(srcs) == 0 {
		log.Warn("No sources to fetch")
		a.logSummary(log, summary)
		return summary, nil
	}

	spider := NewSpider(a.spiderOptions(), store, a.history, log, summary.RunID)
	stats := spider.Run(ctx, srcs)
	summary.Fetched = stats.Succeeded
	summary.Failed = stats.Failed
	summary.Stored = stats.Stored

	a.logSummary(log, summary)
	return summary, nil
}

func (a *SpiderApp) spiderOptions() SpiderOptions {
	return SpiderOptions{
		UserAgent:      a.config.Scraper.UserAgent,
		Timeout:        a.config.RequestTimeout(),
		Delay:          a.config.DownloadDelay(),
		MaxConcurrency: a.config.Scraper.MaxConcurrency,
		ObeyRobots:     a.config.RespectRobots(),
		ExtractMode:    ExtractMode(a.config.Scraper.ExtractMode),
		Now:            a.now,
	}
}

func (a *SpiderApp) logSummary(log logger.Logger, s *Summary) {
	log.Info("Run complete",
		logger.Int("rows_seen", s.RowsSeen),
		logger.Int("sources_loaded", s.Loaded),
		logger.Int("invalid", s.Invalid),
		logger.Int("disabled", s.Disabled),
		logger.Int("fetched", s.Fetched),
		logger.Int("failed", s.Failed),
		logger.Int("stored", s.Stored),
	)
}
