package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"regwatch/internal/app"
	"regwatch/internal/config"
	"regwatch/internal/db"
	"regwatch/internal/logger"
)

type options struct {
	Config       string `short:"c" long:"config" env:"REGWATCH_CONFIG" default:"config/settings.yaml" description:"Path to the YAML settings file"`
	Sources      string `short:"s" long:"sources" env:"REGWATCH_SOURCES" description:"Source sheet (.xlsx or .csv); overrides paths.source_excel"`
	Frequency    string `long:"frequency" env:"REGWATCH_FREQUENCY" description:"Only fetch sources with this frequency (DAILY or WEEKLY)"`
	ValidateOnly bool   `long:"validate-only" description:"Load and validate sources without fetching"`
	LogLevel     string `long:"log-level" env:"REGWATCH_LOG_LEVEL" description:"Override logging.level (debug, info, warn, error)"`
}

var errHelp = errors.New("help requested")

func parseOptions(args []string) (*options, error) {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil, errHelp
		}
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	return &opts, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseOptions(args)
	if errors.Is(err, errHelp) {
		return 0
	}
	if err != nil {
		return 1
	}

	cfg, err := config.LoadConfig(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "regwatch: %v\n", err)
		return 1
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "regwatch: %v\n", err)
			return 1
		}
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.Paths.Logs},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "regwatch: failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var history app.HistoryRecorder
	var mongoDB *db.MongoDB
	if cfg.History.Enabled() {
		mongoDB, err = db.NewMongoDB(ctx, cfg.History)
		if err != nil {
			log.Error("Failed to open fetch history store", logger.Error(err))
			return 1
		}
		defer func() {
			if err := mongoDB.Close(); err != nil {
				log.Warn("Failed to close fetch history store", logger.Error(err))
			}
		}()
		history = mongoDB
		log.Info("Recording fetch history",
			logger.String("database", cfg.History.Database),
			logger.String("collection", cfg.History.Collection),
		)
	}

	summary, err := app.NewSpiderApp(cfg, log, history).Run(ctx, app.RunOptions{
		SourcesPath:  opts.Sources,
		Frequency:    opts.Frequency,
		ValidateOnly: opts.ValidateOnly,
	})
	if err != nil {
		log.Error("Run aborted", logger.Error(err))
		return 1
	}

	if mongoDB != nil && !opts.ValidateOnly {
		counts, err := mongoDB.RunStatusCounts(context.WithoutCancel(ctx), summary.RunID)
		if err != nil {
			log.Warn("Failed to read run history", logger.Error(err))
		} else {
			log.Info("Fetch history recorded",
				logger.String("run_id", summary.RunID),
				logger.Any("statuses", counts),
			)
		}
	}

	if ctx.Err() != nil {
		log.Warn("Run interrupted")
	}
	return 0
}
