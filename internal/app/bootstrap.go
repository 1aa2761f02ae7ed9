package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"repricer_go/internal/domain"
	"repricer_go/internal/engine"
	"repricer_go/internal/execution"
	"repricer_go/internal/exit"
	"repricer_go/internal/infra"
	"repricer_go/internal/infra/storage"
	"repricer_go/internal/ingest/betfair"
	"repricer_go/internal/pipeline"
	"repricer_go/internal/risk"
	"repricer_go/internal/service"
	"repricer_go/internal/strategy"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config    *infra.Config
	Logger    *slog.Logger
	Journal   *storage.Journal
	Metrics   *infra.Metrics
	Ledger    *execution.Ledger
	View      *service.SnapshotService
	Pipeline  *pipeline.Pipeline
	Sequencer *engine.Sequencer
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the config file and builds everything from it.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	return b.InitializeWith(cfg)
}

// InitializeWith builds the system from an already validated config.
// An empty storage path disables the journal.
func (b *Bootstrap) InitializeWith(cfg *infra.Config) error {
	b.Config = cfg

	// 1. Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)
	b.Logger.Info("Bootstrapping repricer",
		slog.String("name", cfg.App.Name),
		slog.String("version", cfg.App.Version),
	)

	// 2. Journal
	if cfg.Storage.Path != "" {
		j, err := storage.NewJournal(cfg.Storage.Path)
		if err != nil {
			return err
		}
		b.Journal = j
		b.Logger.Info("Journal opened", slog.String("path", cfg.Storage.Path))
	}

	// 3. Metrics
	b.Metrics = infra.NewMetrics()

	// 4. Engine
	b.Ledger = execution.NewLedger(b.Logger)
	b.View = service.NewSnapshotService(cfg.Market.ClosedHistory)

	deps := pipeline.Deps{
		Orchestrator: engine.NewOrchestrator(cfg.Market.ReopenCooldown),
		Gate:         risk.NewGate(cfg.Risk),
		Ledger:       b.Ledger,
		Exits:        exit.NewPolicy(cfg.Exit, b.Logger),
		Strategy:     strategy.NewTopOfBook(cfg.Strategy),
		View:         b.View,
		Metrics:      b.Metrics,
	}
	if b.Journal != nil {
		deps.Journal = b.Journal
	}

	b.Pipeline = pipeline.New(pipeline.Config{
		MaxDataAge:     cfg.Market.MaxDataAge,
		HeartbeatEvery: cfg.Market.HeartbeatEvery,
	}, deps, b.Logger)

	inbox := cfg.Feed.InboxSize
	if inbox <= 0 {
		inbox = 1024
	}
	b.Sequencer = engine.NewSequencer(inbox, b.Pipeline, "", b.Logger)

	return nil
}

// FeedWorker builds the configured market-data source feeding the sequencer.
func (b *Bootstrap) FeedWorker() (domain.FeedWorker, error) {
	f := b.Config.Feed
	switch f.Mode {
	case infra.FeedModePoll:
		client := betfair.NewClient(f.RestURL, f.AppKey, f.SessionToken, b.Logger)
		return betfair.NewPoller(client, f.MarketIDs, f.PollInterval, b.Sequencer.Submit, b.Metrics, b.Logger), nil
	case infra.FeedModeStream:
		return betfair.NewStreamWorker(f.WSURL, f.AppKey, f.SessionToken, f.MarketIDs, b.Sequencer.Submit, b.Metrics, b.Logger), nil
	default:
		return nil, &domain.ConfigError{Field: "feed.mode", Err: fmt.Errorf("no feed configured (mode %q)", f.Mode)}
	}
}

// ReadHandler serves the read view, the ledger and, when enabled, the journal.
func (b *Bootstrap) ReadHandler() http.Handler {
	var journal service.JournalReader
	if b.Journal != nil {
		journal = b.Journal
	}
	return service.NewHandler(b.View, b.Ledger, journal)
}

// Close releases resources opened by Initialize.
func (b *Bootstrap) Close() error {
	var errs []error
	if b.Journal != nil {
		errs = append(errs, b.Journal.Close())
	}
	return errors.Join(errs...)
}
