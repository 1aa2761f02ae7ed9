package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"repricer_go/internal/app"
	"repricer_go/internal/domain"
	"repricer_go/internal/infra"
)

func main() {
	marketID := flag.String("market", "1.234567", "market id used by the script")
	journal := flag.String("journal", "", "optional SQLite journal path")
	cooldown := flag.Duration("cooldown", 2*time.Second, "reopen cooldown")
	flag.Parse()

	cfg := infra.DefaultConfig()
	cfg.Logging.File = ""
	cfg.Logging.Level = "warn"
	cfg.Storage.Path = *journal
	cfg.Market.ReopenCooldown = *cooldown

	bootstrap := app.NewBootstrap()
	if err := bootstrap.InitializeWith(cfg); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	events, err := app.PaperScript(domain.MarketID(*marketID), domain.Now(), time.Second)
	if err != nil {
		slog.Error("Invalid script", slog.Any("error", err))
		os.Exit(1)
	}

	if _, err := bootstrap.RunPaper(context.Background(), events, os.Stdout); err != nil {
		slog.Error("Paper run failed", slog.Any("error", err))
		os.Exit(1)
	}
}
