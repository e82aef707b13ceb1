package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/medirep/medirep/internal/app"
	"github.com/medirep/medirep/internal/platform/db"
	"github.com/medirep/medirep/internal/snapshot"
)

func main() {
	var (
		dump    = flag.Bool("dump", false, "write a snapshot of every table")
		restore = flag.String("restore", "", "restore from the given snapshot directory")
	)
	flag.Parse()

	if *dump == (*restore != "") {
		slog.Default().Error("exactly one of -dump or -restore is required")
		os.Exit(2)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	snap := snapshot.New(pool, logger)
	if *dump {
		dir, err := snap.Dump(ctx, cfg.SnapshotDir)
		if err != nil {
			logger.Error("snapshot dump", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("snapshot written", slog.String("dir", dir))
		return
	}

	if err := snap.Restore(ctx, *restore); err != nil {
		logger.Error("snapshot restore", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("snapshot restored", slog.String("dir", *restore))
}
