// Command seedusers imports the mailing export into the configured user
// store and optionally writes one QR code per user.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/holidaypuzzle/puzzle/backend-go/internal/config"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/users"
)

func main() {
	csvPath := flag.String("csv", "Xmas_Mailing_CSV.csv", "semicolon separated mailing export")
	qrDir := flag.String("qr-dir", "", "write <uid>.png play-link QR codes into this directory")
	dryRun := flag.Bool("dry-run", false, "parse and report without writing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	f, err := os.Open(*csvPath)
	if err != nil {
		slog.Error("open csv", "path", *csvPath, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	seed, err := users.ReadSeedCSV(f, logger)
	if err != nil {
		slog.Error("parse csv", "path", *csvPath, "error", err)
		os.Exit(1)
	}
	slog.Info("parsed mailing export", "users", len(seed))
	if *dryRun {
		return
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		slog.Error("open user store", "store", cfg.UserStore, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	if *qrDir != "" {
		if err := os.MkdirAll(*qrDir, 0o755); err != nil {
			slog.Error("create qr dir", "dir", *qrDir, "error", err)
			os.Exit(1)
		}
	}

	failed := 0
	for _, u := range seed {
		if err := store.Upsert(ctx, u); err != nil {
			slog.Error("upsert user", "user", u.UID, "error", err)
			failed++
			continue
		}
		if *qrDir == "" {
			continue
		}
		png, err := users.QRCode(cfg.PublicBaseURL, u.UID)
		if err != nil {
			slog.Error("encode qr", "user", u.UID, "error", err)
			failed++
			continue
		}
		if err := os.WriteFile(filepath.Join(*qrDir, u.UID.String()+".png"), png, 0o644); err != nil {
			slog.Error("write qr", "user", u.UID, "error", err)
			failed++
		}
	}

	slog.Info("seed finished", "users", len(seed), "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (users.Store, func(), error) {
	if cfg.UserStore == config.UserStorePostgres {
		pool, err := users.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := users.NewPGStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	}
	store, err := users.NewFileStore(cfg.UserDataFile, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}
