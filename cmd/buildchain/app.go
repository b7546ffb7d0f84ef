package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq" // postgres driver
	_ "modernc.org/sqlite"

	"github.com/programmer4yugal/buildchain/pkg/config"
	"github.com/programmer4yugal/buildchain/pkg/ledger"
	"github.com/programmer4yugal/buildchain/pkg/lifecycle"
	"github.com/programmer4yugal/buildchain/pkg/observability"
	"github.com/programmer4yugal/buildchain/pkg/snapshot"
	"github.com/programmer4yugal/buildchain/pkg/store"
)

// app wires the configured store, chain components and telemetry.
type app struct {
	cfg    *config.Config
	ledger ledger.Config

	db    *sql.DB
	store store.Store
	guard *store.RedisGuard
	obs   *observability.Provider

	writer     *ledger.Writer
	verifier   *ledger.Verifier
	strict     *ledger.Verifier
	reconciler *ledger.Reconciler
	lifecycle  *lifecycle.Service
}

func setupLogger(level string, w io.Writer) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})))
}

func ledgerConfig(cfg *config.Config) ledger.Config {
	lc := ledger.DefaultConfig()
	if cfg.LedgerName != "" {
		lc.LedgerName = cfg.LedgerName
	}
	if cfg.GenesisHash != "" {
		lc.GenesisHash = cfg.GenesisHash
	}
	lc.StrictLinkage = cfg.VerifyStrict
	return lc
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, store.Dialect, error) {
	if cfg.LiteMode() {
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return nil, "", fmt.Errorf("create data dir: %w", err)
		}
		path := filepath.Join(cfg.DataDir, "buildchain.db")
		slog.InfoContext(ctx, "lite mode: using sqlite", "path", path)
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		return db, store.DialectSQLite, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("connect postgres: %w", err)
	}
	return db, store.DialectPostgres, nil
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, ledger: ledgerConfig(cfg)}
	if err := a.ledger.Validate(); err != nil {
		return nil, err
	}

	db, dialect, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.db = db
	sqlStore := store.NewSQLStore(db, dialect)
	if err := sqlStore.Init(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.store = sqlStore

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.Telemetry.Enabled
	obsCfg.OTLPEndpoint = cfg.Telemetry.Endpoint
	obsCfg.Insecure = cfg.Telemetry.Insecure
	obsCfg.ServiceName = cfg.Telemetry.ServiceName
	obsCfg.MetricInterval = cfg.Telemetry.MetricInterval
	a.obs, err = observability.New(ctx, obsCfg)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	w, err := ledger.NewWriter(a.store, a.ledger)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	w.WithObserver(a.obs)
	if cfg.RedisAddr != "" {
		a.guard = store.NewRedisGuard(cfg.RedisAddr, "", 0, cfg.ClaimTTL)
		w.WithGuard(a.guard)
	}
	a.writer = w

	strictCfg := a.ledger
	strictCfg.StrictLinkage = true
	if a.verifier, err = ledger.NewVerifier(a.store, a.ledger); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.verifier.WithObserver(a.obs)
	if a.strict, err = ledger.NewVerifier(a.store, strictCfg); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.strict.WithObserver(a.obs)

	if a.reconciler, err = ledger.NewReconciler(a.store, a.ledger); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.lifecycle = lifecycle.NewService(a.store, a.writer)
	return a, nil
}

func (a *app) blobStore(ctx context.Context) (snapshot.BlobStore, error) {
	return snapshot.NewBlobStoreFromConfig(ctx, snapshot.StoreConfig{
		Type:       snapshot.StoreType(a.cfg.Snapshot.Store),
		Dir:        a.cfg.Snapshot.Dir,
		S3Bucket:   a.cfg.Snapshot.S3Bucket,
		S3Region:   a.cfg.Snapshot.S3Region,
		S3Endpoint: a.cfg.Snapshot.S3Endpoint,
		S3Prefix:   a.cfg.Snapshot.S3Prefix,
		GCSBucket:  a.cfg.Snapshot.GCSBucket,
		GCSPrefix:  a.cfg.Snapshot.GCSPrefix,
	})
}

func (a *app) exporter(ctx context.Context) (*snapshot.Exporter, error) {
	blobs, err := a.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.NewExporter(a.store, a.ledger, blobs)
}

// Close releases every resource opened by openApp.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.obs != nil {
		errs = append(errs, a.obs.Shutdown(ctx))
	}
	if a.guard != nil {
		errs = append(errs, a.guard.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
