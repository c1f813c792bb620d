// Package app turns a config into a ready users.Service. The server and the
// CLI both open the store this way.
package app

import (
	"context"
	"fmt"
	"time"

	"ghusers/internal/config"
	"ghusers/internal/txn"
	"ghusers/internal/users"
	"ghusers/internal/vcs"
	"ghusers/internal/vcs/github"
	"ghusers/internal/vcs/local"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

type App struct {
	Config *config.Config
	Store  vcs.Store
	Users  *users.Service
	Local  *local.Store // nil for the github backend
	db     *badger.DB
}

// Open builds the configured store and the service on top of it. The local
// backend's base ref is created if missing. onProgress may be nil.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, onProgress func(txn.Progress)) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg}

	switch cfg.Store.Backend {
	case config.BackendGitHub:
		token := cfg.Token()
		if token == "" {
			logger.Warn("no store token set; requests are anonymous", zap.String("env", cfg.Store.TokenEnv))
		}
		gh, err := github.New(github.Options{
			BaseURL: cfg.Store.APIURL,
			Owner:   cfg.Store.Owner,
			Repo:    cfg.Store.Repo,
			Token:   token,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing github store: %w", err)
		}
		a.Store = gh

	case config.BackendLocal:
		db, err := local.OpenDB(cfg.Database.Path, cfg.Database.InMemory)
		if err != nil {
			return nil, err
		}
		ls, err := local.New(db, local.Options{Logger: logger})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing local store: %w", err)
		}
		if err := ls.Init(ctx, cfg.Store.BaseRef); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing local store: %w", err)
		}
		a.db = db
		a.Local = ls
		a.Store = ls
	}

	svc, err := users.NewService(a.Store, txn.Options{
		BaseRef:      cfg.Store.BaseRef,
		Path:         cfg.Store.Path,
		BranchPrefix: cfg.Store.BranchPrefix,
		Policy:       cfg.Policy(),
		CallTimeout:  time.Duration(cfg.Transaction.CallTimeout),
		Bootstrap:    cfg.Store.Bootstrap,
		Logger:       logger,
		OnProgress:   onProgress,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Users = svc

	return a, nil
}

func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
