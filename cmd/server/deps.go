package main

import (
	"context"
	"log/slog"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/account/whitelist"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/store/bundle"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger/projector"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/platform/config"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/platform/postgres"
	platformredis "github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/platform/redis"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/storage/store/record"
	platformtx "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/tx"
)

// stores bundles every persistence dependency main has to wire. The DSN
// selects the backend: Postgres when set, otherwise the in-memory stores with
// the coarse mutex runner.
type stores struct {
	Bundles bundle.Store
	Records record.Store
	Gate    *whitelist.Gate
	Ledger  ledger.Store
	Tx      platformtx.Runner
	View    projector.ReadView

	closers []func() error
}

func buildStores(cfg config.Config, log *slog.Logger) (*stores, error) {
	s := &stores{}

	var wlStore whitelist.Store
	if cfg.PostgresDSN == "" {
		log.Warn("no postgres DSN configured, using in-memory stores")
		s.Bundles = bundle.NewInMemoryStore()
		s.Records = record.NewInMemoryStore()
		s.Ledger = ledger.NewInMemoryStore()
		s.Tx = platformtx.NewMutexRunner()
		wlStore = whitelist.NewInMemoryStore()
	} else {
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		if err := postgres.Migrate(context.Background(), db); err != nil {
			s.Close()
			return nil, err
		}
		s.Bundles = bundle.NewPostgres(db)
		s.Records = record.NewPostgres(db)
		s.Ledger = ledger.NewPostgres(db)
		s.Tx = postgres.NewTxRunner(db)
		wlStore = whitelist.NewPostgres(db)
	}

	gate, err := whitelist.NewGate(wlStore, s.Ledger, s.Tx, log)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Gate = gate

	if cfg.Redis.URL != "" {
		client, err := platformredis.New(cfg.Redis)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, client.Close)
		s.View = projector.NewRedisView(client.Client)
	} else {
		s.View = projector.NewInMemoryView()
	}

	return s, nil
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}
