// main wires high-level dependencies and keeps the process lifecycle small:
// one HTTP server, one projector, one expiry sweep. Business logic lives in
// the internal service packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	whitelisthandler "github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/account/whitelist/handler"
	certhandler "github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/handler"
	certmetrics "github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/metrics"
	certservice "github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/service"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger/projector"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/platform/config"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/platform/httpserver"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/platform/logger"
	storagehandler "github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/storage/handler"
	storagemetrics "github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/storage/metrics"
	storageservice "github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/storage/service"
	httptransport "github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	deps, err := buildStores(cfg, log)
	if err != nil {
		log.Error("store setup failed", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	gate := deps.Gate
	certSvc, err := certservice.New(deps.Bundles, gate, deps.Ledger, deps.Tx,
		certmetrics.New(), log, cfg.ValidityPeriod)
	if err != nil {
		log.Error("certificate service setup failed", "error", err)
		os.Exit(1)
	}
	storageSvc, err := storageservice.New(deps.Records, deps.Bundles, deps.Ledger, deps.Tx,
		storagemetrics.New(), log)
	if err != nil {
		log.Error("storage engine setup failed", "error", err)
		os.Exit(1)
	}
	proj, err := projector.New(deps.Ledger, deps.View, log, cfg.ProjectorPollInterval)
	if err != nil {
		log.Error("projector setup failed", "error", err)
		os.Exit(1)
	}

	router := httptransport.NewRouter(
		certhandler.New(certSvc, log),
		storagehandler.New(storageSvc, log),
		whitelisthandler.New(gate, log),
		httptransport.NewQueryHandler(deps.View, deps.Ledger, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting registry", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		err := proj.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.ExpirySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := certSvc.ExpireDue(ctx, time.Now()); err != nil {
					log.ErrorContext(ctx, "expiry sweep failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Error("registry stopped", "error", err)
		os.Exit(1)
	}
	log.Info("registry stopped")
}
