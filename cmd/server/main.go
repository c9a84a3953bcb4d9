package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/reflinker/internal/api"
	"github.com/dgallion1/reflinker/internal/config"
	"github.com/dgallion1/reflinker/internal/fetch"
	"github.com/dgallion1/reflinker/internal/hostconfig"
	"github.com/dgallion1/reflinker/internal/linker"
	"github.com/dgallion1/reflinker/internal/locator"
	"github.com/dgallion1/reflinker/internal/matcher"
	"github.com/dgallion1/reflinker/internal/pipeline"
	"github.com/dgallion1/reflinker/internal/popup"
	"github.com/dgallion1/reflinker/internal/refcache"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hosts := hostconfig.Default()
	if cfg.HostSelectorsFile != "" {
		var err error
		hosts, err = hostconfig.Load(cfg.HostSelectorsFile)
		if err != nil {
			log.Error("load host selectors", "path", cfg.HostSelectorsFile, "error", err)
			os.Exit(1)
		}
	}
	log.Info("host selectors loaded", "hosts", hosts.Len())

	// Initialize clients.
	mc := matcher.NewClient(cfg.MatcherURL, cfg.MatcherAPIKey, cfg.MatcherTimeout)
	fc := fetch.NewClient(cfg.FetchTimeout)

	var cache linker.RefCache
	var rc *refcache.Cache
	if cfg.RedisURL != "" {
		var err error
		rc, err = refcache.Open(cfg.RedisURL, cfg.RefCacheTTL)
		if err != nil {
			log.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rc.Ping(pingCtx); err != nil {
			log.Warn("ref cache unreachable, continuing without it", "error", err)
		}
		pingCancel()
		cache = rc
	}

	lk := linker.New(mc, cache, hosts, linker.Config{
		Locator: locator.Config{
			MaxWordsAround:  cfg.MaxWordsAround,
			MaxSearchLength: cfg.MaxSearchLength,
		},
		Viewport: popup.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
		BaseURL:  cfg.MatcherURL,
	}, log)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, fc, lk, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(api.Deps{
		Linker:   lk,
		Reporter: mc,
		Jobs:     orch,
		Stats:    mc.Stats,
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		mc.Close()
		fc.Close()
		if rc != nil {
			rc.Close()
		}
	}()

	log.Info("starting reflinker", "port", cfg.Port, "matcher", cfg.MatcherURL)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
