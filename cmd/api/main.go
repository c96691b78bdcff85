package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/audit"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/auth"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/config"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/httpapi"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/obs"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/revocation"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/store/memory"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

const sessionGCInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load config")
	}
	obs.Init()
	obs.SetLevel(cfg.LogLevel)
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	// Persistence: Postgres when a DSN is configured, in-process
	// otherwise (dev mode).
	var (
		store auth.Store
		ready httpapi.ReadyProbe
	)
	if cfg.DB.DSN != "" {
		pgStore, err := pg.Open(cfg.DB.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		defer pgStore.Close()
		store = pgStore
		ready.DB = pgStore.DB()
	} else {
		log.Warn().Msg("no E7GEZLY_PG_DSN set, using in-memory store")
		store = memory.NewStore()
	}

	// Revocation registry: Redis when configured, in-process otherwise.
	var registry revocation.Registry
	if cfg.Redis.Addr != "" {
		redisReg, err := revocation.NewRedisRegistry(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("connect redis")
		}
		defer redisReg.Close()
		registry = redisReg
		ready.Ping = redisReg.Ping
	} else {
		log.Warn().Msg("no E7GEZLY_REDIS_ADDR set, using in-memory revocation registry")
		registry = revocation.NewMemoryRegistry()
	}

	tokens, err := auth.NewTokenIssuer(cfg.Token.Secret, cfg.Token.Issuer,
		cfg.Token.GatewayTTL, cfg.Token.OperationalTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("token issuer")
	}

	stream := audit.NewStream()
	recorder := audit.NewRecorder(store.Audit(context.Background()), stream, log)
	verifier := auth.NewStoreVerifier(store, cfg.Lockout.Threshold, cfg.Lockout.Window)
	svc := auth.NewService(store, verifier, tokens, registry, recorder,
		auth.WithRefreshTTL(cfg.Token.RefreshTTL))
	gate := auth.NewGate(tokens, registry)

	api := httpapi.New(svc, gate, stream, ready, version)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gcSessions(rootCtx, svc)

	log.Info().Str("addr", srv.Addr).Str("version", version).Msg("starting e7gezly-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	ctx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	_ = srv.Shutdown(ctx)
	log.Info().Msg("stopped")
}

// gcSessions periodically removes inactive sessions past their refresh
// expiry.
func gcSessions(ctx context.Context, svc *auth.Service) {
	ticker := time.NewTicker(sessionGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := svc.CleanupSessions(ctx)
			if err != nil {
				obs.Logger().Error().Err(err).Msg("session gc failed")
				continue
			}
			if removed > 0 {
				obs.Logger().Info().Int64("removed", removed).Msg("session gc")
			}
		}
	}
}
