package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"

	"contractdesk.org/internal/auth"
	"contractdesk.org/internal/config"
	"contractdesk.org/internal/httpapi"
	"contractdesk.org/internal/migrate"
	"contractdesk.org/internal/obs"
	"contractdesk.org/internal/store/memory"
	"contractdesk.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		obs.LogError(context.Background(), "fatal", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	obs.SetLogger(obs.NewJSONLogger(os.Stdout, obs.ParseLevel(cfg.LogLevel)))
	logger := obs.Logger()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store auth.Store
		ready httpapi.ReadyProbe
	)
	if cfg.UsesPostgres() {
		pgStore, err := pg.Open(cfg.DatabaseURL)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("operation", "open database").Wrap(err)
		}
		defer pgStore.Close()
		if cfg.MigrateOnStart {
			if err := migrate.NewManager(pgStore.DB()).Up(); err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "migrate on start").Wrap(err)
			}
			logger.Info("migrations applied")
		}
		store = pgStore
		ready = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		store = memory.New()
	}

	signer, err := auth.NewTokenSigner(cfg.JWTSecret, auth.WithIssuer(cfg.JWTIssuer), auth.WithTokenTTL(cfg.TokenTTL))
	if err != nil {
		return err
	}
	creds, err := auth.NewCredentialStore(store, signer, auth.WithHasher(auth.NewBcryptHasher(cfg.BcryptCost)))
	if err != nil {
		return err
	}
	api, err := httpapi.New(httpapi.Options{
		Credentials:   creds,
		Authenticator: auth.NewAuthenticator(store, signer),
		Ready:         ready,
		Version:       version,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- oops.Code("HTTP_LISTEN_FAILED").With("addr", srv.Addr).Wrap(err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return oops.Code("GRPC_LISTEN_FAILED").With("addr", cfg.GRPCAddr).Wrap(err)
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewGRPCServer(ready, version)
		health.Register(grpcSrv)
		go health.Run(ctx, 10*time.Second)
		go func() {
			logger.Info("grpc health server starting", "addr", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- oops.Code("GRPC_SERVE_FAILED").With("addr", cfg.GRPCAddr).Wrap(err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	logger.Info("stopped")
	return nil
}
