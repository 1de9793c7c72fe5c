package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"alkemio.org/authz/internal/access"
	"alkemio.org/authz/internal/auth"
	"alkemio.org/authz/internal/authorization"
	"alkemio.org/authz/internal/config"
	"alkemio.org/authz/internal/httpapi"
	"alkemio.org/authz/internal/obs"
	"alkemio.org/authz/internal/roleset"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("AUTHZ_CONFIG"), "optional config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// logger is not configured yet
		obs.Logger().Fatal("load config", zap.Error(err))
	}

	logger, err := obs.NewLogger(cfg.Log.Level)
	if err != nil {
		obs.Logger().Fatal("init logger", zap.Error(err))
	}
	defer obs.SetLogger(logger)()
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	defs, err := openSource(cfg)
	if err != nil {
		logger.Fatal("open role definitions", zap.Error(err))
	}
	if defs.pg != nil {
		defer defs.pg.Close()
	}

	svc, err := access.NewService(defs.source, access.WithPrivilegeRules(defs.rules...))
	if err != nil {
		logger.Fatal("init access service", zap.Error(err))
	}

	var tokens *auth.Tokens
	if cfg.Auth.Secret != "" {
		tokens, err = auth.NewTokens(cfg.Auth.Secret)
		if err != nil {
			logger.Fatal("init tokens", zap.Error(err))
		}
	} else {
		logger.Warn("auth.secret not set; API is unauthenticated")
	}

	readiness := httpapi.Readiness{Access: svc, Scope: roleset.ScopePlatform}
	if defs.pg != nil {
		readiness.DB = defs.pg
	}

	api := httpapi.New(httpapi.Options{
		Access:        svc,
		Readiness:     readiness,
		Version:       version,
		Tokens:        tokens,
		IssueTokens:   cfg.Auth.IssueTokens,
		TokenTTL:      cfg.Auth.TokenTTL,
		RateBurst:     cfg.RateLimit.Burst,
		RatePerSecond: cfg.RateLimit.PerSecond,
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(httpapi.UnaryAuthInterceptor(tokens)))
	grpcAPI := httpapi.NewGRPCServer(svc, readiness, version)
	grpcAPI.Register(grpcSrv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http listen", zap.Error(err))
			stop()
		}
	}()

	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			logger.Fatal("grpc listen", zap.Error(err))
		}
		go func() {
			logger.Info("grpc listening", zap.String("addr", cfg.GRPC.Addr))
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("grpc serve", zap.Error(err))
				stop()
			}
		}()
	}

	go refreshHealth(ctx, grpcAPI, logger)

	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)
	go purgeOnSignal(ctx, hangup, defs.source, logger)

	<-ctx.Done()
	logger.Info("shutting down")

	grpcAPI.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	logger.Info("stopped")
}

type definitions struct {
	source *roleset.Cached
	pg     *roleset.Postgres
	rules  []authorization.PrivilegeRule
}

// openSource picks Postgres, a YAML file or the built-in definitions, in that
// order, and wraps the result in a cache. Privilege rules only come from a
// YAML file.
func openSource(cfg *config.Config) (definitions, error) {
	var (
		base roleset.Source
		out  definitions
	)
	switch {
	case cfg.Postgres.DSN != "":
		p, err := roleset.OpenPostgres(cfg.Postgres.DSN)
		if err != nil {
			return definitions{}, err
		}
		base, out.pg = p, p
	case cfg.Definitions.File != "":
		s, err := roleset.LoadFile(cfg.Definitions.File)
		if err != nil {
			return definitions{}, err
		}
		base, out.rules = s, s.PrivilegeRules()
	default:
		base = roleset.Default()
	}
	out.source = roleset.NewCached(base, cfg.Cache.Size, cfg.Cache.TTL)
	return out, nil
}

// purgeOnSignal drops every cached scope each time signals fires, so edited
// definitions are served without a restart.
func purgeOnSignal(ctx context.Context, signals <-chan os.Signal, cache *roleset.Cached, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			cache.Purge()
			logger.Info("definitions cache purged", zap.String("signal", sig.String()))
		}
	}
}

func refreshHealth(ctx context.Context, g *httpapi.GRPCServer, logger *zap.Logger) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()
	for {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := g.RefreshHealth(checkCtx); err != nil {
			logger.Warn("not ready", zap.Error(err))
		}
		cancel()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
