package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hatemosphere/admin-console/internal/api"
	"github.com/hatemosphere/admin-console/internal/audit"
	"github.com/hatemosphere/admin-console/internal/auth"
	"github.com/hatemosphere/admin-console/internal/config"
	"github.com/hatemosphere/admin-console/internal/session"
	"github.com/hatemosphere/admin-console/internal/storage"
	"github.com/hatemosphere/admin-console/internal/telemetry"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	cfg := config.Parse()

	// Configure logging format.
	var logHandler slog.Handler
	if cfg.LogFormat == "text" {
		logHandler = slog.NewTextHandler(os.Stdout, nil)
	} else {
		logHandler = slog.NewJSONHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(logHandler))

	// Disable audit logging if configured.
	if !cfg.AuditLogs {
		audit.Enabled = false
	}

	// Durable scope: credentials survive restarts.
	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}

	// Session scope lives as long as the browser session is active; the
	// transient scope only holds a pending login nonce.
	sessions := storage.NewMemoryStore(cfg.SessionCacheSize, cfg.SessionIdleTTL)
	transient := storage.NewMemoryStore(cfg.SessionCacheSize, cfg.NonceTTL)

	oauthCfg := auth.OAuthConfig{
		ProviderURL:     cfg.ProviderURL,
		ClientID:        cfg.ClientID,
		RedirectURI:     cfg.RedirectURI,
		Scopes:          cfg.Scopes(),
		TestStatePrefix: cfg.TestStatePrefix,
		ConsumeState:    cfg.ConsumeState,
	}
	if cfg.Issuer != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		authURL, err := auth.DiscoverAuthURL(ctx, cfg.Issuer)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to discover authorize endpoint: %v\n", err)
			os.Exit(1)
		}
		oauthCfg.AuthURL = authURL
		slog.Info("authorize endpoint discovered", "issuer", cfg.Issuer, "url", authURL)
	}
	if oauthCfg.TestStatePrefix != "" {
		slog.Warn("CSRF validation is skipped for callback states with the test prefix", "prefix", oauthCfg.TestStatePrefix)
	}

	// Initialize OpenTelemetry tracing if configured.
	var tp *sdktrace.TracerProvider
	var backendClient *http.Client
	if cfg.OTelServiceName != "" {
		tp, err = telemetry.InitTracer(context.Background(), cfg.OTelServiceName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize OpenTelemetry: %v\n", err)
			os.Exit(1)
		}
		backendClient = telemetry.Client()
		slog.Info("OpenTelemetry tracing enabled", "service", cfg.OTelServiceName)
	}

	registry := session.NewRegistry(session.Config{
		OAuth: oauthCfg,
		Codec: auth.CodecConfig{
			RoleClaim:   cfg.RoleClaim,
			TenantClaim: cfg.TenantClaim,
		},
	}, store, sessions, transient, auth.NewHTTPExchanger(cfg.BackendURL, backendClient))

	api.RegisterActiveSessionsGauge(func() float64 {
		return float64(sessions.Len())
	})

	srv := api.NewServer(registry,
		api.WithHealthCheck(store),
		api.WithCookieName(cfg.CookieName),
		api.WithSecureCookies(cfg.SecureCookies),
	)

	handler := srv.Router()
	if tp != nil {
		handler = telemetry.Handler(handler, "admin-console")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Drop credentials of browser sessions not seen within the idle TTL.
	purgeCtx, stopPurge := context.WithCancel(context.Background())
	if cfg.PurgeInterval > 0 {
		go purgeIdle(purgeCtx, store, cfg.PurgeInterval, cfg.SessionIdleTTL)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
		close(done)
	}()

	slog.Info("admin console starting", "addr", cfg.Addr, "backend", cfg.BackendURL)

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-done

	stopPurge()
	if tp != nil {
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Error("tracer provider shutdown error", "error", err)
		}
	}
	store.Close()
	slog.Info("shutdown complete")
}

// purgeIdle periodically removes durable slots not touched within idle.
func purgeIdle(ctx context.Context, store *storage.SQLiteStore, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeIdle(ctx, time.Now().Add(-idle))
			if err != nil {
				slog.Error("purge idle credentials", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("purged idle credentials", "rows", n)
			}
		}
	}
}
