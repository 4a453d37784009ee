// Command yggdrasild runs the identity and session server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcauthd/yggdrasil"
	"github.com/mcauthd/yggdrasil/internal/api"
	"github.com/mcauthd/yggdrasil/internal/notify"
	"github.com/mcauthd/yggdrasil/internal/sqlite"
	"github.com/mcauthd/yggdrasil/sign"
	"github.com/mcauthd/yggdrasil/upstream"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to INI configuration (defaults apply when omitted)")
	logJSON := flag.Bool("log-json", true, "emit JSON logs")
	flag.Parse()

	var handler slog.Handler
	if *logJSON {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg := yggdrasil.DefaultConfig()
	if *configPath != "" {
		loaded, err := yggdrasil.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	db, err := sqlite.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	signer, err := sign.LoadOrGenerate(cfg.Server.SignatureKey)
	if err != nil {
		return err
	}

	builder := yggdrasil.New().
		WithConfig(cfg).
		WithRecordStore(db).
		WithTextureStore(db).
		WithSigner(signer).
		WithLogger(logger)

	if cfg.Upstream.Enabled {
		builder.WithUpstream(upstream.NewClient(cfg.Upstream.SessionURL, cfg.Upstream.Timeout))
	}
	if cfg.Notify.Enabled {
		if cfg.Notify.WebhookURL != "" {
			builder.WithNotifySink(notify.NewWebhookSink(cfg.Notify.WebhookURL, func() {
				logger.Warn("notify: webhook delivery failed")
			}))
		} else {
			builder.WithNotifySink(notify.NewJSONWriterSink(os.Stdout))
		}
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.NewServer(engine, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.ListenAddr, "proxy_mode", cfg.Upstream.Enabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
