// authd es el backend local de desarrollo: expone cuentas, documentos y
// blobs sobre HTTP para que el SDK (y authctl) trabajen sin servicios
// externos.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dropDatabas3/littlejohn/internal/cache"
	"github.com/dropDatabas3/littlejohn/internal/config"
	"github.com/dropDatabas3/littlejohn/internal/email"
	"github.com/dropDatabas3/littlejohn/internal/emulator"
	"github.com/dropDatabas3/littlejohn/internal/emulator/blob"
	"github.com/dropDatabas3/littlejohn/internal/emulator/store"
	"github.com/dropDatabas3/littlejohn/internal/emulator/store/memory"
	"github.com/dropDatabas3/littlejohn/internal/emulator/store/pg"
	"github.com/dropDatabas3/littlejohn/internal/metrics"
	"github.com/dropDatabas3/littlejohn/internal/observability/logger"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "ruta al YAML de configuración (opcional)")
	flag.Parse()

	// .env opcional, igual que en cualquier setup de desarrollo
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "authd"})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	kv := cache.New(cache.Config{
		Kind:      cfg.Cache.Kind,
		RedisAddr: cfg.Cache.Redis.Addr,
		RedisDB:   cfg.Cache.Redis.DB,
	})
	defer func() { _ = kv.Close() }()

	mailer := email.New(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, cfg.Email.DebugEchoLinks)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	opts := emulator.Options{
		Store:      st,
		Cache:      kv,
		Mailer:     mailer,
		Issuer:     cfg.Auth.Issuer,
		BaseURL:    cfg.Server.PublicBaseURL,
		IDTokenTTL: cfg.Auth.IDTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
		ResetTTL:   cfg.Auth.ResetTTL,
	}
	if cfg.Providers.Google.Enabled {
		opts.GoogleClientID = cfg.Providers.Google.ClientID
		opts.GoogleInsecure = cfg.Providers.Google.Insecure
	}

	srv, err := emulator.NewServer(opts, blob.NewStore(cfg.Blobs.Dir))
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("authd listening",
			logger.Path(cfg.Server.Addr),
			logger.Component(cfg.Storage.Driver),
		)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return pg.Open(ctx, cfg.Storage.DSN)
	default:
		return memory.New(), nil
	}
}
