package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/certsign/internal/api"
	"github.com/wolfeidau/certsign/internal/auth"
	"github.com/wolfeidau/certsign/internal/plans"
	"github.com/wolfeidau/certsign/internal/reconcile"
	"github.com/wolfeidau/certsign/internal/service"
	"github.com/wolfeidau/certsign/internal/shortener"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"CERTSIGN_LISTEN"`
	Cert   string `help:"path to TLS cert file, serves plain HTTP when empty" default:"" env:"CERTSIGN_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"CERTSIGN_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"CERTSIGN_CORS_ORIGINS"`

	Tracing   bool    `help:"enable tracing" default:"false" env:"CERTSIGN_TRACING"`
	PlansFile string  `help:"YAML file overlaying the built-in plan catalog" type:"existingfile" env:"CERTSIGN_PLANS_FILE"`
	AdminIDs  []int64 `help:"user ids allowed to create activation keys" env:"CERTSIGN_ADMIN_IDS"`
	Shortener string  `help:"URL shortener endpoint, install links are not shortened when empty" env:"CERTSIGN_SHORTENER_URL"`

	Auth      AuthFlags      `embed:"" prefix:"auth-"`
	Issuer    IssuerFlags    `embed:"" prefix:"issuer-"`
	Store     StoreFlags     `embed:""`
	Storage   StorageFlags   `embed:"" prefix:"storage-"`
	Signer    SignerFlags    `embed:"" prefix:"signer-"`
	Packages  PackageFlags   `embed:"" prefix:"packages-"`
	Reconcile ReconcileFlags `embed:"" prefix:"reconcile-"`
}

type AuthFlags struct {
	Disabled  bool   `help:"disable authentication, callers identify with X-User-ID (development only)" default:"false" env:"CERTSIGN_AUTH_DISABLED"`
	PublicKey string `help:"PEM encoded ES256 public key used to verify bearer tokens" env:"CERTSIGN_AUTH_PUBLIC_KEY"`
}

type ReconcileFlags struct {
	Interval    time.Duration `help:"time between reconciliation sweeps" default:"1h" env:"CERTSIGN_RECONCILE_INTERVAL"`
	ItemTimeout time.Duration `help:"timeout for reconciling a single registration" default:"2m" env:"CERTSIGN_RECONCILE_ITEM_TIMEOUT"`
}

func (f *ReconcileFlags) loop(cfg reconcile.Config) *reconcile.Loop {
	cfg.Interval = f.Interval
	cfg.ItemTimeout = f.ItemTimeout
	return reconcile.New(cfg)
}

func (c *ServeCmd) Run(globals *Globals) error {
	logger := setupLogging(globals)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("version", globals.Version).Bool("dev", globals.Dev).Msg("Starting server")

	defer setupTelemetry(ctx, c.Tracing, globals.Version)()

	catalog, err := plans.Load(c.PlansFile)
	if err != nil {
		return err
	}

	stores, closeStores, err := c.Store.open(ctx)
	if err != nil {
		return err
	}
	defer closeStores()

	issuerClient, err := c.Issuer.client()
	if err != nil {
		return err
	}

	pipe, err := newPipeline(ctx, stores, c.Packages, c.Storage, c.Signer)
	if err != nil {
		return err
	}

	svc := service.New(service.Config{
		Stores:    stores,
		Issuer:    issuerClient,
		Plans:     catalog,
		Signing:   pipe.orchestrator,
		Files:     pipe.files,
		Publisher: pipe.publisher,
		Shortener: shortener.New(shortener.Config{Endpoint: c.Shortener}),
		AdminIDs:  c.AdminIDs,
	})

	var verifier *auth.Verifier
	if c.Auth.Disabled {
		logger.Warn().Msg("Authentication is disabled (--auth-disabled). This should only be used in development!")
	} else {
		verifier, err = auth.NewVerifierFromPEM(c.Auth.PublicKey, "/health", "/v1/plans")
		if err != nil {
			return fmt.Errorf("failed to create token verifier: %w", err)
		}
	}

	handler := api.NewServer(api.Config{
		Service:     svc,
		Verifier:    verifier,
		CORSOrigins: c.CORSOrigins,
		MaxUpload:   c.Packages.MaxSize,
	}).Handler(logger)

	loop := c.Reconcile.loop(reconcile.Config{
		Registrations: stores.Registrations,
		Credentials:   stores.Credentials,
		Issuer:        issuerClient,
	})
	loop.Start(ctx)
	defer loop.Stop()

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", c.Listen).Bool("auth", verifier != nil).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
