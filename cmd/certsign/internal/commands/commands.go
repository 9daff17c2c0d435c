package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/certsign/internal/issuer"
	"github.com/wolfeidau/certsign/internal/logger"
	"github.com/wolfeidau/certsign/internal/objectstore"
	"github.com/wolfeidau/certsign/internal/packages"
	"github.com/wolfeidau/certsign/internal/publisher"
	"github.com/wolfeidau/certsign/internal/signer"
	"github.com/wolfeidau/certsign/internal/signing"
	"github.com/wolfeidau/certsign/internal/store"
	memorystore "github.com/wolfeidau/certsign/internal/store/memory"
	postgresstore "github.com/wolfeidau/certsign/internal/store/postgres"
	"github.com/wolfeidau/certsign/internal/telemetry"
)

type Globals struct {
	Dev     bool
	Version string
}

// setupLogging installs the process logger and makes it the fallback for log.Ctx.
func setupLogging(globals *Globals) zerolog.Logger {
	log.Logger = logger.Setup(globals.Dev)
	zerolog.DefaultContextLogger = &log.Logger
	return log.Logger
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Minute, // package uploads are large
		WriteTimeout:      15 * time.Minute, // download runs the signing batch inline
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

type IssuerFlags struct {
	URL     string        `help:"base URL of the certificate issuing service" default:"https://api.bot1.org" env:"CERTSIGN_ISSUER_URL"`
	Timeout time.Duration `help:"timeout for a single issuer request" default:"30s" env:"CERTSIGN_ISSUER_TIMEOUT"`
}

func (f *IssuerFlags) client() (*issuer.Client, error) {
	return issuer.NewClient(issuer.Config{BaseURL: f.URL, Timeout: f.Timeout})
}

type StoreFlags struct {
	Type     string        `name:"store-type" help:"store type (memory or postgres)" default:"memory" env:"CERTSIGN_STORE_TYPE" enum:"memory,postgres"`
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

type PostgresFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"8"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"1"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"CERTSIGN_POSTGRES_AUTO_MIGRATE"`
}

func (f *PostgresFlags) Validate() error {
	if f.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (f *PostgresFlags) config() postgresstore.Config {
	return postgresstore.Config{
		ConnString:      f.ConnString,
		MaxConns:        f.MaxConns,
		MinConns:        f.MinConns,
		MaxConnLifetime: f.MaxConnLifetime,
		MaxConnIdleTime: f.MaxConnIdleTime,
		AutoMigrate:     f.AutoMigrate,
	}
}

// open returns the configured stores and a close func.
func (f *StoreFlags) open(ctx context.Context) (*store.Stores, func(), error) {
	switch f.Type {
	case "postgres":
		if err := f.Postgres.Validate(); err != nil {
			return nil, nil, err
		}
		stores, pool, err := postgresstore.Open(ctx, f.Postgres.config())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres stores: %w", err)
		}
		log.Info().Bool("auto_migrate", f.Postgres.AutoMigrate).Msg("Using PostgreSQL stores with shared connection pool")
		return stores, pool.Close, nil
	default:
		log.Warn().Msg("Using in-memory stores, data is lost on restart")
		return memorystore.NewStores(), func() {}, nil
	}
}

type StorageFlags struct {
	Type            string `help:"object storage type (memory or s3)" default:"memory" env:"CERTSIGN_STORAGE_TYPE" enum:"memory,s3"`
	Bucket          string `help:"bucket for signed packages and manifests" env:"CERTSIGN_STORAGE_BUCKET"`
	Prefix          string `help:"key prefix inside the bucket" env:"CERTSIGN_STORAGE_PREFIX"`
	Region          string `help:"bucket region" default:"us-east-1" env:"CERTSIGN_STORAGE_REGION"`
	Endpoint        string `help:"endpoint override for S3 compatible services" env:"CERTSIGN_STORAGE_ENDPOINT"`
	PathStyle       bool   `help:"use path style addressing" env:"CERTSIGN_STORAGE_PATH_STYLE"`
	AccessKeyID     string `help:"static access key id, defaults to the AWS credential chain" env:"CERTSIGN_STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey string `help:"static secret access key" env:"CERTSIGN_STORAGE_SECRET_ACCESS_KEY"`
	PublicURL       string `help:"public base URL objects are downloaded from" default:"http://localhost:8080/objects" env:"CERTSIGN_STORAGE_PUBLIC_URL"`
	Checksum        bool   `help:"send a CRC64-NVME checksum with every upload" default:"true" env:"CERTSIGN_STORAGE_CHECKSUM" negatable:""`
	IconURL         string `help:"app icon shown while installing, defaults to default-app-icon.png in the bucket" env:"CERTSIGN_STORAGE_ICON_URL"`
}

func (f *StorageFlags) open(ctx context.Context) (objectstore.Storage, error) {
	if f.Type != "s3" {
		log.Warn().Msg("Using in-memory object storage, published packages are not downloadable")
		return objectstore.NewMemory(f.PublicURL), nil
	}

	return objectstore.NewS3(ctx, objectstore.S3Config{
		Bucket:          f.Bucket,
		Prefix:          f.Prefix,
		Region:          f.Region,
		Endpoint:        f.Endpoint,
		PathStyle:       f.PathStyle,
		AccessKeyID:     f.AccessKeyID,
		SecretAccessKey: f.SecretAccessKey,
		PublicBaseURL:   f.PublicURL,
		Checksum:        f.Checksum,
	})
}

func (f *StorageFlags) publisher(storage objectstore.Storage) *publisher.Publisher {
	var opts []publisher.Option
	if f.IconURL != "" {
		opts = append(opts, publisher.WithIconURL(f.IconURL))
	}
	return publisher.New(storage, opts...)
}

type SignerFlags struct {
	Binary  string        `help:"signing tool binary" default:"zsign" env:"CERTSIGN_SIGNER_BINARY"`
	Timeout time.Duration `help:"timeout for a single signing run" default:"10m" env:"CERTSIGN_SIGNER_TIMEOUT"`
	TempDir string        `help:"parent directory for signing scratch directories" env:"CERTSIGN_SIGNER_TEMP_DIR"`
}

type PackageFlags struct {
	Dir     string `help:"directory uploaded packages are stored in" default:"data/packages" env:"CERTSIGN_PACKAGES_DIR"`
	MaxSize int64  `help:"maximum package size in bytes" default:"2147483648" env:"CERTSIGN_PACKAGES_MAX_SIZE"`
}

// pipeline is the signing stack shared by serve and sign-pending.
type pipeline struct {
	files        *packages.LocalStore
	publisher    *publisher.Publisher
	orchestrator *signing.Orchestrator
}

func newPipeline(ctx context.Context, stores *store.Stores, pkg PackageFlags, storage StorageFlags, sf SignerFlags) (*pipeline, error) {
	files, err := packages.NewLocalStore(pkg.Dir, pkg.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open package directory: %w", err)
	}

	objects, err := storage.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open object storage: %w", err)
	}

	pub := storage.publisher(objects)

	orchestrator := signing.New(signing.Config{
		Stores: stores,
		Signer: signer.New(signer.Config{
			Binary:  sf.Binary,
			Timeout: sf.Timeout,
			TempDir: sf.TempDir,
		}),
		Publisher: pub,
		Files:     files,
	})

	return &pipeline{files: files, publisher: pub, orchestrator: orchestrator}, nil
}

// setupTelemetry starts the exporters when enabled and returns a shutdown func.
func setupTelemetry(ctx context.Context, enabled bool, version string) func() {
	if !enabled {
		return func() {}
	}

	log.Info().Msg("Tracing is enabled")
	shutdown, err := telemetry.Init(ctx, telemetry.Config{ServiceName: "certsign", Version: version})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}
