package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/natureofthedivine/storefront/internal/api"
	"github.com/natureofthedivine/storefront/internal/archive"
	"github.com/natureofthedivine/storefront/internal/config"
	"github.com/natureofthedivine/storefront/internal/gateway"
	"github.com/natureofthedivine/storefront/internal/payment"
	"github.com/natureofthedivine/storefront/internal/pricing"
	"github.com/natureofthedivine/storefront/internal/reconciliation"
	"github.com/natureofthedivine/storefront/internal/repository"
	"github.com/natureofthedivine/storefront/internal/repository/boltstore"
	"github.com/natureofthedivine/storefront/internal/repository/dynamostore"
	"github.com/natureofthedivine/storefront/internal/shipping"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:          "storefront",
		Short:        "Nature of the Divine storefront backend",
		SilenceUsage: true,
		RunE:         func(cmd *cobra.Command, args []string) error { return serve(cmd.Context(), cfgPath) },
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  func(cmd *cobra.Command, args []string) error { return serve(cmd.Context(), cfgPath) },
	})
	root.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Re-check stale PENDING payments against the gateway once",
		RunE:  func(cmd *cobra.Command, args []string) error { return reconcile(cmd.Context(), cfgPath) },
	})
	return root
}

// store is everything the commands need from a record store backend.
type store interface {
	payment.Store
	reconciliation.Store
	api.Store
	Close() error
}

type app struct {
	cfg        *config.Config
	store      store
	payments   *payment.Service
	pricer     *pricing.Resolver
	reconciler *reconciliation.Service
}

func setup(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var awsCfg *aws.Config
	if cfg.DB.Driver == "dynamodb" || cfg.Archive.S3Bucket != "" {
		c, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = &c
	}

	st, err := openStore(cfg, awsCfg)
	if err != nil {
		return nil, err
	}

	keys := cfg.ActiveGateway()
	mode := "test"
	if cfg.Gateway.Production {
		mode = "production"
	}
	log.Printf("Using %s gateway keys for merchant %s", mode, keys.MerchantID)

	var locator pricing.Locator
	if cfg.Pricing.GeoURL != "" {
		locator = pricing.NewGeoClient(cfg.Pricing.GeoURL, cfg.Pricing.Timeout)
	}
	pricer := pricing.NewResolver(locator, cfg.Pricing.CacheSize, cfg.Pricing.CacheTTL, cfg.Pricing.Timeout)

	payments := payment.NewService(st, gateway.New(keys, cfg.Gateway.Timeout), pricer, keys.Salt(), cfg.Public.BaseURL)
	if cfg.Archive.S3Bucket != "" {
		payments.SetArchiver(archive.NewS3Archiver(s3.NewFromConfig(*awsCfg), cfg.Archive.S3Bucket))
		log.Printf("Archiving callbacks to s3://%s", cfg.Archive.S3Bucket)
	}

	return &app{
		cfg:        cfg,
		store:      st,
		payments:   payments,
		pricer:     pricer,
		reconciler: reconciliation.NewService(st, payments, cfg.Reconcile.Window, cfg.Reconcile.Concurrency),
	}, nil
}

func openStore(cfg *config.Config, awsCfg *aws.Config) (store, error) {
	switch cfg.DB.Driver {
	case "bolt":
		log.Printf("Opening bolt database at %s", cfg.DB.Path)
		s, err := boltstore.Open(cfg.DB.Path)
		if err != nil {
			return nil, fmt.Errorf("open bolt: %w", err)
		}
		return s, nil
	case "dynamodb":
		log.Printf("Using DynamoDB table %s in %s", cfg.DynamoDB.Table, cfg.AWS.Region)
		return dynamostore.New(dynamodb.NewFromConfig(*awsCfg), cfg.DynamoDB.Table), nil
	default:
		log.Printf("Initializing database at %s", cfg.DB.Path)
		s, err := repository.Open(cfg.DB.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	}
}

func serve(ctx context.Context, cfgPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cfgPath)
	if err != nil {
		log.Printf("Startup failed: %v", err)
		return err
	}
	defer a.store.Close()

	router := api.NewRouter(api.Deps{
		Payments:   a.payments,
		Store:      a.store,
		Pricer:     a.pricer,
		Shipper:    shipping.New(a.cfg.Shipping),
		Reconciler: a.reconciler,
		AdminToken: a.cfg.Admin.Token,
	})
	if a.cfg.Admin.Token == "" {
		log.Printf("WARNING: admin.token is empty, admin API disabled")
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Nature of the Divine storefront")
	log.Printf("Listening on %s", a.cfg.Server.Addr)
	log.Printf("Public base URL: %s", a.cfg.Public.BaseURL)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  POST   /api/v1/orders")
	log.Printf("  GET    /api/v1/orders/{id}")
	log.Printf("  POST   /api/v1/donations")
	log.Printf("  GET    /api/v1/donations/{id}")
	log.Printf("  POST   /api/v1/callbacks/{order,donation}")
	log.Printf("  GET    /api/v1/pricing")
	log.Printf("  GET    /api/v1/shipping/rates")
	log.Printf("  GET    /api/v1/community/{total,leaderboard}")
	log.Printf("  *      /api/v1/admin/...")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server failed: %v", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func reconcile(ctx context.Context, cfgPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cfgPath)
	if err != nil {
		log.Printf("Startup failed: %v", err)
		return err
	}
	defer a.store.Close()

	log.Printf("Reconciling PENDING payments older than %s", a.cfg.Reconcile.Window)
	result, err := a.reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
