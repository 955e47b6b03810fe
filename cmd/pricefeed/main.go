// Package main runs the price feed service: it builds the configured feed
// trees, refreshes them on a schedule, records snapshots and serves prices
// over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/R3E-Network/feed_layer/internal/app/httpapi"
	"github.com/R3E-Network/feed_layer/internal/app/services/pricefeed"
	"github.com/R3E-Network/feed_layer/internal/app/storage"
	"github.com/R3E-Network/feed_layer/internal/app/storage/memory"
	"github.com/R3E-Network/feed_layer/internal/app/storage/postgres"
	"github.com/R3E-Network/feed_layer/internal/app/system"
	"github.com/R3E-Network/feed_layer/internal/cache"
	"github.com/R3E-Network/feed_layer/internal/chain"
	"github.com/R3E-Network/feed_layer/internal/config"
	"github.com/R3E-Network/feed_layer/internal/fixed"
	"github.com/R3E-Network/feed_layer/internal/httputil"
	"github.com/R3E-Network/feed_layer/internal/platform/migrations"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional .env file")
	feedsPath := flag.String("feeds", "", "feed configuration file (overrides FEEDS_CONFIG)")
	addr := flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	once := flag.Bool("once", false, "update every feed once, print prices and exit")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	settings, err := config.LoadSettings(config.WithFeedsConfig(*feedsPath), config.WithHTTPAddr(*addr))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New("pricefeed", logger.Options{Level: settings.LogLevel, Format: settings.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings, *once, log); err != nil {
		log.WithError(err).Error("price feed service failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, settings *config.Settings, once bool, log *logger.Logger) error {
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	fetcher, closer, err := newFetcher(ctx, settings, log)
	if err != nil {
		return err
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	chains, chainClosers, err := newChains(ctx, settings, log)
	if err != nil {
		return err
	}
	closers = append(closers, chainClosers...)

	feedConfigs, err := config.LoadFeedsOrDefault(settings.FeedsConfig)
	if err != nil {
		return err
	}

	store, closer, err := newStore(ctx, settings, log)
	if err != nil {
		return err
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	svc, err := pricefeed.NewFromConfig(feedConfigs, pricefeed.Dependencies{
		Fetcher: fetcher,
		Chains:  chains,
		Logger:  log.Named("feeds"),
	}, store)
	if err != nil {
		return err
	}
	log.WithField("feeds", len(svc.Names())).Info("feed trees built")

	if once {
		return printOnce(ctx, svc, settings.RefreshTimeout)
	}

	refresher, err := pricefeed.NewRefresher(svc, settings.RefreshSchedule, settings.RefreshTimeout, log.Named("refresher"))
	if err != nil {
		return err
	}
	server := httpapi.NewServer(settings.HTTPAddr, httpapi.NewHandler(svc, log.Named("http"), settings.CORSOrigins...), log.Named("http"))

	manager := system.NewManager(log)
	manager.Register(refresher, server)
	if err := manager.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}
	log.Info("price feed service stopped")
	return nil
}

func newFetcher(ctx context.Context, settings *config.Settings, log *logger.Logger) (httputil.Fetcher, io.Closer, error) {
	client := httputil.NewClient(httputil.ClientConfig{
		Timeout:   settings.FetchTimeout,
		RateLimit: settings.FetchRateLimit,
		Burst:     settings.FetchBurst,
	}, log.Named("http-client"))

	if settings.RedisAddr == "" {
		return cache.NewFetcher(client, cache.NewMemoryStore(), settings.CacheTTL, log.Named("fetch-cache")), nil, nil
	}
	redisStore, err := cache.NewRedisStore(ctx, cache.RedisConfig{
		Addr:     settings.RedisAddr,
		Password: settings.RedisPassword,
		DB:       settings.RedisDB,
		Prefix:   "feed_layer:",
	})
	if err != nil {
		return nil, nil, err
	}
	log.WithField("addr", settings.RedisAddr).Info("using redis response cache")
	return cache.NewFetcher(client, redisStore, settings.CacheTTL, log.Named("fetch-cache")), redisStore, nil
}

func newChains(ctx context.Context, settings *config.Settings, log *logger.Logger) (map[string]pricefeed.ChainReader, []io.Closer, error) {
	chains := make(map[string]pricefeed.ChainReader)
	var closers []io.Closer

	if settings.EVMRPCURL != "" {
		reader, client, err := chain.DialEVM(ctx, settings.EVMRPCURL)
		if err != nil {
			return nil, nil, err
		}
		chains["evm"] = reader
		closers = append(closers, closerFunc(func() error { client.Close(); return nil }))
	} else {
		log.Warn("EVM_RPC_URL not set; uniswap and vault feeds on evm are unavailable")
	}

	if settings.NeoRPCURL != "" {
		client, err := chain.NewNeoClient(chain.NeoConfig{RPCURL: settings.NeoRPCURL, Timeout: settings.FetchTimeout})
		if err != nil {
			return nil, nil, err
		}
		chains["neo"] = client
	}
	return chains, closers, nil
}

func newStore(ctx context.Context, settings *config.Settings, log *logger.Logger) (storage.SnapshotStore, io.Closer, error) {
	if settings.DatabaseURL == "" {
		log.WithField("retention", settings.SnapshotRetention).Info("using in-memory snapshot store")
		return memory.NewBounded(settings.SnapshotRetention), nil, nil
	}
	db, err := postgres.Open(ctx, settings.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("using postgres snapshot store")
	return postgres.New(db), db, nil
}

func printOnce(ctx context.Context, svc *pricefeed.Service, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	updateErr := svc.UpdateAll(ctx)
	for _, name := range svc.Names() {
		f, err := svc.Get(name)
		if err != nil {
			return err
		}
		price := f.CurrentPrice()
		if price == nil {
			fmt.Printf("%-20s unavailable\n", name)
			continue
		}
		fmt.Printf("%-20s %s\n", name, fixed.String(price, f.PriceFeedDecimals()))
	}
	return updateErr
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
