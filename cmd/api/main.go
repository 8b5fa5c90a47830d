package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"wallet-server/config"
	"wallet-server/internal/apikey"
	"wallet-server/internal/btcwallet"
	"wallet-server/internal/cache"
	"wallet-server/internal/eventsvc"
	"wallet-server/internal/httpapi"
	"wallet-server/internal/invoicesvc"
	"wallet-server/internal/jwks"
	"wallet-server/internal/lnurl"
	"wallet-server/internal/lnurlclient"
	"wallet-server/internal/metrics"
	"wallet-server/internal/nodeadapter"
	"wallet-server/internal/nodeadapter/clngrpc"
	"wallet-server/internal/nodeadapter/clnrest"
	"wallet-server/internal/nodeadapter/lnd"
	"wallet-server/internal/paymentsvc"
	"wallet-server/internal/store"
	"wallet-server/internal/walletsvc"
	"wallet-server/pkg/logger"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

var cfg config.EngineConfig

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := logger.Init(logger.GetEnv()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filename)
	configPath := config.Path(root).Join("config.toml", "..", "..")
	if err := config.Load(configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisCfg cache.Config
	if err := copier.Copy(&redisCfg, &cfg.Redis); err != nil {
		return fmt.Errorf("failed to copy cache config: %w", err)
	}
	if err := cache.Init(redisCfg); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cache.Close()

	var dbCfg store.Config
	if err := copier.Copy(&dbCfg, &cfg.Database); err != nil {
		return fmt.Errorf("failed to copy database config: %w", err)
	}
	db, err := store.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database connection: %w", err)
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("database connected and migrated")

	wallets := store.NewWalletRepository(db)
	lnAddresses := store.NewLnAddressRepository(db)
	btcAddresses := store.NewBtcAddressRepository(db)
	invoices := store.NewInvoiceRepository(db)
	payments := store.NewPaymentRepository(db)
	btcOutputs := store.NewBtcOutputRepository(db)
	apiKeys := store.NewApiKeyRepository(db)

	node, err := newNodeAdapter(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize node adapter: %w", err)
	}

	seed, err := hex.DecodeString(cfg.BtcWalletSeedHex)
	if err != nil || len(seed) == 0 {
		return errors.New("WALLET_BTC_SEED must be set to a hex-encoded BIP-32 seed")
	}
	btcWallet, err := btcwallet.NewWallet(seed, cfg.BitcoinNetwork)
	if err != nil {
		return fmt.Errorf("failed to initialize treasury wallet: %w", err)
	}

	m := metrics.New()

	events := eventsvc.New(invoices, payments, btcOutputs, btcAddresses, db.Pool, m)
	invoiceSvc := invoicesvc.New(invoices, node, events, time.Duration(cfg.InvoiceExpirySeconds)*time.Second, m)
	lnurlClient := lnurlclient.New(1)
	paymentSvc := paymentsvc.New(wallets, payments, invoices, lnAddresses, btcAddresses, node, btcWallet, lnurlClient, events, cfg.Domain, cfg.FeeBuffer, cfg.BitcoinNetwork, m)
	walletSvc := walletsvc.New(wallets, lnAddresses, btcAddresses, btcWallet, cfg.Domain, m)
	lnurlSvc := lnurl.New(walletSvc, invoiceSvc, cfg.Domain)
	apiKeySvc := apikey.New(apiKeys)

	var jwksSvc *jwks.Service
	if cfg.JWT.JWKSURL != "" {
		jwksSvc = jwks.New(cfg.JWT.JWKSURL, cfg.JWT.JWKSRefreshInterval)
		if err := jwksSvc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start jwks refresher: %w", err)
		}
	} else {
		logger.Warn("WALLET_JWT_JWKS_URL not set, /v1 routes are unauthenticated")
	}

	handler := httpapi.NewHandler(walletSvc, invoiceSvc, paymentSvc, apiKeySvc, lnurlSvc, jwksSvc, m)
	router := handler.NewRouter()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newNodeAdapter(cfg config.EngineConfig) (nodeadapter.Client, error) {
	switch cfg.LnProvider {
	case "lnd":
		var c lnd.Config
		if err := copier.Copy(&c, &cfg.Lnd); err != nil {
			return nil, err
		}
		return lnd.NewClient(c)
	case "clngrpc":
		var c clngrpc.Config
		if err := copier.Copy(&c, &cfg.ClnGrpc); err != nil {
			return nil, err
		}
		return clngrpc.NewClient(c)
	case "clnrest":
		var c clnrest.Config
		if err := copier.Copy(&c, &cfg.ClnRest); err != nil {
			return nil, err
		}
		return clnrest.NewClient(c)
	default:
		return nil, fmt.Errorf("unsupported ln_provider %q", cfg.LnProvider)
	}
}
