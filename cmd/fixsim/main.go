// Package main runs the order lifecycle engine: one FIX session per
// configured mnemonic, a scheduler per session generating a random trading
// workload, and an HTTP surface for inspection.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/true-markets/fixsim/auth"
	"github.com/true-markets/fixsim/env"
	"github.com/true-markets/fixsim/run"
	"github.com/true-markets/fixsim/session"
)

func main() {

	cfg := configure()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Stderr.WriteString(err.Error())
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cxl := context.WithCancel(context.Background())
	var shutdown sync.WaitGroup

	var rdb *redis.Client
	if cfg.redisAddress != "" {
		rdb = redis.NewClient(
			&redis.Options{
				Addr: cfg.redisAddress,
			},
		)
	}

	manager := run.NewManager(
		cfg.policy,
		run.Events{
			OnSessionReady: func(key string) {
				logger.Info("session ready", zap.String("session", key))
			},
			OnSessionDown: func(key string, reason session.DownReason) {
				logger.Warn("session down",
					zap.String("session", key),
					zap.String("reason", reason.String()),
				)
			},
		},
		rdb,
		logger,
	)

	for _, credentials := range cfg.credentials {

		sessionCfg := session.Config{
			SenderCompID: credentials.Mnemonic + "_8",
			TargetCompID: cfg.targetCompID,
			Credentials:  credentials,
		}
		if err := manager.AddSession(ctx, sessionCfg, dialer(cfg)); err != nil {
			os.Stderr.WriteString(err.Error())
			os.Exit(1)
		}
		key := sessionCfg.Key()

		//
		// The party ID for order requests comes from the REST lookup. The
		// engine still trades without it.
		//
		if cfg.restAddress != "" {
			clientID, err := auth.NewClient(cfg.restAddress, *credentials).ClientID(ctx)
			if err != nil {
				logger.Warn("client ID lookup failed",
					zap.String("mnemonic", credentials.Mnemonic),
					zap.Error(err),
				)
			} else {
				manager.Book(key).SetClientID(clientID)
			}
		}

		shutdown.Add(1)
		go run.NewScheduler(key, cfg.instrument, manager, logger).Run(ctx, &shutdown)
	}

	shutdown.Add(1)
	go manager.Run(ctx, &shutdown)

	handler := &Handler{manager: manager}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	handler.Bind(router)
	srv := &http.Server{
		Addr:    cfg.httpAddress,
		Handler: router,
	}
	go srv.ListenAndServe()

	<-env.Signal()
	fmt.Println("")
	cxl()
	shutdown.Wait()
	srv.Shutdown(context.Background())
	fmt.Println("done")

}

type config struct {
	fixAddress   string
	useTLS       bool
	targetCompID string
	credentials  []*auth.Credentials
	restAddress  string
	redisAddress string
	httpAddress  string
	policy       run.RecoveryPolicy
	instrument   run.Instrument
}

// configure reads the environment, optionally preloaded from the file named
// by CONFIG.
func configure() *config {

	if filename := os.Getenv("CONFIG"); filename != "" {
		if err := env.Load(filename); err != nil {
			os.Stderr.WriteString(err.Error())
			os.Exit(1)
		}
	}

	cfg := &config{
		fixAddress:   env.MustHave("FIX_ADDRESS"),
		useTLS:       os.Getenv("FIX_TLS") == "Y",
		targetCompID: env.MustHave("FIX_TARGET"),
		restAddress:  os.Getenv("REST_ADDRESS"),
		redisAddress: os.Getenv("REDIS"),
		httpAddress:  env.MustHave("HTTP"),
	}
	if os.Getenv("RECONNECT") == "Y" {
		cfg.policy = run.RecoverReconnect
	}

	for _, mnemonic := range strings.Split(env.MustHave("MNEMONICS"), ",") {
		mnemonic = strings.TrimSpace(mnemonic)
		if mnemonic == "" {
			continue
		}
		cfg.credentials = append(cfg.credentials, &auth.Credentials{
			APIKeyID:     env.MustHave(mnemonic + "_KEY_ID"),
			APIKeySecret: env.MustHave(mnemonic + "_KEY_SECRET"),
			Mnemonic:     mnemonic,
		})
	}
	if len(cfg.credentials) == 0 {
		os.Stderr.WriteString("no mnemonics configured")
		os.Exit(1)
	}

	cfg.instrument = run.Instrument{
		Symbol:         valueOr("SYMBOL", "BTC-PYUSD"),
		ReferencePrice: decimalOr("REFERENCE_PRICE", "10000"),
		QuoteIncrement: decimalOr("QUOTE_INCREMENT", "0.5"),
		BaseIncrement:  decimalOr("BASE_INCREMENT", "0.0001"),
	}
	return cfg
}

func valueOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func decimalOr(name, fallback string) decimal.Decimal {
	v := os.Getenv(name)
	if v == "" {
		v = fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		os.Stderr.WriteString("bad " + name)
		os.Exit(1)
	}
	return d
}

// dialer opens the FIX transport, with TLS when configured.
func dialer(cfg *config) run.Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		if cfg.useTLS {
			return tls.Dial("tcp", cfg.fixAddress, nil)
		}
		var d net.Dialer
		return d.DialContext(ctx, "tcp", cfg.fixAddress)
	}
}
