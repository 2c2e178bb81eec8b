package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"

	"xdao.co/titlegate/docstore"
	"xdao.co/titlegate/internal/config"
	"xdao.co/titlegate/internal/httpapi"
	"xdao.co/titlegate/ledger"
	"xdao.co/titlegate/logger"
	"xdao.co/titlegate/metrics"
	"xdao.co/titlegate/storage"
	"xdao.co/titlegate/storage/casregistry"
	"xdao.co/titlegate/titles"

	_ "xdao.co/titlegate/storage/grpccas"
	_ "xdao.co/titlegate/storage/ipfs"
	_ "xdao.co/titlegate/storage/localfs"
)

func main() {
	fs := flag.NewFlagSet("titlegate", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("TITLEGATE_CONFIG"), "YAML config file (optional)")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("titlegate stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	translator, err := cfg.Translator()
	if err != nil {
		return err
	}
	m := metrics.New()

	ledgers := ledger.NewManager(cfg.LedgerOptions(), log, m)
	defer ledgers.Close()

	docs := docstore.New(func(context.Context) (storage.CAS, func() error, error) {
		return cfg.ContentStore.Open(casregistry.UsageGateway, "")
	}, log, m, docstore.Options{Timeout: cfg.ContentStore.Timeout})
	defer docs.Close()

	svc := titles.NewService(ledgers, docs, log, titles.WithTranslator(translator))

	users := make([]httpapi.User, 0, len(cfg.Auth.Users))
	for _, u := range cfg.Auth.Users {
		users = append(users, httpapi.User{Username: u.Username, PasswordHash: u.PasswordHash, Org: u.Org})
	}
	auth, err := httpapi.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, users)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	var limiter *httpapi.RateLimiter
	if cfg.RateLimitEnabled() {
		limiter = httpapi.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, 0)
	} else {
		log.Warn("rate limiting disabled")
	}
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Titles:       svc,
		Auth:         auth,
		Limiter:      limiter,
		Metrics:      m,
		Log:          log,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			"addr", srv.Addr,
			"channel", cfg.Ledger.Channel,
			"chaincode", cfg.Ledger.Chaincode,
			"mspId", cfg.Ledger.MSPID,
			"peer", cfg.Ledger.PeerEndpoint,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
