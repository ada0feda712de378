package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dtroode/mdpublish/internal/api/http/handler"
	"github.com/dtroode/mdpublish/internal/api/http/router"
	httpServer "github.com/dtroode/mdpublish/internal/api/http/server"
	"github.com/dtroode/mdpublish/internal/config"
	"github.com/dtroode/mdpublish/internal/dispatch"
	"github.com/dtroode/mdpublish/internal/logger"
	"github.com/dtroode/mdpublish/internal/model"
	"github.com/dtroode/mdpublish/internal/provider/dropbox"
	"github.com/dtroode/mdpublish/internal/repository"
	"github.com/dtroode/mdpublish/internal/server"
	"github.com/dtroode/mdpublish/internal/service"
	storage "github.com/dtroode/mdpublish/internal/storage/minio"
	"github.com/dtroode/mdpublish/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	// one lease per worker plus headroom for inline syncs on OAuth callbacks
	backend, err := repository.Open(ctx, cfg.StoreURL, repository.WithLeases(cfg.Sync.Workers+4))
	if err != nil {
		logger.Fatal("failed to initialize store", "error", err)
	}
	defer backend.Close()
	logger.Info("store ready", "backend", backend.Kind)

	providers := dropbox.NewFactory(dropbox.Options{
		APIURL:     cfg.Dropbox.APIURL,
		ContentURL: cfg.Dropbox.ContentURL,
		MaxRetries: cfg.Sync.MaxRetries,
		BaseDelay:  cfg.Sync.RetryBaseDelay,
		MaxDelay:   cfg.Sync.RetryMaxDelay,
	})

	syncOpts := []service.SyncOption{service.WithPageTimeout(cfg.Sync.PageTimeout)}
	if cfg.Mirror.Enabled() {
		mirror, err := storage.Dial(ctx, cfg.Mirror.Endpoint, cfg.Mirror.AccessKey, cfg.Mirror.SecretKey, cfg.Mirror.Bucket, cfg.Mirror.UseSSL)
		if err != nil {
			logger.Fatal("failed to initialize mirror", "error", err)
		}
		syncOpts = append(syncOpts, service.WithMirror(mirror))
	}

	syncService := service.NewSync(backend.Credentials, backend.Cursors, providers, backend.Locker, logger, syncOpts...)
	dispatcher := dispatch.New(syncService, cfg.Sync.Workers, logger)

	authorizer := dropbox.NewAuthenticator(
		cfg.Dropbox.AppKey,
		cfg.Dropbox.AppSecret,
		strings.TrimRight(cfg.HTTP.PublicURL, "/")+"/oauth_callback",
		cfg.Dropbox.AuthURL,
		cfg.Dropbox.TokenURL,
	)
	authService := service.NewAuth(authorizer, token.NewState(cfg.SessionSecret), backend.Credentials, logger)

	srv := registerHTTPServer(cfg, logger, backend, dispatcher, authService, syncService)
	sl := server.NewSecurityLayer(cfg.HTTP.EnableHTTPS, cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address())
		if err := s.Start(sl); err != nil {
			logger.Error("failed to start server", "error", err)
			stop()
		}
	}(srv)

	if cfg.Sync.OnStartup {
		n, err := dispatcher.EnqueueAll(ctx, backend.Credentials)
		if err != nil {
			logger.Error("failed to schedule startup sync", "error", err)
		} else {
			logger.Info("scheduled startup sync", "users", n)
		}
	}

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", srv.Address())
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("error waiting for running syncs", "error", err)
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}

func registerHTTPServer(
	cfg *config.Config,
	logger *logger.Logger,
	backend *repository.Backend,
	dispatcher *dispatch.Dispatcher,
	authService *service.Auth,
	syncService *service.Sync,
) *httpServer.HTTPServer {
	gin.SetMode(gin.ReleaseMode)

	r := router.New(
		handler.NewWebhook(cfg.Dropbox.AppSecret, dispatcher, logger),
		handler.NewAuth(authService, syncService, strings.HasPrefix(cfg.HTTP.PublicURL, "https://"), logger),
		handler.NewHealth(backend),
		logger,
	)

	return httpServer.NewHTTPServer(r.Register(), cfg.HTTP.Address)
}
