// Package server wires storage, the credential vault, platform adapters and
// services together, and runs the HTTP and gRPC surfaces plus the optional
// dispatch ticker until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/cryptox"
	"github.com/dmitrijs2005/crosspost/internal/logging"
	"github.com/dmitrijs2005/crosspost/internal/server/config"
	"github.com/dmitrijs2005/crosspost/internal/server/httpapi"
	"github.com/dmitrijs2005/crosspost/internal/server/media"
	"github.com/dmitrijs2005/crosspost/internal/server/oauthstate"
	"github.com/dmitrijs2005/crosspost/internal/server/platforms"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/crosspost/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/crosspost/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	dispatcher *services.Dispatcher
	httpServer *httpapi.Server
	grpcServer *gs.GRPCServer
	closers    []func() error
}

// NewLogger selects the logging backend from configuration.
func NewLogger(c *config.Config) (logging.Logger, error) {
	switch c.LogFormat {
	case "zap":
		return logging.NewZapLogger(logging.ZapOptions{Level: c.LogLevel, Path: c.LogPath})
	case "", "slog":
		return logging.NewJSONSlogLogger(os.Stdout, c.LogLevel), nil
	}
	return nil, fmt.Errorf("unknown log format %q", c.LogFormat)
}

// NewVault builds the credential vault. Without a key it runs in
// pass-through mode in development and refuses to start in production.
func NewVault(ctx context.Context, c *config.Config, logger logging.Logger) (*cryptox.Vault, error) {
	vault, err := cryptox.NewVault(c.EncryptionKey)
	if err != nil {
		return nil, err
	}
	if !vault.Enabled() {
		if c.IsProduction() {
			return nil, fmt.Errorf("%w: encryption_key must be set in production", ErrVaultRequired)
		}
		logger.Warn(ctx, "credential vault has no key, tokens are stored in plaintext (development only)")
	}
	return vault, nil
}

// ErrVaultRequired is returned by NewVault in production without a key.
var ErrVaultRequired = errors.New("credential vault key required")

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := NewLogger(c)
	if err != nil {
		return nil, err
	}

	vault, err := NewVault(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app := &App{config: c, logger: logger, db: db}
	app.closers = append(app.closers, db.Close)

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	store, err := media.NewS3Store(ctx, media.S3Options{
		Region:       c.S3Region,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
		PresignTTL:   c.S3PresignTTL,
	})
	if err != nil {
		app.close()
		return nil, err
	}

	adapters := platforms.NewDefaultRegistry(platforms.Options{Timeout: c.PlatformTimeout, Media: store})
	states := app.stateStore(ctx)

	accountService := services.NewAccountService(db, rm, c, adapters, vault, logger)
	app.dispatcher = services.NewDispatcher(db, rm, c, adapters, vault, logger)

	handler := httpapi.NewHandler(httpapi.Services{
		Posts:      services.NewPostService(db, rm, c, logger),
		Review:     services.NewReviewService(db, rm, logger),
		Accounts:   accountService,
		Connect:    services.NewConnectService(accountService, adapters, states, c, logger),
		Dispatcher: app.dispatcher,
		Analytics:  services.NewAnalyticsService(db, rm, adapters, vault, logger),
		Media:      store,
	}, logger)

	app.httpServer = httpapi.NewServer(c.HTTPAddr, httpapi.NewRouter(handler, c), logger)
	app.grpcServer = gs.NewGRPCServer(c.GRPCAddr, logger, app.dispatcher, c.CronSecret)

	return app, nil
}

// stateStore uses Redis when configured so pending authorizations survive
// restarts and are shared between replicas.
func (app *App) stateStore(ctx context.Context) oauthstate.Store {
	if app.config.RedisAddr == "" {
		app.logger.Info(ctx, "oauth state kept in memory")
		return oauthstate.NewMemoryStore()
	}
	rc := oauthstate.NewRedisClient(app.config.RedisAddr, app.config.RedisPassword, app.config.RedisDB)
	app.closers = append(app.closers, rc.Close)
	return oauthstate.NewRedisStore(rc)
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error(context.Background(), "close", "error", err)
		}
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpcServer.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpServer.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// runDispatchLoop is the in-process trigger. It calls the same entry point
// as the external triggers.
func (app *App) runDispatchLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	app.logger.Info(ctx, "dispatch ticker started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum, err := app.dispatcher.RunDueBatch(ctx)
			if err != nil {
				app.logger.Error(ctx, "dispatch run failed", "error", err)
				continue
			}
			if sum.Processed+sum.Skipped+sum.Reconciled > 0 {
				app.logger.Info(ctx, "dispatch run", "processed", sum.Processed, "succeeded", sum.Succeeded,
					"failed", sum.Failed, "skipped", sum.Skipped, "reconciled", sum.Reconciled)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.close()

	app.logger.Info(ctx, "Starting app...", "environment", app.config.Environment)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.DispatchInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.runDispatchLoop(ctx, app.config.DispatchInterval)
		}()
	}

	wg.Wait()

	app.logger.Info(context.Background(), "App stopped")
}
