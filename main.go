package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "github.com/ekaya-inc/oml2view/pkg/adapters/datasource/sqlite"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
	"github.com/ekaya-inc/oml2view/pkg/config"
	"github.com/ekaya-inc/oml2view/pkg/handlers"
	"github.com/ekaya-inc/oml2view/pkg/logging"
	"github.com/ekaya-inc/oml2view/pkg/mcp"
	"github.com/ekaya-inc/oml2view/pkg/mcp/tools"
	"github.com/ekaya-inc/oml2view/pkg/middleware"
	"github.com/ekaya-inc/oml2view/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("backend", cfg.Store.Backend),
		zap.Int("sample_rows", cfg.Inspector.SampleRows),
		zap.String("views_file", cfg.ViewsFile),
		zap.Bool("mcp_enabled", cfg.MCP.Enabled),
	)

	connManager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:     cfg.Datasource.ConnectionTTLMinutes,
		MaxConnections: cfg.Datasource.MaxConnections,
		PoolMaxConns:   cfg.Datasource.PoolMaxConns,
		PoolMinConns:   cfg.Datasource.PoolMinConns,
	}, logger.Named("datasource"))
	defer connManager.Close()

	factory, err := datasource.NewDatasourceAdapterFactory(cfg.Store.Backend, cfg.Store.AdapterConfig(), connManager)
	if err != nil {
		logger.Fatal("Failed to create datasource adapter factory",
			zap.String("backend", cfg.Store.Backend),
			zap.String("error", logging.SanitizeError(err)))
	}

	views, err := config.LoadViews(cfg.ViewsFile)
	if err != nil {
		logger.Fatal("Failed to load views", zap.Error(err))
	}

	// Services
	catalog := services.NewCatalogService(factory, logger.Named("catalog"))
	inspector := services.NewSchemaInspector(factory, cfg.Inspector.SampleRows, logger.Named("inspector"))
	extractor := services.NewSeriesExtractor(factory, logger.Named("extractor"))
	viewService := services.NewViewService(inspector, views, logger.Named("views"))

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, connManager, logger).RegisterRoutes(mux)
	handlers.NewMeasurementsHandler(catalog, inspector, extractor, viewService, logger).RegisterRoutes(mux)

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewMeasurementServer(cfg.Version, &tools.MeasurementToolDeps{
			Catalog:   catalog,
			Inspector: inspector,
			Extractor: extractor,
			Views:     viewService,
			Backend:   cfg.Store.Backend,
			Logger:    logger.Named("mcp"),
		})
		handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Starting oml2view",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != ""))

		var err error
		if cfg.TLSCertPath != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// newLogger builds a development logger for local environments and a JSON
// production logger otherwise, at the configured level.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logConfig := zap.NewProductionConfig()
	if cfg.Env == "local" || cfg.Env == "dev" {
		logConfig = zap.NewDevelopmentConfig()
	}
	logConfig.Level = zap.NewAtomicLevelAt(level)

	return logConfig.Build()
}
