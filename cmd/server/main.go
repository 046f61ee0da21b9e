package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/snaptext/backend/internal/api"
	"github.com/snaptext/backend/internal/config"
	"github.com/snaptext/backend/internal/jobs"
	"github.com/snaptext/backend/internal/ocr"
	"github.com/snaptext/backend/internal/ocr/tesseract"
	"github.com/snaptext/backend/internal/search"
	"github.com/snaptext/backend/internal/storage"
	"github.com/snaptext/backend/internal/upload"
	"github.com/snaptext/backend/internal/web"
	"github.com/snaptext/backend/internal/worker"
	"golang.org/x/sync/errgroup"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath, err := resolveConfigPath()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	// Load YAML configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// Upload directory is created on startup
	if err := cfg.EnsureDirectories(); err != nil {
		logger.Error("failed to create directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, configPath, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, configPath string, logger *slog.Logger) error {
	mode, err := upload.ParseMode(cfg.Upload.Mode)
	if err != nil {
		return err
	}
	policy, err := worker.ParseFailurePolicy(cfg.Worker.OnFailure)
	if err != nil {
		return err
	}

	// Initialize storage
	store, local, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer closeStore()

	// The engine is loaded once and owned by the worker from here on
	engine, err := openEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize ocr engine: %w", err)
	}

	registry := jobs.NewRegistry()
	queue := jobs.NewQueue()
	allocator := jobs.NewAllocator(registry, jobs.WithAttempts(cfg.Worker.AllocatorAttempts))
	intake := upload.NewManager(registry, queue, allocator, store, upload.Policy{
		Mode:         mode,
		AllowedTypes: cfg.AllowedTypeList(),
	}, logger)

	workerOpts := []worker.Option{
		worker.WithLanguage(cfg.OCR.Language),
		worker.WithFailurePolicy(policy),
		worker.WithLogger(logger),
	}

	deps := &api.Dependencies{
		Intake:        intake,
		Jobs:          registry,
		Queue:         queue,
		PublicBaseURL: cfg.GetPublicBaseURL(),
		Version:       Version,
		Logger:        logger,
	}

	if cfg.Search.Enabled {
		index, err := search.Open(cfg.Search.DatabasePath, cfg.Search.Threads, logger)
		if err != nil {
			_ = engine.Close()
			return fmt.Errorf("open search index: %w", err)
		}
		defer index.Close()
		workerOpts = append(workerOpts, worker.WithIndexer(index))
		deps.Search = index
	}

	ocrWorker := worker.New(queue, registry, engine, workerOpts...)
	deps.Worker = ocrWorker

	e := newEcho(cfg, logger)
	api.RegisterRoutes(e, api.NewHandlers(deps))

	// Uploaded images are served back under the public prefix
	if local != nil {
		e.Static(local.PublicPath(), local.Dir())
	}

	if err := web.RegisterStaticRoutes(e); err != nil {
		logger.Warn("failed to register pages", "error", err)
	}

	// Configure server with settings from YAML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, engine.Name(), mode)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ocrWorker.Run(gctx)
	})
	g.Go(func() error {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func resolveConfigPath() (string, error) {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p, nil
	}
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exePath), "snaptext.yaml"), nil
}

// openStore returns the configured store, the local store to serve
// statically (nil for bucket storage) and a cleanup func.
func openStore(ctx context.Context, cfg *config.AppConfig) (storage.Store, *storage.LocalStore, func(), error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case config.BackendGCS:
		gcs, err := storage.NewGCSStore(ctx, cfg.Storage.GCSBucket, cfg.Storage.GCSPrefix, cfg.Storage.GCSPublicBaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return gcs, nil, func() { _ = gcs.Close() }, nil
	default:
		local, err := storage.NewLocalStore(cfg.GetUploadDir(), cfg.Storage.PublicPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return local, local, func() {}, nil
	}
}

func openEngine(cfg *config.AppConfig, logger *slog.Logger) (ocr.Engine, error) {
	ocrCfg := ocr.Config{
		Tesseract:   cfg.OCR.TesseractPath,
		Language:    cfg.OCR.Language,
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         cfg.OCR.PSM,
	}

	var engine ocr.Engine
	switch strings.ToLower(cfg.OCR.Engine) {
	case config.EngineCLI:
		engine = ocr.NewCLIEngine(ocrCfg, logger)
	default:
		t, err := tesseract.New(ocrCfg)
		if err != nil {
			return nil, err
		}
		engine = t
	}
	return ocr.WithMaxDimension(engine, cfg.OCR.MaxImageDimension), nil
}

func newEcho(cfg *config.AppConfig, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupMiddleware(e, logger, cfg.SlogLevel() == slog.LevelDebug)

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/api/jobs/") ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/api/ws/") ||
				path == "/upload"
		},
		ErrorMessage: "Request timeout",
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
	return e
}

func printBanner(cfg *config.AppConfig, configPath, engine string, mode upload.Mode) {
	storageDesc := cfg.GetUploadDir()
	if strings.ToLower(cfg.Storage.Backend) == config.BackendGCS {
		storageDesc = "gs://" + cfg.Storage.GCSBucket
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           SnapText OCR Server                             ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  OCR:        %-45s║\n", engine+" ("+cfg.OCR.Language+")")
	fmt.Printf("║  Uploads:    %-45s║\n", string(mode))
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Storage:   %-46s║\n", storageDesc)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
}
