package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/genai-analyzer/demo/internal/api"
	"github.com/genai-analyzer/demo/internal/config"
	"github.com/genai-analyzer/demo/internal/intake"
	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/storage"
	"github.com/genai-analyzer/demo/internal/upload"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// ANALYZER_CONFIG points at a config file, otherwise the per-user default
	configPath := os.Getenv("ANALYZER_CONFIG")
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.SetLevel(cfg.Advanced.LogLevel)
	api.ShowErrorDetails = logging.ParseLevel(cfg.Advanced.LogLevel) == log.DEBUG

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	// Initialize the job pipeline
	jobs := upload.NewManager(fileStore, upload.Options{
		StageDelay:   cfg.StageDelay(),
		GridChunking: cfg.Server.GridChunking,
	})

	// Start background job cleanup
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for range ticker.C {
			jobs.CleanupOldJobs(cfg.JobTimeout())
		}
	}()

	handlers := api.NewHandlers(&api.Dependencies{
		Store: fileStore,
		Jobs:  jobs,
		Rules: intake.Rules{
			MaxSize:  cfg.MaxFileSize(),
			Accepted: cfg.Intake.AcceptedTypes,
		},
		GridChunking: cfg.Server.GridChunking,
		Version:      Version,
		StreamRetry:  cfg.StreamRetry(),
	})

	e := echo.New()
	e.HideBanner = true
	e.Logger = logging.New("Echo")
	api.SetupMiddleware(e)

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health"
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
			return isStream(c) || strings.HasPrefix(path, "/api/upload")
		},
		ErrorMessage: "Request timeout",
	}))

	// Compression middleware
	if cfg.Server.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level:   cfg.Server.CompressionLevel,
			Skipper: isStream,
		}))
	}

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
			AllowOrigins:  origins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, "Last-Event-ID"},
			ExposeHeaders: []string{api.HeaderServerVersion},
		}))
	}

	api.RegisterRoutes(e, handlers)

	// Configure server with settings from the YAML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	grid := "off"
	if cfg.Server.GridChunking {
		grid = "on"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           GenAI Analyzer Reference Backend                ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Grid Chunk: %-45s║\n", grid)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Uploads:   %-46s║\n", cfg.GetUploadDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	e.Logger.Fatal(e.StartServer(s))
}

// isStream matches event-stream requests, which must not be buffered or cut off.
func isStream(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api/stream/") ||
		c.Request().Header.Get("Accept") == "text/event-stream"
}
