// Package config provides YAML-based configuration shared by the analyzer CLI
// and the reference backend.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/genai-analyzer/demo/internal/models"
	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	// Client configuration (analyzer CLI talking to a backend)
	Client ClientConfig `yaml:"client"`

	// Server configuration (reference backend)
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// File intake rules, shared by the CLI and the upload endpoint
	Intake IntakeConfig `yaml:"intake"`

	// Simulated run timing
	Run RunConfig `yaml:"run"`

	// Run options a new session starts with
	Defaults models.RunConfiguration `yaml:"defaults"`

	// Advanced options
	Advanced AdvancedConfig `yaml:"advanced"`
}

// ClientConfig contains API client settings
type ClientConfig struct {
	BaseURL               string `yaml:"base_url"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	StreamRetryMillis     int    `yaml:"stream_retry_ms"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                   int    `yaml:"port"`
	BindAddress            string `yaml:"bind_address"`
	EnableCORS             bool   `yaml:"enable_cors"`
	AllowOrigins           string `yaml:"allow_origins"`
	ReadTimeout            int    `yaml:"read_timeout_seconds"`
	WriteTimeout           int    `yaml:"write_timeout_seconds"`
	IdleTimeout            int    `yaml:"idle_timeout_seconds"`
	BodyLimit              string `yaml:"body_limit"`
	GridChunking           bool   `yaml:"grid_chunking"`
	StageDelayMillis       int    `yaml:"stage_delay_ms"`
	JobTimeoutMinutes      int    `yaml:"job_timeout_minutes"`
	CleanupIntervalMinutes int    `yaml:"cleanup_interval_minutes"`
	EnableCompression      bool   `yaml:"enable_compression"`
	CompressionLevel       int    `yaml:"compression_level"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `yaml:"data_directory"`
	UploadsDirectory string `yaml:"uploads_directory"`
	ExportDirectory  string `yaml:"export_directory"`
	HistoryPath      string `yaml:"history_path"`
	EnableHistory    bool   `yaml:"enable_history"`
}

// IntakeConfig contains file validation rules
type IntakeConfig struct {
	MaxFileSizeMB int      `yaml:"max_file_size_mb"`
	AcceptedTypes []string `yaml:"accepted_types"`
}

// RunConfig contains simulated run timing
type RunConfig struct {
	TickMillis           int   `yaml:"tick_ms"`
	StageDurationsMillis []int `yaml:"stage_durations_ms"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `yaml:"log_level"`
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
	DuckDBThreads        int    `yaml:"duckdb_threads"`
	DuckDBMemoryLimit    string `yaml:"duckdb_memory_limit"`
}

// DefaultAcceptedTypes is the intake allow-list.
var DefaultAcceptedTypes = []string{"image/png", "image/jpeg", "image/webp", "application/pdf"}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Client: ClientConfig{
			BaseURL:               "http://localhost:3001",
			RequestTimeoutSeconds: 30,
			StreamRetryMillis:     3000,
		},
		Server: ServerConfig{
			Port:                   3001,
			BindAddress:            "0.0.0.0",
			EnableCORS:             true,
			AllowOrigins:           "*",
			ReadTimeout:            30,
			WriteTimeout:           0,
			IdleTimeout:            120,
			BodyLimit:              "20M",
			GridChunking:           true,
			StageDelayMillis:       400,
			JobTimeoutMinutes:      30,
			CleanupIntervalMinutes: 5,
			EnableCompression:      true,
			CompressionLevel:       5,
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			ExportDirectory:  "./downloads",
			HistoryPath:      "./data/history.duckdb",
			EnableHistory:    true,
		},
		Intake: IntakeConfig{
			MaxFileSizeMB: 10,
			AcceptedTypes: append([]string(nil), DefaultAcceptedTypes...),
		},
		Run: RunConfig{
			TickMillis:           80,
			StageDurationsMillis: append([]int(nil), models.DefaultStageDurations...),
		},
		Defaults: models.DefaultRunConfiguration(),
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			DuckDBThreads:        2,
			DuckDBMemoryLimit:    "256MB",
		},
	}
}

// DefaultPath returns ~/.genai-analyzer/config.yaml, or a relative path when
// the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".genai-analyzer", "config.yaml")
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Unmarshal over the defaults so missing keys keep their default
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# GenAI Analyzer configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that would otherwise fail much later
func (c *AppConfig) Validate() error {
	if len(c.Run.StageDurationsMillis) != models.StageCount {
		return fmt.Errorf("run.stage_durations_ms must list %d durations, got %d",
			models.StageCount, len(c.Run.StageDurationsMillis))
	}
	for i, ms := range c.Run.StageDurationsMillis {
		if ms <= 0 {
			return fmt.Errorf("run.stage_durations_ms[%d] must be positive", i)
		}
	}
	if c.Run.TickMillis <= 0 {
		return fmt.Errorf("run.tick_ms must be positive")
	}
	if c.Intake.MaxFileSizeMB <= 0 {
		return fmt.Errorf("intake.max_file_size_mb must be positive")
	}
	if len(c.Intake.AcceptedTypes) == 0 {
		return fmt.Errorf("intake.accepted_types must not be empty")
	}
	if c.Client.BaseURL == "" {
		return fmt.Errorf("client.base_url must not be empty")
	}
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// API base override
	if base := os.Getenv("ANALYZER_API_BASE"); base != "" {
		c.Client.BaseURL = base
	}

	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override moves every data path along with it
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.HistoryPath = filepath.Join(dataDir, "history.duckdb")
	}

	if exportDir := os.Getenv("ANALYZER_EXPORT_DIR"); exportDir != "" {
		c.Storage.ExportDirectory = exportDir
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative data paths to absolute based on config file
// location. The export directory stays relative to the working directory,
// the way a browser download lands where the user is.
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
	if !filepath.IsAbs(c.Storage.HistoryPath) {
		c.Storage.HistoryPath = filepath.Join(configDir, c.Storage.HistoryPath)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetExportDir returns the directory exports are written to
func (c *AppConfig) GetExportDir() string {
	return c.Storage.ExportDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// MaxFileSize returns the intake size limit in bytes
func (c *AppConfig) MaxFileSize() int64 {
	return int64(c.Intake.MaxFileSizeMB) * 1024 * 1024
}

// StageDurations returns the simulated stage durations
func (c *AppConfig) StageDurations() []time.Duration {
	out := make([]time.Duration, len(c.Run.StageDurationsMillis))
	for i, ms := range c.Run.StageDurationsMillis {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// TickInterval returns the simulated progress tick
func (c *AppConfig) TickInterval() time.Duration {
	return time.Duration(c.Run.TickMillis) * time.Millisecond
}

// RequestTimeout returns the timeout for non-streaming API calls
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Client.RequestTimeoutSeconds) * time.Second
}

// StreamRetry returns the reconnect delay used until the server sends one
func (c *AppConfig) StreamRetry() time.Duration {
	return time.Duration(c.Client.StreamRetryMillis) * time.Millisecond
}

// StageDelay returns how long the reference backend spends per stage
func (c *AppConfig) StageDelay() time.Duration {
	return time.Duration(c.Server.StageDelayMillis) * time.Millisecond
}

// JobTimeout returns how long finished jobs are kept
func (c *AppConfig) JobTimeout() time.Duration {
	return time.Duration(c.Server.JobTimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often finished jobs are swept
func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Server.CleanupIntervalMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		filepath.Dir(c.Storage.HistoryPath),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
