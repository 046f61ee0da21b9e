// Package config provides YAML-based configuration management.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the root YAML configuration structure
type AppConfig struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Upload acceptance rules
	Upload UploadConfig `yaml:"upload"`

	// OCR engine configuration
	OCR OCRConfig `yaml:"ocr"`

	// Worker behaviour
	Worker WorkerConfig `yaml:"worker"`

	// Result search index
	Search SearchConfig `yaml:"search"`

	// Advanced options
	Advanced AdvancedConfig `yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port          int    `yaml:"port"`
	BindAddress   string `yaml:"bindAddress"`
	PublicBaseURL string `yaml:"publicBaseURL"`
	EnableCORS    bool   `yaml:"enableCORS"`
	AllowOrigins  string `yaml:"allowOrigins"`
	ReadTimeout   int    `yaml:"readTimeoutSeconds"`
	WriteTimeout  int    `yaml:"writeTimeoutSeconds"`
	IdleTimeout   int    `yaml:"idleTimeoutSeconds"`
	BodyLimit     string `yaml:"bodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	Backend          string `yaml:"backend"`
	UploadsDirectory string `yaml:"uploadsDirectory"`
	PublicPath       string `yaml:"publicPath"`
	GCSBucket        string `yaml:"gcsBucket"`
	GCSPrefix        string `yaml:"gcsPrefix"`
	GCSPublicBaseURL string `yaml:"gcsPublicBaseURL"`
}

// UploadConfig controls which submissions are accepted
type UploadConfig struct {
	Mode         string `yaml:"mode"`
	AllowedTypes string `yaml:"allowedTypes"`
}

// OCRConfig selects and tunes the recognition engine
type OCRConfig struct {
	Engine            string `yaml:"engine"`
	Language          string `yaml:"language"`
	TesseractPath     string `yaml:"tesseractPath"`
	TessdataDir       string `yaml:"tessdataDir"`
	PSM               int    `yaml:"psm"`
	MaxImageDimension int    `yaml:"maxImageDimension"`
}

// WorkerConfig contains queue worker settings
type WorkerConfig struct {
	OnFailure         string `yaml:"onFailure"`
	AllocatorAttempts int    `yaml:"allocatorAttempts"`
}

// SearchConfig contains the DuckDB result index settings
type SearchConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"databasePath"`
	Threads      int    `yaml:"threads"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `yaml:"logLevel"`
	EnableRequestLogging bool   `yaml:"enableRequestLogging"`
}

const (
	BackendLocal = "local"
	BackendGCS   = "gcs"

	EngineGosseract = "gosseract"
	EngineCLI       = "cli"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:          8123,
			BindAddress:   "0.0.0.0",
			PublicBaseURL: "",
			EnableCORS:    true,
			AllowOrigins:  "*",
			ReadTimeout:   30,
			WriteTimeout:  30,
			IdleTimeout:   120,
			BodyLimit:     "64M",
		},
		Storage: StorageConfig{
			Backend:          BackendLocal,
			UploadsDirectory: "./uploads",
			PublicPath:       "/upload",
		},
		Upload: UploadConfig{
			Mode:         "multi",
			AllowedTypes: "jpeg,jpg,png",
		},
		OCR: OCRConfig{
			Engine:        EngineGosseract,
			Language:      "eng",
			TesseractPath: "tesseract",
		},
		Worker: WorkerConfig{
			OnFailure:         "continue",
			AllocatorAttempts: 8,
		},
		Search: SearchConfig{
			Enabled: true,
			Threads: 2,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file, writing the defaults
// there first if it does not exist.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Unmarshal over the defaults so omitted keys keep them.
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
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# SnapText OCR service configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		c.Server.PublicBaseURL = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		c.Storage.UploadsDirectory = v
	}
	if v := os.Getenv("GCS_BUCKET"); v != "" {
		c.Storage.GCSBucket = v
		c.Storage.Backend = BackendGCS
	}
	if v := os.Getenv("UPLOAD_MODE"); v != "" {
		c.Upload.Mode = v
	}
	if v := os.Getenv("OCR_ENGINE"); v != "" {
		c.OCR.Engine = v
	}
	if v := os.Getenv("OCR_LANG"); v != "" {
		c.OCR.Language = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Advanced.LogLevel = v
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if c.Storage.UploadsDirectory != "" && !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
	if c.Search.DatabasePath != "" && !filepath.IsAbs(c.Search.DatabasePath) {
		c.Search.DatabasePath = filepath.Join(configDir, c.Search.DatabasePath)
	}
	if c.OCR.TessdataDir != "" && !filepath.IsAbs(c.OCR.TessdataDir) {
		c.OCR.TessdataDir = filepath.Join(configDir, c.OCR.TessdataDir)
	}
}

// Validate rejects values the server cannot run with.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch strings.ToLower(c.Storage.Backend) {
	case BackendLocal:
		if c.Storage.UploadsDirectory == "" {
			return fmt.Errorf("storage.uploadsDirectory is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcsBucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch strings.ToLower(strings.TrimSpace(c.Upload.Mode)) {
	case "", "multi", "single":
	default:
		return fmt.Errorf("unknown upload mode %q", c.Upload.Mode)
	}
	switch strings.ToLower(c.OCR.Engine) {
	case EngineGosseract, EngineCLI:
	default:
		return fmt.Errorf("unknown ocr engine %q", c.OCR.Engine)
	}
	switch strings.ToLower(strings.TrimSpace(c.Worker.OnFailure)) {
	case "", "continue", "abort":
	default:
		return fmt.Errorf("unknown worker failure policy %q", c.Worker.OnFailure)
	}
	if c.Worker.AllocatorAttempts < 1 {
		return fmt.Errorf("worker.allocatorAttempts must be at least 1")
	}
	return nil
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetPublicBaseURL returns the prefix of polling URLs handed to clients,
// "localhost:<port>" unless configured.
func (c *AppConfig) GetPublicBaseURL() string {
	if c.Server.PublicBaseURL != "" {
		return strings.TrimRight(c.Server.PublicBaseURL, "/")
	}
	return fmt.Sprintf("localhost:%d", c.Server.Port)
}

// AllowedTypeList splits upload.allowedTypes into extensions.
func (c *AppConfig) AllowedTypeList() []string {
	var out []string
	for _, t := range strings.Split(c.Upload.AllowedTypes, ",") {
		t = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(t)), ".")
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// SlogLevel maps advanced.logLevel onto a slog level; unknown values mean info.
func (c *AppConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Advanced.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	var dirs []string
	if strings.ToLower(c.Storage.Backend) == BackendLocal {
		dirs = append(dirs, c.Storage.UploadsDirectory)
	}
	if c.Search.DatabasePath != "" {
		dirs = append(dirs, filepath.Dir(c.Search.DatabasePath))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
