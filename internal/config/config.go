package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for %s=%s: %s", e.Field, e.Value, e.Message)
}

// ConfigLoader provides unified configuration loading with priority handling
type ConfigLoader struct {
	envVars map[string]string
	logger  *zap.Logger
}

// NewConfigLoader creates a new configuration loader
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{
		envVars: make(map[string]string),
	}
}

// WithLogger sets the logger for the config loader
func (cl *ConfigLoader) WithLogger(logger *zap.Logger) *ConfigLoader {
	cl.logger = logger
	return cl
}

// LoadEnvFile loads environment variables from .env file
func (cl *ConfigLoader) LoadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		// File doesn't exist, not an error
		if cl.logger != nil {
			cl.logger.Debug("Environment file not found", zap.String("file", filename))
		}
		return nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE format
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			if cl.logger != nil {
				cl.logger.Warn("Invalid line in env file",
					zap.String("file", filename),
					zap.Int("line", lineNum),
					zap.String("content", line))
			}
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
				(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
				value = value[1 : len(value)-1]
			}
		}

		cl.envVars[key] = value
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading env file %s: %w", filename, err)
	}

	if cl.logger != nil {
		cl.logger.Debug("Loaded environment file",
			zap.String("file", filename),
			zap.Int("variables", len(cl.envVars)))
	}

	return nil
}

// GetString gets string value with priority: flags → env → file → default
func (cl *ConfigLoader) GetString(key, defaultValue string) string {
	// Check environment variables first (highest priority after flags)
	if value := os.Getenv(key); value != "" {
		return value
	}

	// Check .env file variables
	if value, exists := cl.envVars[key]; exists {
		return value
	}

	// Return default
	return defaultValue
}

// GetBool gets bool value with validation
func (cl *ConfigLoader) GetBool(key string, defaultValue bool) (bool, error) {
	value := cl.GetString(key, "")
	if value == "" {
		return defaultValue, nil
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return false, ValidationError{
			Field:   key,
			Value:   value,
			Message: "must be true/false, 1/0, or yes/no",
		}
	}

	return boolVal, nil
}

// GetDuration gets duration value with validation
func (cl *ConfigLoader) GetDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := cl.GetString(key, "")
	if value == "" {
		return defaultValue, nil
	}

	// Try parsing as duration first
	if duration, err := time.ParseDuration(value); err == nil {
		return duration, nil
	}

	// Try parsing as a bare number of seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, ValidationError{
		Field:   key,
		Value:   value,
		Message: "must be a valid duration (e.g., '10s', '5m') or number of seconds",
	}
}

// ValidateRequired ensures a required field is not empty
func (cl *ConfigLoader) ValidateRequired(key, value string) error {
	if value == "" {
		return ValidationError{
			Field:   key,
			Value:   value,
			Message: "is required and cannot be empty",
		}
	}
	return nil
}

// Reload modes accepted by RELOAD_MODE.
const (
	ReloadModeSignal   = "signal"
	ReloadModePostgres = "postgres"
)

// WatcherConfig holds configuration for the certwatch daemon
type WatcherConfig struct {
	SourceDir  string // directory the certificate issuer deposits renewed files into
	DestDir    string // directory the supervised server reads its credentials from
	SourceCert string // source certificate file name inside SourceDir
	SourceKey  string // source private key file name inside SourceDir
	DestCert   string // destination certificate file name inside DestDir
	DestKey    string // destination private key file name inside DestDir

	PollInterval time.Duration // time between rotation checks
	StartupGrace time.Duration // delay before the first check, lets the server finish starting

	ServiceUser  string // owner for installed files; empty leaves ownership untouched
	ServiceGroup string // group for installed files

	StatePath string // bbolt database holding last-installed fingerprints

	ServerCommand string   // supervised server executable
	ServerArgs    []string // supervised server arguments
	NoSupervise   bool     // don't launch the server, signal an external process instead
	PidFile       string   // pid file of the external server when NoSupervise is set

	ReloadMode     string // "signal" (SIGHUP) or "postgres" (pg_reload_conf)
	ReloadConnInfo string // lib/pq conninfo, required for postgres mode

	Debug bool
}

// DefaultWatcherConfig returns default configuration for certwatch
func DefaultWatcherConfig() *WatcherConfig {
	return &WatcherConfig{
		SourceCert:   "fullchain.pem",
		SourceKey:    "privkey.pem",
		DestCert:     "server.crt",
		DestKey:      "server.key",
		PollInterval: 86400 * time.Second,
		StartupGrace: 30 * time.Second,
		StatePath:    "certwatch.db",
		ReloadMode:   ReloadModeSignal,
		Debug:        false,
	}
}

// SourceCertPath returns the full path of the source certificate file
func (c *WatcherConfig) SourceCertPath() string { return filepath.Join(c.SourceDir, c.SourceCert) }

// SourceKeyPath returns the full path of the source private key file
func (c *WatcherConfig) SourceKeyPath() string { return filepath.Join(c.SourceDir, c.SourceKey) }

// DestCertPath returns the full path of the destination certificate file
func (c *WatcherConfig) DestCertPath() string { return filepath.Join(c.DestDir, c.DestCert) }

// DestKeyPath returns the full path of the destination private key file
func (c *WatcherConfig) DestKeyPath() string { return filepath.Join(c.DestDir, c.DestKey) }

// LoadWatcherConfig loads certwatch configuration with validation
func LoadWatcherConfig() (*WatcherConfig, error) {
	// Bootstrap logger for configuration loading diagnostics
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	loader := NewConfigLoader().WithLogger(logger)
	if err := loader.LoadEnvFile(".env"); err != nil {
		return nil, fmt.Errorf("failed to load environment file: %w", err)
	}

	config := DefaultWatcherConfig()
	var validationErrors []error

	config.SourceDir = loader.GetString("CERT_SOURCE_DIR", config.SourceDir)
	config.DestDir = loader.GetString("CERT_DEST_DIR", config.DestDir)
	config.SourceCert = loader.GetString("CERT_SOURCE_CERT", config.SourceCert)
	config.SourceKey = loader.GetString("CERT_SOURCE_KEY", config.SourceKey)
	config.DestCert = loader.GetString("CERT_DEST_CERT", config.DestCert)
	config.DestKey = loader.GetString("CERT_DEST_KEY", config.DestKey)

	if interval, err := loader.GetDuration("POLL_INTERVAL", config.PollInterval); err != nil {
		validationErrors = append(validationErrors, err)
	} else {
		config.PollInterval = interval
	}

	if grace, err := loader.GetDuration("STARTUP_GRACE", config.StartupGrace); err != nil {
		validationErrors = append(validationErrors, err)
	} else {
		config.StartupGrace = grace
	}

	config.ServiceUser = loader.GetString("SERVICE_USER", config.ServiceUser)
	config.ServiceGroup = loader.GetString("SERVICE_GROUP", config.ServiceGroup)
	config.StatePath = loader.GetString("STATE_PATH", config.StatePath)

	config.ServerCommand = loader.GetString("SERVER_COMMAND", config.ServerCommand)
	if args := loader.GetString("SERVER_ARGS", ""); args != "" {
		config.ServerArgs = strings.Fields(args)
	}

	if noSupervise, err := loader.GetBool("NO_SUPERVISE", config.NoSupervise); err != nil {
		validationErrors = append(validationErrors, err)
	} else {
		config.NoSupervise = noSupervise
	}
	config.PidFile = loader.GetString("SERVER_PID_FILE", config.PidFile)

	config.ReloadMode = loader.GetString("RELOAD_MODE", config.ReloadMode)
	config.ReloadConnInfo = loader.GetString("RELOAD_CONNINFO", config.ReloadConnInfo)

	if debug, err := loader.GetBool("DEBUG", config.Debug); err != nil {
		validationErrors = append(validationErrors, err)
	} else {
		config.Debug = debug
	}

	// Parse command line flags (highest priority)
	sourceDir := flag.String("source", config.SourceDir, "Directory containing issued certificate files")
	destDir := flag.String("dest", config.DestDir, "Directory the server reads credentials from")
	interval := flag.Duration("interval", config.PollInterval, "Rotation poll interval")
	grace := flag.Duration("grace", config.StartupGrace, "Delay before the first poll")
	statePath := flag.String("state", config.StatePath, "Path of the fingerprint state database")
	debug := flag.Bool("debug", config.Debug, "Enable debug mode")
	flag.Parse()

	config.SourceDir = *sourceDir
	config.DestDir = *destDir
	config.PollInterval = *interval
	config.StartupGrace = *grace
	config.StatePath = *statePath
	config.Debug = *debug

	validationErrors = append(validationErrors, config.validate(loader)...)

	// Return validation errors if any
	if len(validationErrors) > 0 {
		var errMsg strings.Builder
		errMsg.WriteString("Configuration validation failed:\n")
		for _, err := range validationErrors {
			errMsg.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
		}
		return nil, fmt.Errorf("%s", errMsg.String())
	}

	return config, nil
}

// validate checks cross-field consistency of the assembled configuration
func (c *WatcherConfig) validate(loader *ConfigLoader) []error {
	var errs []error

	if err := loader.ValidateRequired("CERT_SOURCE_DIR", c.SourceDir); err != nil {
		errs = append(errs, err)
	}
	if err := loader.ValidateRequired("CERT_DEST_DIR", c.DestDir); err != nil {
		errs = append(errs, err)
	}

	if c.PollInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "POLL_INTERVAL",
			Value:   c.PollInterval.String(),
			Message: "must be a positive duration",
		})
	}
	if c.StartupGrace < 0 {
		errs = append(errs, ValidationError{
			Field:   "STARTUP_GRACE",
			Value:   c.StartupGrace.String(),
			Message: "cannot be negative",
		})
	}

	if c.NoSupervise {
		if err := loader.ValidateRequired("SERVER_PID_FILE", c.PidFile); err != nil {
			errs = append(errs, err)
		}
	} else {
		if err := loader.ValidateRequired("SERVER_COMMAND", c.ServerCommand); err != nil {
			errs = append(errs, err)
		}
	}

	switch c.ReloadMode {
	case ReloadModeSignal:
	case ReloadModePostgres:
		if err := loader.ValidateRequired("RELOAD_CONNINFO", c.ReloadConnInfo); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "RELOAD_MODE",
			Value:   c.ReloadMode,
			Message: "must be 'signal' or 'postgres'",
		})
	}

	if (c.ServiceUser == "") != (c.ServiceGroup == "") {
		errs = append(errs, ValidationError{
			Field:   "SERVICE_USER",
			Value:   c.ServiceUser,
			Message: "SERVICE_USER and SERVICE_GROUP must be set together",
		})
	}

	return errs
}

// LogConfig logs the effective configuration at startup
func (c *WatcherConfig) LogConfig(logger *zap.Logger) {
	logger.Info("Certwatch configuration",
		zap.String("source_dir", c.SourceDir),
		zap.String("dest_dir", c.DestDir),
		zap.String("source_cert", c.SourceCert),
		zap.String("source_key", c.SourceKey),
		zap.String("dest_cert", c.DestCert),
		zap.String("dest_key", c.DestKey),
		zap.Duration("poll_interval", c.PollInterval),
		zap.Duration("startup_grace", c.StartupGrace),
		zap.String("service_user", c.ServiceUser),
		zap.String("service_group", c.ServiceGroup),
		zap.String("state_path", c.StatePath),
		zap.String("server_command", c.ServerCommand),
		zap.Strings("server_args", c.ServerArgs),
		zap.Bool("no_supervise", c.NoSupervise),
		zap.String("pid_file", c.PidFile),
		zap.String("reload_mode", c.ReloadMode),
		zap.Bool("debug", c.Debug))
}
