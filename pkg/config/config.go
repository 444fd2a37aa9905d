package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig represents server configuration
type ServerConfig struct {
	Address  string         `yaml:"address"`
	TLS      TLSConfig      `yaml:"tls"`
	WebUI    WebUIConfig    `yaml:"webui"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Relay    RelayConfig    `yaml:"relay"`
}

// TLSConfig represents TLS settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// WebUIConfig represents the admin panel credentials used to bootstrap the
// first operator account.
type WebUIConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DatabaseConfig represents capture archive settings
type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite | mysql
	Path string `yaml:"path"` // sqlite file path
	DSN  string `yaml:"dsn"`  // mysql DSN
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RelayConfig represents relay core settings
type RelayConfig struct {
	// SweepInterval is how often the orphan sweep runs
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// RequestMaxAge is how old a pending request may grow before the
	// sweep reclaims it once its origin session is gone
	RequestMaxAge time.Duration `yaml:"request_max_age"`
	// MaxPayloadBytes bounds inbound capture payload size
	MaxPayloadBytes int `yaml:"max_payload_bytes"`
	// SendQueueSize is the per-connection outbound frame buffer
	SendQueueSize int `yaml:"send_queue_size"`
	// CaptureRetention is how long archived capture payloads are kept
	// before the sweep purges them. Zero disables the purge.
	CaptureRetention time.Duration `yaml:"capture_retention"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Address: ":8080",
		TLS: TLSConfig{
			Enabled: false,
		},
		WebUI: WebUIConfig{
			Username: "admin",
			Password: "admin",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./relay.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Relay: RelayConfig{
			SweepInterval:    time.Minute,
			RequestMaxAge:    10 * time.Minute,
			MaxPayloadBytes:  8 << 20,
			SendQueueSize:    256,
			CaptureRetention: 24 * time.Hour,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*ServerConfig, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string, config *ServerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(config *ServerConfig) {
	if addr := os.Getenv("RELAY_ADDR"); addr != "" {
		config.Address = addr
	}

	if username := os.Getenv("WEB_USERNAME"); username != "" {
		config.WebUI.Username = username
	}

	if password := os.Getenv("WEB_PASSWORD"); password != "" {
		config.WebUI.Password = password
	}

	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}

	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		config.Logging.Format = logFormat
	}

	if tlsEnabled := os.Getenv("TLS_ENABLED"); tlsEnabled != "" {
		config.TLS.Enabled = tlsEnabled == "true"
	}

	if certFile := os.Getenv("TLS_CERT_FILE"); certFile != "" {
		config.TLS.CertFile = certFile
	}

	if keyFile := os.Getenv("TLS_KEY_FILE"); keyFile != "" {
		config.TLS.KeyFile = keyFile
	}

	if maxAge := os.Getenv("RELAY_REQUEST_MAX_AGE"); maxAge != "" {
		if d, err := time.ParseDuration(maxAge); err == nil {
			config.Relay.RequestMaxAge = d
		}
	}

	if interval := os.Getenv("RELAY_SWEEP_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Relay.SweepInterval = d
		}
	}

	if maxBytes := os.Getenv("RELAY_MAX_PAYLOAD_BYTES"); maxBytes != "" {
		if val, err := strconv.Atoi(maxBytes); err == nil {
			config.Relay.MaxPayloadBytes = val
		}
	}

	if retention := os.Getenv("RELAY_CAPTURE_RETENTION"); retention != "" {
		if d, err := time.ParseDuration(retention); err == nil {
			config.Relay.CaptureRetention = d
		}
	}
}

// Validate validates the configuration
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	if c.WebUI.Username == "" {
		return fmt.Errorf("web UI username cannot be empty")
	}

	if c.WebUI.Password == "" {
		return fmt.Errorf("web UI password cannot be empty")
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("sqlite database path cannot be empty")
		}
	case "mysql":
		if c.Database.DSN == "" {
			return fmt.Errorf("mysql database DSN cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert/key files not provided")
		}

		if _, err := os.Stat(c.TLS.CertFile); err != nil {
			return fmt.Errorf("certificate file not found: %w", err)
		}

		if _, err := os.Stat(c.TLS.KeyFile); err != nil {
			return fmt.Errorf("key file not found: %w", err)
		}
	}

	if c.Relay.SweepInterval <= 0 {
		return fmt.Errorf("relay sweep interval must be positive")
	}

	if c.Relay.RequestMaxAge <= 0 {
		return fmt.Errorf("relay request max age must be positive")
	}

	if c.Relay.SendQueueSize < 1 {
		return fmt.Errorf("relay send queue size must be at least 1")
	}

	if c.Relay.CaptureRetention < 0 {
		return fmt.Errorf("relay capture retention cannot be negative")
	}

	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	valid := []string{"debug", "info", "warn", "error"}
	level = strings.ToLower(level)
	for _, v := range valid {
		if level == v {
			return true
		}
	}
	return false
}

// String returns a string representation of the configuration (for logging)
func (c *ServerConfig) String() string {
	return fmt.Sprintf("Config{Address: %s, DB: %s, TLS: %v, LogLevel: %s}",
		c.Address, c.Database.Type, c.TLS.Enabled, c.Logging.Level)
}
