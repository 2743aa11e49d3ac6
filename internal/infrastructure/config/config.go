package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends understood by the bootstrap.
const (
	BackendFirebase = "firebase"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Reserved device tokens. These address every device at once and so can
// never be used as a device key.
var reservedDeviceKeys = map[string]bool{
	"all":  true,
	"both": true,
}

// deviceKeyPattern restricts device keys to values that are safe both as a
// URL path segment and as a key in the remote tree.
var deviceKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// Config is the root configuration structure for lightswitch.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Devices  []DeviceConfig `yaml:"devices"`
	Store    StoreConfig    `yaml:"store"`
	Firebase FirebaseConfig `yaml:"firebase"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	Panel    PanelConfig    `yaml:"panel"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DeviceConfig describes one switchable device.
// Only Key is used by the API; the remaining fields are presentation hints for the panel.
type DeviceConfig struct {
	Key         string `yaml:"key" json:"key"`
	Name        string `yaml:"name" json:"name"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description" json:"description"`
}

// StoreConfig selects where device state lives.
type StoreConfig struct {
	// Backend is one of "firebase", "sqlite" or "memory".
	Backend string `yaml:"backend"`

	// StructuredPath is the tree path holding the complete snapshot record.
	// Legacy flat keys always live at the tree root.
	StructuredPath string `yaml:"structured_path"`
}

// FirebaseConfig contains Firebase Realtime Database settings.
type FirebaseConfig struct {
	DatabaseURL string `yaml:"database_url"`

	// ServiceAccountFile is a path to a service-account JSON key.
	ServiceAccountFile string `yaml:"service_account_file"`

	// ServiceAccountJSON holds the key inline. Normally supplied through the
	// FIREBASE_SERVICE_ACCOUNT environment variable rather than the file.
	ServiceAccountJSON string `yaml:"service_account_json"`

	// RequestTimeout bounds each REST call (seconds).
	RequestTimeout int `yaml:"request_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// FunctionPrefix is a second mount point for the API routes, kept for
	// clients that still call the serverless function path.
	FunctionPrefix string `yaml:"function_prefix"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// PanelConfig controls the embedded browser UI.
type PanelConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir serves assets from disk instead of the embedded copy (development).
	Dir string `yaml:"dir"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LIGHTSWITCH_SECTION_KEY.
// FIREBASE_SERVICE_ACCOUNT is also honoured for the service-account key.
//
// Store credentials are deliberately not validated here: a missing or
// broken key leaves the service running with an unconfigured store.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
// Used when no config file exists.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "home",
			Name: "Lighting control",
		},
		Devices: []DeviceConfig{
			{
				Key:         "led1",
				Name:        "Entrance lights",
				Label:       "Zone A",
				Description: "A warm welcome glow for hallways or porches.",
			},
			{
				Key:         "led2",
				Name:        "Workspace strip",
				Label:       "Zone B",
				Description: "Task lighting that keeps your desk bright and focused.",
			},
		},
		Store: StoreConfig{
			Backend:        BackendFirebase,
			StructuredPath: "states",
		},
		Firebase: FirebaseConfig{
			ServiceAccountFile: "firebase-key.json",
			RequestTimeout:     10,
		},
		Database: DatabaseConfig{
			Path:        "./data/lightswitch.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lightswitch",
			},
			QoS:         1,
			TopicPrefix: "lightswitch",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			FunctionPrefix: "/.netlify/functions/api",
		},
		Panel: PanelConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LIGHTSWITCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Store
	if v := os.Getenv("LIGHTSWITCH_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}

	// Firebase
	if v := os.Getenv("LIGHTSWITCH_FIREBASE_DATABASE_URL"); v != "" {
		cfg.Firebase.DatabaseURL = v
	}
	if v := os.Getenv("FIREBASE_SERVICE_ACCOUNT"); v != "" {
		cfg.Firebase.ServiceAccountJSON = v
	}

	// Database
	if v := os.Getenv("LIGHTSWITCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LIGHTSWITCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LIGHTSWITCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LIGHTSWITCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("LIGHTSWITCH_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("LIGHTSWITCH_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	errs = append(errs, c.validateDevices()...)

	// firebase.database_url is checked when connecting, alongside the credentials.
	switch c.Store.Backend {
	case BackendFirebase:
		if c.Firebase.RequestTimeout < 0 {
			errs = append(errs, "firebase.request_timeout must not be negative")
		}
	case BackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("store.backend %q must be firebase, sqlite or memory", c.Store.Backend))
	}

	if c.Store.StructuredPath == "" || strings.Contains(c.Store.StructuredPath, "/") {
		errs = append(errs, "store.structured_path must be a single non-empty path segment")
	} else if c.hasDevice(c.Store.StructuredPath) {
		errs = append(errs, "store.structured_path must not collide with a device key")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if p := c.API.FunctionPrefix; p != "" && (!strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/")) {
		errs = append(errs, "api.function_prefix must start with / and not end with /")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateDevices checks the device list for empty, duplicate and reserved keys.
func (c *Config) validateDevices() []string {
	if len(c.Devices) == 0 {
		return []string{"at least one device is required"}
	}

	var errs []string
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		switch {
		case !deviceKeyPattern.MatchString(d.Key):
			errs = append(errs, fmt.Sprintf("devices[%d].key %q is not a valid key", i, d.Key))
		case reservedDeviceKeys[d.Key]:
			errs = append(errs, fmt.Sprintf("devices[%d].key %q is reserved", i, d.Key))
		case seen[d.Key]:
			errs = append(errs, fmt.Sprintf("devices[%d].key %q is duplicated", i, d.Key))
		}
		seen[d.Key] = true
	}
	return errs
}

func (c *Config) hasDevice(key string) bool {
	for _, d := range c.Devices {
		if d.Key == key {
			return true
		}
	}
	return false
}

// DeviceKeys returns the configured device keys in declaration order.
func (c *Config) DeviceKeys() []string {
	keys := make([]string, 0, len(c.Devices))
	for _, d := range c.Devices {
		keys = append(keys, d.Key)
	}
	return keys
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetFirebaseTimeout returns the Firebase request timeout as a Duration.
func (c *Config) GetFirebaseTimeout() time.Duration {
	return time.Duration(c.Firebase.RequestTimeout) * time.Second
}
