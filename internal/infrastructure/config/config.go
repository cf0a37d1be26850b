package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "TCPLINK_"

// minJWTSecretLength is the shortest accepted HMAC secret.
const minJWTSecretLength = 32

// Config is the root configuration structure for tcplink.
type Config struct {
	Client   ClientConfig   `yaml:"client"`
	Liveness LivenessConfig `yaml:"liveness"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ClientConfig contains the stream client settings.
type ClientConfig struct {
	// Hosts are literal addresses or names, tried in order.
	Hosts []string `yaml:"hosts"`
	Port  int      `yaml:"port"`

	// LocalAddress optionally binds the client socket ("host:port").
	LocalAddress string `yaml:"local_address"`

	// Retries is the number of failed attempts tolerated per cycle.
	// Negative disables retries.
	Retries       int           `yaml:"retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	KeepAlive      time.Duration `yaml:"keepalive"`

	// Encoding is a WHATWG encoding label. Empty means UTF-8.
	Encoding string `yaml:"encoding"`

	// Framing is "none" or "line".
	Framing string `yaml:"framing"`

	AutoReconnect bool `yaml:"auto_reconnect"`
	SendQueueSize int  `yaml:"send_queue_size"`
}

// LivenessConfig contains network reachability polling settings.
type LivenessConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig contains the peer server settings.
type ServerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	ReadBuffer int    `yaml:"read_buffer"`
	Framing    string `yaml:"framing"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the admin HTTP API settings. The API also serves the
// Prometheus metrics.
type APIConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Host        string           `yaml:"host"`
	Port        int              `yaml:"port"`
	MetricsPath string           `yaml:"metrics_path"`
	Timeouts    APITimeoutConfig `yaml:"timeouts"`
	Auth        APIAuthConfig    `yaml:"auth"`
	WebSocket   WebSocketConfig  `yaml:"websocket"`
}

// APITimeoutConfig contains HTTP server timeouts.
type APITimeoutConfig struct {
	Read  time.Duration `yaml:"read"`
	Write time.Duration `yaml:"write"`
	Idle  time.Duration `yaml:"idle"`
}

// APIAuthConfig contains bearer token settings. An empty secret leaves the
// API open, for local use only.
type APIAuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// WebSocketConfig contains the event stream settings.
type WebSocketConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	MaxMessageSize int           `yaml:"max_message_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The loading order is:
//  1. Default values
//  2. YAML file values (skipped when path is empty)
//  3. Environment variables, TCPLINK_SECTION_KEY
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			Hosts:          []string{"127.0.0.1"},
			Port:           8082,
			Retries:        3,
			RetryInterval:  5 * time.Second,
			ConnectTimeout: 10 * time.Second,
			KeepAlive:      15 * time.Second,
			Framing:        "none",
			AutoReconnect:  true,
			SendQueueSize:  64,
		},
		Liveness: LivenessConfig{
			Interval: time.Second,
		},
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       8082,
			ReadBuffer: 4096,
			Framing:    "none",
		},
		Database: DatabaseConfig{
			Path:        "./data/tcplink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tcplink",
			},
			QoS:         1,
			TopicPrefix: "tcplink",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "tcplink",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        9108,
			MetricsPath: "/metrics",
			Timeouts: APITimeoutConfig{
				Read:  10 * time.Second,
				Write: 10 * time.Second,
				Idle:  60 * time.Second,
			},
			Auth: APIAuthConfig{
				TokenTTL: time.Hour,
			},
			WebSocket: WebSocketConfig{
				PingInterval:   30 * time.Second,
				PongTimeout:    10 * time.Second,
				MaxMessageSize: 8192,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies TCPLINK_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	str := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %q is not an integer", EnvPrefix, key, v))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %q is not a duration", EnvPrefix, key, v))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %q is not a boolean", EnvPrefix, key, v))
				return
			}
			*dst = b
		}
	}

	// Client
	if v := os.Getenv(EnvPrefix + "CLIENT_HOSTS"); v != "" {
		cfg.Client.Hosts = splitList(v)
	}
	num("CLIENT_PORT", &cfg.Client.Port)
	str("CLIENT_LOCAL_ADDRESS", &cfg.Client.LocalAddress)
	num("CLIENT_RETRIES", &cfg.Client.Retries)
	dur("CLIENT_RETRY_INTERVAL", &cfg.Client.RetryInterval)
	str("CLIENT_ENCODING", &cfg.Client.Encoding)
	str("CLIENT_FRAMING", &cfg.Client.Framing)
	flag("CLIENT_AUTO_RECONNECT", &cfg.Client.AutoReconnect)

	// Liveness
	dur("LIVENESS_INTERVAL", &cfg.Liveness.Interval)

	// Server
	flag("SERVER_ENABLED", &cfg.Server.Enabled)
	str("SERVER_HOST", &cfg.Server.Host)
	num("SERVER_PORT", &cfg.Server.Port)
	str("SERVER_FRAMING", &cfg.Server.Framing)

	// Database
	flag("DATABASE_ENABLED", &cfg.Database.Enabled)
	str("DATABASE_PATH", &cfg.Database.Path)

	// MQTT
	flag("MQTT_ENABLED", &cfg.MQTT.Enabled)
	str("MQTT_HOST", &cfg.MQTT.Broker.Host)
	num("MQTT_PORT", &cfg.MQTT.Broker.Port)
	str("MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	str("MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// InfluxDB
	flag("INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	str("INFLUXDB_URL", &cfg.InfluxDB.URL)
	str("INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// API
	flag("API_ENABLED", &cfg.API.Enabled)
	str("API_HOST", &cfg.API.Host)
	num("API_PORT", &cfg.API.Port)
	str("API_JWT_SECRET", &cfg.API.Auth.JWTSecret)

	// Logging
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// splitList splits a comma or space separated list.
func splitList(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' '
	})
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Every validation failure joined into one message, or nil
func (c *Config) Validate() error {
	var errs []string

	validPort := func(p int) bool { return p >= 1 && p <= 65535 }
	validFraming := func(f string) bool {
		switch strings.ToLower(f) {
		case "", "none", "line", "newline":
			return true
		}
		return false
	}

	// Client
	if len(c.Client.Hosts) == 0 {
		errs = append(errs, "client.hosts must list at least one address")
	}
	if !validPort(c.Client.Port) {
		errs = append(errs, "client.port must be between 1 and 65535")
	}
	if c.Client.RetryInterval < 0 {
		errs = append(errs, "client.retry_interval cannot be negative")
	}
	if !validFraming(c.Client.Framing) {
		errs = append(errs, "client.framing must be none or line")
	}
	if c.Client.SendQueueSize < 0 {
		errs = append(errs, "client.send_queue_size cannot be negative")
	}

	// Liveness
	if c.Liveness.Interval < 0 {
		errs = append(errs, "liveness.interval cannot be negative")
	}

	// Server
	if c.Server.Enabled && !validPort(c.Server.Port) {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if !validFraming(c.Server.Framing) {
		errs = append(errs, "server.framing must be none or line")
	}

	// Database
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// API
	if c.API.Enabled {
		if !validPort(c.API.Port) {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		if !strings.HasPrefix(c.API.MetricsPath, "/") {
			errs = append(errs, "api.metrics_path must start with /")
		}
		if c.API.Auth.JWTSecret != "" && len(c.API.Auth.JWTSecret) < minJWTSecretLength {
			errs = append(errs, fmt.Sprintf("api.auth.jwt_secret must be at least %d characters", minJWTSecretLength))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// APIAddress returns the admin API listen address.
func (c *Config) APIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// ServerAddress returns the peer server listen address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
