package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/chatsync/internal/errors"
)

const (
	// ConfigFileName is the name of the JSON configuration file.
	ConfigFileName = "chatsync.json"

	// YAMLConfigFileName is the name of the YAML configuration file. It is
	// used when no JSON file exists.
	YAMLConfigFileName = "chatsync.yaml"

	// EnvPrefix prefixes the environment overrides, e.g. CHATSYNC_SERVER_PORT.
	EnvPrefix = "CHATSYNC"

	// DefaultPort is the default server port.
	DefaultPort = 8080

	// DefaultHost is the default server host.
	DefaultHost = "localhost"

	// DefaultDSN is the default SQLite database file.
	DefaultDSN = "chatsync.db"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config represents the complete chatsync configuration.
type Config struct {
	// Server contains HTTP and WebSocket settings.
	Server ServerConfig `json:"server" yaml:"server" split_words:"true"`

	// Storage selects where chats, prompts and preferences live.
	Storage StorageConfig `json:"storage" yaml:"storage" split_words:"true"`

	// Files configures S3-compatible storage for context files.
	Files FilesConfig `json:"files,omitempty" yaml:"files,omitempty" split_words:"true"`

	// App contains user-facing settings.
	App AppConfig `json:"app" yaml:"app" split_words:"true"`

	// Log contains logging settings.
	Log LogConfig `json:"log" yaml:"log" split_words:"true"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains server settings.
type ServerConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty" yaml:"host,omitempty" split_words:"true"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty" yaml:"port,omitempty" split_words:"true"`

	// AllowedOrigins lists origins allowed to open a WebSocket besides the
	// server's own. "*" allows any origin.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty" split_words:"true"`

	// MaxSessions caps concurrent sessions. 0 means unlimited.
	MaxSessions int `json:"maxSessions,omitempty" yaml:"maxSessions,omitempty" split_words:"true"`

	// WriteTimeout bounds a single WebSocket write (e.g. "10s").
	WriteTimeout string `json:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty" split_words:"true"`

	// SecureCookies marks the client cookie Secure. Enable behind HTTPS.
	SecureCookies bool `json:"secureCookies,omitempty" yaml:"secureCookies,omitempty" split_words:"true"`
}

// StorageConfig contains storage settings.
type StorageConfig struct {
	// Driver is one of memory, sqlite, postgres, mysql.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty" split_words:"true"`

	// DSN is the data source name passed to the SQL driver.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty" split_words:"true"`

	// TablePrefix prefixes the SQL table names.
	TablePrefix string `json:"tablePrefix,omitempty" yaml:"tablePrefix,omitempty" split_words:"true"`
}

// FilesConfig contains S3 settings for context files. Files are disabled
// while Bucket is empty.
type FilesConfig struct {
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty" split_words:"true"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty" split_words:"true"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty" split_words:"true"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" split_words:"true"`
	PathStyle bool   `json:"pathStyle,omitempty" yaml:"pathStyle,omitempty" split_words:"true"`

	// URLExpiry is the lifetime of presigned download URLs (e.g. "15m").
	URLExpiry string `json:"urlExpiry,omitempty" yaml:"urlExpiry,omitempty" split_words:"true"`
}

// AppConfig contains user-facing settings.
type AppConfig struct {
	// Title is appended to chat titles in the browser tab.
	Title string `json:"title,omitempty" yaml:"title,omitempty" split_words:"true"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty" split_words:"true"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty" split_words:"true"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			WriteTimeout: "10s",
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			DSN:    DefaultDSN,
		},
		Files: FilesConfig{
			Prefix:    "chats/",
			URLExpiry: "15m",
		},
		App: AppConfig{
			Title: "Chat",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory. It looks for
// chatsync.json, then chatsync.yaml.
func Load(dir string) (*Config, error) {
	for _, name := range []string{ConfigFileName, YAMLConfigFileName} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New(errors.CodeConfigNotFound).
		WithDetail("No " + ConfigFileName + " or " + YAMLConfigFileName + " found in " + dir).
		WithSuggestion("Run 'chatsync init' or pass --config")
}

// LoadFile reads configuration from the specified file path. Files ending
// in .yaml or .yml are parsed as YAML, everything else as JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeConfigNotFound).
				WithDetail("No config file at " + path)
		}
		return nil, errors.New(errors.CodeInvalidConfig).Wrap(err)
	}

	cfg := New()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New(errors.CodeInvalidConfig).
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error())
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// ApplyEnv overrides fields from CHATSYNC_* environment variables, e.g.
// CHATSYNC_SERVER_PORT or CHATSYNC_STORAGE_DSN.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return errors.New(errors.CodeInvalidConfig).Wrap(err)
	}
	c.applyDefaults()
	return nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path, in YAML or JSON
// according to its extension.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New(errors.CodeInvalidConfig).Wrap(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New(errors.CodeInvalidConfig).Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.Driver == DriverSQLite && c.Storage.DSN == "" {
		c.Storage.DSN = DefaultDSN
	}
	if c.Files.URLExpiry == "" {
		c.Files.URLExpiry = d.Files.URLExpiry
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New(errors.CodeInvalidConfig).
			WithDetail("server.port must be between 0 and 65535")
	}
	if c.Server.MaxSessions < 0 {
		return errors.New(errors.CodeInvalidConfig).
			WithDetail("server.maxSessions must not be negative")
	}
	if _, err := parseDuration("server.writeTimeout", c.Server.WriteTimeout); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres, DriverMySQL:
		if c.Storage.DSN == "" {
			return errors.New(errors.CodeInvalidConfig).
				WithDetail("storage.dsn is required for the " + c.Storage.Driver + " driver")
		}
	default:
		return errors.New(errors.CodeUnknownStorage).
			WithDetail(fmt.Sprintf("storage.driver %q must be one of memory, sqlite, postgres, mysql", c.Storage.Driver))
	}

	if c.Files.Bucket != "" {
		if _, err := parseDuration("files.urlExpiry", c.Files.URLExpiry); err != nil {
			return err
		}
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return errors.New(errors.CodeInvalidConfig).
			WithDetail(fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	return nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, errors.New(errors.CodeInvalidConfig).
			WithDetail(fmt.Sprintf("%s %q must be a positive duration such as \"10s\"", field, value))
	}
	return d, nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// URL returns the base URL of the server.
func (c *Config) URL() string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Server.Port))
}

// WriteTimeout returns the parsed server write timeout, or 0 when invalid.
func (c *Config) WriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.WriteTimeout)
	return d
}

// FilesEnabled reports whether context files are stored in S3.
func (c *Config) FilesEnabled() bool {
	return c.Files.Bucket != ""
}

// URLExpiry returns the parsed presigned URL lifetime, or 0 when invalid.
func (c *Config) URLExpiry() time.Duration {
	d, _ := time.ParseDuration(c.Files.URLExpiry)
	return d
}

// SlogLevel returns the configured level as a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, errors.New(errors.CodeInvalidConfig).
			WithDetail(fmt.Sprintf("log.level %q must be debug, info, warn or error", l.Level))
	}
	return level, nil
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	for _, name := range []string{ConfigFileName, YAMLConfigFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up directories to find the directory containing a
// config file.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New(errors.CodeConfigNotFound).
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory
// or its nearest parent that has one.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
