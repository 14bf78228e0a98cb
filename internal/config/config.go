package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents chatd's config.toml.
type Config struct {
	ListenAddr     string   `toml:"listen_addr"`
	DataDir        string   `toml:"data_dir"`
	LogLevel       string   `toml:"log_level"`
	AllowedOrigins []string `toml:"allowed_origins"`

	Auth   AuthConfig   `toml:"auth"`
	Typing TypingConfig `toml:"typing"`
	Limits LimitsConfig `toml:"limits"`
	Redis  RedisConfig  `toml:"redis"`
	Kafka  KafkaConfig  `toml:"kafka"`
	Media  MediaConfig  `toml:"media"`
}

type AuthConfig struct {
	JWTSecret  string `toml:"jwt_secret"`
	CookieName string `toml:"cookie_name"`
}

type TypingConfig struct {
	Timeout Duration `toml:"timeout"`
}

type LimitsConfig struct {
	SendBuffer      int      `toml:"send_buffer"`
	MaxMessageBytes int64    `toml:"max_message_bytes"`
	MaxUploadBytes  int64    `toml:"max_upload_bytes"`
	StatusTTL       Duration `toml:"status_ttl"`
}

// RedisConfig enables the Redis presence mirror when Addr is set.
type RedisConfig struct {
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PresenceTTL Duration `toml:"presence_ttl"`
}

// KafkaConfig enables the domain-event exporter when Brokers is set.
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// MediaConfig enables uploads to an S3-compatible store when Endpoint is set.
type MediaConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
	PublicURL string `toml:"public_url"`
}

// Duration is a time.Duration written as a string ("3s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ErrNoSecret is returned by Validate when no JWT secret is configured.
var ErrNoSecret = errors.New("auth.jwt_secret is required")

// BaseDir returns ~/.chatd.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatd")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = BaseDir()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = "auth_token"
	}
	if c.Typing.Timeout.Duration <= 0 {
		c.Typing.Timeout.Duration = 3 * time.Second
	}
	if c.Limits.SendBuffer <= 0 {
		c.Limits.SendBuffer = 256
	}
	if c.Limits.MaxMessageBytes <= 0 {
		c.Limits.MaxMessageBytes = 64 << 10
	}
	if c.Limits.MaxUploadBytes <= 0 {
		c.Limits.MaxUploadBytes = 32 << 20
	}
	if c.Limits.StatusTTL.Duration <= 0 {
		c.Limits.StatusTTL.Duration = 24 * time.Hour
	}
	if c.Redis.PresenceTTL.Duration <= 0 {
		c.Redis.PresenceTTL.Duration = 30 * 24 * time.Hour
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "chatd.events"
	}
	if c.Media.Bucket == "" {
		c.Media.Bucket = "chatd-media"
	}
}

// Validate reports configuration the daemon cannot start without.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return ErrNoSecret
	}
	return nil
}

// DBPath returns the SQLite database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "chatd.db")
}

// SocketPath returns the admin UDS socket path.
func (c *Config) SocketPath() string {
	return filepath.Join(c.DataDir, "admin.sock")
}

// LogDir returns the log directory.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// LogPath returns the daemon log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogDir(), "chatd.log")
}

// EnsureDirs creates the data directory tree with proper permissions.
func (c *Config) EnsureDirs() error {
	for _, d := range []string{c.DataDir, c.LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// Load reads config from the given path and applies defaults. Returns an
// error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
