package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Remote drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverNone     = "none"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AWS      AWSConfig      `yaml:"aws"`
	Remote   RemoteConfig   `yaml:"remote"`
	Local    LocalConfig    `yaml:"local"`
	Photos   PhotosConfig   `yaml:"photos"`
	Owners   OwnersConfig   `yaml:"owners"`
	Letter   LetterConfig   `yaml:"letter"`
	APNS     APNSConfig     `yaml:"apns"`
	Pomodoro PomodoroConfig `yaml:"pomodoro"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AWSConfig holds blob storage configuration
type AWSConfig struct {
	Region        string `yaml:"region"`
	S3Bucket      string `yaml:"s3_bucket"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Endpoint      string `yaml:"endpoint"`
	DisableSSL    bool   `yaml:"disable_ssl"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// RemoteConfig selects and tunes the remote store adapter
type RemoteConfig struct {
	Driver               string   `yaml:"driver"`
	HandshakeTimeout     Duration `yaml:"handshake_timeout"`
	CallTimeout          Duration `yaml:"call_timeout"`
	AvailabilityInterval Duration `yaml:"availability_interval"`
}

// LocalConfig holds local store configuration
type LocalConfig struct {
	Path string `yaml:"path"`
}

// PhotosConfig holds the photo upload policy
type PhotosConfig struct {
	MaxSize           SizeBytes `yaml:"max_size"`
	AllowedExtensions []string  `yaml:"allowed_extensions"`
}

// OwnersConfig holds the display names of the two album owners
type OwnersConfig struct {
	PersonA string `yaml:"person_a"`
	PersonB string `yaml:"person_b"`
}

// LetterConfig locates the text file of the proposal letter
type LetterConfig struct {
	Path string `yaml:"path"`
}

// APNSConfig holds push notification configuration. Push is disabled without a key file.
type APNSConfig struct {
	KeyFile      string   `yaml:"key_file"`
	KeyID        string   `yaml:"key_id"`
	TeamID       string   `yaml:"team_id"`
	Topic        string   `yaml:"topic"`
	Production   bool     `yaml:"production"`
	DeviceTokens []string `yaml:"device_tokens"`
}

// PomodoroConfig holds timer phase lengths
type PomodoroConfig struct {
	Focus Duration `yaml:"focus"`
	Break Duration `yaml:"break"`
	Tick  Duration `yaml:"tick"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// SizeBytes is a byte count read from strings like "10MB" or plain integers
type SizeBytes int64

// UnmarshalYAML implements yaml.Unmarshaler
func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

// Int64 returns the size as int64
func (s SizeBytes) Int64() int64 { return int64(s) }

// String renders the size for humans
func (s SizeBytes) String() string { return humanize.Bytes(uint64(s)) }

// Duration is a time.Duration read from strings like "5s" or plain numbers of seconds
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

// Std returns the value as time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when a setting is absent
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, Host: "0.0.0.0"},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "love_album",
			SSLMode: "disable",
		},
		AWS: AWSConfig{Region: "us-east-1"},
		Remote: RemoteConfig{
			Driver:               DriverPostgres,
			HandshakeTimeout:     Duration(5 * time.Second),
			CallTimeout:          Duration(10 * time.Second),
			AvailabilityInterval: Duration(15 * time.Second),
		},
		Local: LocalConfig{Path: "data/local"},
		Photos: PhotosConfig{
			MaxSize:           SizeBytes(10 * humanize.MByte),
			AllowedExtensions: []string{"jpg", "jpeg", "png", "gif", "webp"},
		},
		Owners: OwnersConfig{PersonA: "Person A", PersonB: "Person B"},
		Letter: LetterConfig{Path: "data/letter.txt"},
		Pomodoro: PomodoroConfig{
			Focus: Duration(25 * time.Minute),
			Break: Duration(5 * time.Minute),
			Tick:  Duration(time.Second),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file on top of the defaults, then applies
// environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides credentials supplied by the hosting environment
func (c *Config) applyEnv() error {
	setString := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	setString("LOVE_DB_HOST", &c.Database.Host)
	setString("LOVE_DB_USER", &c.Database.User)
	setString("LOVE_DB_PASSWORD", &c.Database.Password)
	setString("LOVE_DB_NAME", &c.Database.DBName)
	setString("LOVE_AWS_REGION", &c.AWS.Region)
	setString("LOVE_AWS_BUCKET", &c.AWS.S3Bucket)
	setString("LOVE_AWS_ACCESS_KEY", &c.AWS.AccessKey)
	setString("LOVE_AWS_SECRET_KEY", &c.AWS.SecretKey)
	setString("LOVE_AWS_ENDPOINT", &c.AWS.Endpoint)
	setString("LOVE_APNS_KEY_FILE", &c.APNS.KeyFile)
	setString("LOVE_APNS_KEY_ID", &c.APNS.KeyID)
	setString("LOVE_APNS_TEAM_ID", &c.APNS.TeamID)
	setString("LOVE_REMOTE_DRIVER", &c.Remote.Driver)
	setString("LOVE_LETTER_PATH", &c.Letter.Path)

	if v, ok := os.LookupEnv("LOVE_DB_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LOVE_DB_PORT %q: %w", v, err)
		}
		c.Database.Port = port
	}
	return nil
}

// Validate checks settings that would otherwise fail later at runtime
func (c *Config) Validate() error {
	switch c.Remote.Driver {
	case DriverPostgres, DriverMemory, DriverNone:
	default:
		return fmt.Errorf("unknown remote driver %q", c.Remote.Driver)
	}
	if c.Photos.MaxSize <= 0 {
		return fmt.Errorf("photos.max_size must be positive")
	}
	if c.Remote.HandshakeTimeout <= 0 || c.Remote.CallTimeout <= 0 {
		return fmt.Errorf("remote timeouts must be positive")
	}
	if c.Pomodoro.Focus <= 0 || c.Pomodoro.Break <= 0 {
		return fmt.Errorf("pomodoro phases must be positive")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// AllowsExtension reports whether ext (with or without the dot) may be uploaded
func (p *PhotosConfig) AllowsExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, allowed := range p.AllowedExtensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

// Enabled reports whether push notifications are configured
func (a *APNSConfig) Enabled() bool {
	return a.KeyFile != "" && a.KeyID != "" && a.TeamID != "" && a.Topic != ""
}
