package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Token backends.
const (
	BackendKeyring = "keyring"
	BackendMemory  = "memory"
)

// Config holds the client configuration.
type Config struct {
	APIURL    string // Base URL of the mail backend (default: http://localhost:8080)
	Env       string // Environment (dev, prod) (default: prod)
	LogLevel  string // Log level (debug, info, warn, error) (default: warn)
	LogFormat string // Log format (json, text) (default: text)

	TokenBackend string        // Where tokens live (keyring, memory) (default: keyring)
	KeyringDir   string        // Directory for the encrypted file keyring fallback
	KeyringPass  string        // Passphrase for the file keyring; prompted for when empty
	AccessTTL    time.Duration // Local lifetime of a stored access token (default: 24h)
	RefreshTTL   time.Duration // Local lifetime of a stored refresh token (default: 720h)

	HTTPTimeout  time.Duration // Per-request timeout (default: 15s)
	RateLimitRPS float64       // Outbound requests per second, 0 for unlimited

	HistoryDB    string // Path to the search history database
	HistoryLimit int    // Number of searches remembered (default: 10)
}

// DefaultConfigPath returns ~/.config/tabmail/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "tabmail")
}

// LoadConfig reads path (DefaultConfigPath when empty) and applies
// TABMAIL_* environment overrides. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("env", "prod")
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")
	v.SetDefault("token_backend", BackendKeyring)
	v.SetDefault("keyring_dir", filepath.Join(configDir(), "credentials"))
	v.SetDefault("access_ttl", 24*time.Hour)
	v.SetDefault("refresh_ttl", 30*24*time.Hour)
	v.SetDefault("http_timeout", 15*time.Second)
	v.SetDefault("rate_limit_rps", 0)
	v.SetDefault("history_db", filepath.Join(configDir(), "history.db"))
	v.SetDefault("history_limit", 10)

	v.SetEnvPrefix("TABMAIL")
	v.AutomaticEnv()
	// The bare API_URL is honoured for parity with the web client's build env.
	_ = v.BindEnv("api_url", "TABMAIL_API_URL", "API_URL")
	_ = v.BindEnv("keyring_password")

	if path == "" {
		path = DefaultConfigPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := Config{
		APIURL:       strings.TrimSuffix(v.GetString("api_url"), "/"),
		Env:          v.GetString("env"),
		LogLevel:     v.GetString("log_level"),
		LogFormat:    v.GetString("log_format"),
		TokenBackend: strings.ToLower(v.GetString("token_backend")),
		KeyringDir:   expandHome(v.GetString("keyring_dir")),
		KeyringPass:  v.GetString("keyring_password"),
		AccessTTL:    v.GetDuration("access_ttl"),
		RefreshTTL:   v.GetDuration("refresh_ttl"),
		HTTPTimeout:  v.GetDuration("http_timeout"),
		RateLimitRPS: v.GetFloat64("rate_limit_rps"),
		HistoryDB:    expandHome(v.GetString("history_db")),
		HistoryLimit: v.GetInt("history_limit"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	switch c.TokenBackend {
	case BackendKeyring, BackendMemory:
	default:
		return fmt.Errorf("token_backend must be %q or %q, got %q", BackendKeyring, BackendMemory, c.TokenBackend)
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("http_timeout must be positive")
	}
	if c.RateLimitRPS < 0 {
		return errors.New("rate_limit_rps must not be negative")
	}
	return nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
