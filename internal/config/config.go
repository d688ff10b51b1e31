package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/user/mlbot/internal/auth"
	"github.com/user/mlbot/pkg/mercadolibre"
)

type Config struct {
	DataDir               string `json:"data_dir"`
	LogLevel              string `json:"log_level"`
	LogFile               string `json:"log_file"`
	MaxConcurrent         int    `json:"max_concurrent"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
	HTTP                  struct {
		Listen string `json:"listen"`
	} `json:"http"`
	MercadoLibre struct {
		ClientID           string `json:"client_id"`
		ClientSecret       string `json:"client_secret"`
		RedirectURI        string `json:"redirect_uri"`
		AuthURL            string `json:"auth_url"`
		TokenURL           string `json:"token_url"`
		APIBaseURL         string `json:"api_base_url"`
		RefreshSkewSeconds int    `json:"refresh_skew_seconds"`
	} `json:"mercadolibre"`
	Credentials struct {
		DSN string `json:"dsn"`
	} `json:"credentials"`
	Telegram struct {
		Token         string `json:"token"`
		ChatID        int64  `json:"chat_id"`
		WebhookSecret string `json:"webhook_secret"`
		APIEndpoint   string `json:"api_endpoint"`
	} `json:"telegram"`
	Commands struct {
		ProductPageSize int `json:"product_page_size"`
		RecentLimit     int `json:"recent_limit"`
	} `json:"commands"`
	Metrics struct {
		Enabled         bool   `json:"enabled"`
		File            string `json:"file"`
		IntervalSeconds int    `json:"interval_seconds"`
	} `json:"metrics"`
}

// DefaultPath returns $HOME/.mlbot/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".mlbot", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:               filepath.Join(os.Getenv("HOME"), ".mlbot"),
		LogLevel:              "info",
		MaxConcurrent:         4,
		RequestTimeoutSeconds: 30,
	}
	cfg.HTTP.Listen = ":3000"
	cfg.MercadoLibre.AuthURL = auth.DefaultAuthURL
	cfg.MercadoLibre.TokenURL = auth.DefaultTokenURL
	cfg.MercadoLibre.APIBaseURL = mercadolibre.DefaultBaseURL
	cfg.MercadoLibre.RefreshSkewSeconds = int(auth.DefaultSkew / time.Second)
	cfg.Commands.ProductPageSize = 50
	cfg.Commands.RecentLimit = 5
	cfg.Metrics.IntervalSeconds = 60
	return cfg
}

// Load reads the config file at path, writing defaults if it does not
// exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config values from the environment (highest precedence).
func applyEnv(cfg *Config) error {
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setString("CLIENT_ID", &cfg.MercadoLibre.ClientID)
	setString("CLIENT_SECRET", &cfg.MercadoLibre.ClientSecret)
	setString("REDIRECT_URI", &cfg.MercadoLibre.RedirectURI)
	setString("TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token)
	setString("TELEGRAM_WEBHOOK_SECRET", &cfg.Telegram.WebhookSecret)
	setString("CREDENTIALS_DSN", &cfg.Credentials.DSN)
	setString("MLBOT_LOG_LEVEL", &cfg.LogLevel)

	if port := os.Getenv("PORT"); port != "" {
		cfg.HTTP.Listen = ":" + port
	}
	if chat := os.Getenv("TELEGRAM_CHAT_ID"); chat != "" {
		id, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return fmt.Errorf("parse TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = id
	}
	return nil
}

// Validate checks the fields the bot needs to serve traffic.
func (c *Config) Validate() error {
	var errs []error
	if c.MercadoLibre.ClientID == "" {
		errs = append(errs, errors.New("mercadolibre.client_id is required (or set CLIENT_ID)"))
	}
	if c.MercadoLibre.ClientSecret == "" {
		errs = append(errs, errors.New("mercadolibre.client_secret is required (or set CLIENT_SECRET)"))
	}
	if c.MercadoLibre.RedirectURI == "" {
		errs = append(errs, errors.New("mercadolibre.redirect_uri is required (or set REDIRECT_URI)"))
	}
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required (or set TELEGRAM_BOT_TOKEN)"))
	}
	if c.HTTP.Listen == "" {
		errs = append(errs, errors.New("http.listen is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) RefreshSkew() time.Duration {
	return time.Duration(c.MercadoLibre.RefreshSkewSeconds) * time.Second
}

func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.Metrics.IntervalSeconds) * time.Second
}

// MetricsFile defaults to metrics.log under the data directory.
func (c *Config) MetricsFile() string {
	if c.Metrics.File != "" {
		return c.Metrics.File
	}
	return filepath.Join(c.DataDir, "metrics.log")
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to its nested JSON map form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns cfg as dot-separated keys, optionally masking secrets.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the value stored in the config file under key. The
// file is created with defaults if missing.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	flat, err := readFlat(path)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under key in an existing config file. Values that
// parse as JSON (numbers, booleans) are stored typed unless the config
// field is a string.
func SetValue(path, key, value string) error {
	flat, err := readFlat(path)
	if err != nil {
		return err
	}

	var typed any
	if err := json.Unmarshal([]byte(value), &typed); err == nil {
		flat[key] = typed
		if fitsConfig(flat) {
			return writeFlat(path, flat)
		}
	}
	flat[key] = value
	if !fitsConfig(flat) {
		return fmt.Errorf("invalid value for %s: %q", key, value)
	}
	return writeFlat(path, flat)
}

func readFlat(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return Flatten(m), nil
}

func writeFlat(path string, flat map[string]any) error {
	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

// fitsConfig reports whether flat still decodes into a Config.
func fitsConfig(flat map[string]any) bool {
	data, err := json.Marshal(Unflatten(flat))
	if err != nil {
		return false
	}
	return json.Unmarshal(data, &Config{}) == nil
}
