package core

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultEndpointURL = "https://192.168.11.100:34443/rest/interface"
	DefaultTargetMAC   = "D4:CA:6D:9E:F8:A0"
	DefaultCSVPath     = "iface_stats.csv"
	DefaultTimeoutSec  = 10.0
)

type Config struct {
	EndpointURL       string  `json:"endpoint_url" yaml:"endpoint_url"`
	TargetMAC         string  `json:"target_mac" yaml:"target_mac"`
	Username          string  `json:"username" yaml:"username"`
	Password          string  `json:"password" yaml:"password"`
	Insecure          bool    `json:"insecure" yaml:"insecure"`
	TimeoutSec        float64 `json:"timeout_sec" yaml:"timeout_sec"`
	CSVPath           string  `json:"csv_path" yaml:"csv_path"`
	DatabasePath      string  `json:"database_path" yaml:"database_path"`
	ListenAddr        string  `json:"listen_addr" yaml:"listen_addr"`
	APIKey            string  `json:"api_key" yaml:"api_key"`
	JWTSecret         string  `json:"jwt_secret" yaml:"jwt_secret"`
	AdminUser         string  `json:"admin_user" yaml:"admin_user"`
	AdminPasswordHash string  `json:"admin_password_hash" yaml:"admin_password_hash"`
	LogLevel          string  `json:"log_level" yaml:"log_level"`
	LogFormat         string  `json:"log_format" yaml:"log_format"` // "text" or "json"
	ConfigPath        string  `json:"-" yaml:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		EndpointURL: DefaultEndpointURL,
		TargetMAC:   DefaultTargetMAC,
		TimeoutSec:  DefaultTimeoutSec,
		CSVPath:     DefaultCSVPath,
		ListenAddr:  ":8080",
		AdminUser:   "admin",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// LoadConfig layers defaults, the config file, a .env file next to the
// working directory and the environment, in that order. A missing config
// file is not an error.
func LoadConfig(path ...string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := "config.json"
	if len(path) > 0 && path[0] != "" {
		configPath = path[0]
	}
	cfg.ConfigPath = configPath

	raw, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := decodeConfig(configPath, raw, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, configPath, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	// .env is optional; variables already set in the process win.
	_ = godotenv.Load()
	cfg.applyEnv()
	return cfg, nil
}

func decodeConfig(path string, raw []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(raw, cfg)
	default:
		return json.Unmarshal(raw, cfg)
	}
}

func (c *Config) applyEnv() {
	c.EndpointURL = env("IFSTAT_URL", c.EndpointURL)
	c.TargetMAC = env("IFSTAT_MAC", c.TargetMAC)
	c.CSVPath = env("IFSTAT_CSV", c.CSVPath)
	c.DatabasePath = env("IFSTAT_SQLITE", c.DatabasePath)
	c.TimeoutSec = envFloat("IFSTAT_TIMEOUT", c.TimeoutSec)
	c.Insecure = envBool("IFSTAT_INSECURE", c.Insecure)
	c.ListenAddr = env("IFSTAT_LISTEN", c.ListenAddr)
	c.APIKey = env("IFSTAT_API_KEY", c.APIKey)
	c.JWTSecret = env("IFSTAT_JWT_SECRET", c.JWTSecret)
	c.LogLevel = strings.ToLower(env("IFSTAT_LOG_LEVEL", c.LogLevel))
	// legacy variable names used by the router scripts
	c.Username = env("IFSTAT_USER", env("api", c.Username))
	c.Password = env("IFSTAT_PASSWORD", env("counter", c.Password))
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec * float64(time.Second))
}

// CSVEnabled reports whether the flat-file sink is on. The path "none"
// turns it off.
func (c *Config) CSVEnabled() bool {
	p := strings.TrimSpace(c.CSVPath)
	return p != "" && !strings.EqualFold(p, "none")
}

func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

func (c *Config) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.Insecure, //nolint:gosec
	}
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.EndpointURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: endpoint url %q", ErrInvalidConfig, c.EndpointURL)
	}
	if NormalizeMAC(c.TargetMAC) == "" {
		return fmt.Errorf("%w: target mac is empty", ErrInvalidConfig)
	}
	if c.TimeoutSec <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if !c.CSVEnabled() && strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("%w: no csv or sqlite path set", ErrInvalidConfig)
	}
	return nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
