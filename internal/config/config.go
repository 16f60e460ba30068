package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents ~/.wphook/config.toml.
type Config struct {
	HTTP      HTTPConfig      `toml:"http"`
	Webhook   WebhookConfig   `toml:"webhook"`
	Store     StoreConfig     `toml:"store"`
	RPC       RPCConfig       `toml:"rpc"`
	Log       LogConfig       `toml:"log"`
	Simulator SimulatorConfig `toml:"simulator"`
	Account   AccountConfig   `toml:"account"`
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// WebhookConfig holds the provider handshake secret and the optional app
// secret used to verify X-Hub-Signature-256 on deliveries.
type WebhookConfig struct {
	VerifyToken string `toml:"verify_token"`
	AppSecret   string `toml:"app_secret"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type RPCConfig struct {
	Socket string `toml:"socket"`
}

type LogConfig struct {
	Path  string `toml:"path"`
	Level string `toml:"level"`
}

// SimulatorConfig controls the deferred sent -> delivered -> read transitions
// applied to locally sent messages.
type SimulatorConfig struct {
	Enabled        bool          `toml:"enabled"`
	DeliveredAfter time.Duration `toml:"delivered_after"`
	ReadAfter      time.Duration `toml:"read_after"`
}

type AccountConfig struct {
	DisplayName string `toml:"display_name"`
}

// BaseDir returns ~/.wphook.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wphook")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	base := BaseDir()
	return &Config{
		HTTP:    HTTPConfig{Addr: ":5000"},
		Store:   StoreConfig{Path: filepath.Join(base, "wphook.db")},
		RPC:     RPCConfig{Socket: filepath.Join(base, "wphookd.sock")},
		Log:     LogConfig{Path: filepath.Join(base, "logs", "wphookd.log"), Level: "info"},
		Account: AccountConfig{DisplayName: "You"},
		Simulator: SimulatorConfig{
			Enabled:        true,
			DeliveredAfter: 2 * time.Second,
			ReadAfter:      3 * time.Second,
		},
	}
}

// Load reads config from the given path on top of Default. Returns error if
// the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve loads the file at path when it exists, falls back to Default when it
// does not, then applies .env and environment overrides.
func Resolve(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Dir returns the directory holding the store, used for the daemon lock.
func (c *Config) Dir() string {
	return filepath.Dir(c.Store.Path)
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
