package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ApplyEnv loads a .env file from the working directory when present and
// overrides cfg with any of the recognised environment variables.
func ApplyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if port, ok := os.LookupEnv("PORT"); ok && port != "" {
		cfg.HTTP.Addr = ":" + port
	}
	setString(&cfg.HTTP.Addr, "WPHOOK_HTTP_ADDR")
	setString(&cfg.Webhook.VerifyToken, "WHATSAPP_VERIFY_TOKEN")
	setString(&cfg.Webhook.AppSecret, "WHATSAPP_APP_SECRET")
	setString(&cfg.Store.Path, "WPHOOK_DB_PATH")
	setString(&cfg.RPC.Socket, "WPHOOK_SOCKET")
	setString(&cfg.Log.Path, "WPHOOK_LOG_PATH")
	setString(&cfg.Log.Level, "WPHOOK_LOG_LEVEL")
	setString(&cfg.Account.DisplayName, "WPHOOK_DISPLAY_NAME")

	if v, ok := lookup("WPHOOK_SIMULATE_STATUS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WPHOOK_SIMULATE_STATUS: %w", err)
		}
		cfg.Simulator.Enabled = b
	}
	if err := setDuration(&cfg.Simulator.DeliveredAfter, "WPHOOK_DELIVERED_AFTER"); err != nil {
		return err
	}
	return setDuration(&cfg.Simulator.ReadAfter, "WPHOOK_READ_AFTER")
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
