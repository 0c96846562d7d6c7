package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"draftgap/internal/store"
)

// DotEnvFiles are loaded in order before the environment is read. Variables
// already set are never overwritten, so earlier files win.
var DotEnvFiles = []string{".env.local", ".env"}

// Load builds a Config by layering, lowest precedence first:
//  1. defaults (New)
//  2. YAML file if DRAFTGAP_CONFIG is set
//  3. env (prefix DRAFTGAP_), after .env files are applied
//  4. legacy variables for settings still empty
func Load(_ context.Context) (*Config, error) {
	if err := loadDotEnv(DotEnvFiles...); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path := os.Getenv("DRAFTGAP_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// DRAFTGAP_DB_DRIVER -> db_driver; underscores are kept to match the flat tags.
	envProvider := env.Provider("DRAFTGAP_", ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), "draftgap_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	applyLegacyEnv(&cfg, k)
	return &cfg, nil
}

// loadDotEnv applies each file that exists.
func loadDotEnv(paths ...string) error {
	for _, path := range paths {
		err := godotenv.Load(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
	}
	return nil
}

// applyLegacyEnv fills empty settings from the variable names used before
// the DRAFTGAP_ prefix existed.
func applyLegacyEnv(cfg *Config, k *koanf.Koanf) {
	fallback := func(dst *string, name string) {
		if *dst == "" {
			*dst = os.Getenv(name)
		}
	}
	fallback(&cfg.RiotAPIKey, "RIOT_API_KEY")
	fallback(&cfg.DiscordWebhookURL, "DISCORD_WEBHOOK_URL")
	fallback(&cfg.DiscordBotToken, "DISCORD_BOT_TOKEN")
	fallback(&cfg.DiscordChannelID, "DISCORD_CHANNEL_ID")
	if v := os.Getenv("RIOT_REGION"); v != "" && !k.Exists("riot_platform") {
		cfg.RiotPlatform = v
	}
	if v := os.Getenv("RIOT_ROUTING"); v != "" && !k.Exists("riot_routing") {
		cfg.RiotRouting = v
	}

	if cfg.DBDSN != "" {
		return
	}
	if url := os.Getenv("TURSO_DATABASE_URL"); url != "" {
		cfg.DBDSN = url
		fallback(&cfg.DBAuthToken, "TURSO_AUTH_TOKEN")
		if !k.Exists("db_driver") {
			cfg.DBDriver = store.DriverLibSQL
		}
		return
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.DBDSN = url
		if !k.Exists("db_driver") {
			cfg.DBDriver = store.DriverPostgres
		}
	}
}
