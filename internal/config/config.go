// Package config loads collector settings from defaults, an optional YAML
// file, .env files and the environment.
package config

import (
	"fmt"
	"strings"

	"draftgap/internal/catalog"
	"draftgap/internal/collector"
	"draftgap/internal/riot"
	"draftgap/internal/store"
	"draftgap/internal/storage"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	RiotAPIKey   string `koanf:"riot_api_key"`
	RiotPlatform string `koanf:"riot_platform"`
	RiotRouting  string `koanf:"riot_routing"`

	// Collection defaults, overridden by collect flags.
	Tier             string `koanf:"tier"`
	Division         string `koanf:"division"`
	StartPage        int    `koanf:"start_page"`
	Pages            int    `koanf:"pages"`
	MatchesPerPlayer int    `koanf:"matches_per_player"`
	Apex             bool   `koanf:"apex"`

	DBDriver    string `koanf:"db_driver"`
	DBDSN       string `koanf:"db_dsn"`
	DBAuthToken string `koanf:"db_auth_token"`

	DDragonURL             string `koanf:"ddragon_url"`
	DDragonFallbackVersion string `koanf:"ddragon_fallback_version"`
	Locale                 string `koanf:"locale"`

	// ArchiveDir enables the raw match archive when set.
	ArchiveDir        string `koanf:"archive_dir"`
	ArchiveMaxMatches int    `koanf:"archive_max_matches"`
	// ArchiveCompress gzips rotated files into cold/ after each run.
	ArchiveCompress bool `koanf:"archive_compress"`

	DiscordWebhookURL string `koanf:"discord_webhook_url"`
	// A bot token and channel let schedule wait for a replacement key
	// after the current one is rejected.
	DiscordBotToken  string `koanf:"discord_bot_token"`
	DiscordChannelID string `koanf:"discord_channel_id"`
	DiscordAPIURL    string `koanf:"discord_api_url"`

	MetricsTextfile string `koanf:"metrics_textfile"`
	MetricsAddr     string `koanf:"metrics_addr"`

	ScheduleCron string `koanf:"schedule_cron"`

	ExportDir         string `koanf:"export_dir"`
	S3Bucket          string `koanf:"s3_bucket"`
	S3Region          string `koanf:"s3_region"`
	S3Endpoint        string `koanf:"s3_endpoint"`
	S3AccessKeyID     string `koanf:"s3_access_key_id"`
	S3SecretAccessKey string `koanf:"s3_secret_access_key"`
	S3Prefix          string `koanf:"s3_prefix"`
	S3PublicBaseURL   string `koanf:"s3_public_base_url"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		RiotPlatform:           "na1",
		RiotRouting:            "americas",
		Tier:                   collector.DefaultTier,
		Division:               collector.DefaultDivision,
		StartPage:              1,
		Pages:                  1,
		MatchesPerPlayer:       collector.DefaultMatchesPerPlayer,
		DBDriver:               store.DriverSQLite,
		DDragonURL:             catalog.DefaultBaseURL,
		DDragonFallbackVersion: catalog.DefaultFallbackVersion,
		Locale:                 "en",
		ArchiveMaxMatches:      storage.MaxMatchesPerFile,
		ArchiveCompress:        true,
		ScheduleCron:           "0 */6 * * *",
		DiscordAPIURL:          "https://discord.com/api/v10",
		ExportDir:              "export",
		S3Region:               "auto",
	}
}

// Validate checks the collection and storage settings.
func (c *Config) Validate() error {
	tier := strings.ToUpper(c.Tier)
	if !c.Apex {
		if riot.IsApexTier(tier) {
			return fmt.Errorf("%w: tier %s has no divisions, use apex mode", ErrInvalidConfig, tier)
		}
		if !isLadderTier(tier) {
			return fmt.Errorf("%w: unknown tier %q", ErrInvalidConfig, c.Tier)
		}
		if !riot.IsDivision(strings.ToUpper(c.Division)) {
			return fmt.Errorf("%w: unknown division %q", ErrInvalidConfig, c.Division)
		}
	}
	if c.StartPage < 1 {
		return fmt.Errorf("%w: start_page must be at least 1", ErrInvalidConfig)
	}
	if c.Pages < 1 {
		return fmt.Errorf("%w: pages must be at least 1", ErrInvalidConfig)
	}
	if c.MatchesPerPlayer < 1 || c.MatchesPerPlayer > 100 {
		return fmt.Errorf("%w: matches_per_player must be between 1 and 100", ErrInvalidConfig)
	}
	switch strings.ToLower(c.DBDriver) {
	case store.DriverSQLite, store.DriverLibSQL, "turso":
	case store.DriverPostgres, "postgresql", "pgx":
		if c.DBDSN == "" {
			return fmt.Errorf("%w: postgres requires db_dsn or DATABASE_URL", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown db_driver %q", ErrInvalidConfig, c.DBDriver)
	}
	return nil
}

// StoreOptions returns the store connection settings.
func (c *Config) StoreOptions(readOnly bool) store.Options {
	return store.Options{
		Driver:    c.DBDriver,
		DSN:       c.DBDSN,
		AuthToken: c.DBAuthToken,
		ReadOnly:  readOnly,
	}
}

// CollectorConfig returns the enumeration settings.
func (c *Config) CollectorConfig() collector.Config {
	return collector.Config{
		Tier:             c.Tier,
		Division:         c.Division,
		StartPage:        c.StartPage,
		Pages:            c.Pages,
		MatchesPerPlayer: c.MatchesPerPlayer,
		Apex:             c.Apex,
	}
}

func isLadderTier(tier string) bool {
	switch tier {
	case "IRON", "BRONZE", "SILVER", "GOLD", "PLATINUM", "EMERALD", "DIAMOND":
		return true
	}
	return false
}
