package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"draftgap/internal/config"
	"draftgap/internal/store"
)

var configEnvVars = []string{
	"DRAFTGAP_CONFIG", "DRAFTGAP_TIER", "DRAFTGAP_PAGES", "DRAFTGAP_APEX", "DRAFTGAP_DB_DRIVER",
	"DRAFTGAP_DB_DSN", "DRAFTGAP_RIOT_API_KEY", "DRAFTGAP_RIOT_PLATFORM", "DRAFTGAP_LOG_LEVEL",
	"RIOT_API_KEY", "RIOT_REGION", "RIOT_ROUTING", "DATABASE_URL",
	"TURSO_DATABASE_URL", "TURSO_AUTH_TOKEN", "DISCORD_WEBHOOK_URL", "DISCORD_BOT_TOKEN", "DISCORD_CHANNEL_ID",
}

// clearConfigEnv unsets every variable the loader reads and restores them after the test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range configEnvVars {
		t.Setenv(name, "")
		_ = os.Unsetenv(name)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	convey.Convey("Given no file and no environment", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then the defaults apply", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Tier, convey.ShouldEqual, "GOLD")
			convey.So(cfg.Division, convey.ShouldEqual, "I")
			convey.So(cfg.Pages, convey.ShouldEqual, 1)
			convey.So(cfg.MatchesPerPlayer, convey.ShouldEqual, 5)
			convey.So(cfg.DBDriver, convey.ShouldEqual, store.DriverSQLite)
			convey.So(cfg.RiotPlatform, convey.ShouldEqual, "na1")
			convey.So(cfg.DDragonFallbackVersion, convey.ShouldEqual, "15.3.1")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestLoadFileAndEnv(t *testing.T) {
	clearConfigEnv(t)
	path := writeFile(t, "draftgap.yaml", `
tier: diamond
division: ii
pages: 3
db_driver: sqlite
db_dsn: /tmp/draftgap.db
discord_webhook_url: https://discord.example/hook
`)
	t.Setenv("DRAFTGAP_CONFIG", path)
	t.Setenv("DRAFTGAP_PAGES", "7")
	t.Setenv("DRAFTGAP_APEX", "true")

	convey.Convey("Given a YAML file and environment overrides", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then env wins over the file and the file over defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Tier, convey.ShouldEqual, "diamond")
			convey.So(cfg.Division, convey.ShouldEqual, "ii")
			convey.So(cfg.Pages, convey.ShouldEqual, 7)
			convey.So(cfg.Apex, convey.ShouldBeTrue)
			convey.So(cfg.DBDSN, convey.ShouldEqual, "/tmp/draftgap.db")
			convey.So(cfg.DiscordWebhookURL, convey.ShouldEqual, "https://discord.example/hook")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestLoadInvalidFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DRAFTGAP_CONFIG", writeFile(t, "bad.yaml", "invalid: yaml: content: ["))

	convey.Convey("Given an invalid YAML file", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then loading fails with ErrLoadConfig", func() {
			convey.So(cfg, convey.ShouldBeNil)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})
	})
}

func TestLoadLegacyEnv(t *testing.T) {
	convey.Convey("Given legacy variables", t, func() {
		clearConfigEnv(t)
		t.Setenv("RIOT_API_KEY", "RGAPI-legacy")
		t.Setenv("RIOT_REGION", "euw1")
		t.Setenv("RIOT_ROUTING", "europe")

		convey.Convey("When DATABASE_URL is set", func() {
			t.Setenv("DATABASE_URL", "postgres://u:p@localhost/draftgap")
			cfg, err := config.Load(context.Background())

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.RiotAPIKey, convey.ShouldEqual, "RGAPI-legacy")
			convey.So(cfg.RiotPlatform, convey.ShouldEqual, "euw1")
			convey.So(cfg.RiotRouting, convey.ShouldEqual, "europe")
			convey.So(cfg.DBDriver, convey.ShouldEqual, store.DriverPostgres)
			convey.So(cfg.DBDSN, convey.ShouldEqual, "postgres://u:p@localhost/draftgap")
		})

		convey.Convey("When TURSO_DATABASE_URL is set", func() {
			t.Setenv("TURSO_DATABASE_URL", "libsql://draftgap.turso.io")
			t.Setenv("TURSO_AUTH_TOKEN", "token")
			t.Setenv("DATABASE_URL", "postgres://ignored")
			cfg, err := config.Load(context.Background())

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.DBDriver, convey.ShouldEqual, store.DriverLibSQL)
			convey.So(cfg.DBDSN, convey.ShouldEqual, "libsql://draftgap.turso.io")
			convey.So(cfg.DBAuthToken, convey.ShouldEqual, "token")
		})

		convey.Convey("When the prefixed variables are also set", func() {
			t.Setenv("DRAFTGAP_RIOT_API_KEY", "RGAPI-new")
			t.Setenv("DRAFTGAP_RIOT_PLATFORM", "kr")
			t.Setenv("DRAFTGAP_DB_DRIVER", "sqlite")
			t.Setenv("DATABASE_URL", "postgres://ignored")
			cfg, err := config.Load(context.Background())

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.RiotAPIKey, convey.ShouldEqual, "RGAPI-new")
			convey.So(cfg.RiotPlatform, convey.ShouldEqual, "kr")
			convey.So(cfg.DBDriver, convey.ShouldEqual, store.DriverSQLite)
		})
	})
}

func TestLoadDotEnv(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env.local"), []byte("RIOT_API_KEY=RGAPI-local\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("RIOT_API_KEY=RGAPI-shared\nDRAFTGAP_PAGES=4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	saved := config.DotEnvFiles
	config.DotEnvFiles = []string{filepath.Join(dir, ".env.local"), filepath.Join(dir, ".env"), filepath.Join(dir, "missing")}
	t.Cleanup(func() { config.DotEnvFiles = saved })

	convey.Convey("Given .env.local and .env files", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then .env.local wins and missing files are skipped", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.RiotAPIKey, convey.ShouldEqual, "RGAPI-local")
			convey.So(cfg.Pages, convey.ShouldEqual, 4)
		})
	})
}
