package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VAULT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VAULT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "VAULT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "VAULT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "VAULT_WALLET_KEY_PASSWORD")

	// ── Market ──
	setStr(&cfg.Market.BaseURL, "VAULT_MARKET_BASE_URL")
	setStr(&cfg.Market.WsURL, "VAULT_MARKET_WS_URL")
	setInt(&cfg.Market.ChainID, "VAULT_MARKET_CHAIN_ID")
	setStr(&cfg.Market.ApiKey, "VAULT_MARKET_API_KEY")
	setStr(&cfg.Market.ApiSecret, "VAULT_MARKET_API_SECRET")
	setStr(&cfg.Market.ApiPassphrase, "VAULT_MARKET_API_PASSPHRASE")
	setDuration(&cfg.Market.SubmitTimeout, "VAULT_MARKET_SUBMIT_TIMEOUT")

	// ── Vault ──
	setStr(&cfg.Vault.AdminAddress, "VAULT_ADMIN_ADDRESS")
	setStr(&cfg.Vault.PlatformAccount, "VAULT_PLATFORM_ACCOUNT")
	setStr(&cfg.Vault.Referrer, "VAULT_REFERRER")
	setInt64(&cfg.Vault.DefaultFeeBps, "VAULT_DEFAULT_FEE_BPS")
	setInt64(&cfg.Vault.MinCollateral, "VAULT_MIN_COLLATERAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "VAULT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "VAULT_POSTGRES_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "VAULT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VAULT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VAULT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VAULT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VAULT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VAULT_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "VAULT_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "VAULT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VAULT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VAULT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VAULT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VAULT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VAULT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VAULT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VAULT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VAULT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "VAULT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VAULT_S3_REGION")
	setStr(&cfg.S3.Bucket, "VAULT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VAULT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VAULT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VAULT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VAULT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "VAULT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "VAULT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "VAULT_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VAULT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VAULT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "VAULT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "VAULT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitRPM, "VAULT_SERVER_RATE_LIMIT_RPM")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VAULT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VAULT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VAULT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VAULT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "VAULT_MODE")
	setStr(&cfg.LogLevel, "VAULT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
