package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe51296170827936ea5cce4b76994b0f"
	cfg.Vault.AdminAddress = "0x00000000000000000000000000000000000000AD"
	cfg.Vault.PlatformAccount = "0x0000000000000000000000000000000000000FEE"
	return cfg
}

func TestValidateDefaultsNeedCredentials(t *testing.T) {
	cfg := Defaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet")
	assert.Contains(t, err.Error(), "admin_address")
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsPartialMarketCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Market.ApiKey = "key-only"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_passphrase")
}

func TestValidateFeeCap(t *testing.T) {
	cfg := validConfig()
	cfg.Vault.DefaultFeeBps = 2501

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_fee_bps")
}

func TestValidateArchiveRequiresS3(t *testing.T) {
	cfg := validConfig()
	cfg.Archive.Enabled = true
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestEnvOverrides(t *testing.T) {
	cfg := validConfig()

	t.Setenv("VAULT_MODE", "archive")
	t.Setenv("VAULT_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("VAULT_MARKET_SUBMIT_TIMEOUT", "5s")
	t.Setenv("VAULT_VAULT_IGNORED", "x") // unknown keys are ignored

	applyEnvOverrides(&cfg)

	assert.Equal(t, "archive", cfg.Mode)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 5*time.Second, cfg.Market.SubmitTimeout.Duration)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.Market.ApiSecret = "s3cret"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Market.ApiSecret)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original is untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
