package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnvVars clears all craftfolio-related environment variables.
func clearEnvVars() {
	envVars := []string{
		"APP_ENV", "LOG_LEVEL", "HTTP_ADDR",
		"DATABASE_URL", "REDIS_URL", "RABBITMQ_URL",
		"REGISTRAR_BASE_URL", "REGISTRAR_API_KEY", "REGISTRAR_API_SECRET",
		"HOSTING_BASE_URL", "HOSTING_PROJECT_ID", "HOSTING_TOKEN",
		"PRICING_FLAT_RETAIL_PRICE", "PRICING_FIXED_MARKUP", "PRICING_PRICE_LIST_TTL",
		"STRIPE_API_KEY", "STRIPE_WEBHOOK_SECRET",
		"CHECKOUT_SUCCESS_URL", "CHECKOUT_CANCEL_URL",
		"AUTH_TOKEN_SECRET", "FULFILLMENT_CLAIM_TTL",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Application defaults
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr)

	// Infrastructure defaults
	assert.Contains(t, cfg.DatabaseURL, "postgres://")
	assert.Contains(t, cfg.RedisURL, "redis://")
	assert.Contains(t, cfg.RabbitMQURL, "amqp://")

	// Registrar and hosting default to sandbox endpoints with no creds
	assert.Equal(t, "https://api.ote-godaddy.com", cfg.RegistrarBaseURL)
	assert.Equal(t, "", cfg.RegistrarAPIKey)
	assert.Equal(t, "https://api.vercel.com", cfg.HostingBaseURL)

	// Pricing defaults
	assert.Equal(t, "20.17", cfg.FlatRetailPrice)
	assert.Equal(t, "5.00", cfg.FixedMarkup)
	assert.Equal(t, 24*time.Hour, cfg.PriceListTTL)

	assert.Equal(t, 10*time.Minute, cfg.FulfillmentClaimTTL)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("APP_ENV", "production")
	os.Setenv("HTTP_ADDR", "127.0.0.1:9090")
	os.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	os.Setenv("PRICING_FLAT_RETAIL_PRICE", "24.99")
	os.Setenv("PRICING_PRICE_LIST_TTL", "1h")
	os.Setenv("STRIPE_API_KEY", "sk_test_abc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, "127.0.0.1:9090", cfg.HTTPAddr)
	assert.Equal(t, "postgres://test:test@db:5432/test", cfg.DatabaseURL)
	assert.Equal(t, "24.99", cfg.FlatRetailPrice)
	assert.Equal(t, time.Hour, cfg.PriceListTTL)
	assert.Equal(t, "sk_test_abc", cfg.StripeAPIKey)
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("PRICING_PRICE_LIST_TTL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.PriceListTTL)
}

func TestIsDevelopment(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	os.Setenv("APP_ENV", "production")
	cfg, err = Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}
