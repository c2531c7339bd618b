package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("NOTIFY_MIN_DELAY_MS", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", cfg.App.Addr())
	assert.Equal(t, 2*time.Second, cfg.Notification.MinDelay())
	assert.Equal(t, "qr_codes", cfg.Storage.QRBucket)
	assert.Equal(t, "880", cfg.Phone.CountryCode)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "8081")
	t.Setenv("WHATSAPP_ENABLED", "true")
	t.Setenv("WHATSAPP_PAIRING_TIMEOUT_SECONDS", "45")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("AUTH_BCRYPT_COST", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.App.Port)
	assert.True(t, cfg.WhatsApp.Enabled)
	assert.Equal(t, 45*time.Second, cfg.WhatsApp.PairingTimeout())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
}

func TestLoadRejectsInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	_, err := Load()
	require.Error(t, err)
}
