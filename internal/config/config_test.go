package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("BOOKING_JWT_SECRET", "s3cret")
	t.Setenv("BOOKING_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("BOOKING_PAYMENT_TIMEOUT", "2s")
	t.Setenv("BOOKING_SERVICE_PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaConfig.Brokers)
	assert.Equal(t, 2*time.Second, cfg.PaymentConfig.Timeout)
	assert.Equal(t, 3, cfg.EngineConfig.ConflictAttempts)
	assert.Equal(t, "postgres", cfg.StorageDriver)
	assert.True(t, cfg.PaymentConfig.RequireAuthorization)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"bad storage", map[string]string{"BOOKING_JWT_SECRET": "x", "BOOKING_STORAGE_DRIVER": "mongo"}},
		{"bad transport", map[string]string{"BOOKING_JWT_SECRET": "x", "BOOKING_NOTIFY_TRANSPORT": "smtp"}},
		{"bad attempts", map[string]string{"BOOKING_JWT_SECRET": "x", "BOOKING_ENGINE_CONFLICT_ATTEMPTS": "0"}},
		{"reconcile within payment timeout", map[string]string{
			"BOOKING_JWT_SECRET":             "x",
			"BOOKING_PAYMENT_TIMEOUT":        "10s",
			"BOOKING_ENGINE_RECONCILE_AFTER": "5s",
		}},
		{"zero reconcile interval", map[string]string{"BOOKING_JWT_SECRET": "x", "BOOKING_ENGINE_RECONCILE_INTERVAL": "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BOOKING_JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
