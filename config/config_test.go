package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TAX_RATE", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 20, cfg.Business.DefaultPageSize)
	assert.Equal(t, 100, cfg.Business.MaxPageSize)
	assert.True(t, cfg.Business.TaxRate.IsZero())
	assert.Equal(t, 10*time.Minute, cfg.Business.CatalogCacheTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("TAX_RATE", "0.08")
	t.Setenv("SHIPPING_FLAT", "12.50")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "0.08", cfg.Business.TaxRate.String())
	assert.Equal(t, "12.5", cfg.Business.ShippingFlat.String())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadInvalidDecimalFallsBack(t *testing.T) {
	t.Setenv("TAX_RATE", "abc")

	cfg := Load()

	assert.True(t, cfg.Business.TaxRate.IsZero())
}

func TestLoadPaymentSimulator(t *testing.T) {
	t.Setenv("PAYMENT_SIMULATOR_ENABLED", "true")
	t.Setenv("PAYMENT_SUCCESS_RATE", "1.5")

	cfg := Load()

	assert.True(t, cfg.Payment.SimulatorEnabled)
	assert.Equal(t, 0.9, cfg.Payment.SuccessRate)
}

func TestLoadObservability(t *testing.T) {
	t.Setenv("JAEGER_ENDPOINT", "")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.25")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, "storefront", cfg.Observ.ServiceName)
	assert.Empty(t, cfg.Observ.JaegerEndpoint)
	assert.Equal(t, 0.25, cfg.Observ.SampleRatio)
	assert.Equal(t, "debug", cfg.Observ.LogLevel)
}
