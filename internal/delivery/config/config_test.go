package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// unsetenv clears key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "postman", cfg.ClientID)
	assert.Equal(t, BackendKafka, cfg.Backend)
	assert.Equal(t, 10_000_000, cfg.MaxBufferBytesize)
	assert.Equal(t, 1000, cfg.MaxBufferSize)
	assert.Equal(t, 1000, cfg.MaxQueueSize)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.SocketTimeout)
	assert.Equal(t, 5*time.Second, cfg.AckTimeout)
	assert.Equal(t, 10*time.Second, cfg.DeliveryInterval)
	assert.Equal(t, 100, cfg.DeliveryThreshold)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, -1, cfg.RequiredAcks)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, 1, cfg.CompressionThreshold)
	assert.Empty(t, cfg.CompressionCodec)
	assert.NotEmpty(t, cfg.Brokers)
	assert.Equal(t, 1, cfg.Couchbase.Partitions)
	assert.Equal(t, 7*24*time.Hour, cfg.Couchbase.Retention)

	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("POSTMAN_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("POSTMAN_CLIENT_ID", "billing")
	t.Setenv("POSTMAN_MAX_RETRIES", "5")
	t.Setenv("POSTMAN_DELIVERY_INTERVAL", "250ms")
	t.Setenv("POSTMAN_REQUIRED_ACKS", "1")
	t.Setenv("POSTMAN_COMPRESSION_CODEC", "snappy")
	t.Setenv("POSTMAN_SASL_SCRAM_USERNAME", "svc")
	t.Setenv("POSTMAN_SASL_SCRAM_PASSWORD", "secret")
	t.Setenv("POSTMAN_SASL_SCRAM_MECHANISM", "sha512")
	t.Setenv("POSTMAN_METRICS_PORT", "9191")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	assert.Equal(t, "billing", cfg.ClientID)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.DeliveryInterval)
	assert.Equal(t, 1, cfg.RequiredAcks)
	assert.Equal(t, "snappy", cfg.CompressionCodec)
	assert.Equal(t, "svc", cfg.SASL.ScramUsername)
	assert.Equal(t, 9191, cfg.Metrics.Port)
}

func TestLoad_BrokersFromKafkaHost(t *testing.T) {
	unsetenv(t, "POSTMAN_BROKERS")
	t.Setenv("KAFKA_HOST", "kafka.internal:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka.internal:9092"}, cfg.Brokers)
}

func TestLoad_BrokersFallback(t *testing.T) {
	unsetenv(t, "POSTMAN_BROKERS")
	unsetenv(t, "KAFKA_HOST")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultBroker}, cfg.Brokers)
}

func TestLoad_ParseFailureIsConfigError(t *testing.T) {
	t.Setenv("POSTMAN_ACK_TIMEOUT", "soon")

	_, err := Load()
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("POSTMAN_LOG_LEVEL", "verbose")

	_, err := Load()
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Error(), "log_level")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains []string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:        "negative buffer size",
			mutate:      func(c *Config) { c.MaxBufferSize = -1 },
			errContains: []string{"max_buffer_size"},
		},
		{
			name:        "negative backoff",
			mutate:      func(c *Config) { c.RetryBackoff = -time.Second },
			errContains: []string{"retry_backoff"},
		},
		{
			name:        "required acks out of range",
			mutate:      func(c *Config) { c.RequiredAcks = 2 },
			errContains: []string{"required_acks"},
		},
		{
			name:        "unknown codec",
			mutate:      func(c *Config) { c.CompressionCodec = "brotli" },
			errContains: []string{"compression_codec"},
		},
		{
			name:        "unknown backend",
			mutate:      func(c *Config) { c.Backend = "rabbit" },
			errContains: []string{"backend"},
		},
		{
			name:        "empty broker",
			mutate:      func(c *Config) { c.Brokers = []string{"kafka:9092", " "} },
			errContains: []string{"brokers[1]"},
		},
		{
			name:        "jitter out of range",
			mutate:      func(c *Config) { c.RetryJitter = 1.5 },
			errContains: []string{"retry_jitter"},
		},
		{
			name: "client cert without key",
			mutate: func(c *Config) {
				c.SSL.ClientCert = "-----BEGIN CERTIFICATE-----"
			},
			errContains: []string{"client_cert_key"},
		},
		{
			name: "gssapi unsupported",
			mutate: func(c *Config) {
				c.SASL.GSSAPIPrincipal = "kafka/host@REALM"
			},
			errContains: []string{"gssapi"},
		},
		{
			name: "plain and scram together",
			mutate: func(c *Config) {
				c.SASL.PlainUsername, c.SASL.PlainPassword = "u", "p"
				c.SASL.ScramUsername, c.SASL.ScramPassword, c.SASL.ScramMechanism = "u", "p", "sha256"
			},
			errContains: []string{"mutually exclusive"},
		},
		{
			name: "scram with bad mechanism",
			mutate: func(c *Config) {
				c.SASL.ScramUsername, c.SASL.ScramPassword, c.SASL.ScramMechanism = "u", "p", "md5"
			},
			errContains: []string{"scram_mechanism"},
		},
		{
			name: "couchbase without partitions",
			mutate: func(c *Config) {
				c.Backend = BackendCouchbase
				c.Couchbase.Partitions = 0
			},
			errContains: []string{"couchbase.partitions"},
		},
		{
			name: "accumulates every problem",
			mutate: func(c *Config) {
				c.ClientID = ""
				c.MaxRetries = -3
			},
			errContains: []string{"client_id", "max_retries"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if len(tt.errContains) == 0 {
				assert.NoError(t, err)
				return
			}

			var cerr *Error
			require.True(t, errors.As(err, &cerr), "expected *Error, got %v", err)
			for _, s := range tt.errContains {
				assert.Contains(t, cerr.Error(), s)
			}
		})
	}
}

func TestConfig_Level(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	assert.Equal(t, zapcore.DebugLevel, cfg.Level())

	cfg.LogLevel = "WARN"
	assert.Equal(t, zapcore.WarnLevel, cfg.Level())
}

func TestSSL_TLSConfig(t *testing.T) {
	t.Run("nothing configured", func(t *testing.T) {
		tlsCfg, err := SSL{}.TLSConfig()
		require.NoError(t, err)
		assert.Nil(t, tlsCfg)
	})

	t.Run("system pool", func(t *testing.T) {
		tlsCfg, err := SSL{CACertsFromSystem: true}.TLSConfig()
		require.NoError(t, err)
		require.NotNil(t, tlsCfg)
		assert.NotNil(t, tlsCfg.RootCAs)
	})

	t.Run("garbage ca cert", func(t *testing.T) {
		_, err := SSL{CACert: "not a certificate"}.TLSConfig()
		assert.Error(t, err)
	})

	t.Run("missing ca file", func(t *testing.T) {
		_, err := SSL{CACertFilePath: filepath.Join(t.TempDir(), "missing.pem")}.TLSConfig()
		assert.Error(t, err)
	})
}
