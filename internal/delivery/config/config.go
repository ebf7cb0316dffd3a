// Package config loads and validates the producer settings. Values are read
// once from the environment (prefix POSTMAN_) and treated as immutable after
// validation.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"postman/internal/delivery/metrics"
	"postman/internal/delivery/tracing"
)

const (
	// EnvPrefix is prepended to every environment variable the config reads.
	EnvPrefix = "POSTMAN_"

	// DefaultBroker is used when neither POSTMAN_BROKERS nor KAFKA_HOST is set.
	DefaultBroker = "localhost:9092"

	BackendKafka     = "kafka"
	BackendCouchbase = "couchbase"
)

// Config is the full set of producer settings.
type Config struct {
	Brokers  []string `env:"BROKERS" envDefault:"${KAFKA_HOST}" envExpand:"true" envSeparator:","`
	ClientID string   `env:"CLIENT_ID" envDefault:"postman"`
	LogLevel string   `env:"LOG_LEVEL" envDefault:"info"`
	Backend  string   `env:"BACKEND" envDefault:"kafka"`

	// Buffering
	MaxBufferBytesize int `env:"MAX_BUFFER_BYTESIZE" envDefault:"10000000"`
	MaxBufferSize     int `env:"MAX_BUFFER_SIZE" envDefault:"1000"`
	MaxQueueSize      int `env:"MAX_QUEUE_SIZE" envDefault:"1000"`

	// Network timeouts
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
	SocketTimeout  time.Duration `env:"SOCKET_TIMEOUT" envDefault:"30s"`

	// Delivery
	AckTimeout        time.Duration `env:"ACK_TIMEOUT" envDefault:"5s"`
	DeliveryInterval  time.Duration `env:"DELIVERY_INTERVAL" envDefault:"10s"`
	DeliveryThreshold int           `env:"DELIVERY_THRESHOLD" envDefault:"100"`
	MaxRetries        int           `env:"MAX_RETRIES" envDefault:"2"`
	RequiredAcks      int           `env:"REQUIRED_ACKS" envDefault:"-1"`
	RetryBackoff      time.Duration `env:"RETRY_BACKOFF" envDefault:"1s"`
	// RetryJitter spreads each backoff by up to this fraction in either
	// direction. Zero keeps the backoff flat.
	RetryJitter float64 `env:"RETRY_JITTER" envDefault:"0"`

	// Compression
	CompressionThreshold int    `env:"COMPRESSION_THRESHOLD" envDefault:"1"`
	CompressionCodec     string `env:"COMPRESSION_CODEC"`

	SSL       SSL                  `envPrefix:"SSL_"`
	SASL      SASL                 `envPrefix:"SASL_"`
	Couchbase Couchbase            `envPrefix:"COUCHBASE_"`
	Metrics   metrics.ServerConfig
	Tracing   tracing.Config

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"false"`
	TracingEnabled bool `env:"TRACING_ENABLED" envDefault:"false"`
}

// SSL holds transport security material. Certificates are PEM encoded.
type SSL struct {
	CACert            string `env:"CA_CERT"`
	CACertFilePath    string `env:"CA_CERT_FILE_PATH"`
	ClientCert        string `env:"CLIENT_CERT"`
	ClientCertKey     string `env:"CLIENT_CERT_KEY"`
	CACertsFromSystem bool   `env:"CA_CERTS_FROM_SYSTEM" envDefault:"false"`
}

// SASL holds broker authentication credentials.
type SASL struct {
	GSSAPIPrincipal string `env:"GSSAPI_PRINCIPAL"`
	GSSAPIKeytab    string `env:"GSSAPI_KEYTAB"`
	PlainAuthzid    string `env:"PLAIN_AUTHZID"`
	PlainUsername   string `env:"PLAIN_USERNAME"`
	PlainPassword   string `env:"PLAIN_PASSWORD"`
	ScramUsername   string `env:"SCRAM_USERNAME"`
	ScramPassword   string `env:"SCRAM_PASSWORD"`
	ScramMechanism  string `env:"SCRAM_MECHANISM"`
}

// Couchbase configures the document log backend.
type Couchbase struct {
	ConnectionString string        `env:"CONNECTION_STRING" envDefault:"couchbase://localhost"`
	Username         string        `env:"USERNAME" envDefault:"Administrator"`
	Password         string        `env:"PASSWORD" envDefault:"password"`
	Bucket           string        `env:"BUCKET_NAME" envDefault:"postman"`
	Scope            string        `env:"SCOPE_NAME" envDefault:"_default"`
	Collection       string        `env:"COLLECTION_NAME" envDefault:"records"`
	Partitions       int           `env:"PARTITIONS" envDefault:"1"`
	Retention        time.Duration `env:"RETENTION" envDefault:"168h"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, &Error{Problems: []string{fmt.Sprintf("failed to parse environment: %v", err)}}
	}
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{DefaultBroker}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the configuration with every default applied and no
// environment overrides.
func Default() Config {
	var cfg Config
	// Parsing an empty environment cannot fail on the defaults above.
	_ = env.ParseWithOptions(&cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{},
	})
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{DefaultBroker}
	}

	return cfg
}
