package config

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap/zapcore"
)

var (
	codecs          = []string{"", "gzip", "snappy", "lz4", "zstd"}
	scramMechanisms = []string{"sha256", "sha512"}
)

// Validate checks the configuration and returns an *Error listing every
// problem, or nil.
func (c Config) Validate() error {
	var problems []string
	nonNegative := func(name string, v int64) {
		if v < 0 {
			problems = append(problems, fmt.Sprintf("%s: must not be negative, got %d", name, v))
		}
	}

	if c.ClientID == "" {
		problems = append(problems, "client_id: must not be empty")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("log_level: unknown level %q", c.LogLevel))
	}

	switch c.Backend {
	case BackendKafka:
		if len(c.Brokers) == 0 {
			problems = append(problems, "brokers: at least one broker is required")
		}
		for i, b := range c.Brokers {
			if strings.TrimSpace(b) == "" {
				problems = append(problems, fmt.Sprintf("brokers[%d]: must not be empty", i))
			}
		}
	case BackendCouchbase:
		problems = append(problems, c.Couchbase.validate()...)
	default:
		problems = append(problems, fmt.Sprintf("backend: must be %q or %q, got %q", BackendKafka, BackendCouchbase, c.Backend))
	}

	nonNegative("max_buffer_bytesize", int64(c.MaxBufferBytesize))
	nonNegative("max_buffer_size", int64(c.MaxBufferSize))
	nonNegative("max_queue_size", int64(c.MaxQueueSize))
	nonNegative("connect_timeout", int64(c.ConnectTimeout))
	nonNegative("socket_timeout", int64(c.SocketTimeout))
	nonNegative("ack_timeout", int64(c.AckTimeout))
	nonNegative("delivery_interval", int64(c.DeliveryInterval))
	nonNegative("delivery_threshold", int64(c.DeliveryThreshold))
	nonNegative("max_retries", int64(c.MaxRetries))
	nonNegative("retry_backoff", int64(c.RetryBackoff))
	nonNegative("compression_threshold", int64(c.CompressionThreshold))

	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		problems = append(problems, fmt.Sprintf("retry_jitter: must be within [0, 1], got %v", c.RetryJitter))
	}

	switch c.RequiredAcks {
	case -1, 0, 1:
	default:
		problems = append(problems, fmt.Sprintf("required_acks: must be -1, 0 or 1, got %d", c.RequiredAcks))
	}

	if !slices.Contains(codecs, c.CompressionCodec) {
		problems = append(problems, fmt.Sprintf("compression_codec: unsupported codec %q", c.CompressionCodec))
	}

	problems = append(problems, c.SSL.validate()...)
	problems = append(problems, c.SASL.validate()...)

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

// Level returns the log level. It assumes the config has been validated and
// falls back to info otherwise.
func (c Config) Level() zapcore.Level {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func (s SSL) validate() []string {
	var problems []string
	if s.CACert != "" && s.CACertFilePath != "" {
		problems = append(problems, "ssl: ca_cert and ca_cert_file_path are mutually exclusive")
	}
	if (s.ClientCert == "") != (s.ClientCertKey == "") {
		problems = append(problems, "ssl: client_cert and client_cert_key must be set together")
	}
	return problems
}

func (s SASL) validate() []string {
	var problems []string
	if s.GSSAPIPrincipal != "" || s.GSSAPIKeytab != "" {
		problems = append(problems, "sasl: gssapi authentication is not supported")
	}
	if s.PlainAuthzid != "" {
		problems = append(problems, "sasl: plain_authzid is not supported")
	}

	plain := s.PlainUsername != "" || s.PlainPassword != ""
	scram := s.ScramUsername != "" || s.ScramPassword != "" || s.ScramMechanism != ""
	switch {
	case plain && scram:
		problems = append(problems, "sasl: plain and scram credentials are mutually exclusive")
	case plain && (s.PlainUsername == "" || s.PlainPassword == ""):
		problems = append(problems, "sasl: plain_username and plain_password must be set together")
	case scram:
		if s.ScramUsername == "" || s.ScramPassword == "" {
			problems = append(problems, "sasl: scram_username and scram_password must be set together")
		}
		if !slices.Contains(scramMechanisms, strings.ToLower(s.ScramMechanism)) {
			problems = append(problems, fmt.Sprintf("sasl: scram_mechanism must be sha256 or sha512, got %q", s.ScramMechanism))
		}
	}
	return problems
}

func (c Couchbase) validate() []string {
	var problems []string
	if c.ConnectionString == "" {
		problems = append(problems, "couchbase.connection_string: must not be empty")
	}
	if c.Bucket == "" {
		problems = append(problems, "couchbase.bucket_name: must not be empty")
	}
	if c.Scope == "" || c.Collection == "" {
		problems = append(problems, "couchbase: scope_name and collection_name must not be empty")
	}
	if c.Partitions < 1 {
		problems = append(problems, fmt.Sprintf("couchbase.partitions: must be at least 1, got %d", c.Partitions))
	}
	if c.Retention < 0 {
		problems = append(problems, "couchbase.retention: must not be negative")
	}
	return problems
}
