package config

import (
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// SASLMechanism returns the configured authentication mechanism, or nil when
// no credentials are set. The config must have been validated.
func (s SASL) SASLMechanism() (sasl.Mechanism, error) {
	switch {
	case s.PlainUsername != "":
		return plain.Mechanism{Username: s.PlainUsername, Password: s.PlainPassword}, nil
	case s.ScramUsername != "":
		algo := scram.SHA256
		if strings.EqualFold(s.ScramMechanism, "sha512") {
			algo = scram.SHA512
		}
		m, err := scram.Mechanism(algo, s.ScramUsername, s.ScramPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to create scram mechanism: %w", err)
		}
		return m, nil
	default:
		return nil, nil
	}
}

// Compression maps CompressionCodec to the writer codec. ok is false when
// compression is disabled.
func (c Config) Compression() (codec kafka.Compression, ok bool) {
	switch strings.ToLower(c.CompressionCodec) {
	case "gzip":
		return kafka.Gzip, true
	case "snappy":
		return kafka.Snappy, true
	case "lz4":
		return kafka.Lz4, true
	case "zstd":
		return kafka.Zstd, true
	default:
		return 0, false
	}
}

// Acks maps RequiredAcks to the writer setting.
func (c Config) Acks() kafka.RequiredAcks {
	switch c.RequiredAcks {
	case 0:
		return kafka.RequireNone
	case 1:
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}
