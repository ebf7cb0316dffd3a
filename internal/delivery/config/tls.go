package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// TLSConfig builds the transport security settings. It returns nil when no
// SSL material is configured.
func (s SSL) TLSConfig() (*tls.Config, error) {
	if s.CACert == "" && s.CACertFilePath == "" && s.ClientCert == "" && !s.CACertsFromSystem {
		return nil, nil
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	var pool *x509.CertPool
	if s.CACertsFromSystem {
		sys, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("failed to load system cert pool: %w", err)
		}
		pool = sys
	}

	caPEM := []byte(s.CACert)
	if s.CACertFilePath != "" {
		b, err := os.ReadFile(s.CACertFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read ca cert file %s: %w", s.CACertFilePath, err)
		}
		caPEM = b
	}
	if len(caPEM) > 0 {
		if pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, errors.New("failed to parse ca cert: no PEM certificates found")
		}
	}
	cfg.RootCAs = pool

	if s.ClientCert != "" {
		cert, err := tls.X509KeyPair([]byte(s.ClientCert), []byte(s.ClientCertKey))
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
