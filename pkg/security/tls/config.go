package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"mercator-hq/aegis/pkg/config"
)

// cipherSuites maps the accepted IANA names to their constants. Only AEAD
// suites with forward secrecy are listed; TLS 1.3 suites are not
// configurable in crypto/tls and are ignored here.
var cipherSuites = map[string]uint16{
	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305":    tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305":  tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

// ServerConfig loads the certificate pair and returns a tls.Config that
// serves it through the returned Reloader. The caller runs the Reloader.
func ServerConfig(cfg config.TLSConfig) (*tls.Config, *Reloader, error) {
	if !cfg.Enabled {
		return nil, nil, errors.New("tls is not enabled")
	}

	minVersion, err := parseVersion(cfg.MinVersion)
	if err != nil {
		return nil, nil, err
	}
	suites, err := parseCipherSuites(cfg.CipherSuites)
	if err != nil {
		return nil, nil, err
	}

	reloader, err := NewReloader(cfg.CertFile, cfg.KeyFile, cfg.ReloadInterval)
	if err != nil {
		return nil, nil, err
	}

	// #nosec G402 -- MinVersion is 1.2 or 1.3, enforced by parseVersion
	tlsCfg := &tls.Config{
		MinVersion:     minVersion,
		CipherSuites:   suites,
		GetCertificate: reloader.GetCertificate,
	}

	if cfg.ClientCAFile != "" {
		pool, err := loadCAPool(cfg.ClientCAFile)
		if err != nil {
			return nil, nil, err
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
		if cfg.ClientAuth == "verify_if_given" {
			tlsCfg.ClientAuth = tls.VerifyClientCertIfGiven
		}
	}

	return tlsCfg, reloader, nil
}

func parseVersion(v string) (uint16, error) {
	switch v {
	case "1.2", "":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", v)
	}
}

func parseCipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}
	suites := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := cipherSuites[name]
		if !ok {
			return nil, fmt.Errorf("unsupported cipher suite %q", name)
		}
		suites = append(suites, id)
	}
	return suites, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("client CA bundle %s contains no certificates", path)
	}
	return pool, nil
}
