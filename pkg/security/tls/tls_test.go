package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/aegis/pkg/config"
)

// writeCert writes a self-signed pair for cn valid over [notBefore,
// notAfter] and returns the certificate and key paths.
func writeCert(t *testing.T, dir, cn string, notBefore, notAfter time.Time) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certPath, keyPath
}

func validPair(t *testing.T, dir, cn string) (string, string) {
	now := time.Now()
	return writeCert(t, dir, cn, now.Add(-time.Hour), now.Add(365*24*time.Hour))
}

func servedCN(t *testing.T, r *Reloader) string {
	t.Helper()
	cert, err := r.GetCertificate(nil)
	if err != nil || cert == nil {
		t.Fatalf("expected a served certificate, got %v", err)
	}
	return cert.Leaf.Subject.CommonName
}

func TestServerConfig(t *testing.T) {
	certPath, keyPath := validPair(t, t.TempDir(), "aegis.test")

	tests := []struct {
		name        string
		cfg         config.TLSConfig
		wantVersion uint16
		wantSuites  int
		wantErr     string
	}{
		{
			name:        "defaults",
			cfg:         config.TLSConfig{Enabled: true, CertFile: certPath, KeyFile: keyPath},
			wantVersion: tls.VersionTLS12,
		},
		{
			name:        "tls 1.3",
			cfg:         config.TLSConfig{Enabled: true, CertFile: certPath, KeyFile: keyPath, MinVersion: "1.3"},
			wantVersion: tls.VersionTLS13,
		},
		{
			name: "cipher suites",
			cfg: config.TLSConfig{Enabled: true, CertFile: certPath, KeyFile: keyPath,
				CipherSuites: []string{"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256", "TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305"}},
			wantVersion: tls.VersionTLS12,
			wantSuites:  2,
		},
		{
			name:    "unknown cipher suite",
			cfg:     config.TLSConfig{Enabled: true, CertFile: certPath, KeyFile: keyPath, CipherSuites: []string{"TLS_RSA_WITH_RC4_128_SHA"}},
			wantErr: "unsupported cipher suite",
		},
		{
			name:    "old version",
			cfg:     config.TLSConfig{Enabled: true, CertFile: certPath, KeyFile: keyPath, MinVersion: "1.0"},
			wantErr: "unsupported TLS version",
		},
		{
			name:    "missing key",
			cfg:     config.TLSConfig{Enabled: true, CertFile: certPath, KeyFile: keyPath + ".missing"},
			wantErr: "no such file",
		},
		{
			name:    "disabled",
			cfg:     config.TLSConfig{CertFile: certPath, KeyFile: keyPath},
			wantErr: "not enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tlsCfg, reloader, err := ServerConfig(tt.cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tlsCfg.MinVersion != tt.wantVersion {
				t.Errorf("expected min version %x, got %x", tt.wantVersion, tlsCfg.MinVersion)
			}
			if len(tlsCfg.CipherSuites) != tt.wantSuites {
				t.Errorf("expected %d cipher suites, got %d", tt.wantSuites, len(tlsCfg.CipherSuites))
			}
			if tlsCfg.ClientAuth != tls.NoClientCert {
				t.Errorf("expected no client auth without a CA, got %v", tlsCfg.ClientAuth)
			}
			if got := servedCN(t, reloader); got != "aegis.test" {
				t.Errorf("expected served CN aegis.test, got %s", got)
			}
		})
	}
}

func TestServerConfig_ClientCA(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := validPair(t, dir, "aegis.test")

	tlsCfg, _, err := ServerConfig(config.TLSConfig{
		Enabled: true, CertFile: certPath, KeyFile: keyPath,
		ClientCAFile: certPath, ClientAuth: "require",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tlsCfg.ClientAuth != tls.RequireAndVerifyClientCert || tlsCfg.ClientCAs == nil {
		t.Errorf("expected required client certificates, got %v", tlsCfg.ClientAuth)
	}

	tlsCfg, _, err = ServerConfig(config.TLSConfig{
		Enabled: true, CertFile: certPath, KeyFile: keyPath,
		ClientCAFile: certPath, ClientAuth: "verify_if_given",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tlsCfg.ClientAuth != tls.VerifyClientCertIfGiven {
		t.Errorf("expected optional client certificates, got %v", tlsCfg.ClientAuth)
	}

	empty := filepath.Join(dir, "empty.pem")
	if err := os.WriteFile(empty, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ServerConfig(config.TLSConfig{Enabled: true, CertFile: certPath, KeyFile: keyPath, ClientCAFile: empty}); err == nil {
		t.Error("expected error for a CA bundle without certificates")
	}
}

func TestReloader_RejectsInvalidCertificates(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		notBefore time.Time
		notAfter  time.Time
		wantErr   string
	}{
		{"expired", now.Add(-48 * time.Hour), now.Add(-24 * time.Hour), "expired"},
		{"not yet valid", now.Add(24 * time.Hour), now.Add(48 * time.Hour), "not yet valid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certPath, keyPath := writeCert(t, t.TempDir(), "bad", tt.notBefore, tt.notAfter)
			_, err := NewReloader(certPath, keyPath, 0)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReloader_KeepsPreviousOnBadPair(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := validPair(t, dir, "first")

	r, err := NewReloader(certPath, keyPath, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(certPath, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err == nil {
		t.Fatal("expected reload of a garbage certificate to fail")
	}
	if got := servedCN(t, r); got != "first" {
		t.Errorf("expected previous certificate to stay served, got %s", got)
	}
}

func TestReloader_RunPicksUpRotation(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := validPair(t, dir, "first")

	r, err := NewReloader(certPath, keyPath, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	validPair(t, dir, "second")
	later := time.Now().Add(time.Minute)
	for _, p := range []string{certPath, keyPath} {
		if err := os.Chtimes(p, later, later); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if servedCN(t, r) == "second" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("expected rotated certificate to be served, still %s", servedCN(t, r))
}

func TestExpiresWithin(t *testing.T) {
	now := time.Now()
	leaf := &x509.Certificate{NotAfter: now.Add(10 * 24 * time.Hour)}

	if !ExpiresWithin(leaf, now, ExpiryWarning) {
		t.Error("expected a certificate expiring in 10 days to warn")
	}
	if ExpiresWithin(leaf, now, 5*24*time.Hour) {
		t.Error("expected no warning inside a 5 day threshold")
	}
}

func TestServerConfig_Handshake(t *testing.T) {
	certPath, keyPath := validPair(t, t.TempDir(), "aegis.test")
	tlsCfg, _, err := ServerConfig(config.TLSConfig{Enabled: true, CertFile: certPath, KeyFile: keyPath})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", tlsCfg)
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = conn.(*tls.Conn).Handshake()
		_ = conn.Close()
	}()

	pemBytes, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatal(err)
	}
	roots := x509.NewCertPool()
	roots.AppendCertsFromPEM(pemBytes)

	conn, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{RootCAs: roots, ServerName: "localhost"})
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	defer conn.Close()

	if cn := conn.ConnectionState().PeerCertificates[0].Subject.CommonName; cn != "aegis.test" {
		t.Errorf("expected peer CN aegis.test, got %s", cn)
	}
}
