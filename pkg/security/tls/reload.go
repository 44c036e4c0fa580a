package tls

import (
	"context"
	"crypto/tls"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Reloader serves a certificate pair and reloads it when either file's
// modification time changes.
type Reloader struct {
	certFile string
	keyFile  string
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	cert     *tls.Certificate
	certTime time.Time
	keyTime  time.Time
	expires  time.Time
}

// NewReloader loads the initial pair. An interval of 0 disables polling.
func NewReloader(certFile, keyFile string, interval time.Duration) (*Reloader, error) {
	r := &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		interval: interval,
		logger:   slog.Default().With("component", "tls"),
		now:      time.Now,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Run polls the files until ctx is done.
func (r *Reloader) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.changed() {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Error("Certificate reload failed, keeping previous certificate",
					"cert_file", r.certFile,
					"error", err,
				)
			}
		}
	}
}

func (r *Reloader) changed() bool {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return false
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return !certInfo.ModTime().Equal(r.certTime) || !keyInfo.ModTime().Equal(r.keyTime)
}

// Reload loads and validates the pair, replacing the served certificate on
// success.
func (r *Reloader) Reload() error {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return err
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return err
	}

	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return err
	}
	leaf, err := Leaf(&cert)
	if err != nil {
		return err
	}
	now := r.now()
	if err := ValidateCertificate(leaf, now); err != nil {
		return err
	}
	cert.Leaf = leaf

	r.mu.Lock()
	r.cert = &cert
	r.certTime = certInfo.ModTime()
	r.keyTime = keyInfo.ModTime()
	r.expires = leaf.NotAfter
	r.mu.Unlock()

	attrs := []any{
		"subject", leaf.Subject.CommonName,
		"expires_at", leaf.NotAfter.Format(time.RFC3339),
	}
	if ExpiresWithin(leaf, now, ExpiryWarning) {
		r.logger.Warn("Certificate expiring soon", attrs...)
	} else {
		r.logger.Info("Certificate loaded", attrs...)
	}
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// Expires returns the NotAfter of the served certificate.
func (r *Reloader) Expires() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.expires
}
