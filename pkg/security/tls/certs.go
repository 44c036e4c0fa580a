package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// ExpiryWarning is how close to expiry a certificate is logged as a warning.
const ExpiryWarning = 30 * 24 * time.Hour

// Leaf parses the leaf certificate of a pair.
func Leaf(cert *tls.Certificate) (*x509.Certificate, error) {
	if cert == nil || len(cert.Certificate) == 0 {
		return nil, errors.New("certificate chain is empty")
	}
	if cert.Leaf != nil {
		return cert.Leaf, nil
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return leaf, nil
}

// ValidateCertificate rejects a leaf that is not valid at now.
func ValidateCertificate(leaf *x509.Certificate, now time.Time) error {
	if now.Before(leaf.NotBefore) {
		return fmt.Errorf("certificate is not yet valid (valid from %s)", leaf.NotBefore.Format(time.RFC3339))
	}
	if now.After(leaf.NotAfter) {
		return fmt.Errorf("certificate expired on %s", leaf.NotAfter.Format(time.RFC3339))
	}
	return nil
}

// ExpiresWithin reports whether leaf expires within d of now.
func ExpiresWithin(leaf *x509.Certificate, now time.Time, d time.Duration) bool {
	return leaf.NotAfter.Sub(now) < d
}
