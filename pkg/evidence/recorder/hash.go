package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"mercator-hq/aegis/pkg/evidence"
)

// MaxHashSize is the maximum number of bytes hashed from large bodies.
const MaxHashSize = 1024 * 1024

// HashContent returns the hex SHA-256 of content, limited to the first
// MaxHashSize bytes. Empty content hashes to "".
func HashContent(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	if len(content) > MaxHashSize {
		content = content[:MaxHashSize]
	}
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// HashString hashes a string with HashContent.
func HashString(content string) string {
	return HashContent([]byte(content))
}

// CanonicalDigest returns the SHA-256 of the record's RFC 8785 canonical
// JSON, computed with the Digest field cleared.
func CanonicalDigest(record *evidence.AuditRecord) (string, error) {
	clone := *record
	clone.Digest = ""

	raw, err := json.Marshal(&clone)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize record: %w", err)
	}
	hash := sha256.Sum256(canonical)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyDigest reports whether record.Digest matches its content.
func VerifyDigest(record *evidence.AuditRecord) bool {
	digest, err := CanonicalDigest(record)
	return err == nil && digest != "" && digest == record.Digest
}
