package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Fingerprint returns a hex digest of the page's structural content: type,
// contract version and section tree. Metadata is excluded, so two
// generations of the same content fingerprint identically regardless of
// timestamps or trace ids. The digest is computed over RFC 8785 canonical
// JSON and is suitable for use as an ETag.
func Fingerprint(p *PageDefinition) (string, error) {
	structural := struct {
		Type     string    `json:"type"`
		Version  int       `json:"version"`
		Sections []Section `json:"sections"`
	}{
		Type:     p.Type,
		Version:  p.SchemaVersion,
		Sections: p.Sections,
	}
	raw, err := json.Marshal(structural)
	if err != nil {
		return "", fmt.Errorf("marshal page: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize page: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
