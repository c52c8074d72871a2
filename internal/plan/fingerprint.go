package plan

import (
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// Fingerprint returns the blake3 hex digest of the plan's JSON encoding.
// encoding/json sorts map keys, so equal plans hash equally. Used as the ETag.
func Fingerprint(p *Plan) (string, error) {
	canonical, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("canonicalize plan: %w", err)
	}

	hasher := blake3.New()
	if _, err := hasher.Write(canonical); err != nil {
		return "", fmt.Errorf("hash plan: %w", err)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
