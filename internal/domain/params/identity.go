package params

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/huguei/zonemaster-backend/internal/domain/model"
)

// IdentityLength is the fixed length of a test identity.
const IdentityLength = 16

// Identity computes the content-addressed identity of a canonical parameter
// set: the first 16 hex characters of the SHA-256 digest of its canonical
// JSON encoding. The encoding follows the declared field order of
// CanonicalParams, so identical canonical parameters always yield the
// identical identity regardless of process, host, or storage backend.
func Identity(canonical model.CanonicalParams) (string, error) {
	encoded, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("encode canonical params: %w", err)
	}

	digest := sha256.Sum256(encoded)
	return hex.EncodeToString(digest[:])[:IdentityLength], nil
}

// ValidIdentity reports whether s is a well-formed test identity.
func ValidIdentity(s string) bool {
	if len(s) != IdentityLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
