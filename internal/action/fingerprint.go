package action

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is the lower-case hex SHA-256 of the canonical wire form of
// a. Semantically identical actions share a fingerprint.
func Fingerprint(a Action) (string, error) {
	encoded, err := Marshal(a)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// MustFingerprint is Fingerprint for actions known to be well formed.
func MustFingerprint(a Action) string {
	fp, err := Fingerprint(a)
	if err != nil {
		panic(err)
	}
	return fp
}
