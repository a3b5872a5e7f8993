package domain

import "errors"

// SecretSize is the byte length of a stealth private key scalar.
const SecretSize = 32

// ErrBadSecretLength is returned when raw key material is not SecretSize bytes.
var ErrBadSecretLength = errors.New("secret must be exactly 32 bytes")

// Secret holds a 32-byte private scalar. It redacts itself from logging and
// JSON serialization; raw bytes are only reachable through Bytes, and Zero
// scrubs the backing array when the secret is no longer needed.
type Secret struct {
	b [SecretSize]byte
}

// NewSecret copies raw into a Secret. raw must be exactly SecretSize bytes.
func NewSecret(raw []byte) (Secret, error) {
	var s Secret
	if len(raw) != SecretSize {
		return s, ErrBadSecretLength
	}
	copy(s.b[:], raw)
	return s, nil
}

// Bytes returns a copy of the raw key material.
func (s *Secret) Bytes() []byte {
	out := make([]byte, SecretSize)
	copy(out, s.b[:])
	return out
}

// Zero scrubs the backing array.
func (s *Secret) Zero() {
	for i := range s.b {
		s.b[i] = 0
	}
}

// IsZero reports whether the secret is all zero bytes (unset or scrubbed).
func (s *Secret) IsZero() bool {
	for _, v := range s.b {
		if v != 0 {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer and never reveals key material.
func (s Secret) String() string { return "[redacted]" }

// GoString prevents %#v from dumping the backing array.
func (s Secret) GoString() string { return "domain.Secret([redacted])" }

// MarshalJSON redacts the secret. Stores that persist key material must go
// through Bytes explicitly.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"[redacted]"`), nil
}
