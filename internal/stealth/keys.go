package stealth

import (
	"crypto/rand"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"github.com/grimswap/grimledger/internal/domain"
)

// DeriveAddress computes the public identifier for a private scalar:
// base58 of the ed25519 point obtained by scalar-base multiplication of the
// clamped secret. The settlement layer recognizes identities by the same
// derivation, so address == DeriveAddress(privateKey) must hold for every
// stored record.
func DeriveAddress(secret *domain.Secret) (string, error) {
	raw := secret.Bytes()
	defer zeroBytes(raw)

	scalar, err := edwards25519.NewScalar().SetBytesWithClamping(raw)
	if err != nil {
		return "", fmt.Errorf("derive scalar: %w", err)
	}

	point := new(edwards25519.Point).ScalarBaseMult(scalar)
	return base58.Encode(point.Bytes()), nil
}

// newSecret draws 32 bytes from the cryptographically secure random source.
func newSecret() (domain.Secret, error) {
	raw := make([]byte, domain.SecretSize)
	if _, err := rand.Read(raw); err != nil {
		return domain.Secret{}, fmt.Errorf("read entropy: %w", err)
	}
	defer zeroBytes(raw)

	return domain.NewSecret(raw)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
