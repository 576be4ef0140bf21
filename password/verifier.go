package password

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Verifier checks passwords against stored hashes of either Argon2id (PHC) or
// bcrypt. Accounts created by older services carry bcrypt hashes; new hashes are
// Argon2id.
type Verifier struct {
	argon *Argon2
	dummy string
}

// NewVerifier builds a verifier and precomputes a dummy hash with the same cost as
// real ones, used when the account does not exist.
func NewVerifier(cfg Config) (*Verifier, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	dummy, err := a.Hash(base64.RawURLEncoding.EncodeToString(buf))
	if err != nil {
		return nil, err
	}
	return &Verifier{argon: a, dummy: dummy}, nil
}

// Hash produces a new Argon2id hash.
func (v *Verifier) Hash(password string) (string, error) {
	return v.argon.Hash(password)
}

// Verify reports whether password matches encodedHash. A mismatch is (false, nil);
// errors mean the hash itself is unusable.
func (v *Verifier) Verify(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$"+algorithmID+"$"):
		return v.argon.Verify(password, encodedHash)
	case isBcrypt(encodedHash):
		if len(password) > v.argon.config.MaxPasswordBytes {
			return false, ErrPasswordTooLong
		}
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
		}
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsUpgrade is true for every bcrypt hash and for Argon2id hashes with weaker
// parameters.
func (v *Verifier) NeedsUpgrade(encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		return true, nil
	}
	return v.argon.NeedsUpgrade(encodedHash)
}

// DummyHash is a valid hash no password is known for.
func (v *Verifier) DummyHash() string {
	return v.dummy
}

func isBcrypt(h string) bool {
	return strings.HasPrefix(h, "$2a$") || strings.HasPrefix(h, "$2b$") || strings.HasPrefix(h, "$2y$")
}
