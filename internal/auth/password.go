package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2id parameters: OWASP 2025 recommendation.
const (
	defaultArgonTime    = 3         // iterations
	defaultArgonMemory  = 64 * 1024 // 64 MiB
	defaultArgonThreads = 1         // parallelism
	argonKeyLen         = 32        // output hash length
	argonSaltLen        = 16        // salt length

	// maxArgonMemory bounds what a stored digest may ask us to allocate.
	maxArgonMemory = 1024 * 1024 // 1 GiB

	// MinPasswordLength is enforced on every password chosen by a user.
	MinPasswordLength = 8
)

// HashParams are the Argon2id cost parameters used for new digests.
// Zero fields fall back to the defaults.
type HashParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// PasswordHasher produces and checks self-describing password digests.
//
// New digests are Argon2id in PHC format:
//
//	$argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
//
// Verification reads the parameters from the digest itself, so digests
// produced under older parameters keep working after a cost increase.
// Legacy bcrypt digests ($2a$, $2b$, $2y$) are also accepted.
//
// A PasswordHasher is immutable and safe for concurrent use.
type PasswordHasher struct {
	params argonParams
}

// NewPasswordHasher creates a hasher using p for new digests.
func NewPasswordHasher(p HashParams) *PasswordHasher {
	params := argonParams{
		time:    p.Time,
		memory:  p.Memory,
		threads: p.Threads,
	}
	if params.time == 0 {
		params.time = defaultArgonTime
	}
	if params.memory == 0 {
		params.memory = defaultArgonMemory
	}
	if params.threads == 0 {
		params.threads = defaultArgonThreads
	}
	return &PasswordHasher{params: params}
}

// DefaultPasswordHasher returns a hasher with the recommended parameters.
func DefaultPasswordHasher() *PasswordHasher {
	return NewPasswordHasher(HashParams{})
}

// Hash hashes a plaintext password and returns it in PHC string format.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	p := h.params
	key := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. A malformed digest, an
// unknown algorithm, or an empty digest all yield false.
func (h *PasswordHasher) Verify(password, encoded string) bool {
	if isBcrypt(encoded) {
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
	}

	salt, key, params, err := decodePHC(encoded)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(key))) //nolint:gosec // G115: key length bounded by decodePHC

	return subtle.ConstantTimeCompare(key, candidate) == 1
}

// NeedsRehash reports whether a digest that just verified should be
// replaced with one produced under the current parameters.
func (h *PasswordHasher) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	_, key, params, err := decodePHC(encoded)
	if err != nil {
		return true
	}
	return params != h.params || len(key) != argonKeyLen
}

// ValidateNewPassword checks a password chosen through the change-password
// form or the admin CLI.
func ValidateNewPassword(password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// decodePHC parses an Argon2id PHC string format into its components.
// Parameters that would make argon2 panic or allocate without bound are
// rejected here.
func decodePHC(encoded string) (salt, key []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, params, fmt.Errorf("invalid PHC hash format")
	}

	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}
	if params.time < 1 || params.threads < 1 || params.memory < 1 || params.memory > maxArgonMemory {
		return nil, nil, params, fmt.Errorf("argon2 parameters out of range")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}
	if len(key) == 0 || len(key) > 1024 { //nolint:mnd // sanity bound on stored key length
		return nil, nil, params, fmt.Errorf("hash length out of range")
	}

	return salt, key, params, nil
}
