package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for a generated admin password.
const seedPasswordBytes = 16

// DefaultAdminQRCode is the check-in payload given to the bootstrap admin.
// It is not a secret.
const DefaultAdminQRCode = "admin-qr"

// AdminSeed describes the bootstrap administrator.
type AdminSeed struct {
	Name     string
	Email    string
	Password string // empty: generate one and require a change at first login
	QRCode   string
}

// SeedAdmin makes sure an account with seed.Email exists, creating an admin
// if not. It is safe to call on every startup: an existing account is left
// untouched whatever its role.
//
// Returns whether an account was created.
func SeedAdmin(ctx context.Context, users UserRepository, hasher *PasswordHasher, seed AdminSeed, logger *slog.Logger) (bool, error) {
	if seed.Email == "" {
		return false, errors.New("bootstrap admin email is empty")
	}

	existing, err := users.GetByEmail(ctx, seed.Email)
	switch {
	case err == nil:
		logger.Info("bootstrap admin exists, skipping seed", "user_id", existing.ID)
		return false, nil
	case !errors.Is(err, ErrUserNotFound):
		return false, fmt.Errorf("looking up bootstrap admin: %w", err)
	}

	password := seed.Password
	generated := password == ""
	if generated {
		b := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(b); err != nil { //nolint:govet // shadow: err re-declared in nested scope
			return false, fmt.Errorf("generating seed password: %w", err)
		}
		password = hex.EncodeToString(b)
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("hashing seed password: %w", err)
	}

	name := seed.Name
	if name == "" {
		name = "Administrator"
	}
	qr := seed.QRCode
	if qr == "" {
		qr = DefaultAdminQRCode
	}

	admin := &User{
		Name:               name,
		Email:              seed.Email,
		Role:               RoleAdmin,
		PasswordHash:       hash,
		MustChangePassword: generated,
		QRCode:             qr,
	}

	if err := users.Create(ctx, admin); err != nil {
		// Another process won the race; the invariant still holds.
		if _, lookupErr := users.GetByEmail(ctx, seed.Email); lookupErr == nil {
			logger.Info("bootstrap admin created concurrently, skipping seed")
			return false, nil
		}
		return false, fmt.Errorf("creating bootstrap admin: %w", err)
	}

	if generated {
		logger.Warn("bootstrap admin created with generated password",
			"email", seed.Email,
			"generated_credential", password,
			"action_required", "sign in and change this password",
		)
	} else {
		logger.Info("bootstrap admin created", "email", seed.Email, "user_id", admin.ID)
	}

	return true, nil
}
