package auth

import (
	"context"
	"log/slog"
)

// UserLookup is the slice of UserRepository the resolver needs.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// Resolver turns a session token into the current user. It is the only
// code path that does so; every handler consults its result.
type Resolver struct {
	tokens  *TokenService
	users   UserLookup
	revoked RevocationList
	logger  *slog.Logger
}

// NewResolver creates a Resolver. revoked may be nil.
func NewResolver(tokens *TokenService, users UserLookup, revoked RevocationList, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		tokens:  tokens,
		users:   users,
		revoked: revoked,
		logger:  logger,
	}
}

// Resolve returns the user a token belongs to, or nil. Missing, malformed,
// expired, forged, and revoked tokens as well as tokens for deleted users
// all produce nil with no distinguishing signal to the caller.
func (r *Resolver) Resolve(ctx context.Context, token string) *User {
	user, _ := r.ResolveClaims(ctx, token)
	return user
}

// ResolveClaims is Resolve that also returns the verified claims, which
// logout needs for the token ID. Both are nil on any failure.
func (r *Resolver) ResolveClaims(ctx context.Context, token string) (*User, *CustomClaims) {
	if token == "" {
		return nil, nil
	}

	claims, err := r.tokens.Verify(token)
	if err != nil {
		r.logger.Debug("session token rejected", "error", err)
		return nil, nil
	}

	if r.revoked != nil {
		revoked, err := r.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			// Fail closed: an unreachable list must not resurrect logged-out tokens.
			r.logger.Warn("revocation check failed", "error", err)
			return nil, nil
		}
		if revoked {
			r.logger.Debug("session token revoked", "user_id", claims.Subject)
			return nil, nil
		}
	}

	user, err := r.users.GetByID(ctx, claims.Subject)
	if err != nil {
		r.logger.Debug("session subject not found", "user_id", claims.Subject, "error", err)
		return nil, nil
	}

	return user, claims
}

// Revoke adds the token to the revocation list if one is configured.
// It reports whether the token was revoked server-side.
func (r *Resolver) Revoke(ctx context.Context, claims *CustomClaims) (bool, error) {
	if r.revoked == nil || claims == nil || claims.ExpiresAt == nil {
		return false, nil
	}
	if err := r.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return false, err
	}
	return true, nil
}
