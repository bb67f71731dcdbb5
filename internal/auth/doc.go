// Package auth provides authentication and authorisation for Gym Desk.
//
// It implements a 3-tier role model (client, staff, admin) with:
//   - Argon2id password hashing that still verifies older digests and bcrypt
//   - Stateless HMAC-signed session tokens with a configurable lifetime
//   - A single Resolver that turns a token into the current user or nil
//   - A Gate that yields allow, login, change-password, or forbidden
//   - Routine ownership: a non-admin sees a routine only when assigned to it
//   - Idempotent bootstrap of the administrator account
//   - An optional Redis revocation list so logout can invalidate a token
//
// Staff are gated exactly like clients. A pending password change blocks
// every route except change-password and logout, and is checked before
// any role or ownership rule.
package auth
