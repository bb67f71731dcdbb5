// Package api implements the HTTP surface of Gym Desk: server-rendered
// back-office pages, the kiosk check-in endpoint, a small JSON API, and a
// WebSocket live feed of domain events.
//
// # Authentication
//
// Sessions are carried in the HttpOnly access_token cookie. The
// resolveUser middleware turns it into the current user on every request
// through auth.Resolver, the only code path that does so. Handlers read the
// result with currentUser.
//
// # Authorisation
//
// Every protected route goes through auth.Gate. HTML routes answer a
// missing session with a 303 to /auth/login and a pending password change
// with a 303 to /auth/change-password. JSON routes under /api/v1 answer
// 401 and 403 instead. Role and routine-ownership denials share one 403.
package api
