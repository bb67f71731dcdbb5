// Package logging builds the process-wide slog logger.
//
// Every entry carries service and version. Output goes to stdout, stderr or
// a daily-rotated file (file-rotatelogs), as JSON or text. Attribute values
// are replaced with [REDACTED] when the key looks like a credential
// (password, token, secret, cookie, authorization), so a stray
// logger.Info("login", "password", pw) cannot leak.
package logging
