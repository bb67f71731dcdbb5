// Package web holds the server-rendered pages and static assets of the
// back-office, embedded into the binary with go:embed.
//
// Every page is parsed together with layout.html and must define a
// "content" template. Rendering goes through a buffer so a template error
// never leaves a half-written response.
package web
