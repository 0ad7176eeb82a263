// Package web embeds the page templates and static assets served by the
// ledger HTTP server.
package web

import "embed"

// TemplatesFS embeds HTML templates for server-side rendering.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds static assets (css).
//
//go:embed static/*
var StaticFS embed.FS
