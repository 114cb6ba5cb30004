package web

import "embed"

// TemplatesFS holds the page templates used by exported reports.
//
//go:embed templates/*.html
var TemplatesFS embed.FS
