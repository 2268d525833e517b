// Package prompts provides externalized prompt templates with override support.
package prompts

import "embed"

//go:embed generate/*.md review/*.md fix/*.md
var embeddedFS embed.FS
