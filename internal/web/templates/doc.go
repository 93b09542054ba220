// Package templates holds the server-rendered pages. The components are
// written in .templ files; run `templ generate` after editing them.
package templates
