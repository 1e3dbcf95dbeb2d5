// Package admin serves the HTTP control surface: health, metrics, fiber
// inspection, message injection, and rule set diagnostics.
package admin
