// Package color holds the terminal palette and styles used by relayctl's
// human-readable output: run summaries, link listings and settings dumps.
//
// Colors are adaptive: lipgloss picks the light or dark variant from the
// terminal background, and NO_COLOR disables styling altogether.
package color
