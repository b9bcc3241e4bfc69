package ui

import "fmt"

// ANSI256 color codes for the watch output.
const (
	colorAccent = 74  // blue, topics
	colorMuted  = 245 // medium gray, timestamps
	colorGreen  = 70
	colorYellow = 178
	colorRed    = 167
)

var noColor bool

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string {
	return render(colorAccent, s)
}

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string {
	return render(colorMuted, s)
}

// RenderGreen returns s in the green-signal color.
func RenderGreen(s string) string {
	return render(colorGreen, s)
}

// RenderYellow returns s in the yellow-signal color.
func RenderYellow(s string) string {
	return render(colorYellow, s)
}

// RenderRed returns s in the red-signal color.
func RenderRed(s string) string {
	return render(colorRed, s)
}

func render(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
