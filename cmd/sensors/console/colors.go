package console

import "github.com/fatih/color"

// Errors print red, warnings yellow, values white.
var (
	Red    = color.New(color.FgRed).SprintFunc()
	Yellow = color.New(color.FgYellow).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
)

// SetColor turns colored output on or off. Color is already off when stdout
// is not a terminal.
func SetColor(enabled bool) {
	if !enabled {
		color.NoColor = true
	}
}
