package core

// Color represents a foreground color for a screen cell.
// Uses ANSI 256-color codes for terminal compatibility.
type Color uint8

const (
	ColorDefault Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBrightRed
	ColorBrightYellow
	ColorBrightCyan
	ColorOrange
	ColorGray
)

// Track palette.
const (
	ColorCar     = ColorBrightCyan
	ColorGhost   = ColorMagenta
	ColorBlocker = ColorBrightYellow
	ColorPit     = ColorOrange
	ColorDivider = ColorGray
	ColorHUD     = ColorWhite
	ColorAlert   = ColorBrightRed
)
