package display

import "github.com/fatih/color"

// Box drawing characters, used for the startup banner.
const (
	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxHorizontal  = "─"
	BoxVertical    = "│"
)

// Level symbols shown in front of each log line.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolDebug   = "·"
)

// Theme holds the color functions used by Logger.
type Theme struct {
	Border  func(a ...interface{}) string
	Label   func(a ...interface{}) string
	Text    func(a ...interface{}) string
	Success func(a ...interface{}) string
	Error   func(a ...interface{}) string
	Warning func(a ...interface{}) string
	Info    func(a ...interface{}) string
	Dim     func(a ...interface{}) string
}

// DefaultTheme creates the default color theme.
func DefaultTheme() *Theme {
	return &Theme{
		Border:  color.New(color.FgCyan).SprintFunc(),
		Label:   color.New(color.FgCyan, color.Bold).SprintFunc(),
		Text:    color.New(color.FgWhite).SprintFunc(),
		Success: color.New(color.FgGreen).SprintFunc(),
		Error:   color.New(color.FgRed).SprintFunc(),
		Warning: color.New(color.FgYellow).SprintFunc(),
		Info:    color.New(color.FgCyan).SprintFunc(),
		Dim:     color.New(color.FgHiBlack).SprintFunc(),
	}
}

// NoColorTheme creates a theme without ANSI color codes, used when a
// Logger is created with noColor set.
func NoColorTheme() *Theme {
	identity := func(a ...interface{}) string {
		if len(a) == 0 {
			return ""
		}
		if s, ok := a[0].(string); ok {
			return s
		}
		return ""
	}
	return &Theme{
		Border:  identity,
		Label:   identity,
		Text:    identity,
		Success: identity,
		Error:   identity,
		Warning: identity,
		Info:    identity,
		Dim:     identity,
	}
}
