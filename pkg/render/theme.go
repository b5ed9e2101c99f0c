package render

import "github.com/charmbracelet/lipgloss"

// Theme defines colors and icons for terminal rendering.
type Theme struct {
	Name    string
	Primary lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Bold    lipgloss.Style
	Icons   ThemeIcons
}

// ThemeIcons are the status markers drawn before items.
type ThemeIcons struct {
	Pass   string
	Fail   string
	Warn   string
	Info   string
	Skip   string
	Bullet string
}

// palette holds ANSI 256 color codes; an empty code leaves the style plain.
type palette struct {
	primary, success, warning, failure, muted string
}

var unicodeIcons = ThemeIcons{Pass: "✓", Fail: "✗", Warn: "⚠", Info: "●", Skip: "○", Bullet: "·"}

var themes = map[string]func() Theme{
	"default": DefaultTheme,
	"orca":    OrcaTheme,
	"mono":    MonoTheme,
}

func newTheme(name string, p palette, icons ThemeIcons) Theme {
	color := func(code string) lipgloss.Style {
		if code == "" {
			return lipgloss.NewStyle()
		}
		return lipgloss.NewStyle().Foreground(lipgloss.Color(code))
	}
	return Theme{
		Name:    name,
		Primary: color(p.primary),
		Success: color(p.success),
		Warning: color(p.warning),
		Error:   color(p.failure),
		Muted:   color(p.muted),
		Bold:    lipgloss.NewStyle().Bold(true),
		Icons:   icons,
	}
}

// DefaultTheme uses saturated colors.
func DefaultTheme() Theme {
	return newTheme("default", palette{primary: "39", success: "34", warning: "214", failure: "196", muted: "242"}, unicodeIcons)
}

// OrcaTheme is a muted variant for light and low-contrast terminals.
func OrcaTheme() Theme {
	icons := unicodeIcons
	icons.Warn, icons.Info = "!", "·"
	return newTheme("orca", palette{primary: "75", success: "108", warning: "179", failure: "167", muted: "245"}, icons)
}

// MonoTheme has no colors and ASCII icons. It is used when NO_COLOR is set.
func MonoTheme() Theme {
	return newTheme("mono", palette{}, ThemeIcons{Pass: "+", Fail: "x", Warn: "!", Info: "*", Skip: "-", Bullet: "-"})
}

// ThemeByName returns the named theme, or DefaultTheme for unknown names.
func ThemeByName(name string) Theme {
	if fn, ok := themes[name]; ok {
		return fn()
	}
	return DefaultTheme()
}
