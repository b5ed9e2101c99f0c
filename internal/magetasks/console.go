package magetasks

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Out receives all task output.
var Out io.Writer = os.Stdout

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// PrintH1Header prints a centered title between rules.
func PrintH1Header(title string) {
	const width = 80
	rule := strings.Repeat("=", width)
	padding := max(0, (width-lipgloss.Width(title))/2)
	fmt.Fprintf(Out, "\n%s\n%s%s\n%s\n\n", rule, strings.Repeat(" ", padding), headerStyle.Render(title), rule)
}

// PrintH2Header prints a section header.
func PrintH2Header(title string) {
	fmt.Fprintf(Out, "\n%s\n\n", headerStyle.Render("=== "+title+" ==="))
}

func PrintSuccess(msg string) { fmt.Fprintln(Out, successStyle.Render("✅ "+msg)) }

func PrintWarning(msg string) { fmt.Fprintln(Out, warningStyle.Render("⚠️  "+msg)) }

func PrintError(msg string) { fmt.Fprintln(Out, errorStyle.Render("❌ "+msg)) }

func PrintInfo(msg string) { fmt.Fprintln(Out, infoStyle.Render("ℹ️  "+msg)) }
