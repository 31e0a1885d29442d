// Package output provides styled terminal output for the ontology CLI.
//
// Functions use lipgloss for styling but abstract away the details from callers.
package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("yellow"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("cyan"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("cyan")).Bold(true)

	verboseMode bool
	out         io.Writer = os.Stdout
	in          io.Reader = os.Stdin
)

// SetVerbose enables or disables verbose output for debugging.
// This should be called by the CLI when the --verbose flag is set.
func SetVerbose(v bool) {
	verboseMode = v
}

// SetOutput redirects all output, returning the previous writer
func SetOutput(w io.Writer) io.Writer {
	prev := out
	out = w
	return prev
}

// SetInput redirects prompt input, returning the previous reader
func SetInput(r io.Reader) io.Reader {
	prev := in
	in = r
	return prev
}

func write(s string) {
	fmt.Fprintln(out, s)
}

// Success prints a success message in green.
// Use this for completed operations.
//
// Example:
//
//	output.Success("Loaded 3 packages")
func Success(msg string) {
	write(successStyle.Render("✔ " + msg))
}

// Error prints an error message in red.
// Use this for failures that need user attention.
func Error(msg string) {
	write(errorStyle.Render("✘ " + msg))
}

// Warn prints a warning in yellow
func Warn(msg string) {
	write(warnStyle.Render("! " + msg))
}

// Info prints an informational message in cyan.
// Use this for status updates or explanations.
func Info(msg string) {
	write(infoStyle.Render("• " + msg))
}

// Step prints an indented step message in gray.
// Use this for sub-items such as individual violations.
//
// Example:
//
//	output.Step("amount: [range] must be >= 0")
func Step(msg string) {
	write(stepStyle.Render("   " + msg))
}

// Verbose prints a debug message only if verbose mode is enabled.
func Verbose(msg string) {
	if verboseMode {
		write(stepStyle.Render("… " + msg))
	}
}

// Table prints rows under headers
func Table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(stepStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	write(t.Render())
}

// Confirm asks the user a yes/no question.
// Returns true if the user answers yes (y/Y/yes/YES), false otherwise.
// If defaultYes is true, pressing Enter returns true.
//
// Example:
//
//	if output.Confirm("Overwrite snapshot?", false) {
//	    // User said yes
//	}
//	// Displays: Overwrite snapshot? [y/N]: _
func Confirm(message string, defaultYes bool) bool {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	fmt.Fprint(out, promptStyle.Render(message)+" "+stepStyle.Render(hint)+": ")

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return defaultYes
	}

	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer == "" {
		return defaultYes
	}
	return answer == "y" || answer == "yes"
}
