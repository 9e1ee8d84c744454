package ui

import (
	"fmt"
	"io"
)

// Banner is printed when the interactive loop starts
const Banner = `
  ┌─────────────────────────────────────────┐
  │  imgharvest :: image search harvester   │
  └─────────────────────────────────────────┘
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

func plain(text string) string { return text }

// Printer writes user-facing lines. Colors are only used on terminals.
type Printer struct {
	out   io.Writer
	color bool
}

// NewPrinter creates a Printer writing to out
func NewPrinter(out io.Writer, color bool) *Printer {
	return &Printer{out: out, color: color}
}

func (p *Printer) paint(c func(string) string) func(string) string {
	if p.color {
		return c
	}
	return plain
}

// Banner prints the startup banner
func (p *Printer) Banner() {
	fmt.Fprint(p.out, p.paint(Cyan)(Banner))
}

// Prompt prints text without a trailing newline
func (p *Printer) Prompt(text string) {
	fmt.Fprint(p.out, p.paint(Magenta)(text))
}

// Error prints an error message in red
func (p *Printer) Error(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(p.out, p.paint(Red)(msg))
}

// Success prints a success message in green
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.out, p.paint(Green)(msg))
}

// Info prints a label and value
func (p *Printer) Info(label string, value string) {
	fmt.Fprintf(p.out, "%s: %s\n", p.paint(Cyan)(label), p.paint(Yellow)(value))
}

// Warning prints a warning message in yellow
func (p *Printer) Warning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(p.out, p.paint(Yellow)(msg))
}
