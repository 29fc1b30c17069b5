// Package log prints colored status messages to the terminal.
package log

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Colored string formatting functions.
var (
	successSprintf = color.HiGreenString
	errorSprintf   = color.HiRedString
	warningSprintf = color.YellowString
	debugSprintf   = color.New(color.Faint).Sprintf
	headerSprintf  = color.New(color.Bold).Sprintf
)

// Writers for diagnostics and program output; both handle colors on Windows.
var (
	DiagnosticWriter io.Writer = color.Error
	OutputWriter     io.Writer = color.Output
)

const (
	successPrefix = "✔"
	errorPrefix   = "✘"
	warningPrefix = "Note:"
)

// DisableColor turns off colored output, for example when NO_COLOR is set.
func DisableColor() {
	color.NoColor = true
}

// Successf writes a green check-marked message to standard error.
func Successf(format string, args ...interface{}) {
	fmt.Fprintf(DiagnosticWriter, "%s %s", successSprintf(successPrefix), fmt.Sprintf(format, args...))
}

// Errorln writes a red cross-marked message and a new line to standard error.
func Errorln(args ...interface{}) {
	fmt.Fprintln(DiagnosticWriter, fmt.Sprintf("%s %s", errorSprintf(errorPrefix), fmt.Sprint(args...)))
}

// Warningf writes a yellow "Note:" message to standard error.
func Warningf(format string, args ...interface{}) {
	fmt.Fprint(DiagnosticWriter, warningSprintf("%s %s", warningPrefix, fmt.Sprintf(format, args...)))
}

// Infof writes a message in the default color to standard error.
func Infof(format string, args ...interface{}) {
	fmt.Fprintf(DiagnosticWriter, format, args...)
}

// Infoln writes args and a new line to standard error.
func Infoln(args ...interface{}) {
	fmt.Fprintln(DiagnosticWriter, args...)
}

// Headerln writes a bold section header to standard error.
func Headerln(title string) {
	fmt.Fprintln(DiagnosticWriter, headerSprintf("=== %s ===", title))
}

// Debugf writes a faint message to standard error.
func Debugf(format string, args ...interface{}) {
	fmt.Fprint(DiagnosticWriter, debugSprintf(format, args...))
}
