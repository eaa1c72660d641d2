// Package printer provides colored terminal output helpers for the novacat
// CLI.
package printer

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/novacat/novacat/pkg/catalog"
)

func init() {
	// Force color output even when not connected to a TTY.
	// Users can disable with the NO_COLOR environment variable.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Success prints a success message in green with a checkmark prefix.
func Success(format string, a ...any) {
	green.Printf("✓ "+format, a...)
}

// Info prints an informational message in the default color.
func Info(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Warning prints a warning message in yellow.
func Warning(format string, a ...any) {
	yellow.Printf("! "+format, a...)
}

// Errorf prints an error message in red to stderr and returns a plain error
// for Cobra.
func Errorf(format string, a ...any) error {
	red.Fprintf(os.Stderr, "✗ "+format+"\n", a...)
	return fmt.Errorf(format, a...)
}

// ValidationStatus renders a validation status with its conventional color:
// green for VALID, yellow for quarantine, red for terminal, plain otherwise.
func ValidationStatus(status catalog.ValidationStatus) string {
	switch status {
	case catalog.ValidationValid:
		return green.Sprint(string(status))
	case catalog.ValidationQuarantined:
		return yellow.Sprint(string(status))
	case catalog.ValidationTerminalInvalid:
		return red.Sprint(string(status))
	default:
		return string(status)
	}
}

// Eligibility renders eligibility, cyan when the product still needs work.
func Eligibility(e catalog.Eligibility) string {
	if e == catalog.EligibilityAcquire {
		return cyan.Sprint(string(e))
	}
	return string(e)
}
