package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
)

// Colors for consistent UI
const (
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorReset  = "\033[0m"
)

var (
	mu  sync.Mutex
	out io.Writer = os.Stdout
)

// SetOutput redirects console lines, tests use it to capture diagnostics.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func printf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, format, args...)
}

// PrintBanner prints the command banner.
func PrintBanner(name string) {
	banner := figure.NewFigure(name, "isometric1", true)
	mu.Lock()
	defer mu.Unlock()
	color.New(color.FgCyan).Fprintln(out, banner.String())
	fmt.Fprintln(out)
}

// PrintWarning displays a warning message with consistent formatting
func PrintWarning(message string) {
	printf("%s\nWarning:%s\n", ColorYellow, ColorReset)
	printf("%s%s%s\n", ColorYellow, message, ColorReset)
}

// PrintError displays an error message with consistent formatting
func PrintError(message string) {
	printf("\n%sError: %s%s\n", ColorRed, message, ColorReset)
}

// PrintSuccess displays a success message with consistent formatting
func PrintSuccess(message string) {
	printf("\n%s%s%s\n", ColorGreen, message, ColorReset)
}

// PrintInfo displays an info message with consistent formatting
func PrintInfo(message string) {
	printf("%s%s%s\n", ColorBlue, message, ColorReset)
}

// PrintStep prints an indented processing line, one per stage action.
func PrintStep(format string, args ...any) {
	printf("\t%s\n", fmt.Sprintf(format, args...))
}

// PrintHeader prints an upper-case stage header.
func PrintHeader(title string) {
	printf("\t%s%s%s\n", ColorBlue, strings.ToUpper(title), ColorReset)
}
