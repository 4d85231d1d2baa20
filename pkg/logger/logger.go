// Package logger provides the startup banner and section-header flavor the
// demo binaries print around a structured logrus logger, so the terminal
// output keeps the teacher's bannered-server look while every actual log
// line goes through the same logrus.Entry the rest of netsync uses.
package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// ANSI color codes, used only by the banner/section art below — actual log
// lines are left to logrus's own formatter.
const (
	ColorReset  = "\033[0m"
	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
)

// New builds the logrus.Entry every netsync binary logs through, text-
// formatted with a millisecond timestamp.
func New(level logrus.Level) *logrus.Entry {
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	return logrus.NewEntry(l)
}

// Section prints a boxed section header to stdout, e.g. between a host's
// startup phases in a demo binary. Rounded corners distinguish it at a
// glance from the sharp-cornered startup Banner below.
func Section(title string) {
	const width = 61
	border := strings.Repeat("─", width)
	fmt.Printf("\n%s╭%s╮%s\n", ColorCyan, border, ColorReset)
	fmt.Printf("%s│%s %-*s %s│%s\n", ColorCyan, ColorReset, width-2, title, ColorCyan, ColorReset)
	fmt.Printf("%s╰%s╯%s\n\n", ColorCyan, border, ColorReset)
}

// Banner prints the application banner once at process start.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ██╗  ██╗███████╗████████╗███████╗██╗   ██╗███╗   ██╗ ██████╗║
║   ████╗██║██╔════╝╚══██╔══╝██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝║
║   ██╔██╗██║█████╗     ██║   ███████╗ ╚████╔╝ ██╔██╗ ██║██║     ║
║   ██║╚████║██╔══╝     ██║   ╚════██║  ╚██╔╝  ██║╚██╗██║██║     ║
║   ██║ ╚███║███████╗   ██║   ███████║   ██║   ██║ ╚████║╚██████╗║
║   ╚═╝  ╚══╝╚══════╝   ╚═╝   ╚══════╝   ╚═╝   ╚═╝  ╚═══╝ ╚═════╝║
║                                                           ║
║              %s%-37s%s║
║                    %sVersion %-7s%s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, ColorCyan, title, ColorReset, ColorGreen, version, ColorReset)
}

// Fatalf logs at error level and exits, matching the teacher's Fatal
// helper's exit-on-log behavior.
func Fatalf(log *logrus.Entry, format string, args ...interface{}) {
	log.Errorf(format, args...)
	os.Exit(1)
}
