package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger. Logs always go to stderr so
// stdout stays free for command output and the MCP stdio transport.
func Setup(verbose bool, format string) {
	SetupWriter(os.Stderr, verbose, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, verbose bool, format string) {
	logrus.SetOutput(w)

	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	switch format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}
