package agentfs

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the package-wide logrus logger from a
// case-insensitive level string ("trace", "debug", "info", "warn",
// "none"/""). An empty or "none" level silences logging entirely by
// routing output to io.Discard rather than by filtering at the call site.
func SetupLogging(level string, out io.Writer) {
	level = strings.ToLower(level)
	if level == "" || level == "none" {
		logrus.SetOutput(io.Discard)
		return
	}
	if out != nil {
		logrus.SetOutput(out)
	}
	switch level {
	case "trace":
		logrus.SetLevel(logrus.TraceLevel)
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	default:
		logrus.SetLevel(logrus.DebugLevel)
	}
}
