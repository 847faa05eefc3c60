package observability

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// RunName is the metric label identifying a simulation run.
const RunName = "run_name"

// SetLogLevel configures the global logrus level from a config string.
// An empty string keeps the default level.
func SetLogLevel(level string) error {
	if level == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("error parsing log level: %w", err)
	}
	logrus.SetLevel(lvl)
	return nil
}
