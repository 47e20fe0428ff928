package logger

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Init configures the global logrus logger.
// It is safe to call multiple times; later calls overwrite previous settings.
// LOG_FORMAT=json switches to structured output for log shippers.
func Init() {
	log.SetOutput(os.Stdout)

	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = "info"
	}
	if lvl, err := log.ParseLevel(levelStr); err == nil {
		log.SetLevel(lvl)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// L returns the global logger for convenience.
func L() *log.Logger { return log.StandardLogger() }

// RetryLogger adapts logrus to the leveled logger interface used by
// hashicorp/go-retryablehttp. Client errors are downgraded to warnings
// because the client logs them before every retry.
type RetryLogger struct{}

func (RetryLogger) Error(msg string, keysAndValues ...interface{}) {
	L().WithFields(fields(keysAndValues)).Warn(msg)
}

func (RetryLogger) Warn(msg string, keysAndValues ...interface{}) {
	L().WithFields(fields(keysAndValues)).Warn(msg)
}

func (RetryLogger) Info(msg string, keysAndValues ...interface{}) {
	L().WithFields(fields(keysAndValues)).Debug(msg)
}

func (RetryLogger) Debug(msg string, keysAndValues ...interface{}) {
	L().WithFields(fields(keysAndValues)).Debug(msg)
}

func fields(keysAndValues []interface{}) log.Fields {
	out := make(log.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		out[key] = keysAndValues[i+1]
	}
	return out
}
