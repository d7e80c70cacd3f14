package logger

import (
	"os"
	"strings"
	"time"

	sentryhook "github.com/chadsr/logrus-sentry"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// Fields is a map of structured log fields
type Fields = logrus.Fields

var log = logrus.New()

func init() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
}

// Options configures the process-wide logger
type Options struct {
	Level       string
	Environment string
	SentryDSN   string
}

// Setup applies the logging configuration. It is called once at startup.
// When a Sentry DSN is configured, error, fatal and panic entries are
// forwarded to Sentry.
func Setup(opts Options) error {
	if opts.Level != "" {
		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return err
		}
		log.SetLevel(level)
	}

	if strings.EqualFold(opts.Environment, "production") {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}

	if opts.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              opts.SentryDSN,
			Environment:      opts.Environment,
			AttachStacktrace: true,
		})
		if err != nil {
			return err
		}
		log.AddHook(sentryhook.New([]logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		}))
	}

	return nil
}

// Flush waits for buffered Sentry events to be delivered
func Flush() {
	sentry.Flush(2 * time.Second)
}

// WithFields returns an entry carrying the given fields
func WithFields(fields Fields) *logrus.Entry {
	return log.WithFields(fields)
}

// Debugf logs a message at level Debug
func Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

// Infof logs a message at level Info
func Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

// Warnf logs a message at level Warn
func Warnf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

// Errorf logs a message at level Error
func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

// Fatalf logs a message at level Fatal and exits
func Fatalf(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}
