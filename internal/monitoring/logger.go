package monitoring

import (
	"log"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// LogElapsed logs how long a named stage took since start.
// Typical use: defer monitoring.LogElapsed("analyze", time.Now()).
func LogElapsed(stage string, start time.Time) {
	Logf("%s took %s", stage, time.Since(start).Round(time.Microsecond))
}
