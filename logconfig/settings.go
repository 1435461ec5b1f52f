package logconfig

import (
	"io"
	"os"
	"strings"

	myLogger "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// This output format is used in the test (has terminal).
func ConfigDebugLogger() {
	myLogger.SetReportCaller(true)
	myLogger.SetLevel(myLogger.DebugLevel)
	myLogger.SetFormatter(&myLogger.TextFormatter{
		ForceColors:            true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

// This output format is used in production.
func ConfigProductionLogger(level myLogger.Level) {
	myLogger.SetReportCaller(false)
	myLogger.SetLevel(level)
	myLogger.SetFormatter(&myLogger.TextFormatter{
		FullTimestamp: true,
	})
}

// ConfigFileLogger keeps production formatting and additionally writes a
// rotated JSON log to path.
func ConfigFileLogger(path string, level myLogger.Level) {
	myLogger.SetReportCaller(false)
	myLogger.SetLevel(level)
	myLogger.SetFormatter(&myLogger.JSONFormatter{})
	myLogger.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}))
}

// ParseLevel maps an empty or unknown string to info.
func ParseLevel(level string) myLogger.Level {
	lvl, err := myLogger.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return myLogger.InfoLevel
	}
	return lvl
}
