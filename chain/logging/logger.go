package logging

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// chainLogger implements logger.ILogger with chainkv's own formatting.
type chainLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *chainLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *chainLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *chainLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *chainLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *chainLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *chainLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

func (l *chainLogger) log(levelStr string, format string, args ...interface{}) {
	l.logger.Printf("%-5s | %-20s | %s", levelStr, l.name, fmt.Sprintf(format, args...))
}

// defaultLevel is the level Factory gives each new logger; Init sets it.
var defaultLevel logger.LogLevel = logger.INFO

// Factory creates a named logger. It matches dragonboat's logger.Factory
// signature, so it can be installed with logger.SetLoggerFactory.
func Factory(pkgName string) logger.ILogger {
	return &chainLogger{
		name:   pkgName,
		level:  defaultLevel,
		logger: log.New(os.Stdout, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
}

// ParseLevel converts a string ("debug", "info", "warn"/"warning", "error")
// to a logger.LogLevel, defaulting to INFO for anything unrecognized.
func ParseLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG
	case "info":
		return logger.INFO
	case "warn", "warning":
		return logger.WARNING
	case "error":
		return logger.ERROR
	default:
		return logger.INFO
	}
}

// Init installs the chainkv logger factory, makes level the starting level
// of every logger Factory creates afterwards, and sets it on the named
// loggers in dragonboat's registry.
func Init(level string) {
	lvl := ParseLevel(level)
	defaultLevel = lvl
	logger.SetLoggerFactory(Factory)
	for _, name := range []string{
		"chain", "chain/keyholder", "chain/striped", "chain/microop",
		"chain/replication", "chain/periodic", "chain/datalayer",
		"chain/messenger", "chain/config", "chain/frontend", "cmd",
	} {
		logger.GetLogger(name).SetLevel(lvl)
	}
}
