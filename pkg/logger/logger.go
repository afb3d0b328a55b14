package logger

import (
	"log"
	"os"
)

const (
	DEBUG int = iota
	INFO
	WARNING
	ERROR
	SILENCE
)

type Logger interface {
	Debugf(msg string, a ...any)
	Infof(msg string, a ...any)
	Warnf(msg string, a ...any)
	Errorf(msg string, a ...any)
}

type defaultLogger struct {
	level  int
	logger *log.Logger
}

func NewLogger() *defaultLogger {
	level := INFO
	if os.Getenv("ENV") == "local" {
		level = DEBUG
	}

	return &defaultLogger{level: level, logger: log.Default()}
}

func NewLoggerWithLevel(level int) *defaultLogger {
	return &defaultLogger{level: level, logger: log.Default()}
}

func (l *defaultLogger) Debugf(msg string, a ...any) {
	if l.level <= DEBUG {
		l.logger.Printf("DEBUG: "+msg+"\n", a...)
	}
}

func (l *defaultLogger) Infof(msg string, a ...any) {
	if l.level <= INFO {
		l.logger.Printf("INFO: "+msg+"\n", a...)
	}
}

func (l *defaultLogger) Warnf(msg string, a ...any) {
	if l.level <= WARNING {
		l.logger.Printf("WARN: "+msg+"\n", a...)
	}
}

func (l *defaultLogger) Errorf(msg string, a ...any) {
	if l.level <= ERROR {
		l.logger.Printf("ERROR: "+msg+"\n", a...)
	}
}
