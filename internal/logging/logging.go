// Package logging gives every component a short, consistently-prefixed
// logger on top of the standard library logger, matching the terse
// emoji-marked style used throughout this codebase's storage and messaging
// clients.
package logging

import "log"

// Logger prefixes every line with a component tag, e.g. "[engine]".
type Logger struct {
	prefix string
}

func New(component string) *Logger {
	return &Logger{prefix: "[" + component + "] "}
}

func (l *Logger) Printf(format string, args ...interface{}) {
	log.Printf(l.prefix+format, args...)
}

func (l *Logger) Println(args ...interface{}) {
	log.Println(append([]interface{}{l.prefix}, args...)...)
}
