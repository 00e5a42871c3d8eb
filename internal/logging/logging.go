// Package logging provides the agent-id-prefixed process logging used
// throughout the coordination core, continuing the plain standard-library
// log.Printf convention rather than introducing a structured logger.
package logging

import "log"

// Logger prefixes every line with a component id, mirroring the
// teacher's LogInfo/LogDebug/LogError helpers.
type Logger struct {
	component string
}

// New returns a Logger that prefixes all output with component.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Info(format string, args ...interface{}) {
	log.Printf("[%s] "+format, append([]interface{}{l.component}, args...)...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	log.Printf("[%s] DEBUG "+format, append([]interface{}{l.component}, args...)...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	log.Printf("[%s] ERROR "+format, append([]interface{}{l.component}, args...)...)
}
