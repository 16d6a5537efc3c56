package services

import (
	"github.com/rs/zerolog/log"
)

// Level is the severity of a user-visible notification
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier is the side channel for messages meant for the people using the album
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(level Level, message string)

// Notify implements Notifier
func (f NotifierFunc) Notify(level Level, message string) {
	f(level, message)
}

// LogNotifier writes notifications to the application log
type LogNotifier struct{}

// Notify implements Notifier
func (LogNotifier) Notify(level Level, message string) {
	event := log.Info()
	switch level {
	case LevelWarning:
		event = log.Warn()
	case LevelError:
		event = log.Error()
	}
	event.Str("level", string(level)).Msg(message)
}

// MultiNotifier fans a notification out to several notifiers
type MultiNotifier []Notifier

// Notify implements Notifier
func (m MultiNotifier) Notify(level Level, message string) {
	for _, n := range m {
		if n != nil {
			n.Notify(level, message)
		}
	}
}
