package logger

import (
	"github.com/sirupsen/logrus"
)

// Logger receives progress and outcome events from the walker, planner and
// executor.
type Logger interface {
	PhaseStart(phase string, totalItems int)
	PhaseComplete(phase string, processedItems int)
	Copy(src, dest string)
	Delete(path string)
	Error(operation, path string, err error)
	Debug(message string)
}

// SyncLogger writes events through logrus.
type SyncLogger struct {
	IsDryRun  bool
	IsQuiet   bool
	IsVerbose bool

	// Log defaults to the standard logrus logger.
	Log logrus.FieldLogger
}

func (l *SyncLogger) log() logrus.FieldLogger {
	if l.Log != nil {
		return l.Log
	}
	return logrus.StandardLogger()
}

func (l *SyncLogger) prefix() string {
	if l.IsDryRun {
		return "(dryrun) "
	}
	return ""
}

func (l *SyncLogger) PhaseStart(phase string, totalItems int) {
	l.log().WithFields(logrus.Fields{"phase": phase, "items": totalItems}).Debug("Starting phase")
}

func (l *SyncLogger) PhaseComplete(phase string, processedItems int) {
	l.log().WithFields(logrus.Fields{"phase": phase, "items": processedItems}).Debug("Phase complete")
}

// Copy is shown in verbose and dry-run mode.
func (l *SyncLogger) Copy(src, dest string) {
	if l.IsQuiet || !(l.IsVerbose || l.IsDryRun) {
		return
	}
	l.log().WithField("dest", dest).Infof("%scopy: %s", l.prefix(), src)
}

// Delete is shown in verbose and dry-run mode.
func (l *SyncLogger) Delete(path string) {
	if l.IsQuiet || !(l.IsVerbose || l.IsDryRun) {
		return
	}
	l.log().Infof("%sdelete: %s", l.prefix(), path)
}

// Error is always shown.
func (l *SyncLogger) Error(operation, path string, err error) {
	l.log().WithError(err).WithFields(logrus.Fields{"op": operation, "path": path}).Error("Operation failed")
}

func (l *SyncLogger) Debug(message string) {
	l.log().Debug(message)
}

// NullLogger discards everything.
type NullLogger struct{}

func (l *NullLogger) PhaseStart(phase string, totalItems int) {}

func (l *NullLogger) PhaseComplete(phase string, processedItems int) {}

func (l *NullLogger) Copy(src, dest string) {}

func (l *NullLogger) Delete(path string) {}

func (l *NullLogger) Error(operation, path string, err error) {}

func (l *NullLogger) Debug(message string) {}
