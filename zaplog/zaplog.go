// Package zaplog adapts go.uber.org/zap to spool.Logger.
package zaplog

import (
	"go.uber.org/zap"

	"github.com/velmie/spool"
)

// Logger implements spool.Logger on a sugared zap logger.
type Logger struct {
	sugar *zap.SugaredLogger
}

var _ spool.Logger = (*Logger)(nil)

// New wraps logger. A nil logger yields a no-op zap logger.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Logger{sugar: logger.Sugar()}
}

// NewProduction builds a JSON production logger, or a development logger when
// verbose is set.
func NewProduction(verbose bool) (*Logger, func() error, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, err
	}

	return New(logger), logger.Sync, nil
}

// Debug implements spool.Logger.
func (l *Logger) Debug(msg string, args ...any) {
	l.sugar.Debugw(msg, args...)
}

// Info implements spool.Logger.
func (l *Logger) Info(msg string, args ...any) {
	l.sugar.Infow(msg, args...)
}

// Warn implements spool.Logger.
func (l *Logger) Warn(msg string, args ...any) {
	l.sugar.Warnw(msg, args...)
}

// Error implements spool.Logger.
func (l *Logger) Error(msg string, args ...any) {
	l.sugar.Errorw(msg, args...)
}
