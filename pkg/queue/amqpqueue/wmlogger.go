/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package amqpqueue

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/trustbloc/logutil-go/pkg/log"
	"go.uber.org/zap"
)

// wmLogger adapts the structured logger to the watermill LoggerAdapter interface.
type wmLogger struct {
	logger *log.Log
	fields watermill.LogFields
}

func newWMLogger() *wmLogger {
	return &wmLogger{logger: log.New("watermill")}
}

// Error logs an error.
func (l *wmLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error(msg, log.WithError(err), zap.Any("fields", l.fields.Add(fields)))
}

// Info logs an informational message. Watermill is chatty at this level, so the
// message is logged as debug.
func (l *wmLogger) Info(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, zap.Any("fields", l.fields.Add(fields)))
}

// Debug logs a debug message.
func (l *wmLogger) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, zap.Any("fields", l.fields.Add(fields)))
}

// Trace logs a trace message as debug.
func (l *wmLogger) Trace(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, zap.Any("fields", l.fields.Add(fields)))
}

// With returns a new logger that includes the given fields in each log.
func (l *wmLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &wmLogger{
		logger: l.logger,
		fields: l.fields.Add(fields),
	}
}
