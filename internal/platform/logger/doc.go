// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured JSON logging
// with configurable log levels. Loggers enriched with run or task attributes travel
// through context.Context via WithLogger and FromContext.
package logger
