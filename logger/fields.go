package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across qxfer.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldTransferID = "transfer_id"

	// Components
	FieldComponent = "component"
	FieldProvider  = "provider"

	// Transfer
	FieldStage       = "stage"
	FieldSide        = "side"
	FieldStrategy    = "strategy"
	FieldSourceVer   = "source_version"
	FieldDestVer     = "destination_version"
	FieldState       = "state"
	FieldAggregateBy = "aggregate_by"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount = "count"
	FieldBytes = "bytes"

	// Files and paths
	FieldPath = "path"

	// Storage
	FieldMigration = "migration"
	FieldVersion   = "version"
)

// Context keys for propagating logging context
type contextKey string

const (
	transferIDKey contextKey = "logger_transfer_id"
	componentKey  contextKey = "logger_component"
)

// WithTransferID adds a transfer ID to the context for logging
func WithTransferID(ctx context.Context, transferID string) context.Context {
	return context.WithValue(ctx, transferIDKey, transferID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if id, ok := ctx.Value(transferIDKey).(string); ok && id != "" {
		fields = append(fields, FieldTransferID, id)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	engine := transfer.New(src, dst, opts,
//	    transfer.WithLogger(logger.ComponentLogger("transfer.engine")))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
