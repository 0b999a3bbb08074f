// Package errors provides error handling for qxfer.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for user-facing reports
//
// Usage:
//
//	// Wrap a provider failure with the stage it happened in
//	if err := w.Write(ctx, rec); err != nil {
//	    return errors.Wrapf(err, "write %s", stage)
//	}
//
//	// Add hints for users
//	return errors.WithHint(err, "re-run with --version-matching=ignore")
//
//	// Check errors
//	if errors.Is(err, errors.ErrIncompatibleVersion) {
//	    // report both versions
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Combining
var (
	CombineErrors      = crdb.CombineErrors
	WithSecondaryError = crdb.WithSecondaryError
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace

// Sentinel errors for the three failure kinds a transfer can raise.
// Wrap these (or Mark a provider error with them) to keep errors.Is working.
var (
	// ErrMissingStream indicates a provider lacks the stream capability a stage needs.
	// It is raised before any data flows.
	ErrMissingStream = New("missing stream")

	// ErrIncompatibleVersion indicates the integrity check rejected the
	// source and destination versions.
	ErrIncompatibleVersion = New("incompatible versions")

	// ErrInvalidOptions indicates the transfer options cannot be used.
	ErrInvalidOptions = New("invalid transfer options")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")
)

// IsMissingStream reports whether err is a configuration error raised for an absent stream capability.
func IsMissingStream(err error) bool {
	return err != nil && Is(err, ErrMissingStream)
}

// IsIncompatibleVersion reports whether err is a failed integrity check.
func IsIncompatibleVersion(err error) bool {
	return err != nil && Is(err, ErrIncompatibleVersion)
}

// NewInvalidOptionsError creates an invalid-options error with a formatted message
func NewInvalidOptionsError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidOptions, Newf(format, args...).Error())
}
