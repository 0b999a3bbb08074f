package instance

import (
	"strings"

	"github.com/teranos/qxfer/errors"
)

// ConflictStrategy decides what happens when an incoming record already exists
type ConflictStrategy string

const (
	// StrategyRestore empties each stage table before the stage writes into it
	StrategyRestore ConflictStrategy = "restore"
	// StrategyMerge overwrites existing records and keeps the rest
	StrategyMerge ConflictStrategy = "merge"
	// StrategySkip keeps existing records and ignores incoming duplicates
	StrategySkip ConflictStrategy = "skip"
)

// ParseConflictStrategy validates name. An empty name selects restore.
func ParseConflictStrategy(name string) (ConflictStrategy, error) {
	switch s := ConflictStrategy(strings.ToLower(strings.TrimSpace(name))); s {
	case "":
		return StrategyRestore, nil
	case StrategyRestore, StrategyMerge, StrategySkip:
		return s, nil
	default:
		return "", errors.WithHint(
			errors.NewInvalidOptionsError("unknown conflict strategy %q", name),
			"use one of: restore, merge, skip",
		)
	}
}
