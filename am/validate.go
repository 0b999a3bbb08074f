package am

import (
	"github.com/teranos/qxfer/errors"
	"github.com/teranos/qxfer/provider/instance"
	"github.com/teranos/qxfer/transfer"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if _, err := transfer.ParseVersionMatching(c.Transfer.VersionMatching); err != nil {
		return errors.Wrap(err, "transfer.version_matching")
	}

	if c.Transfer.ConflictStrategy != "" {
		if _, err := instance.ParseConflictStrategy(c.Transfer.ConflictStrategy); err != nil {
			return errors.Wrap(err, "transfer.conflict_strategy")
		}
	}

	if _, err := transfer.ParseStages(c.Transfer.Exclude); err != nil {
		return errors.Wrap(err, "transfer.exclude")
	}

	// 0 = use default, negative = invalid
	if c.Transfer.EventBuffer < 0 {
		return errors.NewInvalidOptionsError("transfer.event_buffer must be >= 0, got %d", c.Transfer.EventBuffer)
	}
	if c.Transfer.Window < 0 {
		return errors.NewInvalidOptionsError("transfer.window must be >= 0, got %d", c.Transfer.Window)
	}
	if c.Archive.MaxChunkBytes < 0 {
		return errors.NewInvalidOptionsError("archive.max_chunk_bytes must be >= 0, got %d", c.Archive.MaxChunkBytes)
	}
	if c.Instance.MaxWritesPerSecond < 0 {
		return errors.NewInvalidOptionsError("instance.max_writes_per_second must be >= 0, got %f", c.Instance.MaxWritesPerSecond)
	}

	return nil
}

// TransferOptions converts the transfer section into engine options.
// Call Validate first; parse failures here are returned unchanged.
func (c *Config) TransferOptions() (transfer.Options, error) {
	matching, err := transfer.ParseVersionMatching(c.Transfer.VersionMatching)
	if err != nil {
		return transfer.Options{}, err
	}
	exclude, err := transfer.ParseStages(c.Transfer.Exclude)
	if err != nil {
		return transfer.Options{}, err
	}
	return transfer.Options{
		ConflictStrategy: c.Transfer.ConflictStrategy,
		VersionMatching:  matching,
		Exclude:          exclude,
		Window:           c.Transfer.Window,
		EventBuffer:      c.Transfer.EventBuffer,
	}, nil
}
