package transfer

import (
	"context"
	"time"
)

// RecordReader is a lazy, finite, non-restartable sequence of records.
// Read returns io.EOF once the sequence is exhausted.
type RecordReader interface {
	Read(ctx context.Context) (Record, error)
	Close() error
}

// RecordWriter accepts records for one stage. Close signals that every
// written record has been drained; it is called exactly once, after the
// last successful Write.
type RecordWriter interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}

// Provider is the part every source and destination has in common.
// Everything else a provider can do is expressed by the optional
// capability interfaces below and detected before use.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string

	// Results returns the provider's own report, read after the transfer
	// has closed the provider.
	Results() any
}

// Bootstrapper is implemented by providers that need initialization before data moves.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) error
}

// Closer is implemented by providers that hold resources released after the last stage.
type Closer interface {
	Close(ctx context.Context) error
}

// MetadataProvider is implemented by providers that can describe the
// platform they read from or write to.
type MetadataProvider interface {
	Metadata(ctx context.Context) (*Metadata, error)
}

// ConflictStrategyReceiver is implemented by destinations that accept the
// conflict strategy token. The engine hands it over before bootstrapping.
type ConflictStrategyReceiver interface {
	UseConflictStrategy(strategy string) error
}

// SourceMetadataReceiver is implemented by destinations that keep a record of
// where their data came from, such as archives. It is called after a passing
// integrity check and before the first stage.
type SourceMetadataReceiver interface {
	ReceiveSourceMetadata(md *Metadata) error
}

// Metadata describes one side of a transfer.
type Metadata struct {
	CreatedAt time.Time     `json:"createdAt,omitempty"`
	Platform  *PlatformInfo `json:"platform,omitempty"`
}

// PlatformInfo identifies the platform version behind a provider.
type PlatformInfo struct {
	Version string `json:"version"`
}

// Version returns the platform version, or "" when the metadata carries none.
func (m *Metadata) Version() string {
	if m == nil || m.Platform == nil {
		return ""
	}
	return m.Platform.Version
}

// Source capabilities.
type (
	SchemaSource interface {
		StreamSchemas(ctx context.Context) (RecordReader, error)
	}
	EntitySource interface {
		StreamEntities(ctx context.Context) (RecordReader, error)
	}
	LinkSource interface {
		StreamLinks(ctx context.Context) (RecordReader, error)
	}
	MediaSource interface {
		StreamMedia(ctx context.Context) (RecordReader, error)
	}
	ConfigurationSource interface {
		StreamConfiguration(ctx context.Context) (RecordReader, error)
	}
)

// Destination capabilities.
type (
	SchemaDestination interface {
		SchemasWriter(ctx context.Context) (RecordWriter, error)
	}
	EntityDestination interface {
		EntitiesWriter(ctx context.Context) (RecordWriter, error)
	}
	LinkDestination interface {
		LinksWriter(ctx context.Context) (RecordWriter, error)
	}
	MediaDestination interface {
		MediaWriter(ctx context.Context) (RecordWriter, error)
	}
	ConfigurationDestination interface {
		ConfigurationWriter(ctx context.Context) (RecordWriter, error)
	}
)

type (
	readerFactory func(ctx context.Context) (RecordReader, error)
	writerFactory func(ctx context.Context) (RecordWriter, error)
)

// sourceStream returns the reader factory a source offers for stage, or nil.
func sourceStream(p Provider, stage Stage) readerFactory {
	switch stage {
	case StageSchemas:
		if s, ok := p.(SchemaSource); ok {
			return s.StreamSchemas
		}
	case StageEntities:
		if s, ok := p.(EntitySource); ok {
			return s.StreamEntities
		}
	case StageLinks:
		if s, ok := p.(LinkSource); ok {
			return s.StreamLinks
		}
	case StageMedia:
		if s, ok := p.(MediaSource); ok {
			return s.StreamMedia
		}
	case StageConfiguration:
		if s, ok := p.(ConfigurationSource); ok {
			return s.StreamConfiguration
		}
	}
	return nil
}

// destinationStream returns the writer factory a destination offers for stage, or nil.
func destinationStream(p Provider, stage Stage) writerFactory {
	switch stage {
	case StageSchemas:
		if d, ok := p.(SchemaDestination); ok {
			return d.SchemasWriter
		}
	case StageEntities:
		if d, ok := p.(EntityDestination); ok {
			return d.EntitiesWriter
		}
	case StageLinks:
		if d, ok := p.(LinkDestination); ok {
			return d.LinksWriter
		}
	case StageMedia:
		if d, ok := p.(MediaDestination); ok {
			return d.MediaWriter
		}
	case StageConfiguration:
		if d, ok := p.(ConfigurationDestination); ok {
			return d.ConfigurationWriter
		}
	}
	return nil
}
