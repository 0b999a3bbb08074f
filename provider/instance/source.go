package instance

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/qxfer/db"
	"github.com/teranos/qxfer/errors"
	"github.com/teranos/qxfer/transfer"
)

// SourceResults reports what a source served
type SourceResults struct {
	Path string                   `json:"path,omitempty"`
	Read map[transfer.Stage]int64 `json:"read"`
}

// Source streams the records of a live instance
type Source struct {
	opts   Options
	log    *zap.SugaredLogger
	store  *Store
	ownsDB bool

	mu   sync.Mutex
	read map[transfer.Stage]*atomic.Int64
}

// NewSource returns a source over the database at opts.DatabasePath.
// The database is opened by Bootstrap.
func NewSource(opts Options) *Source {
	return &Source{opts: opts, log: opts.logger("provider.instance.source"), ownsDB: true, read: map[transfer.Stage]*atomic.Int64{}}
}

// NewSourceFromDB returns a source over an already open, migrated database.
// The caller keeps ownership of sqlDB.
func NewSourceFromDB(sqlDB *sql.DB, opts Options) *Source {
	s := NewSource(opts)
	s.store = NewStore(sqlDB)
	s.ownsDB = false
	return s
}

func (s *Source) Name() string { return "instance" }

func (s *Source) Results() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := SourceResults{Path: s.opts.DatabasePath, Read: map[transfer.Stage]int64{}}
	for stage, n := range s.read {
		res.Read[stage] = n.Load()
	}
	return res
}

func (s *Source) Bootstrap(ctx context.Context) error {
	if s.store != nil {
		return nil
	}
	if s.opts.DatabasePath == "" {
		return errors.NewInvalidOptionsError("instance source needs a database path")
	}
	sqlDB, err := db.OpenWithMigrations(s.opts.DatabasePath, nil)
	if err != nil {
		return errors.Wrap(err, "open source instance")
	}
	s.store = NewStore(sqlDB)
	s.log.Debugw("Source instance opened")
	return nil
}

func (s *Source) Close(ctx context.Context) error {
	if s.store == nil || !s.ownsDB {
		return nil
	}
	err := s.store.DB().Close()
	s.store = nil
	return errors.Wrap(err, "close source instance")
}

func (s *Source) Metadata(ctx context.Context) (*transfer.Metadata, error) {
	return metadataOf(ctx, s.store, s.opts.Version)
}

func (s *Source) StreamSchemas(ctx context.Context) (transfer.RecordReader, error) {
	return s.stream(ctx, transfer.StageSchemas)
}

func (s *Source) StreamEntities(ctx context.Context) (transfer.RecordReader, error) {
	return s.stream(ctx, transfer.StageEntities)
}

func (s *Source) StreamLinks(ctx context.Context) (transfer.RecordReader, error) {
	return s.stream(ctx, transfer.StageLinks)
}

func (s *Source) StreamMedia(ctx context.Context) (transfer.RecordReader, error) {
	return s.stream(ctx, transfer.StageMedia)
}

func (s *Source) StreamConfiguration(ctx context.Context) (transfer.RecordReader, error) {
	return s.stream(ctx, transfer.StageConfiguration)
}

func (s *Source) stream(ctx context.Context, stage transfer.Stage) (transfer.RecordReader, error) {
	if s.store == nil {
		return nil, errors.Newf("instance source not bootstrapped")
	}
	r, err := s.store.Stream(ctx, stage)
	if err != nil {
		return nil, err
	}
	return &countedReader{RecordReader: r, n: s.counter(stage)}, nil
}

func (s *Source) counter(stage transfer.Stage) *atomic.Int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.read[stage]
	if !ok {
		n = &atomic.Int64{}
		s.read[stage] = n
	}
	return n
}

type countedReader struct {
	transfer.RecordReader
	n *atomic.Int64
}

func (r *countedReader) Read(ctx context.Context) (transfer.Record, error) {
	rec, err := r.RecordReader.Read(ctx)
	if err == nil {
		r.n.Add(1)
	}
	return rec, err
}

// metadataOf reports the recorded platform version, falling back to the
// configured one. Nothing known means no metadata.
func metadataOf(ctx context.Context, store *Store, fallback string) (*transfer.Metadata, error) {
	version := ""
	if store != nil {
		v, err := store.PlatformVersion(ctx)
		if err != nil {
			return nil, err
		}
		version = v
	}
	if version == "" {
		version = fallback
	}
	if version == "" {
		return nil, nil
	}
	return &transfer.Metadata{
		CreatedAt: time.Now().UTC(),
		Platform:  &transfer.PlatformInfo{Version: version},
	}, nil
}
