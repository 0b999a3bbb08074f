package transfer

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teranos/qxfer/errors"
)

// sourceBase implements every source capability except links and media, so
// tests can build sources with and without them.
type sourceBase struct {
	name     string
	version  string
	records  map[Stage][]Record
	failAt   map[Stage]int // fail the Nth read (0-based) with readErr
	readErr  error
	reads    atomic.Int64
	booted   atomic.Bool
	closed   atomic.Bool
	closeErr error
}

func newSourceBase(records map[Stage][]Record) *sourceBase {
	return &sourceBase{name: "fake-source", records: records, failAt: map[Stage]int{}}
}

func (s *sourceBase) Name() string { return s.name }
func (s *sourceBase) Results() any { return map[string]any{"reads": s.reads.Load()} }

func (s *sourceBase) Bootstrap(ctx context.Context) error {
	s.booted.Store(true)
	return nil
}

func (s *sourceBase) Close(ctx context.Context) error {
	s.closed.Store(true)
	return s.closeErr
}

func (s *sourceBase) Metadata(ctx context.Context) (*Metadata, error) {
	if s.version == "" {
		return nil, nil
	}
	return &Metadata{Platform: &PlatformInfo{Version: s.version}}, nil
}

func (s *sourceBase) reader(stage Stage) RecordReader {
	fail, ok := s.failAt[stage]
	if !ok {
		fail = -1
	}
	return &countingReader{records: s.records[stage], failAt: fail, err: s.readErr, reads: &s.reads}
}

func (s *sourceBase) StreamSchemas(ctx context.Context) (RecordReader, error) {
	return s.reader(StageSchemas), nil
}

func (s *sourceBase) StreamEntities(ctx context.Context) (RecordReader, error) {
	return s.reader(StageEntities), nil
}

func (s *sourceBase) StreamConfiguration(ctx context.Context) (RecordReader, error) {
	return s.reader(StageConfiguration), nil
}

type fakeSource struct{ *sourceBase }

func (s fakeSource) StreamLinks(ctx context.Context) (RecordReader, error) {
	return s.reader(StageLinks), nil
}

// linklessSource cannot stream links.
type linklessSource struct{ *sourceBase }

// mediaSource streams everything, media included.
type mediaSource struct{ fakeSource }

func (s mediaSource) StreamMedia(ctx context.Context) (RecordReader, error) {
	return s.reader(StageMedia), nil
}

type countingReader struct {
	records []Record
	next    int
	failAt  int
	err     error
	reads   *atomic.Int64
}

func (r *countingReader) Read(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.next == r.failAt {
		return nil, r.err
	}
	if r.next >= len(r.records) {
		return nil, io.EOF
	}
	rec := r.records[r.next]
	r.next++
	r.reads.Add(1)
	return rec, nil
}

func (r *countingReader) Close() error { return nil }

// fakeDestination accepts every stage and remembers what it received.
type fakeDestination struct {
	name       string
	version    string
	strategy   string
	writeDelay time.Duration
	failStage  Stage
	failAfter  int
	writeErr   error
	closeErr   error

	// onWrite runs before each write is accepted.
	onWrite func()

	mu       sync.Mutex
	received map[Stage][]Record
	drained  map[Stage]bool
	booted   atomic.Bool
	closed   atomic.Bool
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		name:     "fake-destination",
		received: make(map[Stage][]Record),
		drained:  make(map[Stage]bool),
	}
}

func (d *fakeDestination) Name() string { return d.name }

func (d *fakeDestination) Results() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	counts := map[Stage]int{}
	for s, recs := range d.received {
		counts[s] = len(recs)
	}
	return counts
}

func (d *fakeDestination) UseConflictStrategy(strategy string) error {
	if strategy == "explode" {
		return errors.New("unsupported strategy")
	}
	d.strategy = strategy
	return nil
}

func (d *fakeDestination) Bootstrap(ctx context.Context) error {
	d.booted.Store(true)
	return nil
}

func (d *fakeDestination) Close(ctx context.Context) error {
	d.closed.Store(true)
	return d.closeErr
}

func (d *fakeDestination) Metadata(ctx context.Context) (*Metadata, error) {
	if d.version == "" {
		return nil, nil
	}
	return &Metadata{Platform: &PlatformInfo{Version: d.version}}, nil
}

func (d *fakeDestination) got(stage Stage) []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Record(nil), d.received[stage]...)
}

func (d *fakeDestination) wasDrained(stage Stage) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drained[stage]
}

func (d *fakeDestination) writer(stage Stage) RecordWriter {
	return &recordingWriter{dest: d, stage: stage}
}

func (d *fakeDestination) SchemasWriter(ctx context.Context) (RecordWriter, error) {
	return d.writer(StageSchemas), nil
}

func (d *fakeDestination) EntitiesWriter(ctx context.Context) (RecordWriter, error) {
	return d.writer(StageEntities), nil
}

func (d *fakeDestination) LinksWriter(ctx context.Context) (RecordWriter, error) {
	return d.writer(StageLinks), nil
}

func (d *fakeDestination) ConfigurationWriter(ctx context.Context) (RecordWriter, error) {
	return d.writer(StageConfiguration), nil
}

// mediaDestination also accepts media.
type mediaDestination struct{ *fakeDestination }

func (d mediaDestination) MediaWriter(ctx context.Context) (RecordWriter, error) {
	return d.writer(StageMedia), nil
}

type recordingWriter struct {
	dest  *fakeDestination
	stage Stage
}

func (w *recordingWriter) Write(ctx context.Context, rec Record) error {
	d := w.dest
	if d.onWrite != nil {
		d.onWrite()
	}
	if d.writeDelay > 0 {
		select {
		case <-time.After(d.writeDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if w.stage == d.failStage && len(d.received[w.stage]) == d.failAfter {
		return d.writeErr
	}
	d.received[w.stage] = append(d.received[w.stage], rec)
	return nil
}

func (w *recordingWriter) Close() error {
	w.dest.mu.Lock()
	defer w.dest.mu.Unlock()
	w.dest.drained[w.stage] = true
	return nil
}

func sampleDataset() map[Stage][]Record {
	return map[Stage][]Record{
		StageSchemas: {
			{"uid": "api::article.article", "kind": "collectionType"},
			{"uid": "api::author.author", "kind": "collectionType"},
		},
		StageEntities: {
			{"id": 1, "type": "api::article.article", "data": map[string]any{"title": "Hello"}},
			{"id": 2, "type": "api::article.article", "data": map[string]any{"title": "World"}},
			{"id": 1, "type": "api::author.author", "data": map[string]any{"name": "Ada"}},
			{"id": 99, "data": map[string]any{"orphan": true}},
		},
		StageLinks: {
			{"kind": "relation.basic", "left": map[string]any{"type": "api::article.article", "ref": 1, "field": "author"}, "right": map[string]any{"type": "api::author.author", "ref": 1}},
		},
		StageMedia: {
			{"id": 7, "name": "cover.png", "url": "/uploads/cover.png"},
		},
		StageConfiguration: {
			{"type": "core-store", "value": map[string]any{"key": "plugin_i18n_default_locale", "value": "en"}},
		},
	}
}

// collect drains an unsubscribed channel.
func collect(ch <-chan ProgressEvent) []ProgressEvent {
	var events []ProgressEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}
