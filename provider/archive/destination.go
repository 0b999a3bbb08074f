package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"

	"github.com/teranos/qxfer/errors"
	"github.com/teranos/qxfer/logger"
	"github.com/teranos/qxfer/transfer"
	"github.com/teranos/qxfer/version"
)

// DefaultMaxChunkBytes is the chunk size used when none is configured
const DefaultMaxChunkBytes = 256 * 1024

// DestinationOptions configures an archive destination
type DestinationOptions struct {
	// Path of the archive. The extension is replaced to match Compress.
	Path string

	Compress bool

	// MaxChunkBytes starts a new chunk file once a chunk reaches this size.
	MaxChunkBytes int64

	Logger *zap.SugaredLogger
}

// DestinationResults reports the archive written
type DestinationResults struct {
	Path       string                           `json:"path"`
	Digest     digest.Digest                    `json:"digest,omitempty"`
	Size       int64                            `json:"size"`
	Compressed bool                             `json:"compressed"`
	Stages     map[transfer.Stage]StageManifest `json:"stages"`
}

// Destination writes a transfer into an archive file. The archive is built
// in a temporary file next to Path and renamed into place by Close.
type Destination struct {
	opts DestinationOptions
	path string
	log  *zap.SugaredLogger

	mu       sync.Mutex
	file     *os.File
	counter  *countingWriter
	digester digest.Digester
	zenc     *zstd.Encoder
	tw       *tar.Writer
	manifest Manifest
	open     map[*chunkWriter]struct{}
	finished bool
	result   DestinationResults
}

// NewDestination returns an archive destination. Nothing touches the disk
// until Bootstrap.
func NewDestination(opts DestinationOptions) *Destination {
	if opts.MaxChunkBytes <= 0 {
		opts.MaxChunkBytes = DefaultMaxChunkBytes
	}
	p := ResolvePath(opts.Path, opts.Compress)
	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("provider.archive.destination")
	}
	return &Destination{
		opts: opts,
		path: p,
		log:  log.With(logger.FieldPath, p),
		open: map[*chunkWriter]struct{}{},
	}
}

func (d *Destination) Name() string { return "archive" }

// Path returns the final archive path
func (d *Destination) Path() string { return d.path }

func (d *Destination) Results() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := d.result
	res.Path = d.path
	res.Compressed = d.opts.Compress
	res.Stages = map[transfer.Stage]StageManifest{}
	for stage, m := range d.manifest.Stages {
		res.Stages[stage] = m
	}
	return res
}

func (d *Destination) Bootstrap(ctx context.Context) error {
	if d.opts.Path == "" {
		return errors.NewInvalidOptionsError("archive destination needs a path")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
		return errors.Wrapf(err, "create directory for %s", d.path)
	}
	f, err := os.CreateTemp(filepath.Dir(d.path), filepath.Base(d.path)+".*.partial")
	if err != nil {
		return errors.Wrap(err, "create archive")
	}

	d.file = f
	d.digester = digest.Canonical.Digester()
	d.counter = &countingWriter{w: io.MultiWriter(f, d.digester.Hash())}

	var out io.Writer = d.counter
	if d.opts.Compress {
		enc, err := zstd.NewWriter(d.counter, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
		if err != nil {
			f.Close()
			os.Remove(f.Name())
			return errors.Wrap(err, "create zstd encoder")
		}
		d.zenc = enc
		out = enc
	}
	d.tw = tar.NewWriter(out)
	d.manifest = Manifest{
		Format:    version.ArchiveFormat,
		Tool:      version.Get().String(),
		CreatedAt: time.Now().UTC(),
		Stages:    map[transfer.Stage]StageManifest{},
	}

	d.log.Debugw("Archive started", "partial", f.Name(), "compress", d.opts.Compress)
	return nil
}

// ReceiveSourceMetadata records the origin of the data in the manifest
func (d *Destination) ReceiveSourceMetadata(md *transfer.Metadata) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.manifest.Source = md
	return nil
}

// Close finishes the archive: the manifest is appended, the streams are
// flushed and the file is moved to its final path. An archive with a stage
// still open is incomplete and is discarded instead.
func (d *Destination) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil || d.finished {
		return nil
	}
	if len(d.open) > 0 {
		d.log.Warnw("Discarding incomplete archive", "open_stages", len(d.open))
		return d.discardLocked()
	}

	manifest, err := json.MarshalIndent(d.manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	if err := d.writeEntryLocked(MetadataFile, manifest); err != nil {
		return err
	}
	if err := d.tw.Close(); err != nil {
		return errors.Wrap(err, "close tar stream")
	}
	if d.zenc != nil {
		if err := d.zenc.Close(); err != nil {
			return errors.Wrap(err, "close zstd stream")
		}
	}
	if err := d.file.Sync(); err != nil {
		return errors.Wrap(err, "sync archive")
	}
	if err := d.file.Close(); err != nil {
		return errors.Wrap(err, "close archive")
	}
	if err := os.Rename(d.file.Name(), d.path); err != nil {
		return errors.Wrapf(err, "move archive to %s", d.path)
	}

	d.finished = true
	d.result.Digest = d.digester.Digest()
	d.result.Size = d.counter.n
	d.log.Infow("Archive written", "digest", d.result.Digest.String(), logger.FieldBytes, d.result.Size)
	return nil
}

// Abort discards the partial archive. Safe to call more than once.
func (d *Destination) Abort() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil || d.finished {
		return nil
	}
	d.log.Infow("Archive aborted")
	return d.discardLocked()
}

func (d *Destination) discardLocked() error {
	d.finished = true
	d.open = map[*chunkWriter]struct{}{}
	if d.zenc != nil {
		d.zenc.Close()
	}
	d.file.Close()
	if err := os.Remove(d.file.Name()); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove partial archive")
	}
	return nil
}

func (d *Destination) writeEntryLocked(name string, data []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0644,
		Size:     int64(len(data)),
		ModTime:  d.manifest.CreatedAt,
		Typeflag: tar.TypeReg,
	}
	if err := d.tw.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "write header %s", name)
	}
	if _, err := d.tw.Write(data); err != nil {
		return errors.Wrapf(err, "write %s", name)
	}
	return nil
}

func (d *Destination) SchemasWriter(ctx context.Context) (transfer.RecordWriter, error) {
	return d.writer(transfer.StageSchemas)
}

func (d *Destination) EntitiesWriter(ctx context.Context) (transfer.RecordWriter, error) {
	return d.writer(transfer.StageEntities)
}

func (d *Destination) LinksWriter(ctx context.Context) (transfer.RecordWriter, error) {
	return d.writer(transfer.StageLinks)
}

func (d *Destination) MediaWriter(ctx context.Context) (transfer.RecordWriter, error) {
	return d.writer(transfer.StageMedia)
}

func (d *Destination) ConfigurationWriter(ctx context.Context) (transfer.RecordWriter, error) {
	return d.writer(transfer.StageConfiguration)
}

func (d *Destination) writer(stage transfer.Stage) (transfer.RecordWriter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tw == nil || d.finished {
		return nil, errors.New("archive destination is not open")
	}
	for open := range d.open {
		if open.stage == stage {
			return nil, errors.Newf("%s stage already has an open writer", stage)
		}
	}
	// A repeated stage appends: chunk numbers and totals carry on from the manifest
	w := &chunkWriter{dest: d, stage: stage, stats: d.manifest.Stages[stage]}
	d.open[w] = struct{}{}
	return w, nil
}

// chunkWriter buffers one chunk at a time; tar needs each entry's size up front
type chunkWriter struct {
	dest   *Destination
	stage  transfer.Stage
	buf    bytes.Buffer
	stats  StageManifest
	closed bool
}

func (w *chunkWriter) Write(ctx context.Context, rec transfer.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.closed {
		return errors.Newf("%s chunk writer is closed", w.stage)
	}
	line, err := encodeLine(rec)
	if err != nil {
		return err
	}
	w.buf.Write(line)
	w.stats.Records++
	w.stats.Bytes += int64(len(line) - 1)

	if int64(w.buf.Len()) >= w.dest.opts.MaxChunkBytes {
		return w.flush()
	}
	return nil
}

func (w *chunkWriter) flush() error {
	if w.buf.Len() == 0 {
		return nil
	}
	w.dest.mu.Lock()
	defer w.dest.mu.Unlock()
	if w.dest.finished {
		return errors.New("archive destination is closed")
	}
	w.stats.Chunks++
	if err := w.dest.writeEntryLocked(chunkName(w.stage, w.stats.Chunks), w.buf.Bytes()); err != nil {
		return err
	}
	w.buf.Reset()
	return nil
}

// Close writes the last partial chunk and records the stage in the manifest
func (w *chunkWriter) Close() error {
	if w.closed {
		return nil
	}
	if err := w.flush(); err != nil {
		return err
	}
	w.closed = true

	w.dest.mu.Lock()
	defer w.dest.mu.Unlock()
	delete(w.dest.open, w)
	w.dest.manifest.Stages[w.stage] = w.stats
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
