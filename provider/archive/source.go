package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/Masterminds/semver/v3"
	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"

	"github.com/teranos/qxfer/errors"
	"github.com/teranos/qxfer/logger"
	"github.com/teranos/qxfer/transfer"
	"github.com/teranos/qxfer/version"
)

// SourceOptions configures an archive source
type SourceOptions struct {
	Path   string
	Logger *zap.SugaredLogger
}

// SourceResults reports the archive that was read
type SourceResults struct {
	Path       string                   `json:"path"`
	Digest     digest.Digest            `json:"digest"`
	Compressed bool                     `json:"compressed"`
	Read       map[transfer.Stage]int64 `json:"read"`
}

// Source streams a transfer out of an archive file. Every stream re-reads the
// archive from the start and yields one line at a time.
type Source struct {
	opts SourceOptions
	log  *zap.SugaredLogger

	compressed bool
	manifest   *Manifest
	digest     digest.Digest

	mu   sync.Mutex
	read map[transfer.Stage]*atomic.Int64
}

// NewSource returns an archive source. The file is inspected by Bootstrap.
func NewSource(opts SourceOptions) *Source {
	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("provider.archive.source")
	}
	return &Source{opts: opts, log: log.With(logger.FieldPath, opts.Path), read: map[transfer.Stage]*atomic.Int64{}}
}

func (s *Source) Name() string { return "archive" }

func (s *Source) Results() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := SourceResults{Path: s.opts.Path, Digest: s.digest, Compressed: s.compressed, Read: map[transfer.Stage]int64{}}
	for stage, n := range s.read {
		res.Read[stage] = n.Load()
	}
	return res
}

// Bootstrap detects compression, digests the file and loads the manifest
func (s *Source) Bootstrap(ctx context.Context) error {
	if s.opts.Path == "" {
		return errors.NewInvalidOptionsError("archive source needs a path")
	}

	f, err := os.Open(s.opts.Path)
	if err != nil {
		return errors.Wrap(err, "open archive")
	}
	defer f.Close()

	magic := make([]byte, len(zstdMagic))
	n, err := io.ReadFull(f, magic)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return errors.Wrap(err, "read archive header")
	}
	s.compressed = n == len(zstdMagic) && bytes.Equal(magic, zstdMagic)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "rewind archive")
	}
	dgst, err := digest.Canonical.FromReader(f)
	if err != nil {
		return errors.Wrap(err, "digest archive")
	}
	s.digest = dgst

	manifest, err := s.loadManifest(ctx)
	if err != nil {
		return err
	}
	if err := checkFormat(manifest.Format); err != nil {
		return err
	}
	s.manifest = manifest

	s.log.Debugw("Archive opened",
		"digest", dgst.String(),
		"compressed", s.compressed,
		"format", manifest.Format,
	)
	return nil
}

// Manifest returns the archive's metadata.json, once bootstrapped
func (s *Source) Manifest() *Manifest {
	return s.manifest
}

// Metadata reports the platform the archive was exported from
func (s *Source) Metadata(ctx context.Context) (*transfer.Metadata, error) {
	if s.manifest == nil || s.manifest.Source == nil {
		return nil, nil
	}
	md := *s.manifest.Source
	if md.CreatedAt.IsZero() {
		md.CreatedAt = s.manifest.CreatedAt
	}
	return &md, nil
}

func (s *Source) StreamSchemas(ctx context.Context) (transfer.RecordReader, error) {
	return s.stream(transfer.StageSchemas)
}

func (s *Source) StreamEntities(ctx context.Context) (transfer.RecordReader, error) {
	return s.stream(transfer.StageEntities)
}

func (s *Source) StreamLinks(ctx context.Context) (transfer.RecordReader, error) {
	return s.stream(transfer.StageLinks)
}

func (s *Source) StreamMedia(ctx context.Context) (transfer.RecordReader, error) {
	return s.stream(transfer.StageMedia)
}

func (s *Source) StreamConfiguration(ctx context.Context) (transfer.RecordReader, error) {
	return s.stream(transfer.StageConfiguration)
}

func (s *Source) stream(stage transfer.Stage) (transfer.RecordReader, error) {
	if s.manifest == nil {
		return nil, errors.New("archive source not bootstrapped")
	}
	ar, err := s.openTar()
	if err != nil {
		return nil, err
	}
	return &stageReader{archiveReader: ar, stage: stage, n: s.counter(stage)}, nil
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

func (s *Source) loadManifest(ctx context.Context) (*Manifest, error) {
	ar, err := s.openTar()
	if err != nil {
		return nil, err
	}
	defer ar.Close()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := ar.tr.Next()
		if err == io.EOF {
			return nil, errors.WithHint(
				errors.Newf("archive %s has no %s", s.opts.Path, MetadataFile),
				"the file may be truncated or not a transfer archive",
			)
		}
		if err != nil {
			return nil, errors.Wrap(err, "read archive")
		}
		if hdr.Name != MetadataFile {
			continue
		}
		var m Manifest
		if err := json.NewDecoder(ar.tr).Decode(&m); err != nil {
			return nil, errors.Wrapf(err, "decode %s", MetadataFile)
		}
		return &m, nil
	}
}

// checkFormat refuses archives written with a different major format
func checkFormat(format string) error {
	got, err := semver.NewVersion(format)
	if err != nil {
		return errors.Wrapf(err, "archive format %q", format)
	}
	want := semver.MustParse(version.ArchiveFormat)
	if got.Major() != want.Major() {
		return errors.WithHint(
			errors.Wrapf(errors.ErrIncompatibleVersion, "archive format %s is not readable by this build (format %s)", format, version.ArchiveFormat),
			"export the data again with a matching qxfer version",
		)
	}
	return nil
}

// archiveReader is one pass over the tar stream
type archiveReader struct {
	file *os.File
	zdec *zstd.Decoder
	tr   *tar.Reader
}

func (s *Source) openTar() (*archiveReader, error) {
	f, err := os.Open(s.opts.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open archive")
	}
	ar := &archiveReader{file: f}
	var in io.Reader = f
	if s.compressed {
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, "create zstd decoder")
		}
		ar.zdec = dec
		in = dec
	}
	ar.tr = tar.NewReader(in)
	return ar, nil
}

func (a *archiveReader) Close() error {
	if a.zdec != nil {
		a.zdec.Close()
	}
	return a.file.Close()
}

// stageReader yields the records of one stage's chunk files in archive order
type stageReader struct {
	*archiveReader
	stage transfer.Stage
	n     *atomic.Int64
	lines *bufio.Reader
}

func (r *stageReader) Read(ctx context.Context) (transfer.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.lines == nil {
			if err := r.nextChunk(); err != nil {
				return nil, err
			}
		}
		line, err := r.lines.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			rec, derr := decodeLine(line)
			if derr != nil {
				return nil, errors.Wrapf(derr, "%s chunk", r.stage)
			}
			r.n.Add(1)
			return rec, nil
		}
		if err == io.EOF {
			r.lines = nil
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read %s chunk", r.stage)
		}
	}
}

// nextChunk advances to the next entry of this stage, or io.EOF
func (r *stageReader) nextChunk() error {
	for {
		hdr, err := r.tr.Next()
		if err == io.EOF {
			return io.EOF
		}
		if err != nil {
			return errors.Wrap(err, "read archive")
		}
		if stage, ok := stageOf(hdr.Name); ok && stage == r.stage {
			r.lines = bufio.NewReader(r.tr)
			return nil
		}
	}
}
