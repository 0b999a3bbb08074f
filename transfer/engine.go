package transfer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/qxfer/errors"
	"github.com/teranos/qxfer/logger"
)

// State is the engine's position in its lifecycle.
type State string

const (
	StateConstructed       State = "constructed"
	StateBootstrapping     State = "bootstrapping"
	StateIntegrityChecking State = "integrity-checking"
	StateRunning           State = "running"
	StateClosing           State = "closing"
	StateSucceeded         State = "succeeded"
	StateFailed            State = "failed"
)

// Options configure one engine. They are fixed for the engine's lifetime.
type Options struct {
	// ConflictStrategy is handed to destinations that accept one; the engine
	// does not interpret it.
	ConflictStrategy string

	// VersionMatching gates the transfer on the providers' platform versions.
	VersionMatching VersionMatching

	// Exclude lists stages to skip entirely. Skipped stages emit no events.
	Exclude []Stage

	// Window bounds the records buffered between source and destination.
	Window int

	// EventBuffer is the capacity of each subscriber's channel.
	EventBuffer int
}

// Validate checks the options and fills in defaults.
func (o *Options) Validate() error {
	m, err := ParseVersionMatching(string(o.VersionMatching))
	if err != nil {
		return err
	}
	o.VersionMatching = m

	for _, s := range o.Exclude {
		if !s.Valid() {
			return errors.NewInvalidOptionsError("cannot exclude unknown stage %q", string(s))
		}
	}
	if o.Window < 0 {
		return errors.NewInvalidOptionsError("window must be >= 0, got %d", o.Window)
	}
	if o.Window == 0 {
		o.Window = DefaultWindow
	}
	if o.EventBuffer < 0 {
		return errors.NewInvalidOptionsError("event buffer must be >= 0, got %d", o.EventBuffer)
	}
	if o.EventBuffer == 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	return nil
}

// Results is what a successful transfer reports: each provider's own result.
type Results struct {
	TransferID  string `json:"transferId"`
	Source      any    `json:"source"`
	Destination any    `json:"destination"`
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTransferID overrides the generated transfer ID.
func WithTransferID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.id = id
		}
	}
}

// Engine connects one source provider to one destination provider and runs
// the stages between them. An engine performs a single transfer.
type Engine struct {
	id          string
	source      Provider
	destination Provider
	opts        Options
	excluded    map[Stage]bool

	progress *Progress
	feed     *feed
	logger   *zap.SugaredLogger

	mu    sync.RWMutex
	state State
	stage Stage
}

// New creates an engine. It fails with ErrInvalidOptions when the options
// cannot be used.
func New(source, destination Provider, opts Options, options ...Option) (*Engine, error) {
	if source == nil || destination == nil {
		return nil, errors.NewInvalidOptionsError("both a source and a destination provider are required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		id:          uuid.NewString(),
		source:      source,
		destination: destination,
		opts:        opts,
		excluded:    make(map[Stage]bool, len(opts.Exclude)),
		progress:    NewProgress(),
		feed:        newFeed(opts.EventBuffer),
		logger:      logger.ComponentLogger("transfer.engine"),
		state:       StateConstructed,
	}
	for _, s := range opts.Exclude {
		e.excluded[s] = true
	}
	for _, opt := range options {
		opt(e)
	}
	e.logger = e.logger.With(
		logger.FieldTransferID, e.id,
		"source", source.Name(),
		"destination", destination.Name(),
	)
	return e, nil
}

// ID returns the transfer ID.
func (e *Engine) ID() string { return e.id }

// Options returns the engine's validated options.
func (e *Engine) Options() Options { return e.opts }

// Progress returns a snapshot of the transfer progress.
func (e *Engine) Progress() Snapshot { return e.progress.Snapshot() }

// Subscribe returns a channel receiving every progress event published from
// now on. Events are dropped for subscribers that fall behind; the transfer
// never waits for a reader.
func (e *Engine) Subscribe() <-chan ProgressEvent { return e.feed.subscribe() }

// Unsubscribe stops delivery to ch and closes it.
func (e *Engine) Unsubscribe(ch <-chan ProgressEvent) { e.feed.unsubscribe(ch) }

// DroppedEvents reports how many events subscribers missed because their buffer was full.
func (e *Engine) DroppedEvents() int64 { return e.feed.dropped.Load() }

// State returns the lifecycle state and, while running, the current stage.
func (e *Engine) State() (State, Stage) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state, e.stage
}

// terminal reports whether the engine has succeeded or failed.
func (e *Engine) terminal() bool {
	state, _ := e.State()
	return state == StateSucceeded || state == StateFailed
}

func (e *Engine) setState(state State, stage Stage) {
	e.mu.Lock()
	e.state, e.stage = state, stage
	e.mu.Unlock()
	e.logger.Debugw("Engine state changed", logger.FieldState, string(state), logger.FieldStage, string(stage))
}

// Transfer runs the whole sequence: bootstrap, integrity check, the five
// stages in order, then close. The first error stops the run and is returned
// as is; providers are not closed and the destination keeps whatever it
// already accepted.
func (e *Engine) Transfer(ctx context.Context) (*Results, error) {
	ctx = logger.WithTransferID(ctx, e.id)

	if err := e.Bootstrap(ctx); err != nil {
		return nil, e.fail(err)
	}
	if err := e.IntegrityCheck(ctx); err != nil {
		return nil, e.fail(err)
	}

	steps := []func(context.Context) error{
		e.TransferSchemas,
		e.TransferEntities,
		e.TransferLinks,
		e.TransferMedia,
		e.TransferConfiguration,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			// TODO: roll back the destination here once providers expose a rollback capability.
			return nil, e.fail(err)
		}
	}

	if err := e.Close(ctx); err != nil {
		return nil, e.fail(err)
	}
	e.setState(StateSucceeded, "")

	total := e.progress.Snapshot().Total()
	e.logger.Infow("Transfer complete", logger.FieldCount, total.Count, logger.FieldBytes, total.Bytes)

	return &Results{
		TransferID:  e.id,
		Source:      e.source.Results(),
		Destination: e.destination.Results(),
	}, nil
}

func (e *Engine) fail(err error) error {
	e.setState(StateFailed, "")
	return err
}

// Bootstrap initializes both providers concurrently and waits for both.
// Providers without a Bootstrap capability are skipped. Destinations that
// accept a conflict strategy receive it first.
func (e *Engine) Bootstrap(ctx context.Context) error {
	e.setState(StateBootstrapping, "")

	if r, ok := e.destination.(ConflictStrategyReceiver); ok && e.opts.ConflictStrategy != "" {
		if err := r.UseConflictStrategy(e.opts.ConflictStrategy); err != nil {
			return errors.Wrapf(err, "destination %s rejected conflict strategy", e.destination.Name())
		}
	}

	var g errgroup.Group
	for _, p := range []Provider{e.source, e.destination} {
		b, ok := p.(Bootstrapper)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := b.Bootstrap(ctx); err != nil {
				return errors.Wrapf(err, "bootstrap %s", p.Name())
			}
			return nil
		})
	}
	return g.Wait()
}

// IntegrityCheck compares the providers' platform versions under the
// configured strategy. When either side cannot describe itself the check
// passes.
func (e *Engine) IntegrityCheck(ctx context.Context) error {
	e.setState(StateIntegrityChecking, "")

	src, err := metadataOf(ctx, e.source)
	if err != nil {
		return err
	}
	dst, err := metadataOf(ctx, e.destination)
	if err != nil {
		return err
	}
	if src == nil || dst == nil {
		e.logger.Debugw("Integrity check skipped, metadata unavailable")
		return e.handOverMetadata(src)
	}

	if err := CheckVersions(src.Version(), dst.Version(), e.opts.VersionMatching); err != nil {
		e.logger.Errorw("Integrity check failed",
			logger.FieldSourceVer, src.Version(),
			logger.FieldDestVer, dst.Version(),
			logger.FieldStrategy, string(e.opts.VersionMatching),
		)
		return err
	}
	e.logger.Debugw("Integrity check passed",
		logger.FieldSourceVer, src.Version(),
		logger.FieldDestVer, dst.Version(),
		logger.FieldStrategy, string(e.opts.VersionMatching),
	)
	return e.handOverMetadata(src)
}

// handOverMetadata gives the source's metadata to destinations that record it.
func (e *Engine) handOverMetadata(src *Metadata) error {
	r, ok := e.destination.(SourceMetadataReceiver)
	if !ok || src == nil {
		return nil
	}
	if err := r.ReceiveSourceMetadata(src); err != nil {
		return errors.Wrapf(err, "destination %s rejected source metadata", e.destination.Name())
	}
	return nil
}

func metadataOf(ctx context.Context, p Provider) (*Metadata, error) {
	m, ok := p.(MetadataProvider)
	if !ok {
		return nil, nil
	}
	md, err := m.Metadata(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s metadata", p.Name())
	}
	return md, nil
}

// Close tears both providers down concurrently. Both are closed even when
// one fails; their errors are combined. Closing after the transfer ended
// leaves the terminal state in place.
func (e *Engine) Close(ctx context.Context) error {
	if !e.terminal() {
		e.setState(StateClosing, "")
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, p := range []Provider{e.source, e.destination} {
		c, ok := p.(Closer)
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Close(ctx); err != nil {
				errs[i] = errors.Wrapf(err, "close %s", p.Name())
			}
		}()
	}
	wg.Wait()
	return errors.CombineErrors(errs[0], errs[1])
}

// TransferSchemas runs the schemas stage.
func (e *Engine) TransferSchemas(ctx context.Context) error {
	return e.transferStage(ctx, StageSchemas, "")
}

// TransferEntities runs the entities stage, aggregating counters by content type.
func (e *Engine) TransferEntities(ctx context.Context) error {
	return e.transferStage(ctx, StageEntities, EntityAggregateKey)
}

// TransferLinks runs the links stage.
func (e *Engine) TransferLinks(ctx context.Context) error {
	return e.transferStage(ctx, StageLinks, "")
}

// TransferConfiguration runs the configuration stage.
func (e *Engine) TransferConfiguration(ctx context.Context) error {
	return e.transferStage(ctx, StageConfiguration, "")
}

// TransferMedia runs the media stage when both providers can stream media
// references. Otherwise the stage is announced and completed without moving
// anything, keeping the sequence of events stable for readers of the feed.
func (e *Engine) TransferMedia(ctx context.Context) error {
	if e.skip(StageMedia) {
		return nil
	}
	newReader := sourceStream(e.source, StageMedia)
	newWriter := destinationStream(e.destination, StageMedia)
	if newReader != nil && newWriter != nil {
		e.setState(StateRunning, StageMedia)
		return e.runStage(ctx, StageMedia, newReader, newWriter, "")
	}

	e.setState(StateRunning, StageMedia)
	e.progress.begin(StageMedia)
	e.emit(EventStart, StageMedia)
	e.logger.Warnw("Media stage is not implemented for these providers, no media moved",
		logger.FieldStage, string(StageMedia),
		"source_streams_media", newReader != nil,
		"destination_accepts_media", newWriter != nil,
	)
	e.emit(EventComplete, StageMedia)
	return nil
}

func (e *Engine) transferStage(ctx context.Context, stage Stage, aggregateKey string) error {
	if e.skip(stage) {
		return nil
	}
	e.setState(StateRunning, stage)
	return e.runStage(ctx, stage, sourceStream(e.source, stage), destinationStream(e.destination, stage), aggregateKey)
}

func (e *Engine) skip(stage Stage) bool {
	if !e.excluded[stage] {
		return false
	}
	e.logger.Infow("Stage excluded", logger.FieldStage, string(stage))
	return true
}
