package instance

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/qxfer/db"
	"github.com/teranos/qxfer/errors"
	"github.com/teranos/qxfer/logger"
	"github.com/teranos/qxfer/transfer"
)

// StageWrites counts what a destination did with one stage's records
type StageWrites struct {
	Written int64 `json:"written"`
	Skipped int64 `json:"skipped,omitempty"` // existing records kept under skip
	Deleted int64 `json:"deleted,omitempty"` // records removed under restore
}

// DestinationResults reports what a destination stored
type DestinationResults struct {
	Path     string                         `json:"path,omitempty"`
	Strategy ConflictStrategy               `json:"strategy"`
	Stages   map[transfer.Stage]StageWrites `json:"stages"`
}

// Destination writes records into a live instance. Each stage is written in
// its own transaction, committed when the stage's writer closes.
type Destination struct {
	opts     Options
	log      *zap.SugaredLogger
	store    *Store
	ownsDB   bool
	strategy ConflictStrategy
	limiter  *rate.Limiter

	mu        sync.Mutex
	stages    map[transfer.Stage]StageWrites
	open      map[*stageWriter]struct{}
	committed int
}

// NewDestination returns a destination over the database at opts.DatabasePath.
// The database is opened by Bootstrap.
func NewDestination(opts Options) *Destination {
	d := &Destination{
		opts:     opts,
		log:      opts.logger("provider.instance.destination"),
		ownsDB:   true,
		strategy: StrategyRestore,
		stages:   map[transfer.Stage]StageWrites{},
		open:     map[*stageWriter]struct{}{},
	}
	if opts.MaxWritesPerSecond > 0 {
		burst := int(opts.MaxWritesPerSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(opts.MaxWritesPerSecond), burst)
	}
	return d
}

// NewDestinationFromDB returns a destination over an already open, migrated
// database. The caller keeps ownership of sqlDB.
func NewDestinationFromDB(sqlDB *sql.DB, opts Options) *Destination {
	d := NewDestination(opts)
	d.store = NewStore(sqlDB)
	d.ownsDB = false
	return d
}

func (d *Destination) Name() string { return "instance" }

func (d *Destination) Results() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := DestinationResults{Path: d.opts.DatabasePath, Strategy: d.strategy, Stages: map[transfer.Stage]StageWrites{}}
	for stage, w := range d.stages {
		res.Stages[stage] = w
	}
	return res
}

// UseConflictStrategy selects how existing records are treated
func (d *Destination) UseConflictStrategy(name string) error {
	s, err := ParseConflictStrategy(name)
	if err != nil {
		return err
	}
	d.strategy = s
	d.log.Debugw("Conflict strategy selected", logger.FieldStrategy, string(s))
	return nil
}

func (d *Destination) Bootstrap(ctx context.Context) error {
	if d.store != nil {
		return nil
	}
	if d.opts.DatabasePath == "" {
		return errors.NewInvalidOptionsError("instance destination needs a database path")
	}
	sqlDB, err := db.OpenWithMigrations(d.opts.DatabasePath, nil)
	if err != nil {
		return errors.Wrap(err, "open destination instance")
	}
	d.store = NewStore(sqlDB)
	d.log.Debugw("Destination instance opened")
	return nil
}

// Close rolls back any stage left open by a failed transfer, then releases
// the database.
func (d *Destination) Close(ctx context.Context) error {
	d.mu.Lock()
	pending := make([]*stageWriter, 0, len(d.open))
	for w := range d.open {
		pending = append(pending, w)
	}
	d.mu.Unlock()

	var errs error
	for _, w := range pending {
		d.log.Warnw("Rolling back unfinished stage", logger.FieldStage, string(w.stage))
		errs = errors.CombineErrors(errs, w.rollback())
	}

	d.mu.Lock()
	committed := d.committed
	d.mu.Unlock()
	if d.store != nil && len(pending) == 0 && committed > 0 {
		stamp := time.Now().UTC().Format(time.RFC3339)
		errs = errors.CombineErrors(errs, d.store.setMeta(ctx, metaLastTransferAt, stamp))
	}

	if d.store == nil || !d.ownsDB {
		return errs
	}
	errs = errors.CombineErrors(errs, errors.Wrap(d.store.DB().Close(), "close destination instance"))
	d.store = nil
	return errs
}

func (d *Destination) Metadata(ctx context.Context) (*transfer.Metadata, error) {
	return metadataOf(ctx, d.store, d.opts.Version)
}

func (d *Destination) SchemasWriter(ctx context.Context) (transfer.RecordWriter, error) {
	return d.writer(ctx, transfer.StageSchemas)
}

func (d *Destination) EntitiesWriter(ctx context.Context) (transfer.RecordWriter, error) {
	return d.writer(ctx, transfer.StageEntities)
}

func (d *Destination) LinksWriter(ctx context.Context) (transfer.RecordWriter, error) {
	return d.writer(ctx, transfer.StageLinks)
}

func (d *Destination) MediaWriter(ctx context.Context) (transfer.RecordWriter, error) {
	return d.writer(ctx, transfer.StageMedia)
}

func (d *Destination) ConfigurationWriter(ctx context.Context) (transfer.RecordWriter, error) {
	return d.writer(ctx, transfer.StageConfiguration)
}

func (d *Destination) writer(ctx context.Context, stage transfer.Stage) (transfer.RecordWriter, error) {
	if d.store == nil {
		return nil, errors.New("instance destination not bootstrapped")
	}
	t, err := tableFor(stage)
	if err != nil {
		return nil, err
	}

	tx, err := d.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "begin %s transaction", t.name)
	}

	var deleted int64
	if d.strategy == StrategyRestore {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+t.name)
		if err != nil {
			tx.Rollback()
			return nil, errors.Wrapf(err, "clear %s", t.name)
		}
		deleted, _ = res.RowsAffected()
	}

	stmt, err := tx.PrepareContext(ctx, t.upsertSQL(d.strategy))
	if err != nil {
		tx.Rollback()
		return nil, errors.Wrapf(err, "prepare %s insert", t.name)
	}

	w := &stageWriter{dest: d, stage: stage, table: t, tx: tx, stmt: stmt}
	d.mu.Lock()
	d.open[w] = struct{}{}
	d.stages[stage] = StageWrites{Deleted: deleted}
	d.mu.Unlock()
	return w, nil
}

// stageWriter inserts one stage's records inside a transaction
type stageWriter struct {
	dest  *Destination
	stage transfer.Stage
	table table
	tx    *sql.Tx
	stmt  *sql.Stmt
	done  bool
}

func (w *stageWriter) Write(ctx context.Context, rec transfer.Record) error {
	if w.dest.limiter != nil {
		if err := w.dest.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "write throttle")
		}
	}
	args, err := w.table.args(rec)
	if err != nil {
		return err
	}
	res, err := w.stmt.ExecContext(ctx, args...)
	if err != nil {
		return errors.Wrapf(err, "insert into %s", w.table.name)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		affected = 1
	}
	w.dest.mu.Lock()
	s := w.dest.stages[w.stage]
	if affected == 0 {
		s.Skipped++
	} else {
		s.Written++
	}
	w.dest.stages[w.stage] = s
	w.dest.mu.Unlock()
	return nil
}

// Close commits the stage
func (w *stageWriter) Close() error {
	if w.done {
		return nil
	}
	w.finish()
	if err := w.stmt.Close(); err != nil {
		w.tx.Rollback()
		return errors.Wrapf(err, "close %s insert", w.table.name)
	}
	if err := w.tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit %s", w.table.name)
	}
	w.dest.mu.Lock()
	w.dest.committed++
	w.dest.mu.Unlock()
	return nil
}

func (w *stageWriter) rollback() error {
	if w.done {
		return nil
	}
	w.finish()
	w.stmt.Close()
	if err := w.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return errors.Wrapf(err, "rollback %s", w.table.name)
	}
	return nil
}

func (w *stageWriter) finish() {
	w.done = true
	w.dest.mu.Lock()
	delete(w.dest.open, w)
	w.dest.mu.Unlock()
}
