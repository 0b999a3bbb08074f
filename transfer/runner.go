package transfer

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teranos/qxfer/errors"
	"github.com/teranos/qxfer/logger"
)

// DefaultWindow is how many records may sit between a stage's source and
// destination at once.
const DefaultWindow = 16

// Side names which end of a stage a stream belongs to.
type Side string

const (
	SideSource      Side = "source"
	SideDestination Side = "destination"
)

func missingStream(stage Stage, side Side, provider Provider) error {
	err := errors.Wrapf(errors.ErrMissingStream, "%s: %s provider %q has no %s stream", stage, side, provider.Name(), stage)
	return errors.WithHintf(err, "exclude the %s stage or use a provider that supports it", stage)
}

// runStage streams one stage from newReader to newWriter.
//
// Both factories are checked before anything is opened or announced. The
// source is read on its own goroutine into a bounded window; the destination
// is fed from that window in source order. Each record is counted once the
// destination accepts it, and a progress event follows. The stage completes
// when the destination has closed; an error from either side aborts it.
func (e *Engine) runStage(ctx context.Context, stage Stage, newReader readerFactory, newWriter writerFactory, aggregateKey string) error {
	if newReader == nil {
		return missingStream(stage, SideSource, e.source)
	}
	if newWriter == nil {
		return missingStream(stage, SideDestination, e.destination)
	}

	log := e.logger.With(logger.FieldStage, string(stage))

	reader, err := newReader(ctx)
	if err != nil {
		return errors.Wrapf(err, "open %s source stream", stage)
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			log.Warnw("Failed to close source stream", logger.FieldError, cerr)
		}
	}()

	writer, err := newWriter(ctx)
	if err != nil {
		return errors.Wrapf(err, "open %s destination stream", stage)
	}

	started := time.Now()
	e.progress.begin(stage)
	e.emit(EventStart, stage)
	log.Infow("Stage started", logger.FieldAggregateBy, aggregateKey)

	window := make(chan Record, e.opts.Window)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(window)
		for {
			rec, err := reader.Read(gctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "read %s", stage)
			}
			select {
			case window <- rec:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		for rec := range window {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := writer.Write(gctx, rec); err != nil {
				return errors.Wrapf(err, "write %s", stage)
			}
			if err := e.progress.Record(stage, rec, aggregateKey); err != nil {
				return errors.Wrapf(err, "count %s record", stage)
			}
			e.emit(EventProgress, stage)
		}
		// The producer may have stopped on an error; only a clean end of
		// stream is allowed to close the destination.
		if err := gctx.Err(); err != nil {
			return err
		}
		if err := writer.Close(); err != nil {
			return errors.Wrapf(err, "close %s destination stream", stage)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Errorw("Stage failed", logger.FieldError, err)
		return err
	}

	p, _ := e.progress.Stage(stage)
	e.emit(EventComplete, stage)
	log.Infow("Stage complete",
		logger.FieldCount, p.Count,
		logger.FieldBytes, p.Bytes,
		logger.FieldDurationMS, time.Since(started).Milliseconds(),
	)
	return nil
}

// emit publishes an event. Stage boundaries carry a full snapshot; progress
// events carry the running stage's totals only, since they follow every record.
func (e *Engine) emit(typ EventType, stage Stage) {
	if !e.feed.hasSubscribers() {
		return
	}
	data := e.progress.Totals(stage)
	if typ != EventProgress {
		data = e.progress.Snapshot()
	}
	e.feed.publish(ProgressEvent{
		Type:      typ,
		Stage:     stage,
		Data:      data,
		Timestamp: time.Now(),
	})
}
