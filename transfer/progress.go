package transfer

import (
	"sync"
)

// Counter is a count of items and the sum of their serialized sizes.
type Counter struct {
	Count int64 `json:"count"`
	Bytes int64 `json:"bytes"`
}

// StageProgress is the progress of one stage.
// Aggregates is only populated for stages that designate an aggregate key.
type StageProgress struct {
	Count      int64              `json:"count"`
	Bytes      int64              `json:"bytes"`
	Aggregates map[string]Counter `json:"aggregates,omitempty"`
}

// Snapshot is a point-in-time copy of the progress of every stage that has started.
// It is never mutated after it is taken.
type Snapshot map[Stage]StageProgress

// Total sums count and bytes across stages.
func (s Snapshot) Total() Counter {
	var total Counter
	for _, p := range s {
		total.Count += p.Count
		total.Bytes += p.Bytes
	}
	return total
}

// Progress accumulates per-stage counters for one transfer.
//
// Counters only grow. The stage runner is the only writer; readers take
// snapshots, which are deep copies safe to hand to other goroutines.
type Progress struct {
	mu     sync.RWMutex
	stages map[Stage]*stageCounters
}

type stageCounters struct {
	total      Counter
	aggregates map[string]*Counter
}

// NewProgress creates an empty progress model.
func NewProgress() *Progress {
	return &Progress{stages: make(map[Stage]*stageCounters)}
}

// begin makes stage visible in snapshots with zero counters.
func (p *Progress) begin(stage Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entry(stage)
}

// entry returns the counters for stage, creating them.
// REQUIRES: p.mu held for writing.
func (p *Progress) entry(stage Stage) *stageCounters {
	c, ok := p.stages[stage]
	if !ok {
		c = &stageCounters{}
		p.stages[stage] = c
	}
	return c
}

// Record counts rec against stage. When aggregateKey is non-empty and rec
// carries that key, the bucket named by its value is incremented as well.
// Records that cannot be measured are rejected without touching any counter.
func (p *Progress) Record(stage Stage, rec Record, aggregateKey string) error {
	size, err := rec.Size()
	if err != nil {
		return err
	}
	bucket, hasBucket := rec.aggregateValue(aggregateKey)

	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.entry(stage)
	c.total.Count++
	c.total.Bytes += size

	if hasBucket {
		if c.aggregates == nil {
			c.aggregates = make(map[string]*Counter)
		}
		agg, ok := c.aggregates[bucket]
		if !ok {
			agg = &Counter{}
			c.aggregates[bucket] = agg
		}
		agg.Count++
		agg.Bytes += size
	}
	return nil
}

// Stage returns the progress of a single stage and whether it has started.
func (p *Progress) Stage(stage Stage) (StageProgress, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.stages[stage]
	if !ok {
		return StageProgress{}, false
	}
	return c.copy(), true
}

// Totals returns a snapshot holding only stage's count and bytes, without
// aggregate buckets. Its cost does not grow with the number of buckets.
func (p *Progress) Totals(stage Stage) Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.stages[stage]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{stage: {Count: c.total.Count, Bytes: c.total.Bytes}}
}

// Snapshot returns a deep copy of every started stage.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := make(Snapshot, len(p.stages))
	for stage, c := range p.stages {
		snap[stage] = c.copy()
	}
	return snap
}

func (c *stageCounters) copy() StageProgress {
	sp := StageProgress{Count: c.total.Count, Bytes: c.total.Bytes}
	if len(c.aggregates) > 0 {
		sp.Aggregates = make(map[string]Counter, len(c.aggregates))
		for k, v := range c.aggregates {
			sp.Aggregates[k] = *v
		}
	}
	return sp
}
