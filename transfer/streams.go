package transfer

import (
	"context"
	"io"
)

// SliceReader serves records from memory. Useful for small fixed datasets
// such as configuration entries and in tests.
type SliceReader struct {
	records []Record
	next    int
}

// NewSliceReader returns a reader over records.
func NewSliceReader(records ...Record) *SliceReader {
	return &SliceReader{records: records}
}

func (r *SliceReader) Read(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.next >= len(r.records) {
		return nil, io.EOF
	}
	rec := r.records[r.next]
	r.next++
	return rec, nil
}

func (r *SliceReader) Close() error { return nil }

// ReadAll drains r and closes it.
func ReadAll(ctx context.Context, r RecordReader) ([]Record, error) {
	defer r.Close()

	var out []Record
	for {
		rec, err := r.Read(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
