package transfer

import (
	"encoding/json"
	"fmt"

	"github.com/teranos/qxfer/errors"
)

// Record is one item flowing through a stage: a schema, an entity, a link,
// a media reference or a configuration entry.
type Record map[string]any

// Size returns the byte length of the record's JSON encoding, the same
// encoding the archive format writes. Map keys are encoded in sorted order,
// so the size of a record is stable for the whole run.
func (r Record) Size() (int64, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return 0, errors.Wrap(err, "measure record")
	}
	return int64(len(data)), nil
}

// String returns the value stored under key as a string, or "" when absent.
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// aggregateValue returns the bucket name for key, and false when the record
// does not carry it.
func (r Record) aggregateValue(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	return r.String(key), true
}
