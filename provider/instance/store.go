package instance

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/teranos/qxfer/errors"
	"github.com/teranos/qxfer/transfer"
)

// Metadata keys in instance_metadata
const (
	metaPlatformVersion = "platform_version"
	metaLastTransferAt  = "last_transfer_at"
)

// table maps a stage onto its SQLite table. A record's identity is the JSON
// array of its key parts. Each part names the paths it may be read from, the
// first present one wins; nested paths are dotted.
type table struct {
	name  string
	key   [][]string
	typed bool // has a type column mirroring the record's "type"
}

var tables = map[transfer.Stage]table{
	transfer.StageSchemas:       {name: "content_types", key: [][]string{{"uid"}}},
	transfer.StageEntities:      {name: "entities", key: [][]string{{"type"}, {"id"}}, typed: true},
	transfer.StageLinks:         {name: "links", key: [][]string{{"kind"}, {"left"}, {"right"}}},
	transfer.StageMedia:         {name: "media_files", key: [][]string{{"id"}}},
	transfer.StageConfiguration: {name: "configuration", key: [][]string{{"type"}, {"key", "value.key", "value.id"}}},
}

func tableFor(stage transfer.Stage) (table, error) {
	t, ok := tables[stage]
	if !ok {
		return table{}, errors.NewInvalidOptionsError("no instance table for stage %q", stage)
	}
	return t, nil
}

// recordKey encodes the identity of rec, whose JSON encoding is data.
//
// A record carrying every key part is addressed by them. A record carrying
// only some is addressed by the digest of its content, so two different
// records never share a row. A record with no key part at all is rejected.
func (t table) recordKey(rec transfer.Record, data []byte) (string, error) {
	parts := make([]any, 0, len(t.key))
	for _, paths := range t.key {
		if v, ok := lookup(rec, paths); ok {
			parts = append(parts, v)
		}
	}
	switch len(parts) {
	case 0:
		return "", errors.Newf("%s record has none of the key fields %s", t.name, t.keyFields())
	case len(t.key):
		key, err := json.Marshal(parts)
		if err != nil {
			return "", errors.Wrapf(err, "encode %s record key", t.name)
		}
		return string(key), nil
	default:
		return digest.FromBytes(data).String(), nil
	}
}

func (t table) keyFields() string {
	var fields []string
	for _, paths := range t.key {
		fields = append(fields, paths...)
	}
	return strings.Join(fields, ", ")
}

// lookup returns the first non-null value found at one of paths.
func lookup(rec transfer.Record, paths []string) (any, bool) {
	for _, path := range paths {
		var cur any = map[string]any(rec)
		for _, field := range strings.Split(path, ".") {
			switch m := cur.(type) {
			case map[string]any:
				cur = m[field]
			case transfer.Record:
				cur = m[field]
			default:
				cur = nil
			}
		}
		if cur != nil {
			return cur, true
		}
	}
	return nil, false
}

func (t table) upsertSQL(strategy ConflictStrategy) string {
	cols, params, set := "record_key, data", "?, ?", "data = excluded.data"
	if t.typed {
		cols, params, set = "record_key, type, data", "?, ?, ?", "type = excluded.type, data = excluded.data"
	}
	conflict := "DO UPDATE SET " + set
	if strategy == StrategySkip {
		conflict = "DO NOTHING"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(record_key) %s", t.name, cols, params, conflict)
}

// Store reads and writes transfer records in an instance database
type Store struct {
	db *sql.DB
}

// NewStore wraps a database that has the instance schema applied
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// Put writes a single record outside of any transfer, using strategy for conflicts.
func (s *Store) Put(ctx context.Context, stage transfer.Stage, rec transfer.Record, strategy ConflictStrategy) error {
	t, err := tableFor(stage)
	if err != nil {
		return err
	}
	args, err := t.args(rec)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, t.upsertSQL(strategy), args...); err != nil {
		return errors.Wrapf(err, "insert into %s", t.name)
	}
	return nil
}

func (t table) args(rec transfer.Record) ([]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s record", t.name)
	}
	key, err := t.recordKey(rec, data)
	if err != nil {
		return nil, err
	}
	if t.typed {
		return []any{key, rec.String("type"), string(data)}, nil
	}
	return []any{key, string(data)}, nil
}

// Count returns the number of records stored for stage
func (s *Store) Count(ctx context.Context, stage transfer.Stage) (int64, error) {
	t, err := tableFor(stage)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.name).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count %s", t.name)
	}
	return n, nil
}

// Stream returns a reader over the records of stage in insertion order
func (s *Store) Stream(ctx context.Context, stage transfer.Stage) (transfer.RecordReader, error) {
	t, err := tableFor(stage)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM "+t.name+" ORDER BY seq")
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", t.name)
	}
	return &rowReader{rows: rows, table: t.name}, nil
}

// LastTransferAt returns when a transfer last completed into this instance, or "" if never
func (s *Store) LastTransferAt(ctx context.Context) (string, error) {
	return s.meta(ctx, metaLastTransferAt)
}

// PlatformVersion returns the version recorded in the database, or "" when unset
func (s *Store) PlatformVersion(ctx context.Context) (string, error) {
	return s.meta(ctx, metaPlatformVersion)
}

// SetPlatformVersion records the platform version of the instance
func (s *Store) SetPlatformVersion(ctx context.Context, version string) error {
	return s.setMeta(ctx, metaPlatformVersion, version)
}

func (s *Store) meta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM instance_metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "read instance metadata %s", key)
	}
	return value, nil
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO instance_metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return errors.Wrapf(err, "write instance metadata %s", key)
	}
	return nil
}

// rowReader decodes one row per Read
type rowReader struct {
	rows  *sql.Rows
	table string
}

func (r *rowReader) Read(ctx context.Context) (transfer.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, errors.Wrapf(err, "scan %s", r.table)
		}
		return nil, io.EOF
	}
	var data []byte
	if err := r.rows.Scan(&data); err != nil {
		return nil, errors.Wrapf(err, "scan %s", r.table)
	}
	return decodeRecord(data)
}

func (r *rowReader) Close() error {
	return r.rows.Close()
}

// decodeRecord keeps numbers as json.Number so they re-encode unchanged
func decodeRecord(data []byte) (transfer.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec transfer.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	return rec, nil
}
