// Package archive reads and writes transfer archives: a tar stream holding a
// metadata.json manifest and, per stage, JSON-lines chunk files named
// <stage>/<stage>_00001.jsonl. The whole stream may be zstd compressed.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/teranos/qxfer/errors"
	"github.com/teranos/qxfer/transfer"
)

const (
	// MetadataFile is the manifest entry at the root of every archive
	MetadataFile = "metadata.json"

	// ExtTar and ExtTarZstd are the archive file extensions
	ExtTar     = ".tar"
	ExtTarZstd = ".tar.zst"
)

// zstd frame magic number
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Manifest is the content of metadata.json
type Manifest struct {
	Format    string                           `json:"format"`
	Tool      string                           `json:"tool,omitempty"`
	CreatedAt time.Time                        `json:"createdAt"`
	Source    *transfer.Metadata               `json:"source,omitempty"`
	Stages    map[transfer.Stage]StageManifest `json:"stages"`
}

// StageManifest summarizes one stage's chunk files
type StageManifest struct {
	Chunks  int   `json:"chunks"`
	Records int64 `json:"records"`
	Bytes   int64 `json:"bytes"`
}

// ResolvePath returns path with the archive extension matching compress.
// Any existing archive extension is replaced.
func ResolvePath(p string, compress bool) string {
	base := strings.TrimSuffix(strings.TrimSuffix(p, ".zst"), ExtTar)
	if compress {
		return base + ExtTarZstd
	}
	return base + ExtTar
}

func chunkName(stage transfer.Stage, n int) string {
	return path.Join(string(stage), fmt.Sprintf("%s_%05d.jsonl", stage, n))
}

// stageOf reports which stage a tar entry belongs to
func stageOf(name string) (transfer.Stage, bool) {
	dir, file := path.Split(path.Clean(name))
	stage := transfer.Stage(strings.TrimSuffix(dir, "/"))
	if !stage.Valid() || !strings.HasPrefix(file, string(stage)+"_") || !strings.HasSuffix(file, ".jsonl") {
		return "", false
	}
	return stage, true
}

func encodeLine(rec transfer.Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encode record")
	}
	return append(data, '\n'), nil
}

// decodeLine keeps numbers as json.Number so they re-encode unchanged
func decodeLine(line []byte) (transfer.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var rec transfer.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	return rec, nil
}
