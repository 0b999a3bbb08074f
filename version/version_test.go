package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoString(t *testing.T) {
	dev := Info{Version: "dev", CommitHash: "abc", BuildTime: "now"}
	assert.Equal(t, "qxfer dev (commit abc, built now)", dev.String())

	tagged := Info{Version: "1.4.0", CommitHash: "abc", BuildTime: "now"}
	assert.Equal(t, "qxfer 1.4.0 (commit abc, built now)", tagged.String())
}

func TestInfoShort(t *testing.T) {
	assert.Equal(t, "0123456", Info{CommitHash: "0123456789"}.Short())
	assert.Equal(t, "dev", Info{CommitHash: "dev"}.Short())
}

func TestGetCarriesArchiveFormat(t *testing.T) {
	info := Get()
	assert.Equal(t, ArchiveFormat, info.ArchiveFormat)
	assert.NotEmpty(t, info.Platform)
}
