package commands

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/qxfer/am"
)

func TestParseValue(t *testing.T) {
	assert.Equal(t, 32, parseValue("32"))
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, 0.5, parseValue("0.5"))
	assert.Equal(t, "merge", parseValue("merge"))
	assert.Equal(t, "", parseValue(""))
}

func TestAmSet_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), am.ConfigFileName)
	t.Cleanup(func() { setFile = "" })

	var out bytes.Buffer
	AmCmd.SetOut(&out)
	AmCmd.SetArgs([]string{"set", "--file", path, "transfer.window", "32"})
	require.NoError(t, AmCmd.Execute())
	assert.Contains(t, out.String(), "transfer.window")

	AmCmd.SetArgs([]string{"set", "--file", path, "transfer.conflict_strategy", "skip"})
	require.NoError(t, AmCmd.Execute())

	cfg, err := am.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Transfer.Window)
	assert.Equal(t, "skip", cfg.Transfer.ConflictStrategy)
}

func TestAmSet_RejectsInvalidValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), am.ConfigFileName)
	t.Cleanup(func() { setFile = "" })

	AmCmd.SetOut(&bytes.Buffer{})
	AmCmd.SetErr(&bytes.Buffer{})
	AmCmd.SetArgs([]string{"set", "--file", path, "transfer.conflict_strategy", "sideways"})
	assert.Error(t, AmCmd.Execute())
}
