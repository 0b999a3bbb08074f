package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/qxfer/errors"
)

func TestCheckVersions(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		destination string
		strategy    VersionMatching
		want        bool
	}{
		{"exact identical", "1.2.3", "1.2.3", VersionExact, true},
		{"exact patch differs", "1.2.3", "1.2.4", VersionExact, false},
		{"exact is textual", "1.2.3", "v1.2.3", VersionExact, false},
		{"minor same major and minor", "1.2.3", "1.2.9", VersionMinor, true},
		{"minor differs", "1.2.3", "1.3.0", VersionMinor, false},
		{"major same major", "4.1.0", "4.15.2", VersionMajor, true},
		{"major differs", "4.1.0", "5.0.0", VersionMajor, false},
		{"patch identical triple", "4.1.2", "4.1.2", VersionPatch, true},
		{"patch differs", "4.1.2", "4.1.3", VersionPatch, false},
		{"patch ignores prerelease", "4.1.2-beta.1", "4.1.2", VersionPatch, true},
		{"ignore anything", "1.0.0", "9.9.9", VersionIgnore, true},
		{"ignore unparsable", "not-a-version", "9.9.9", VersionIgnore, true},
		{"missing source", "", "1.0.0", VersionExact, true},
		{"missing destination", "1.0.0", "", VersionPatch, true},
		{"unparsable under major", "banana", "1.0.0", VersionMajor, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckVersions(tt.source, tt.destination, tt.strategy)
			assert.Equal(t, tt.want, err == nil, "err = %v", err)
			assert.Equal(t, tt.want, Compatible(tt.source, tt.destination, tt.strategy))
			if !tt.want {
				assert.True(t, errors.IsIncompatibleVersion(err))
			}
		})
	}
}

func TestCheckVersions_DiagnosticNamesBothSides(t *testing.T) {
	err := CheckVersions("4.1.0", "5.0.0", VersionMajor)
	require.Error(t, err)

	assert.Contains(t, err.Error(), "4.1.0")
	assert.Contains(t, err.Error(), "5.0.0")
	assert.Contains(t, err.Error(), `"major"`)
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestCheckVersions_UnknownStrategy(t *testing.T) {
	err := CheckVersions("1.0.0", "1.0.0", "fuzzy")
	assert.True(t, errors.Is(err, errors.ErrInvalidOptions))
}

func TestParseVersionMatching(t *testing.T) {
	m, err := ParseVersionMatching(" Minor ")
	require.NoError(t, err)
	assert.Equal(t, VersionMinor, m)

	m, err = ParseVersionMatching("")
	require.NoError(t, err)
	assert.Equal(t, VersionIgnore, m)

	_, err = ParseVersionMatching("fuzzy")
	assert.True(t, errors.Is(err, errors.ErrInvalidOptions))
}
