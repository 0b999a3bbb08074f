package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWithHint(t *testing.T) {
	err := New("error")
	withHint := WithHintf(err, "try setting value to %d", 42)

	hints := GetAllHints(withHint)
	require.Len(t, hints, 1)
	assert.Equal(t, "try setting value to 42", hints[0])
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, CombineErrors(nil, nil))
}

func TestSentinels(t *testing.T) {
	t.Run("missing stream survives wrapping", func(t *testing.T) {
		err := Wrapf(ErrMissingStream, "links: source")
		err = Wrap(err, "transfer")

		assert.True(t, IsMissingStream(err))
		assert.False(t, IsIncompatibleVersion(err))
	})

	t.Run("marked provider error keeps both identities", func(t *testing.T) {
		err := Mark(io.ErrUnexpectedEOF, ErrIncompatibleVersion)

		assert.True(t, IsIncompatibleVersion(err))
		assert.True(t, Is(err, io.ErrUnexpectedEOF))
	})

	t.Run("invalid options message", func(t *testing.T) {
		err := NewInvalidOptionsError("unknown strategy %q", "fuzzy")

		assert.True(t, Is(err, ErrInvalidOptions))
		assert.Contains(t, err.Error(), `unknown strategy "fuzzy"`)
	})

	t.Run("nil is never a sentinel", func(t *testing.T) {
		assert.False(t, IsMissingStream(nil))
		assert.False(t, IsIncompatibleVersion(nil))
	})
}

func TestCombineErrors(t *testing.T) {
	first := New("source close failed")
	second := New("destination close failed")

	combined := CombineErrors(first, second)
	require.Error(t, combined)
	assert.True(t, Is(combined, first))
	assert.Contains(t, fmt.Sprintf("%+v", combined), "destination close failed")

	assert.Equal(t, second, CombineErrors(nil, second))
}

func ExampleWrap() {
	baseErr := New("connection failed")
	err := Wrap(baseErr, "failed to open destination")
	fmt.Println(err)
	// Output: failed to open destination: connection failed
}
