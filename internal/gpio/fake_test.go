package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeInputLevel(t *testing.T) {
	f := NewFakeInput(High, Low, Low)

	for i, want := range []Level{High, Low, Low, Low} {
		got, err := f.Level()
		require.NoError(t, err)
		assert.Equal(t, want, got, "read %d", i)
	}
}

func TestFakeInputNoLevels(t *testing.T) {
	f := NewFakeInput()
	_, err := f.Level()
	require.Error(t, err)
}

func TestFakeInputError(t *testing.T) {
	f := NewFakeInput(High)
	f.ReadError = errors.New("simulated error")

	_, err := f.Level()
	require.EqualError(t, err, "simulated error")
}

func TestFakeInputCloseAndReset(t *testing.T) {
	f := NewFakeInput(Low, High)
	f.Level()
	require.NoError(t, f.Close())
	assert.True(t, f.Closed)

	f.Reset()
	assert.False(t, f.Closed)
	got, _ := f.Level()
	assert.Equal(t, Low, got)
}

func TestFakeOutputRecordsWrites(t *testing.T) {
	f := NewFakeOutput(Low)
	require.NoError(t, f.Set(High))
	require.NoError(t, f.Set(Low))

	assert.Equal(t, Low, f.Level())
	assert.Equal(t, []Level{High, Low}, f.Writes())

	f.SetErr = errors.New("busy")
	require.Error(t, f.Set(High))
	assert.Equal(t, Low, f.Level(), "failed write must not change level")

	require.NoError(t, f.Close())
	assert.True(t, f.IsClosed())
}

func TestLevelToggle(t *testing.T) {
	assert.Equal(t, High, Low.Toggle())
	assert.Equal(t, Low, High.Toggle())
	assert.Equal(t, "HIGH", High.String())
	assert.Equal(t, "LOW", Low.String())
}
