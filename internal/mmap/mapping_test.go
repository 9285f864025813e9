package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	content := []byte("hello mapped world")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, len(content), m.Size())
	assert.Equal(t, content, m.Bytes())

	buf := make([]byte, 6)
	n, err := m.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "mapped", string(buf[:n]))

	// Read past the end.
	n, err = m.ReadAt(buf, int64(len(content))-3)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 3, n)
}

func TestOpenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	m, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Size())
	assert.NoError(t, m.Close())
}

func TestMapAnon(t *testing.T) {
	m, err := MapAnon(1 << 16)
	require.NoError(t, err)
	defer m.Close()

	data := m.Bytes()
	require.Len(t, data, 1<<16)

	// Zero-filled and writable.
	assert.Equal(t, byte(0), data[0])
	assert.Equal(t, byte(0), data[len(data)-1])
	for i := 0; i < len(data); i += 4096 {
		data[i] = 0xab
	}
	assert.Equal(t, byte(0xab), data[0])

	_, err = MapAnon(0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestCloseIdempotent(t *testing.T) {
	m, err := MapAnon(4096)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Nil(t, m.Bytes())

	_, err = m.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrClosed)
}
