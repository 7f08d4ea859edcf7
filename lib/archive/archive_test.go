package archive

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img-2026083114.zfs.gz")
	payload := bytes.Repeat([]byte("zfs send stream "), 4096)

	w, err := Create(path)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Size and digest must describe the compressed file as it is on disk
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(raw)), w.Size())

	sum := sha1.Sum(raw)
	assert.Equal(t, hex.EncodeToString(sum[:]), w.SHA1())

	// And decompressing must give back the original stream
	gzr, err := pgzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	got, err := io.ReadAll(gzr)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestCreateRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.zfs.gz")
	require.NoError(t, os.WriteFile(path, []byte("existing"), 0644))

	_, err := Create(path)
	assert.Error(t, err)
}

func TestAbortRemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.zfs.gz")

	w, err := Create(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	w.Abort()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
