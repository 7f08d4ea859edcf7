package archive

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/klauspost/pgzip"
)

// Writer compresses a byte stream into a gzip file, tracking the compressed
// size and a SHA-1 digest of the bytes as written. Parallel gzip keeps the
// compression off the critical path of the snapshot send stream.
type Writer struct {
	f    *os.File
	gz   *pgzip.Writer
	out  *countingWriter
	path string
}

// Create opens path for writing. It refuses to overwrite an existing file
// so that reruns collide instead of clobbering a published archive.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	out := &countingWriter{w: f, sha: sha1.New()}
	return &Writer{
		f:    f,
		gz:   pgzip.NewWriter(out),
		out:  out,
		path: path,
	}, nil
}

// Write compresses p into the archive.
func (w *Writer) Write(p []byte) (int, error) {
	return w.gz.Write(p)
}

// Close flushes the compressor and closes the file.
func (w *Writer) Close() error {
	if err := w.gz.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("close compressor: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

// Abort closes the writer and removes the partial file.
func (w *Writer) Abort() {
	w.gz.Close()
	w.f.Close()
	os.Remove(w.path)
}

// Path returns the archive file path.
func (w *Writer) Path() string { return w.path }

// Size returns the compressed bytes written so far.
func (w *Writer) Size() int64 { return w.out.n }

// SHA1 returns the hex digest of the compressed bytes written so far.
// Meaningful only after Close.
func (w *Writer) SHA1() string {
	return hex.EncodeToString(w.out.sha.Sum(nil))
}

type countingWriter struct {
	w   io.Writer
	sha hash.Hash
	n   int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.sha.Write(p[:n])
	return n, err
}
