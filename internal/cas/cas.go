// Package cas is a content-addressed blob store. Blobs are zstd-compressed
// and sharded on disk as <dir>/<first2>/<rest>.zst.
package cas

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Store struct {
	dir string
}

// New returns a store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the CAS directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Key hashes parts into a hex SHA-256 key. Each part is length-prefixed so
// ("ab", "c") and ("a", "bc") produce different keys.
func Key(parts ...[]byte) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// path returns the sharded file path for a key.
func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key[:2], key[2:]+".zst")
}

// Has reports whether a blob exists for key.
func (s *Store) Has(key string) bool {
	if len(key) < 3 {
		return false
	}
	_, err := os.Stat(s.path(key))
	return err == nil
}

// Write stores content under key. If the key already exists this is a no-op.
func (s *Store) Write(key string, content []byte) error {
	if len(key) < 3 {
		return fmt.Errorf("invalid CAS key %q", key)
	}
	if s.Has(key) {
		return nil
	}
	p := s.path(key)

	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("creating CAS directory: %w", err)
	}

	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return fmt.Errorf("compressing CAS content: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing zstd writer: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating CAS temp file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing CAS file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing CAS file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming CAS file: %w", err)
	}
	return nil
}

// Read retrieves content by key. A missing blob yields an error wrapping
// os.ErrNotExist.
func (s *Store) Read(key string) ([]byte, error) {
	if len(key) < 3 {
		return nil, fmt.Errorf("invalid CAS key %q", key)
	}
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("reading CAS file %s: %w", key, err)
	}
	defer f.Close()

	r, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing CAS file %s: %w", key, err)
	}
	return data, nil
}

// Remove deletes the blob for key, if any.
func (s *Store) Remove(key string) error {
	if len(key) < 3 {
		return fmt.Errorf("invalid CAS key %q", key)
	}
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing CAS file %s: %w", key, err)
	}
	return nil
}

// Clear removes every blob.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("removing CAS directory: %w", err)
	}
	return nil
}
