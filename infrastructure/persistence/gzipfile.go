// Package persistence implements a gzip-compressed, file-backed
// state.PersistenceBackend for the coordinator's two durable stores
// (platform exports, transaction logs). Each key is written to its own
// "<key>.json.gz" file under a base directory; writes are atomic (temp file
// + rename) so a crash mid-write never leaves a corrupt file in place, and a
// missing or corrupt file on Load is treated as absent rather than fatal —
// the export store and transaction logger start empty rather than crash.
package persistence

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/platformforge/transfer-coordinator/infrastructure/logging"
	"github.com/platformforge/transfer-coordinator/infrastructure/state"
)

const fileSuffix = ".json.gz"

// GzipFileBackend implements state.PersistenceBackend by storing each key as
// a gzip-compressed file under baseDir. Gzip compresses the serialized file
// on disk only; the bytes handed to Save/returned from Load are exactly the
// caller's bytes, so opaque payloads embedded in that JSON round-trip
// byte-for-byte.
type GzipFileBackend struct {
	baseDir string
	logger  *logging.Logger
}

// NewGzipFileBackend creates a backend rooted at baseDir, creating the
// directory if it does not already exist.
func NewGzipFileBackend(baseDir string, logger *logging.Logger) (*GzipFileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &GzipFileBackend{baseDir: baseDir, logger: logger}, nil
}

func (b *GzipFileBackend) pathFor(key string) string {
	return filepath.Join(b.baseDir, sanitizeKey(key)+fileSuffix)
}

// sanitizeKey replaces path separators so a key can never escape baseDir.
func sanitizeKey(key string) string {
	return strings.ReplaceAll(strings.ReplaceAll(key, "/", "_"), string(filepath.Separator), "_")
}

// Save gzip-compresses data and atomically replaces the file for key.
func (b *GzipFileBackend) Save(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	path := b.pathFor(key)

	tmp, err := os.CreateTemp(b.baseDir, "tmp-*"+fileSuffix)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	gz := gzip.NewWriter(tmp)
	if _, err := gz.Write(data); err != nil {
		gz.Close()
		tmp.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	err = os.Rename(tmpPath, path)
	if b.logger != nil {
		b.logger.LogPersistenceWrite(ctx, path, time.Since(start), err)
	}
	return err
}

// Load decompresses and returns the bytes stored for key.
//
// A missing file or a file that fails to decompress (corrupted by a prior
// crash, truncated disk) is treated as state.ErrNotFound rather than
// propagated, so callers fall back to an empty starting state instead of
// refusing to boot.
func (b *GzipFileBackend) Load(ctx context.Context, key string) ([]byte, error) {
	path := b.pathFor(key)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, state.ErrNotFound
		}
		return nil, state.ErrNotFound
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		if b.logger != nil {
			b.logger.WithError(err).Warn("discarding corrupt persisted file, starting empty")
		}
		return nil, state.ErrNotFound
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		if b.logger != nil {
			b.logger.WithError(err).Warn("discarding corrupt persisted file, starting empty")
		}
		return nil, state.ErrNotFound
	}
	return data, nil
}

func (b *GzipFileBackend) Delete(ctx context.Context, key string) error {
	err := os.Remove(b.pathFor(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (b *GzipFileBackend) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(b.baseDir)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		key := strings.TrimSuffix(name, fileSuffix)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (b *GzipFileBackend) Close(ctx context.Context) error {
	return nil
}
