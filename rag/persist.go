package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const storeFormatVersion = 1

type storeFile struct {
	Version   int          `json:"version"`
	Model     string       `json:"model,omitempty"`
	Dimension int          `json:"dimension"`
	Sources   []string     `json:"sources"`
	Entries   []storeEntry `json:"entries"`
}

type storeEntry struct {
	Chunk     string    `json:"chunk"`
	Embedding []float32 `json:"embedding"`
}

// StoreExists reports whether an artifact is present at path.
func StoreExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("rag: stat store %q: %w", path, err)
	}
	return true, nil
}

// SaveStore writes store to path as a single artifact. Paths ending in .db,
// .sqlite or .sqlite3 produce a SQLite database, anything else JSON. The
// artifact is written to a temporary file first and renamed into place.
func SaveStore(ctx context.Context, path string, store *VectorStore) error {
	dir := filepath.Dir(filepath.Clean(path))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("rag: ensure directory %q: %w", dir, err)
	}
	snap := snapshot(store)
	if isSQLitePath(path) {
		return saveSQLite(ctx, path, snap)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("rag: encode store: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("rag: write store: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rag: commit store: %w", err)
	}
	return nil
}

// LoadStore reads an artifact written by SaveStore.
func LoadStore(ctx context.Context, path string) (*VectorStore, error) {
	var (
		snap *storeFile
		err  error
	)
	if isSQLitePath(path) {
		snap, err = loadSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
	} else {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("rag: read store %q: %w", path, readErr)
		}
		snap = &storeFile{}
		if err := json.Unmarshal(data, snap); err != nil {
			return nil, fmt.Errorf("rag: decode store %q: %w", path, err)
		}
	}
	return restore(path, snap)
}

func snapshot(store *VectorStore) *storeFile {
	entries := store.Entries()
	snap := &storeFile{
		Version:   storeFormatVersion,
		Model:     store.Model(),
		Dimension: store.Dimension(),
		Sources:   store.Sources(),
		Entries:   make([]storeEntry, len(entries)),
	}
	for i := range entries {
		snap.Entries[i] = storeEntry{Chunk: entries[i].Chunk, Embedding: entries[i].Embedding}
	}
	return snap
}

func restore(path string, snap *storeFile) (*VectorStore, error) {
	if snap.Version != storeFormatVersion {
		return nil, fmt.Errorf("rag: store %q has unsupported version %d", path, snap.Version)
	}
	store := NewVectorStore(snap.Sources, snap.Model)
	entries := make([]Entry, len(snap.Entries))
	for i := range snap.Entries {
		entries[i] = Entry{Chunk: snap.Entries[i].Chunk, Embedding: snap.Entries[i].Embedding}
	}
	if err := store.Add(entries...); err != nil {
		return nil, fmt.Errorf("rag: store %q: %w", path, err)
	}
	if len(entries) > 0 && snap.Dimension != store.Dimension() {
		return nil, fmt.Errorf(
			"rag: store %q declares dimension %d but entries have %d: %w",
			path, snap.Dimension, store.Dimension(), ErrDimensionMismatch,
		)
	}
	return store, nil
}

func isSQLitePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}
