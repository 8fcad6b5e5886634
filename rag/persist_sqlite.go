package rag

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE entries (
	position  INTEGER PRIMARY KEY,
	chunk     TEXT NOT NULL,
	embedding BLOB NOT NULL
);`

func saveSQLite(ctx context.Context, path string, snap *storeFile) (err error) {
	tmp := path + ".tmp"
	if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return fmt.Errorf("rag: clear stale %q: %w", tmp, rmErr)
	}
	db, err := sql.Open("sqlite", tmp)
	if err != nil {
		return fmt.Errorf("rag: open sqlite %q: %w", tmp, err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("rag: close sqlite %q: %w", tmp, closeErr)
		}
		if err == nil {
			if renameErr := os.Rename(tmp, path); renameErr != nil {
				err = fmt.Errorf("rag: commit store: %w", renameErr)
			}
		}
	}()

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("rag: create sqlite schema: %w", err)
	}
	sources, err := json.Marshal(snap.Sources)
	if err != nil {
		return fmt.Errorf("rag: encode sources: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rag: begin sqlite tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	meta := map[string]string{
		"version":   strconv.Itoa(snap.Version),
		"model":     snap.Model,
		"dimension": strconv.Itoa(snap.Dimension),
		"sources":   string(sources),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)`, k, v); err != nil {
			return fmt.Errorf("rag: write meta %s: %w", k, err)
		}
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries(position, chunk, embedding) VALUES(?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("rag: prepare entries insert: %w", err)
	}
	defer stmt.Close()
	for i := range snap.Entries {
		blob := encodeEmbedding(snap.Entries[i].Embedding)
		if _, err := stmt.ExecContext(ctx, i, snap.Entries[i].Chunk, blob); err != nil {
			return fmt.Errorf("rag: write entry %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rag: commit sqlite tx: %w", err)
	}
	return nil
}

func loadSQLite(ctx context.Context, path string) (*storeFile, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("rag: open sqlite %q: %w", path, err)
	}
	defer db.Close()

	snap := &storeFile{}
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("rag: read meta from %q: %w", path, err)
	}
	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("rag: scan meta: %w", err)
		}
		meta[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: read meta: %w", err)
	}
	if snap.Version, err = strconv.Atoi(meta["version"]); err != nil {
		return nil, fmt.Errorf("rag: store %q version: %w", path, err)
	}
	if snap.Dimension, err = strconv.Atoi(meta["dimension"]); err != nil {
		return nil, fmt.Errorf("rag: store %q dimension: %w", path, err)
	}
	snap.Model = meta["model"]
	if err := json.Unmarshal([]byte(meta["sources"]), &snap.Sources); err != nil {
		return nil, fmt.Errorf("rag: store %q sources: %w", path, err)
	}

	rows, err = db.QueryContext(ctx, `SELECT chunk, embedding FROM entries ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("rag: read entries from %q: %w", path, err)
	}
	defer rows.Close()
	snap.Entries = []storeEntry{}
	for rows.Next() {
		var (
			chunk string
			blob  []byte
		)
		if err := rows.Scan(&chunk, &blob); err != nil {
			return nil, fmt.Errorf("rag: scan entry: %w", err)
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		snap.Entries = append(snap.Entries, storeEntry{Chunk: chunk, Embedding: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: read entries: %w", err)
	}
	return snap, nil
}

// encodeEmbedding packs float32 values little-endian, four bytes each.
func encodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("rag: invalid embedding blob length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
