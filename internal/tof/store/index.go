package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gaps-collab/tofdaq/internal/tof/reader"
	"github.com/gaps-collab/tofdaq/internal/tof/wire"
)

// PutFileIndex stores idx for path under its current FileID, replacing any
// entry for that path.
func (db *DB) PutFileIndex(path string, size, mtimeUnixNano int64, idx reader.Index, indexedAtUnix int64) error {
	id := IdentifyStat(path, size, mtimeUnixNano)

	tagCounts := make(map[string]int, len(idx.TagCounts))
	for tag, n := range idx.TagCounts {
		tagCounts[tag.String()] = n
	}
	tagJSON, err := json.Marshal(tagCounts)
	if err != nil {
		return fmt.Errorf("store: marshal tag counts: %w", err)
	}
	refsJSON, err := json.Marshal(idx.Packets)
	if err != nil {
		return fmt.Errorf("store: marshal packet refs: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO packet_file_index (file_id, path, size_bytes, mtime_unix, tag_counts, packet_refs, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			file_id = excluded.file_id,
			size_bytes = excluded.size_bytes,
			mtime_unix = excluded.mtime_unix,
			tag_counts = excluded.tag_counts,
			packet_refs = excluded.packet_refs,
			indexed_at = excluded.indexed_at`,
		int64(id), path, size, mtimeUnixNano, string(tagJSON), string(refsJSON), indexedAtUnix)
	if err != nil {
		return fmt.Errorf("store: insert packet_file_index: %w", err)
	}
	return nil
}

// GetFileIndex returns the cached index for path if one exists and its
// FileID still matches the file's current size/mtime. ok is false on a
// cache miss or a stale (invalidated) entry.
func (db *DB) GetFileIndex(path string, size, mtimeUnixNano int64) (idx reader.Index, ok bool, err error) {
	want := IdentifyStat(path, size, mtimeUnixNano)

	var gotID int64
	var tagJSON, refsJSON string
	row := db.QueryRow(`SELECT file_id, tag_counts, packet_refs FROM packet_file_index WHERE path = ?`, path)
	if err := row.Scan(&gotID, &tagJSON, &refsJSON); err != nil {
		if err == sql.ErrNoRows {
			return reader.Index{}, false, nil
		}
		return reader.Index{}, false, fmt.Errorf("store: query packet_file_index: %w", err)
	}
	if FileID(gotID) != want {
		return reader.Index{}, false, nil
	}

	var tagCounts map[string]int
	if err := json.Unmarshal([]byte(tagJSON), &tagCounts); err != nil {
		return reader.Index{}, false, fmt.Errorf("store: unmarshal tag counts: %w", err)
	}
	var refs []reader.PacketRef
	if err := json.Unmarshal([]byte(refsJSON), &refs); err != nil {
		return reader.Index{}, false, fmt.Errorf("store: unmarshal packet refs: %w", err)
	}

	out := reader.Index{TagCounts: make(map[wire.PacketTag]int, len(tagCounts)), Packets: refs}
	for name, n := range tagCounts {
		out.TagCounts[wire.ParseTag(name)] = n
	}
	return out, true, nil
}

// IndexCached returns f's index, consulting the cache keyed by f.Path's
// current stat first and only falling through to a full scan (f.Index())
// on a miss or a stale entry, writing the freshly computed result back.
func (db *DB) IndexCached(f *reader.File, nowUnix int64) (reader.Index, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return reader.Index{}, fmt.Errorf("store: stat %s: %w", f.Path, err)
	}
	size, mtime := info.Size(), info.ModTime().UnixNano()

	if cached, ok, err := db.GetFileIndex(f.Path, size, mtime); err != nil {
		return reader.Index{}, err
	} else if ok {
		return cached, nil
	}

	idx := f.Index()
	if err := db.PutFileIndex(f.Path, size, mtime, idx, nowUnix); err != nil {
		return idx, err
	}
	return idx, nil
}
