package store

import (
	"database/sql"
	"fmt"
)

// PutCalibrationMeta records that rbID's calibration table was most
// recently loaded from sourcePath, identified by its FileID.
func (db *DB) PutCalibrationMeta(rbID int, sourcePath string, sourceID FileID, loadedAtUnix int64) error {
	_, err := db.Exec(`
		INSERT INTO calibration_meta (rb_id, source_path, source_id, loaded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(rb_id) DO UPDATE SET
			source_path = excluded.source_path,
			source_id = excluded.source_id,
			loaded_at = excluded.loaded_at`,
		rbID, sourcePath, int64(sourceID), loadedAtUnix)
	if err != nil {
		return fmt.Errorf("store: insert calibration_meta: %w", err)
	}
	return nil
}

// CalibrationMeta is what's on record for a board's calibration source.
type CalibrationMeta struct {
	SourcePath string
	SourceID   FileID
	LoadedAt   int64
}

// GetCalibrationMeta looks up rbID's recorded calibration source. ok is
// false if nothing has been recorded for that board yet.
func (db *DB) GetCalibrationMeta(rbID int) (meta CalibrationMeta, ok bool, err error) {
	var sourceID, loadedAt int64
	row := db.QueryRow(`SELECT source_path, source_id, loaded_at FROM calibration_meta WHERE rb_id = ?`, rbID)
	if err := row.Scan(&meta.SourcePath, &sourceID, &loadedAt); err != nil {
		if err == sql.ErrNoRows {
			return CalibrationMeta{}, false, nil
		}
		return CalibrationMeta{}, false, fmt.Errorf("store: query calibration_meta: %w", err)
	}
	meta.SourceID = FileID(sourceID)
	meta.LoadedAt = loadedAt
	return meta, true, nil
}

// IsStale reports whether sourcePath's current on-disk identity no longer
// matches what's recorded for rbID, meaning the cached calibration should
// be reloaded.
func (db *DB) IsStale(rbID int, sourcePath string) (bool, error) {
	meta, ok, err := db.GetCalibrationMeta(rbID)
	if err != nil {
		return true, err
	}
	if !ok || meta.SourcePath != sourcePath {
		return true, nil
	}
	current, err := Identify(sourcePath)
	if err != nil {
		return true, err
	}
	return current != meta.SourceID, nil
}
