package duckdb

import (
	"os"
	"time"
)

// FileFingerprint holds stat-based identity for a file.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// BuildInfo records how and from what a bundle was built, so a run can
// log the provenance of the databases it is classifying against.
type BuildInfo struct {
	Source  FileFingerprint
	Entries int64
	BuiltAt time.Time
	Tool    string
}

// WriteBuildInfo replaces the bundle's build metadata.
func (s *Store) WriteBuildInfo(info BuildInfo) error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS build_info (
		source_path VARCHAR,
		source_size BIGINT,
		source_mtime TIMESTAMP,
		entries BIGINT,
		built_at TIMESTAMP,
		tool VARCHAR
	)`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM build_info`); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO build_info VALUES (?, ?, ?, ?, ?, ?)`,
		info.Source.Path, info.Source.Size, info.Source.ModTime,
		info.Entries, info.BuiltAt, info.Tool)
	return err
}

// ReadBuildInfo returns the bundle's build metadata, if recorded.
func (s *Store) ReadBuildInfo() (BuildInfo, bool) {
	var info BuildInfo
	err := s.db.QueryRow(`SELECT source_path, source_size, source_mtime, entries, built_at, tool
		FROM build_info LIMIT 1`).Scan(
		&info.Source.Path, &info.Source.Size, &info.Source.ModTime,
		&info.Entries, &info.BuiltAt, &info.Tool)
	if err != nil {
		return BuildInfo{}, false
	}
	return info, true
}
