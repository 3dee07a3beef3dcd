// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

// Package snapshot persists collaborative model state to disk.
//
// State is gob-encoded, checksummed with SHA-256 and gzip-compressed
// before being written as a single gob-encoded file. The checksum is
// verified on load so a corrupt snapshot fails loudly instead of
// restoring garbage into a live model.
//
// Two kinds of files exist under the base directory:
//
//	model_latest.gob.gz                      the current model
//	backups/model_backup_{timestamp}.gob.gz  pre-retrain safety copies
package snapshot

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrNoSnapshot is returned when no snapshot file exists.
var ErrNoSnapshot = errors.New("no snapshot available")

const (
	latestName      = "model_latest.gob.gz"
	backupDirName   = "backups"
	backupPrefix    = "model_backup_"
	backupSuffix    = ".gob.gz"
	backupTimestamp = "20060102_150405"

	// schemaVersion guards against loading state written by an
	// incompatible release.
	schemaVersion = 1
)

// ModelState is the complete serializable state of the collaborative
// model plus the blend weights in effect when it was saved.
type ModelState struct {
	SchemaVersion int
	Version       int
	Trained       bool
	TrainedAt     time.Time

	// Dense user-movie rating matrix and its index maps.
	Matrix       [][]float64
	UserIndex    map[string]int
	MovieIndex   map[int64]int
	IndexToUser  []string
	IndexToMovie []int64

	// Cosine similarity matrices.
	UserSim  [][]float64
	MovieSim [][]float64

	// Low-rank factor matrices.
	UserFactors  [][]float64
	MovieFactors [][]float64

	// Blend weights at save time.
	ContentWeight float64
	CollabWeight  float64
}

// Metadata describes a stored snapshot.
type Metadata struct {
	Version    int       `json:"version"`
	Trained    bool      `json:"trained"`
	TrainedAt  time.Time `json:"trained_at"`
	SavedAt    time.Time `json:"saved_at"`
	UserCount  int       `json:"user_count"`
	MovieCount int       `json:"movie_count"`
	Checksum   string    `json:"checksum"`
	SizeBytes  int64     `json:"size_bytes"`
}

// storedFile is the on-disk format for snapshot files.
type storedFile struct {
	Metadata       Metadata
	CompressedData []byte
}

//nolint:gochecknoinits // gob.Register must be called in init for type registration
func init() {
	gob.Register(ModelState{})
	gob.Register(Metadata{})
	gob.Register(storedFile{})
}

// Store manages snapshot persistence under a base directory.
type Store struct {
	baseDir string
	mu      sync.Mutex
}

// NewStore creates a snapshot store at the given directory, creating it
// and its backups/ subdirectory as needed.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, backupDirName), 0o750); err != nil { //nolint:gosec // 0750 is acceptable for model storage
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// SaveLatest writes the state as the current model, replacing any
// previous one.
func (s *Store) SaveLatest(state *ModelState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeSnapshot(filepath.Join(s.baseDir, latestName), state)
}

// SaveBackup writes a timestamped backup copy and returns its path.
func (s *Store) SaveBackup(state *ModelState) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := backupPrefix + time.Now().UTC().Format(backupTimestamp) + backupSuffix
	path := filepath.Join(s.baseDir, backupDirName, name)

	// Two backups within the same second would collide; disambiguate.
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			break
		}
		path = filepath.Join(s.baseDir, backupDirName,
			fmt.Sprintf("%s%s_%d%s", backupPrefix, time.Now().UTC().Format(backupTimestamp), i, backupSuffix))
	}

	if err := writeSnapshot(path, state); err != nil {
		return "", err
	}
	return path, nil
}

// LoadLatest loads the current model snapshot.
func (s *Store) LoadLatest() (*ModelState, *Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readSnapshot(filepath.Join(s.baseDir, latestName))
}

// LoadLatestBackup loads the most recently modified backup.
func (s *Store) LoadLatestBackup() (*ModelState, *Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.newestBackupPath()
	if err != nil {
		return nil, nil, err
	}
	return readSnapshot(path)
}

// newestBackupPath returns the backup file with the latest mtime.
func (s *Store) newestBackupPath() (string, error) {
	dir := filepath.Join(s.baseDir, backupDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read backup directory: %w", err)
	}

	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".gz" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, entry.Name())
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", ErrNoSnapshot
	}
	return newest, nil
}

// PruneBackups removes old backups, keeping only the newest keep files
// by modification time.
func (s *Store) PruneBackups(keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 1 {
		keep = 1
	}

	dir := filepath.Join(s.baseDir, backupDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read backup directory: %w", err)
	}

	type backup struct {
		path string
		mod  time.Time
	}
	var backups []backup
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".gz" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{path: filepath.Join(dir, entry.Name()), mod: info.ModTime()})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].mod.After(backups[j].mod)
	})
	for i := keep; i < len(backups); i++ {
		_ = os.Remove(backups[i].path) //nolint:errcheck // best-effort cleanup of old backups
	}
	return nil
}

// writeSnapshot serializes state to path: gob encode, checksum,
// compress, then write as a single gob-encoded storedFile.
func writeSnapshot(path string, state *ModelState) error {
	state.SchemaVersion = schemaVersion

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	rawData := buf.Bytes()

	hash := sha256.Sum256(rawData)

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(rawData); err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("finalize compression: %w", err)
	}

	sf := storedFile{
		Metadata: Metadata{
			Version:    state.Version,
			Trained:    state.Trained,
			TrainedAt:  state.TrainedAt,
			SavedAt:    time.Now().UTC(),
			UserCount:  len(state.IndexToUser),
			MovieCount: len(state.IndexToMovie),
			Checksum:   hex.EncodeToString(hash[:]),
			SizeBytes:  int64(compressed.Len()),
		},
		CompressedData: compressed.Bytes(),
	}

	f, err := os.Create(path) //nolint:gosec // path is constructed from the configured snapshot directory
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // error on close after write surfaces via Encode

	if err := gob.NewEncoder(f).Encode(sf); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}
	return nil
}

// readSnapshot loads and verifies a snapshot file.
func readSnapshot(path string) (*ModelState, *Metadata, error) {
	f, err := os.Open(path) //nolint:gosec // path is constructed from the configured snapshot directory
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNoSnapshot
		}
		return nil, nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // error on close after read is not actionable

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return nil, nil, fmt.Errorf("read snapshot file: %w", err)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // error on gzip close after read is not actionable

	rawData, err := io.ReadAll(gzr)
	if err != nil {
		return nil, nil, fmt.Errorf("read decompressed data: %w", err)
	}

	hash := sha256.Sum256(rawData)
	if checksum := hex.EncodeToString(hash[:]); checksum != sf.Metadata.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: expected %s, got %s", sf.Metadata.Checksum, checksum)
	}

	var state ModelState
	if err := gob.NewDecoder(bytes.NewReader(rawData)).Decode(&state); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if state.SchemaVersion != schemaVersion {
		return nil, nil, fmt.Errorf("unsupported snapshot schema version %d", state.SchemaVersion)
	}

	meta := sf.Metadata
	return &state, &meta, nil
}
