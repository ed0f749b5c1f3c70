// Package storage persists the portfolio document as a single JSON file.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"theta_watcher/internal/logger"
	"theta_watcher/internal/models"
)

// CurrentVersion is the schema version Save writes.
const CurrentVersion = "2.0"

// Store reads and writes the state document at Path. Unreadable documents
// are moved into BackupDir before a fresh one replaces them.
type Store struct {
	Path      string
	BackupDir string

	now func() time.Time
}

// New returns a Store for path.
func New(path, backupDir string) *Store {
	return &Store{Path: path, BackupDir: backupDir, now: time.Now}
}

// Default is the document a fresh install starts from.
func Default() models.PortfolioState {
	return models.PortfolioState{
		Version:   CurrentVersion,
		Positions: []models.Position{},
		LastIVR:   map[string]models.IVRSample{},
	}
}

// Load returns the stored document. A missing or empty file yields (and
// saves) the default document. A corrupt file is moved to
// BackupDir/state_corrupt_<YYYYMMDD-HHMMSS>.json and replaced by the
// default, with a warning in its action log. Saving the fresh document is
// best effort. Only read failures on a file that exists are returned.
func (s *Store) Load() (models.PortfolioState, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil && !os.IsNotExist(err) {
		return Default(), fmt.Errorf("read state: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		logger.Infof("state file %s missing or empty, starting fresh", s.Path)
		return s.saveFresh(Default()), nil
	}

	st, migrated, err := decode(raw, s.now())
	if err != nil {
		return s.recoverCorrupt(err)
	}

	if st.LastIVR == nil {
		st.LastIVR = map[string]models.IVRSample{}
	}
	if st.Positions == nil {
		st.Positions = []models.Position{}
	}

	if migrated {
		logger.Infof("state migrated to version %s, saving", st.Version)
		if err := s.Save(st); err != nil {
			logger.Errorf("save migrated state: %v", err)
		}
	}
	return st, nil
}

func (s *Store) recoverCorrupt(cause error) (models.PortfolioState, error) {
	st := Default()
	backup := filepath.Join(s.BackupDir, fmt.Sprintf("state_corrupt_%s.json", s.now().Format("20060102-150405")))

	msg := fmt.Sprintf("State file was unreadable (%v); started fresh", cause)
	if err := os.MkdirAll(s.BackupDir, 0o755); err == nil {
		if err := os.Rename(s.Path, backup); err == nil {
			msg = fmt.Sprintf("State file was unreadable; backed up to %s", backup)
		} else {
			logger.Errorf("move corrupt state to %s: %v", backup, err)
		}
	} else {
		logger.Errorf("create backup dir: %v", err)
	}
	logger.Warnf("%s: %v", msg, cause)

	st.ActionLog = st.ActionLog.Append(models.ActionLogEntry{
		Time:    s.now(),
		Level:   models.LevelWarning,
		Message: msg,
	}, 0)
	return s.saveFresh(st), nil
}

// saveFresh writes a freshly built document. A failure is logged and noted
// in the document; the next tick's save retries.
func (s *Store) saveFresh(st models.PortfolioState) models.PortfolioState {
	if err := s.Save(st); err != nil {
		logger.Errorf("save fresh state: %v", err)
		st.ActionLog = st.ActionLog.Append(models.ActionLogEntry{
			Time:    s.now(),
			Level:   models.LevelWarning,
			Message: fmt.Sprintf("State could not be saved (%v); running from memory", err),
		}, 0)
	}
	return st
}

// Save writes st atomically: temp file in the same directory, fsync, rename.
func (s *Store) Save(st models.PortfolioState) error {
	if st.Version == "" {
		st.Version = CurrentVersion
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(b); err != nil {
		f.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
