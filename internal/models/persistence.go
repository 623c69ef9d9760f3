package models

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SaveDir is the root directory for save files. It is set from config.
var SaveDir = ".saves"

// AutosaveSlot is the slot used after every turn.
const AutosaveSlot = "autosave"

// KeepAutosaves is how many timestamped autosaves are kept per game.
const KeepAutosaves = 5

const (
	saveExt      = ".yaml.gz"
	latestSuffix = "_latest"
	manualPrefix = "manual_"
	stampLayout  = "20060102_150405"
)

var (
	// ErrNoSave is returned when no save file matches.
	ErrNoSave = errors.New("no save found")
	// ErrVersionMismatch is returned alongside a loaded snapshot whose
	// version differs from SaveVersion. The snapshot is still usable.
	ErrVersionMismatch = errors.New("save version mismatch")
)

// SaveInfo describes one game directory.
type SaveInfo struct {
	GameID     string
	PlayerName string
	Turns      int
	SavedAt    time.Time
}

// Save writes snap to <SaveDir>/<gameID>/ under slot. Manual slots get the
// manual_ prefix and are never rotated. Both a timestamped file and a
// <slot>_latest file are written.
func Save(snap *Snapshot, slot string, manual bool) (string, error) {
	if snap.GameID == "" {
		return "", errors.New("save: empty game id")
	}
	if slot == "" {
		slot = AutosaveSlot
	}
	if manual && !strings.HasPrefix(slot, manualPrefix) {
		slot = manualPrefix + slot
	}

	dir := filepath.Join(SaveDir, snap.GameID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("save: %w", err)
	}

	snap.Version = SaveVersion
	snap.Slot = slot
	snap.SavedAt = time.Now()

	path := filepath.Join(dir, slot+"_"+snap.SavedAt.Format(stampLayout)+saveExt)
	if err := writeSnapshot(path, snap); err != nil {
		return "", err
	}
	if err := writeSnapshot(filepath.Join(dir, slot+latestSuffix+saveExt), snap); err != nil {
		return "", err
	}

	if !manual {
		if err := rotate(dir, slot, KeepAutosaves); err != nil {
			return path, err
		}
	}
	return path, nil
}

// LoadSave reads the latest file of slot for gameID. On a version mismatch
// the snapshot is returned together with an error wrapping
// ErrVersionMismatch.
func LoadSave(gameID, slot string) (*Snapshot, error) {
	if slot == "" {
		slot = AutosaveSlot
	}
	return LoadFile(filepath.Join(SaveDir, gameID, slot+latestSuffix+saveExt))
}

// LatestSave returns the most recently written latest file of slot across
// all games.
func LatestSave(slot string) (*Snapshot, error) {
	if slot == "" {
		slot = AutosaveSlot
	}
	matches, err := filepath.Glob(filepath.Join(SaveDir, "*", slot+latestSuffix+saveExt))
	if err != nil {
		return nil, err
	}
	var (
		newest  string
		newestT time.Time
	)
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil {
			continue
		}
		if newest == "" || fi.ModTime().After(newestT) {
			newest, newestT = m, fi.ModTime()
		}
	}
	if newest == "" {
		return nil, ErrNoSave
	}
	return LoadFile(newest)
}

// LoadFile reads a single save file.
func LoadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", filepath.Base(path), ErrNoSave)
		}
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	if snap.Version != SaveVersion {
		return &snap, fmt.Errorf("%w: file %q, game %q", ErrVersionMismatch, snap.Version, SaveVersion)
	}
	return &snap, nil
}

// ListSessions returns every game that has an autosave, newest first.
func ListSessions() ([]SaveInfo, error) {
	if _, err := os.Stat(SaveDir); os.IsNotExist(err) {
		return []SaveInfo{}, nil
	}

	entries, err := os.ReadDir(SaveDir)
	if err != nil {
		return nil, err
	}

	var sessions []SaveInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// Saves from other versions are still listed.
		snap, _ := LoadSave(entry.Name(), AutosaveSlot)
		if snap == nil {
			continue
		}
		sessions = append(sessions, SaveInfo{
			GameID:     snap.GameID,
			PlayerName: snap.PlayerName,
			Turns:      snap.Turns,
			SavedAt:    snap.SavedAt,
		})
	}
	slices.SortFunc(sessions, func(a, b SaveInfo) int {
		return b.SavedAt.Compare(a.SavedAt)
	})
	return sessions, nil
}

func writeSnapshot(path string, snap *Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("save: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("save: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return os.Rename(tmp, path)
}

// rotate keeps the newest keep timestamped files of slot in dir.
func rotate(dir, slot string, keep int) error {
	matches, err := filepath.Glob(filepath.Join(dir, slot+"_*"+saveExt))
	if err != nil {
		return err
	}
	var stamped []string
	for _, m := range matches {
		if !strings.HasSuffix(m, latestSuffix+saveExt) {
			stamped = append(stamped, m)
		}
	}
	if len(stamped) <= keep {
		return nil
	}
	// The timestamp layout sorts lexically.
	slices.Sort(stamped)
	for _, old := range stamped[:len(stamped)-keep] {
		if err := os.Remove(old); err != nil {
			return fmt.Errorf("rotate saves: %w", err)
		}
	}
	return nil
}
