// Package config loads and persists the per-data-directory engine-selector
// marker. The marker lets a later Open detect that a directory was last used
// with a different engine and refuse to silently mix on-disk formats.
//
// The marker file tolerates hand-edited JSON with comments or trailing
// commas (it is standardized with hujson before being parsed), matching how
// this codebase has always treated small, human-editable config files; it is
// always re-serialized as canonical JSON on write.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/kvs/internal/engine"
)

// FileName is the marker file's name inside a data directory's metadata dir.
const FileName = "config"

// MetaDir is the metadata directory created inside a data directory to hold
// the config marker and, for the log engine, the log and compaction files.
const MetaDir = ".kvs"

type marker struct {
	Engine string `json:"engine"`
}

// Path returns the config marker path for the data directory dir.
func Path(dir string) string {
	return filepath.Join(dir, MetaDir, FileName)
}

// Load reads the engine-selector marker from dir. It returns ("", false, nil)
// if no marker has been written yet.
func Load(dir string) (engine.Kind, bool, error) {
	raw, err := os.ReadFile(Path(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("config: read %s: %w", Path(dir), err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return "", false, fmt.Errorf("config: parse %s: %w", Path(dir), err)
	}

	var m marker

	err = json.Unmarshal(standardized, &m)
	if err != nil {
		return "", false, fmt.Errorf("config: decode %s: %w", Path(dir), err)
	}

	return engine.Kind(m.Engine), true, nil
}

// EnsureMatches loads the persisted marker, if any, and checks it against
// want. If no marker exists yet, it writes one recording want. If a marker
// exists and names a different engine, it returns ErrMismatchEngine.
func EnsureMatches(dir string, want engine.Kind) error {
	existing, ok, err := Load(dir)
	if err != nil {
		return err
	}

	if !ok {
		return write(dir, want)
	}

	if existing != want {
		return fmt.Errorf("config: directory %s was opened with engine %q, requested %q: %w",
			dir, existing, want, engine.ErrMismatchEngine)
	}

	return nil
}

func write(dir string, kind engine.Kind) error {
	metaDir := filepath.Join(dir, MetaDir)

	err := os.MkdirAll(metaDir, 0o750)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", metaDir, err)
	}

	buf, err := json.MarshalIndent(marker{Engine: string(kind)}, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode marker: %w", err)
	}

	err = os.WriteFile(Path(dir), buf, 0o640)
	if err != nil {
		return fmt.Errorf("config: write %s: %w", Path(dir), err)
	}

	return nil
}
