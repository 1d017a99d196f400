// Package signalspool is the side channel between workers and the engine.
// A worker (or a human) drops a small JSON file into the spool directory;
// the engine watches the directory and consumes the files. The filesystem
// is the only contract, so signals survive worker death and engine
// restarts alike.
package signalspool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/baton/internal/models"
)

// DirName is the spool directory relative to the project root.
const DirName = ".baton/signals"

// Dir returns the spool directory under root.
func Dir(root string) string {
	return filepath.Join(root, DirName)
}

// WriteCompletion atomically drops a completion signal into dir.
func WriteCompletion(dir string, sig *models.CompletionSignal) error {
	if !models.ValidSignalStatus(sig.Status) {
		return fmt.Errorf("invalid signal status %q", sig.Status)
	}
	if sig.SignaledAt.IsZero() {
		sig.SignaledAt = time.Now().UTC()
	}
	name := fmt.Sprintf("done-%s-%d.json", sig.PhaseID, sig.SignaledAt.UnixNano())
	return writeSpoolFile(dir, name, sig)
}

// WriteProgress atomically drops a progress signal into dir.
func WriteProgress(dir string, sig *models.ProgressSignal) error {
	if sig.SignaledAt.IsZero() {
		sig.SignaledAt = time.Now().UTC()
	}
	name := fmt.Sprintf("progress-%s-%d.json", sig.PhaseID, sig.SignaledAt.UnixNano())
	return writeSpoolFile(dir, name, sig)
}

// writeSpoolFile writes to a dotfile first and renames it into place, so
// the watcher never observes a partial file.
func writeSpoolFile(dir, name string, payload interface{}) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}

	tmp := filepath.Join(dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write signal: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish signal: %w", err)
	}

	return nil
}

// Message is one parsed spool file. Exactly one of Completion and
// Progress is set.
type Message struct {
	Path       string
	Completion *models.CompletionSignal
	Progress   *models.ProgressSignal
}

// readSpoolFile parses one spool file by its name prefix.
func readSpoolFile(path string) (*Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signal file: %w", err)
	}

	msg := &Message{Path: path}
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "done-"):
		sig := &models.CompletionSignal{}
		if err := json.Unmarshal(data, sig); err != nil {
			return nil, fmt.Errorf("malformed completion signal %s: %w", base, err)
		}
		if !models.ValidSignalStatus(sig.Status) {
			return nil, fmt.Errorf("malformed completion signal %s: invalid status %q", base, sig.Status)
		}
		msg.Completion = sig
	case strings.HasPrefix(base, "progress-"):
		sig := &models.ProgressSignal{}
		if err := json.Unmarshal(data, sig); err != nil {
			return nil, fmt.Errorf("malformed progress signal %s: %w", base, err)
		}
		msg.Progress = sig
	default:
		return nil, fmt.Errorf("unrecognized spool file %s", base)
	}

	return msg, nil
}

// isSpoolFile reports whether name looks like a finished spool file
// rather than a temp file mid-write.
func isSpoolFile(name string) bool {
	if name == "" || name[0] == '.' {
		return false
	}
	return filepath.Ext(name) == ".json"
}
