package sound

import (
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Sound describes one playable asset. Name is the filename with its final
// extension stripped; Path is the full location on disk.
type Sound struct {
	Name string
	Path string
}

// Library is the enumerable set of playable sounds backed by one directory.
// The set is read-only to callers; Reload and Watch are the only mutators.
type Library struct {
	dir string

	mu     sync.RWMutex
	sounds []Sound
}

// Open scans dir and returns a library over its files. The directory is
// created if it does not exist, matching how the deployment provisions a
// fresh sound folder.
func Open(dir string) (*Library, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving sounds dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating sounds dir: %w", err)
	}

	l := &Library{dir: abs}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the directory the library scans.
func (l *Library) Dir() string {
	return l.dir
}

// Reload rescans the directory, replacing the snapshot. Subdirectories and
// hidden files are skipped.
func (l *Library) Reload() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("reading sounds dir: %w", err)
	}

	sounds := make([]Sound, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		sounds = append(sounds, Sound{
			Name: displayName(name),
			Path: filepath.Join(l.dir, name),
		})
	}

	l.mu.Lock()
	l.sounds = sounds
	l.mu.Unlock()

	log.Printf("🎵 Sound library loaded: %d files from %s", len(sounds), l.dir)
	return nil
}

// List returns a snapshot copy of the sound set.
func (l *Library) List() []Sound {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Sound, len(l.sounds))
	copy(out, l.sounds)
	return out
}

// Find looks a sound up by display name, falling back to the exact base
// filename so clients may pass either "airhorn" or "airhorn.mp3".
func (l *Library) Find(name string) (Sound, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.sounds {
		if s.Name == name {
			return s, true
		}
	}
	for _, s := range l.sounds {
		if filepath.Base(s.Path) == name {
			return s, true
		}
	}
	return Sound{}, false
}

// Random returns an arbitrary sound, or false when the set is empty.
func (l *Library) Random() (Sound, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.sounds) == 0 {
		return Sound{}, false
	}
	return l.sounds[rand.IntN(len(l.sounds))], true
}

// Len returns the number of sounds currently known.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sounds)
}

// displayName strips the final extension. Dotless and hidden names are kept
// as-is.
func displayName(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" || ext == filename {
		return filename
	}
	return strings.TrimSuffix(filename, ext)
}
