package config

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Manager guards the live config and writes edits back to the file. If the
// file does not exist yet, Load creates it with defaults, same as a first
// run of the original tool.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg Config

	// lastHash is the content hash of the last state we wrote or accepted,
	// so the watcher can ignore our own saves and editor no-op rewrites.
	lastHash uint64
}

func Load(path string) (*Manager, error) {
	m := &Manager{path: path}

	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		m.cfg = Default()
		if err := m.save(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("config: %w", err)
	default:
		cfg, err := parse(b)
		if err != nil {
			return nil, err
		}
		m.cfg = cfg
		m.lastHash = hashBytes(b)
	}

	applyEnv(&m.cfg)
	return m, nil
}

func parse(b []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Update applies fn under the lock and persists the result. The mutation is
// rejected whole if the resulting config fails validation.
func (m *Manager) Update(fn func(*Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.cfg
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	m.cfg = next
	return m.save()
}

// save is called with m.mu held (or before the Manager escapes Load).
func (m *Manager) save() error {
	b, err := yaml.Marshal(m.cfg)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.WriteFile(m.path, b, 0o600); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	m.lastHash = hashBytes(b)
	return nil
}

// Watch reloads the file on external edits until ctx is done. Invalid
// content is logged and skipped; the last good config stays live. onChange
// runs after each accepted reload and may be nil.
func (m *Manager) Watch(ctx context.Context, log zerolog.Logger, onChange func(Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	// Watch the directory: editors commonly replace the file, which drops
	// a watch placed on the file itself.
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		w.Close()
		return fmt.Errorf("config watch: %w", err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(m.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if cfg, changed := m.reload(log); changed && onChange != nil {
					onChange(cfg)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()
	return nil
}

func (m *Manager) reload(log zerolog.Logger) (Config, bool) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		log.Warn().Err(err).Msg("config reload read failed")
		return Config{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if hashBytes(b) == m.lastHash {
		return Config{}, false
	}
	cfg, err := parse(b)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Warn().Err(err).Msg("ignoring invalid config edit")
		return Config{}, false
	}
	applyEnv(&cfg)
	m.cfg = cfg
	m.lastHash = hashBytes(b)
	log.Info().Str("path", m.path).Msg("config reloaded")
	return cfg, true
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
