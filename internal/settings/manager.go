package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/pitchtrace/internal/store"
	"github.com/MrWong99/pitchtrace/internal/tracker"
)

// KV is the persistence the [Manager] needs. *store.Store satisfies it.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Manager owns the live settings and persists them through a [KV].
// A nil KV keeps settings in memory only. It is safe for concurrent use.
type Manager struct {
	kv KV

	mu  sync.RWMutex
	cur Settings
}

// NewManager returns a Manager holding [Defaults].
func NewManager(kv KV) *Manager {
	return &Manager{kv: kv, cur: Defaults()}
}

// Load replaces the live settings with the stored record. A missing record
// leaves the defaults in place; other read errors are returned and also leave
// the defaults.
func (m *Manager) Load(ctx context.Context) (Settings, error) {
	s := Defaults()
	var err error
	if m.kv != nil {
		var data []byte
		data, err = m.kv.Get(ctx, Key)
		switch {
		case errors.Is(err, store.ErrNotFound):
			slog.Info("settings: no stored record, using defaults")
			err = nil
		case err != nil:
			err = fmt.Errorf("settings: load: %w", err)
		default:
			s = Decode(data)
		}
	}

	m.mu.Lock()
	m.cur = s
	m.mu.Unlock()
	return s, err
}

// Current returns a copy of the live settings.
func (m *Manager) Current() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Policy returns the acceptance policy derived from the live settings.
func (m *Manager) Policy() tracker.Policy {
	return m.Current().Policy()
}

// Update normalises s, makes it live, and persists it. The live value is
// updated even when persisting fails.
func (m *Manager) Update(ctx context.Context, s Settings) (Settings, error) {
	s = s.Normalize()
	m.mu.Lock()
	m.cur = s
	m.mu.Unlock()
	return s, m.save(ctx, s)
}

// Save persists the live settings.
func (m *Manager) Save(ctx context.Context) error {
	return m.save(ctx, m.Current())
}

func (m *Manager) save(ctx context.Context, s Settings) error {
	if m.kv == nil {
		return nil
	}
	data, err := s.Encode()
	if err != nil {
		return err
	}
	if err := m.kv.Put(ctx, Key, data); err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}
	return nil
}
