package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/amirphl/zeta-trader/internal/ledger"
	"github.com/amirphl/zeta-trader/internal/position"
)

// SnapshotKey is the key used when a snapshot is stored in a key/value
// backend.
const SnapshotKey = "bot_state"

// Snapshot is the persisted form of the trading state.
type Snapshot struct {
	SavedAt   time.Time              `json:"saved_at"`
	Balance   ledger.VirtualBalance  `json:"virtual_balance"`
	Positions []*position.Position   `json:"positions"`
	Safety    map[string]SafetyState `json:"safety"`
}

// Snapshot copies all open positions and safety states.
func (r *Registry) Snapshot() Snapshot {
	positions := r.OpenPositions()

	r.mu.RLock()
	defer r.mu.RUnlock()
	safety := make(map[string]SafetyState, len(r.safety))
	for sym, s := range r.safety {
		safety[sym] = s.Clone()
	}
	return Snapshot{Positions: positions, Safety: safety}
}

// Restore loads positions and safety states from snap. It must run before
// any worker touches the registry.
func (r *Registry) Restore(snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sym, s := range snap.Safety {
		r.registerLocked(sym)
		restored := s.Clone()
		if restored.Mode == "" {
			restored.Mode = ModeActive
		}
		r.safety[sym] = &restored
	}
	for _, p := range snap.Positions {
		if p == nil {
			continue
		}
		r.registerLocked(p.Symbol)
		sl := r.slots[p.Symbol]
		if sl.status == StatusOpen {
			return fmt.Errorf("failed to restore position on %s: %w", p.Symbol, ErrPositionExists)
		}
		sl.status = StatusOpen
		sl.pos = p.Clone()
	}
	return nil
}

// SnapshotStore persists snapshots. LoadSnapshot returns nil, nil when no
// snapshot exists yet.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// KV is a key/value backend such as a database state table.
type KV interface {
	SaveState(ctx context.Context, key string, value []byte) error
	LoadState(ctx context.Context, key string) ([]byte, error)
}

// KVStore stores snapshots as JSON under a single key.
type KVStore struct {
	kv  KV
	key string
}

// NewKVStore returns a SnapshotStore backed by kv.
func NewKVStore(kv KV) *KVStore {
	return &KVStore{kv: kv, key: SnapshotKey}
}

func (s *KVStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.kv.SaveState(ctx, s.key, raw); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *KVStore) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	raw, err := s.kv.LoadState(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// FileStore writes snapshots to a JSON file, replacing it atomically.
type FileStore struct {
	path string
}

// NewFileStore returns a SnapshotStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) SaveSnapshot(_ context.Context, snap Snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) LoadSnapshot(_ context.Context) (*Snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
