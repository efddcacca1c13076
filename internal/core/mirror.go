package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/tablesync/internal/storage"
	"github.com/goccy/go-json"
)

// mirrorPrefix namespaces mirror records in the durable store.
const mirrorPrefix = "table-"

// mirrorKey is the durable key of a session's mirror.
func mirrorKey(sessionID string) string {
	return mirrorPrefix + sessionID
}

// MirrorStore holds the in-memory mirror of every loaded session and writes
// them through to durable storage.
//
// The in-memory copy may run ahead of the durable one: optimistic changes are
// applied with Apply and only reach storage through Save, SetCurrent or
// ApplyAndSave.
type MirrorStore struct {
	store storage.Store
	now   func() time.Time

	mu      sync.Mutex
	current map[string]*Mirror
}

// NewMirrorStore creates a MirrorStore over store.
func NewMirrorStore(store storage.Store) *MirrorStore {
	return &MirrorStore{
		store:   store,
		now:     time.Now,
		current: make(map[string]*Mirror),
	}
}

// Load reads the session's mirror from durable storage and makes it current.
// Returns false when nothing was ever saved for the session.
func (ms *MirrorStore) Load(ctx context.Context, sessionID string) (*Mirror, bool, error) {
	m, ok, err := ms.read(ctx, sessionID)
	if err != nil || !ok {
		return nil, ok, err
	}

	ms.mu.Lock()
	ms.current[sessionID] = m
	ms.mu.Unlock()

	return m.Clone(), true, nil
}

func (ms *MirrorStore) read(ctx context.Context, sessionID string) (*Mirror, bool, error) {
	data, err := ms.store.Get(ctx, mirrorKey(sessionID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load mirror %s: %w", sessionID, err)
	}

	var m Mirror
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("decode mirror %s: %w", sessionID, err)
	}
	// Records written before keys existed get keys on first load.
	if len(m.Keys) != len(m.Dataset.Rows) {
		m.Keys = NewMirror(m.Dataset).Keys
	}
	return &m, true, nil
}

// Save serializes the full mirror and overwrites the session's durable record.
func (ms *MirrorStore) Save(ctx context.Context, sessionID string, m *Mirror) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode mirror %s: %w", sessionID, err)
	}
	if err := ms.store.Put(ctx, mirrorKey(sessionID), data); err != nil {
		return fmt.Errorf("save mirror %s: %w", sessionID, err)
	}
	return nil
}

// SetCurrent replaces the in-memory mirror and writes it through.
func (ms *MirrorStore) SetCurrent(ctx context.Context, sessionID string, m *Mirror) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	next := m.Clone()
	if prev, ok := ms.current[sessionID]; ok && next.Version <= prev.Version {
		next.Version = prev.Version
	}
	return ms.commitLocked(ctx, sessionID, next)
}

// Current returns a copy of the in-memory mirror.
func (ms *MirrorStore) Current(sessionID string) (*Mirror, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	m, ok := ms.current[sessionID]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Apply runs fn against the in-memory mirror without persisting. fn's error
// aborts the change.
func (ms *MirrorStore) Apply(sessionID string, fn func(m *Mirror) error) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	m, ok := ms.current[sessionID]
	if !ok {
		return ErrNoDataset
	}
	next := m.Clone()
	if err := fn(next); err != nil {
		return err
	}
	ms.current[sessionID] = next
	return nil
}

// ApplyAndSave runs fn against the in-memory mirror and writes the result
// through. The in-memory mirror is left untouched if the write fails.
func (ms *MirrorStore) ApplyAndSave(ctx context.Context, sessionID string, fn func(m *Mirror) error) (*Mirror, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	m, ok := ms.current[sessionID]
	if !ok {
		return nil, ErrNoDataset
	}
	next := m.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := ms.commitLocked(ctx, sessionID, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// PersistEndpoint records a provisioned endpoint in both copies without
// persisting any unsaved row changes.
func (ms *MirrorStore) PersistEndpoint(ctx context.Context, sessionID, endpoint string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	durable, ok, err := ms.read(ctx, sessionID)
	if err != nil {
		return err
	}
	if ok {
		durable.Endpoint = endpoint
		if err := ms.Save(ctx, sessionID, durable); err != nil {
			return err
		}
	}
	if m, ok := ms.current[sessionID]; ok {
		m.Endpoint = endpoint
	}
	return nil
}

// Prune deletes durable mirrors whose session keep rejects and returns the
// session ids it removed.
func (ms *MirrorStore) Prune(ctx context.Context, keep func(sessionID string) bool) ([]string, error) {
	keys, err := ms.store.Keys(ctx, mirrorPrefix)
	if err != nil {
		return nil, fmt.Errorf("list mirrors: %w", err)
	}

	var removed []string
	for _, k := range keys {
		id := strings.TrimPrefix(k, mirrorPrefix)
		if keep(id) {
			continue
		}
		if err := ms.store.Delete(ctx, k); err != nil {
			return removed, fmt.Errorf("prune mirror %s: %w", id, err)
		}
		ms.mu.Lock()
		delete(ms.current, id)
		ms.mu.Unlock()
		removed = append(removed, id)
	}
	return removed, nil
}

func (ms *MirrorStore) commitLocked(ctx context.Context, sessionID string, next *Mirror) error {
	next.Version++
	next.SavedAt = ms.now().UTC()
	if err := ms.Save(ctx, sessionID, next); err != nil {
		return err
	}
	ms.current[sessionID] = next
	return nil
}
