package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/tablesync/internal/storage"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// registryKey is the durable key of the session list.
const registryKey = "sessions"

type registryRecord struct {
	Sessions []Session `json:"sessions"`
	Active   string    `json:"active,omitempty"`
}

// Registry tracks the user's sessions and which one is active.
// Every change is written through before it becomes visible.
type Registry struct {
	store storage.Store
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[string]Session
	active   string
	latest   time.Time
}

// LoadRegistry reads the persisted session list. A missing record yields an
// empty registry.
func LoadRegistry(ctx context.Context, store storage.Store) (*Registry, error) {
	r := &Registry{
		store:    store,
		now:      time.Now,
		sessions: make(map[string]Session),
	}

	data, err := store.Get(ctx, registryKey)
	if errors.Is(err, storage.ErrNotFound) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	var rec registryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	for _, s := range rec.Sessions {
		r.sessions[s.ID] = s
		if s.CreatedAt.After(r.latest) {
			r.latest = s.CreatedAt
		}
	}
	if s, ok := r.sessions[rec.Active]; ok && !s.Archived {
		r.active = rec.Active
	}
	return r, nil
}

// Create adds a session and makes it active. A blank name becomes "Table N".
func (r *Registry) Create(ctx context.Context, name string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Table %d", len(r.sessions)+1)
	}

	// CreatedAt doubles as the listing order, so it must be strictly increasing.
	createdAt := r.now().UTC()
	if !createdAt.After(r.latest) {
		createdAt = r.latest.Add(time.Nanosecond)
	}

	s := Session{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: createdAt,
	}

	prevActive, prevLatest := r.active, r.latest
	r.latest = createdAt
	r.sessions[s.ID] = s
	r.active = s.ID
	if err := r.persistLocked(ctx); err != nil {
		delete(r.sessions, s.ID)
		r.active, r.latest = prevActive, prevLatest
		return Session{}, err
	}
	return s, nil
}

// Get returns a session by id, archived or not.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// List returns the sessions that are not archived, oldest first.
func (r *Registry) List() []Session {
	return r.list(false)
}

// ListAll returns every session including archived ones, oldest first.
func (r *Registry) ListAll() []Session {
	return r.list(true)
}

func (r *Registry) list(includeArchived bool) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Archived && !includeArchived {
			continue
		}
		result = append(result, s)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// SetActive makes id the active session.
func (r *Registry) SetActive(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Archived {
		return ErrSessionArchived
	}
	if r.active == id {
		return nil
	}

	prev := r.active
	r.active = id
	if err := r.persistLocked(ctx); err != nil {
		r.active = prev
		return err
	}
	return nil
}

// Active returns the active session.
func (r *Registry) Active() (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == "" {
		return Session{}, false
	}
	s, ok := r.sessions[r.active]
	return s, ok
}

// Archive hides a session from List. Its mirror stays in storage. If it was
// active, the newest remaining session becomes active.
func (r *Registry) Archive(ctx context.Context, id string) error {
	return r.setArchived(ctx, id, true)
}

// Restore brings an archived session back.
func (r *Registry) Restore(ctx context.Context, id string) error {
	return r.setArchived(ctx, id, false)
}

func (r *Registry) setArchived(ctx context.Context, id string, archived bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Archived == archived {
		return nil
	}

	prevActive := r.active
	prev := s
	s.Archived = archived
	r.sessions[id] = s

	switch {
	case archived && r.active == id:
		r.active = r.newestLiveLocked()
	case !archived && r.active == "":
		r.active = id
	}

	if err := r.persistLocked(ctx); err != nil {
		r.sessions[id] = prev
		r.active = prevActive
		return err
	}
	return nil
}

func (r *Registry) newestLiveLocked() string {
	var best string
	var bestAt time.Time
	for id, s := range r.sessions {
		if s.Archived {
			continue
		}
		if best == "" || s.CreatedAt.After(bestAt) || (s.CreatedAt.Equal(bestAt) && id > best) {
			best, bestAt = id, s.CreatedAt
		}
	}
	return best
}

func (r *Registry) persistLocked(ctx context.Context) error {
	rec := registryRecord{Active: r.active, Sessions: make([]Session, 0, len(r.sessions))}
	for _, s := range r.sessions {
		rec.Sessions = append(rec.Sessions, s)
	}
	sort.Slice(rec.Sessions, func(i, j int) bool {
		return rec.Sessions[i].ID < rec.Sessions[j].ID
	})

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := r.store.Put(ctx, registryKey, data); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}
