package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/tablesync/internal/config"
	"github.com/JonMunkholm/tablesync/internal/logging"
	"github.com/JonMunkholm/tablesync/internal/storage"
)

// UploadTimeout is the maximum duration for an upload round trip.
var UploadTimeout = 5 * time.Minute

// Service ties the session registry, mirrors, endpoint resolver and mutation
// pipeline together. Every operation names its session explicitly.
type Service struct {
	store    storage.Store
	remote   Remote
	registry *Registry
	mirrors  *MirrorStore
	resolver *Resolver
	pipeline *Pipeline
	inflight *InFlight

	pageSize int
	padRows  bool
}

// NewService builds a service over store and remote. Call Start before use.
func NewService(store storage.Store, remote Remote, cfg *config.Config) *Service {
	inflight := NewInFlight()
	mirrors := NewMirrorStore(store)
	resolver := NewResolver(remote, cfg.Remote.BaseURL, cfg.Remote.EndpointFallbackBase())

	return &Service{
		store:    store,
		remote:   remote,
		mirrors:  mirrors,
		resolver: resolver,
		inflight: inflight,
		pipeline: NewPipeline(mirrors, resolver, remote, inflight,
			EditPolicy{RevertOnFailure: cfg.Editing.RevertOnFailure, CallTimeout: cfg.Remote.Timeout}),
		pageSize: cfg.View.PageSize,
		padRows:  cfg.View.PadRows,
	}
}

// Start loads the session registry and the mirror of every live session.
func (s *Service) Start(ctx context.Context) error {
	reg, err := LoadRegistry(ctx, s.store)
	if err != nil {
		return err
	}
	s.registry = reg

	orphans, err := s.mirrors.Prune(ctx, func(id string) bool {
		_, ok := reg.Get(id)
		return ok
	})
	if err != nil {
		return err
	}
	if len(orphans) > 0 {
		logging.FromContext(ctx).Warn("removed mirrors with no session", "sessions", orphans)
	}

	loaded := 0
	for _, sess := range reg.List() {
		m, ok, err := s.mirrors.Load(ctx, sess.ID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		s.resolver.Seed(m.Dataset.ID, m.Endpoint)
		loaded++
	}

	logging.FromContext(ctx).Info("sessions loaded",
		"sessions", len(reg.List()), "datasets", loaded)
	return nil
}

// session returns a live session or the reason it cannot be used.
func (s *Service) session(id string) (Session, error) {
	sess, ok := s.registry.Get(id)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if sess.Archived {
		return Session{}, ErrSessionArchived
	}
	return sess, nil
}

// CreateSession adds a session with no dataset and makes it active.
func (s *Service) CreateSession(ctx context.Context, name string) (Session, error) {
	sess, err := s.registry.Create(ctx, name)
	if err != nil {
		return Session{}, err
	}
	logging.FromContext(ctx).Info("session created", "session_id", sess.ID, "name", sess.Name)
	return sess, nil
}

// ListSessions returns summaries of the live sessions, oldest first.
// includeArchived adds archived sessions.
func (s *Service) ListSessions(includeArchived bool) []SessionSummary {
	sessions := s.registry.List()
	if includeArchived {
		sessions = s.registry.ListAll()
	}

	active, _ := s.registry.Active()
	out := make([]SessionSummary, len(sessions))
	for i, sess := range sessions {
		out[i] = SessionSummary{
			ID:        sess.ID,
			Name:      sess.Name,
			CreatedAt: sess.CreatedAt,
			Active:    sess.ID == active.ID,
			Archived:  sess.Archived,
		}
		if m, ok := s.mirrors.Current(sess.ID); ok {
			out[i].HasDataset = true
			out[i].DatasetID = m.Dataset.ID
		}
	}
	return out
}

// SetActive switches the active session. Other sessions are untouched.
func (s *Service) SetActive(ctx context.Context, id string) error {
	return s.registry.SetActive(ctx, id)
}

// ActiveSession returns the active session.
func (s *Service) ActiveSession() (Session, bool) {
	return s.registry.Active()
}

// ArchiveSession hides a session. Outstanding remote calls still land in its
// mirror, which stays in storage.
func (s *Service) ArchiveSession(ctx context.Context, id string) error {
	if err := s.registry.Archive(ctx, id); err != nil {
		return err
	}
	s.pipeline.Reset(id)
	logging.FromContext(ctx).Info("session archived", "session_id", id)
	return nil
}

// RestoreSession brings an archived session back with its persisted mirror.
func (s *Service) RestoreSession(ctx context.Context, id string) error {
	if err := s.registry.Restore(ctx, id); err != nil {
		return err
	}
	m, ok, err := s.mirrors.Load(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		s.resolver.Seed(m.Dataset.ID, m.Endpoint)
	}
	logging.FromContext(ctx).Info("session restored", "session_id", id)
	return nil
}

// Upload sends a CSV to the remote store and makes the returned dataset the
// session's mirror, replacing any previous one.
func (s *Service) Upload(ctx context.Context, sessionID, fileName string, r io.Reader) (*Mirror, Notification, error) {
	if _, err := s.session(sessionID); err != nil {
		return nil, Failure(err), err
	}

	fileName = strings.TrimSpace(fileName)
	if fileName == "" || r == nil {
		err := validationf("file", "no file provided")
		return nil, Failure(err), err
	}
	if !strings.EqualFold(filepath.Ext(fileName), ".csv") {
		err := validationf("file", "%s is not a .csv file", fileName)
		return nil, Failure(err), err
	}

	br := bufio.NewReader(r)
	if _, err := br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			err = validationf("file", "%s is empty", fileName)
		}
		return nil, Failure(err), err
	}

	ctx = logging.WithSession(ctx, sessionID)
	ctx, cancel := context.WithTimeout(ctx, UploadTimeout)
	defer cancel()

	done := s.inflight.Begin(sessionID)
	ds, err := s.remote.Upload(ctx, fileName, br)
	done()
	if err != nil {
		logging.FromContext(ctx).Warn("upload failed", "file", fileName, "error", err)
		return nil, Failure(err), fmt.Errorf("upload %s: %w", fileName, err)
	}

	m := NewMirror(*ds)
	if err := s.mirrors.SetCurrent(ctx, sessionID, m); err != nil {
		return nil, Failure(err), err
	}
	s.pipeline.Reset(sessionID)

	logging.FromContext(ctx).Info("dataset uploaded",
		"file", fileName, "dataset_id", ds.ID, "rows", len(ds.Rows), "columns", len(ds.Schema.Columns))

	cur, _ := s.mirrors.Current(sessionID)
	msg := ds.Message
	if msg == "" {
		msg = fmt.Sprintf("Uploaded %s", fileName)
	}
	return cur, Success(msg), nil
}

// Dataset returns a snapshot of the session's mirror.
func (s *Service) Dataset(sessionID string) (*Mirror, error) {
	if _, err := s.session(sessionID); err != nil {
		return nil, err
	}
	m, ok := s.mirrors.Current(sessionID)
	if !ok {
		return nil, ErrNoDataset
	}
	return m, nil
}

// View returns one page of the session's mirror. A zero page size or unset
// padding falls back to the configured defaults.
func (s *Service) View(sessionID string, req PageRequest) (PageResult, error) {
	m, err := s.Dataset(sessionID)
	if err != nil {
		return PageResult{}, err
	}
	if req.PageSize <= 0 {
		req.PageSize = s.pageSize
	}
	if req.Pad == nil {
		pad := s.padRows
		req.Pad = &pad
	}
	return Page(m, req), nil
}

// Endpoint resolves the session dataset's public API URL.
func (s *Service) Endpoint(ctx context.Context, sessionID string) (string, error) {
	if _, err := s.session(sessionID); err != nil {
		return "", err
	}
	return s.pipeline.Endpoint(logging.WithSession(ctx, sessionID), sessionID)
}

// EditStatus returns the session's pipeline state.
func (s *Service) EditStatus(sessionID string) (EditStatus, error) {
	if _, err := s.session(sessionID); err != nil {
		return EditStatus{}, err
	}
	return s.pipeline.Status(sessionID), nil
}

// BeginEdit opens the editing cursor on a cell.
func (s *Service) BeginEdit(sessionID string, rowIndex int, column string, currentValue any) error {
	if _, err := s.session(sessionID); err != nil {
		return err
	}
	return s.pipeline.BeginEdit(sessionID, rowIndex, column, currentValue)
}

// UpdateEdit changes the pending value.
func (s *Service) UpdateEdit(sessionID string, value any) error {
	if _, err := s.session(sessionID); err != nil {
		return err
	}
	return s.pipeline.UpdateCursor(sessionID, value)
}

// CancelEdit drops the open cursor.
func (s *Service) CancelEdit(sessionID string) error {
	if _, err := s.session(sessionID); err != nil {
		return err
	}
	s.pipeline.CancelEdit(sessionID)
	return nil
}

// CommitEdit confirms the open cursor.
func (s *Service) CommitEdit(ctx context.Context, sessionID string) (Notification, error) {
	if _, err := s.session(sessionID); err != nil {
		return Failure(err), err
	}
	return s.pipeline.CommitEdit(ctx, sessionID)
}

// EditCell opens, sets and commits a cursor in one step.
func (s *Service) EditCell(ctx context.Context, sessionID string, rowIndex int, column string, value any) (Notification, error) {
	if err := s.BeginEdit(sessionID, rowIndex, column, value); err != nil {
		return Failure(err), err
	}
	return s.pipeline.CommitEdit(ctx, sessionID)
}

// AddRow inserts a row.
func (s *Service) AddRow(ctx context.Context, sessionID string, values Row) (Notification, error) {
	if _, err := s.session(sessionID); err != nil {
		return Failure(err), err
	}
	return s.pipeline.AddRow(ctx, sessionID, values)
}

// DeleteRow deletes the row at rowIndex.
func (s *Service) DeleteRow(ctx context.Context, sessionID string, rowIndex int) (Notification, error) {
	if _, err := s.session(sessionID); err != nil {
		return Failure(err), err
	}
	return s.pipeline.DeleteRow(ctx, sessionID, rowIndex)
}

// DeleteRowByKey deletes the row with key.
func (s *Service) DeleteRowByKey(ctx context.Context, sessionID string, key RowKey) (Notification, error) {
	if _, err := s.session(sessionID); err != nil {
		return Failure(err), err
	}
	return s.pipeline.DeleteRowByKey(ctx, sessionID, key)
}

// InFlight returns outstanding remote calls.
func (s *Service) InFlight() InFlightStatus {
	return s.inflight.Status()
}

// WaitForIdle blocks until every outstanding remote call has returned.
func (s *Service) WaitForIdle(ctx context.Context) error {
	return s.inflight.WaitForDrain(ctx)
}
