package core

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/JonMunkholm/tablesync/internal/logging"
)

// EditPolicy controls what happens to an optimistic cell value when the
// remote update fails.
type EditPolicy struct {
	// RevertOnFailure restores the cell's pre-edit value. When false the
	// optimistic value stays until a later reconciliation overwrites it.
	RevertOnFailure bool

	// CallTimeout bounds a mutation once it is detached from the caller.
	// Zero leaves only the remote client's own timeout.
	CallTimeout time.Duration
}

// EditStatus is a session's pipeline state.
type EditStatus struct {
	State     EditState      `json:"state"`
	Cursor    *EditingCursor `json:"cursor,omitempty"`
	LastError string         `json:"lastError,omitempty"`
	InFlight  int            `json:"inFlight"`
}

type editSlot struct {
	state   EditState
	cursor  *EditingCursor
	lastErr error
}

// Pipeline applies edits, inserts and deletes to a session's mirror and to
// the remote store.
//
// Calls are not serialized: each remote call runs as soon as it is issued and
// whichever response lands last defines the row sequence. The mirror itself
// is only touched under MirrorStore's lock.
type Pipeline struct {
	mirrors  *MirrorStore
	resolver *Resolver
	remote   Remote
	inflight *InFlight
	policy   EditPolicy

	mu    sync.Mutex
	slots map[string]*editSlot
}

// NewPipeline wires a pipeline. inflight may be shared with other components.
func NewPipeline(mirrors *MirrorStore, resolver *Resolver, remote Remote, inflight *InFlight, policy EditPolicy) *Pipeline {
	if inflight == nil {
		inflight = NewInFlight()
	}
	return &Pipeline{
		mirrors:  mirrors,
		resolver: resolver,
		remote:   remote,
		inflight: inflight,
		policy:   policy,
		slots:    make(map[string]*editSlot),
	}
}

func (p *Pipeline) slotLocked(sessionID string) *editSlot {
	s, ok := p.slots[sessionID]
	if !ok {
		s = &editSlot{state: StateIdle}
		p.slots[sessionID] = s
	}
	return s
}

// Status reports the session's state and open cursor.
func (p *Pipeline) Status(sessionID string) EditStatus {
	p.mu.Lock()
	s := p.slotLocked(sessionID)
	st := EditStatus{State: s.state}
	if s.cursor != nil {
		c := *s.cursor
		st.Cursor = &c
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	p.mu.Unlock()

	st.InFlight = p.inflight.ActiveFor(sessionID)
	return st
}

// Reset clears any cursor and error for the session.
func (p *Pipeline) Reset(sessionID string) {
	p.mu.Lock()
	delete(p.slots, sessionID)
	p.mu.Unlock()
}

// BeginEdit opens the cursor on one cell, replacing any cursor already open.
func (p *Pipeline) BeginEdit(sessionID string, rowIndex int, column string, currentValue any) error {
	m, ok := p.mirrors.Current(sessionID)
	if !ok {
		return ErrNoDataset
	}
	key, ok := m.KeyAt(rowIndex)
	if !ok {
		return validationf("row", "row %d out of range (0-%d)", rowIndex, m.Len()-1)
	}
	if !m.Dataset.Schema.HasColumn(column) {
		return validationf("column", "unknown column %q", column)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.slotLocked(sessionID)
	s.cursor = &EditingCursor{RowKey: key, RowIndex: rowIndex, Column: column, Value: currentValue}
	s.state = StateEditing
	s.lastErr = nil
	return nil
}

// UpdateCursor changes the pending value of the open cursor.
func (p *Pipeline) UpdateCursor(sessionID string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.slotLocked(sessionID)
	if s.cursor == nil {
		return ErrNoOpenEdit
	}
	s.cursor.Value = value
	return nil
}

// CancelEdit drops the open cursor.
func (p *Pipeline) CancelEdit(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.slotLocked(sessionID)
	s.cursor = nil
	if s.state == StateEditing {
		s.state = StateIdle
	}
}

// CommitEdit applies the open cursor to the mirror right away, then sends it
// to the remote store. On success the mirror's rows are replaced by the
// store's canonical rows and persisted.
func (p *Pipeline) CommitEdit(ctx context.Context, sessionID string) (Notification, error) {
	p.mu.Lock()
	s := p.slotLocked(sessionID)
	if s.cursor == nil {
		p.mu.Unlock()
		return Failure(ErrNoOpenEdit), ErrNoOpenEdit
	}
	cursor := *s.cursor
	s.cursor = nil
	s.state = StateSaving
	p.mu.Unlock()

	ctx = logging.WithFields(ctx, "session_id", sessionID, "column", cursor.Column)
	ctx, cancel := p.detach(ctx)
	defer cancel()
	logger := logging.FromContext(ctx)

	var (
		rowIndex = -1
		prev     any
		hadPrev  bool
	)
	err := p.mirrors.Apply(sessionID, func(m *Mirror) error {
		rowIndex = m.IndexOf(cursor.RowKey)
		if rowIndex < 0 {
			return validationf("row", "row is no longer in the table")
		}
		row := m.Dataset.Rows[rowIndex]
		prev, hadPrev = row[cursor.Column]
		row[cursor.Column] = cursor.Value
		return nil
	})
	if err != nil {
		return p.fail(sessionID, err)
	}

	apiURL, err := p.Endpoint(ctx, sessionID)
	if err != nil {
		return p.fail(sessionID, err)
	}

	done := p.inflight.Begin(sessionID)
	rows, err := p.remote.UpdateCell(ctx, apiURL, rowIndex, cursor.Column, cursor.Value)
	done()

	if err != nil {
		logger.Warn("cell update failed", "row_index", rowIndex, "error", err)
		if p.policy.RevertOnFailure {
			p.revertCell(sessionID, cursor, prev, hadPrev)
		}
		return p.fail(sessionID, err)
	}

	if _, err := p.mirrors.ApplyAndSave(ctx, sessionID, func(m *Mirror) error {
		m.ReplaceRows(rows)
		return nil
	}); err != nil {
		return p.fail(sessionID, err)
	}

	logger.Debug("cell reconciled", "row_index", rowIndex, "rows", len(rows))
	p.settle(sessionID)
	return Success("Cell updated"), nil
}

// revertCell puts back the pre-edit value unless something else has changed
// the cell since the optimistic apply.
func (p *Pipeline) revertCell(sessionID string, cursor EditingCursor, prev any, hadPrev bool) {
	_ = p.mirrors.Apply(sessionID, func(m *Mirror) error {
		i := m.IndexOf(cursor.RowKey)
		if i < 0 {
			return nil
		}
		row := m.Dataset.Rows[i]
		if !reflect.DeepEqual(row[cursor.Column], cursor.Value) {
			return nil
		}
		if hadPrev {
			row[cursor.Column] = prev
		} else {
			delete(row, cursor.Column)
		}
		return nil
	})
}

// AddRow inserts a row through the remote store. The mirror only changes once
// the store answers with the canonical rows.
func (p *Pipeline) AddRow(ctx context.Context, sessionID string, values Row) (Notification, error) {
	m, ok := p.mirrors.Current(sessionID)
	if !ok {
		return Failure(ErrNoDataset), ErrNoDataset
	}
	if len(values) == 0 {
		err := validationf("row", "no values provided")
		return Failure(err), err
	}
	for col := range values {
		if !m.Dataset.Schema.HasColumn(col) {
			err := validationf("column", "unknown column %q", col)
			return Failure(err), err
		}
	}

	ctx = logging.WithFields(ctx, "session_id", sessionID)
	ctx, cancel := p.detach(ctx)
	defer cancel()

	apiURL, err := p.Endpoint(ctx, sessionID)
	if err != nil {
		return Failure(err), err
	}

	done := p.inflight.Begin(sessionID)
	rows, err := p.remote.AddRow(ctx, apiURL, values)
	done()

	if err != nil {
		logging.FromContext(ctx).Warn("add row failed", "error", err)
		return Failure(err), err
	}

	if _, err := p.mirrors.ApplyAndSave(ctx, sessionID, func(m *Mirror) error {
		m.ReplaceRows(rows)
		return nil
	}); err != nil {
		return Failure(err), err
	}

	logging.FromContext(ctx).Debug("row added", "rows", len(rows))
	return Success("Row added"), nil
}

// DeleteRow deletes the row currently at rowIndex.
func (p *Pipeline) DeleteRow(ctx context.Context, sessionID string, rowIndex int) (Notification, error) {
	m, ok := p.mirrors.Current(sessionID)
	if !ok {
		return Failure(ErrNoDataset), ErrNoDataset
	}
	key, ok := m.KeyAt(rowIndex)
	if !ok {
		err := validationf("row", "row %d out of range (0-%d)", rowIndex, m.Len()-1)
		return Failure(err), err
	}
	return p.DeleteRowByKey(ctx, sessionID, key)
}

// DeleteRowByKey removes the row locally right away and asks the store to
// delete it at the position the row held when the request was issued. Delete
// responses carry no rows, so nothing is reconciled; if the store's order has
// shifted in the meantime it deletes whichever row sits at that position.
func (p *Pipeline) DeleteRowByKey(ctx context.Context, sessionID string, key RowKey) (Notification, error) {
	ctx = logging.WithFields(ctx, "session_id", sessionID)
	ctx, cancel := p.detach(ctx)
	defer cancel()

	rowIndex := -1
	err := p.mirrors.Apply(sessionID, func(m *Mirror) error {
		rowIndex = m.IndexOf(key)
		if rowIndex < 0 {
			return validationf("row", "row is no longer in the table")
		}
		m.removeAt(rowIndex)
		return nil
	})
	if err != nil {
		return Failure(err), err
	}

	apiURL, err := p.Endpoint(ctx, sessionID)
	if err != nil {
		return Failure(err), err
	}

	done := p.inflight.Begin(sessionID)
	err = p.remote.DeleteRow(ctx, apiURL, rowIndex)
	done()

	if err != nil {
		logging.FromContext(ctx).Warn("delete row failed", "row_index", rowIndex, "error", err)
		return Failure(err), err
	}

	if _, err := p.mirrors.ApplyAndSave(ctx, sessionID, func(*Mirror) error { return nil }); err != nil {
		return Failure(err), err
	}

	logging.FromContext(ctx).Debug("row deleted", "row_index", rowIndex)
	return Success("Row deleted"), nil
}

// Endpoint resolves the session's dataset endpoint and records a freshly
// provisioned one in the mirror.
func (p *Pipeline) Endpoint(ctx context.Context, sessionID string) (string, error) {
	m, ok := p.mirrors.Current(sessionID)
	if !ok {
		return "", ErrNoDataset
	}
	if m.Endpoint != "" {
		p.resolver.Seed(m.Dataset.ID, m.Endpoint)
		return m.Endpoint, nil
	}

	done := p.inflight.Begin(sessionID)
	u, provisioned := p.resolver.resolve(ctx, m.Dataset.ID)
	done()

	if provisioned {
		if err := p.mirrors.PersistEndpoint(context.WithoutCancel(ctx), sessionID, u); err != nil {
			// The URL is cached either way; only the restart guarantee is lost.
			logging.FromContext(ctx).Warn("could not persist endpoint", "error", err)
		}
	}
	return u, nil
}

// detach keeps ctx's values but drops its cancellation: once issued, a
// remote call and the write-through that follows run to completion.
func (p *Pipeline) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if p.policy.CallTimeout > 0 {
		return context.WithTimeout(ctx, p.policy.CallTimeout)
	}
	return ctx, func() {}
}

func (p *Pipeline) fail(sessionID string, err error) (Notification, error) {
	p.mu.Lock()
	s := p.slotLocked(sessionID)
	if s.state == StateSaving {
		s.state = StateError
	}
	s.lastErr = err
	p.mu.Unlock()
	return Failure(err), fmt.Errorf("commit edit: %w", err)
}

func (p *Pipeline) settle(sessionID string) {
	p.mu.Lock()
	s := p.slotLocked(sessionID)
	if s.state == StateSaving {
		s.state = StateIdle
	}
	s.lastErr = nil
	p.mu.Unlock()
}
