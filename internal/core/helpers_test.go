package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/JonMunkholm/tablesync/internal/storage"
)

var errDiskFull = errors.New("disk full")

// flakyStore fails writes while failPuts is set.
type flakyStore struct {
	storage.Store
	failPuts atomic.Bool
	puts     atomic.Int32
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: storage.NewMemoryStore()}
}

func (s *flakyStore) Put(ctx context.Context, key string, value []byte) error {
	if s.failPuts.Load() {
		return errDiskFull
	}
	s.puts.Add(1)
	return s.Store.Put(ctx, key, value)
}

type cellCall struct {
	apiURL   string
	rowIndex int
	column   string
	value    any
}

// stubRemote keeps one dataset's rows and answers like the store would.
type stubRemote struct {
	mu sync.Mutex

	rows []Row

	generate      func(ctx context.Context, datasetID string) (string, error)
	generateCalls int

	updateErr error
	addErr    error
	deleteErr error

	updates []cellCall
	adds    []Row
	deletes []int

	// hold, when set, runs after the store has applied a call and before the
	// response is returned.
	hold func(op string)
}

var _ Remote = (*stubRemote)(nil)

func newStubRemote(rows []Row) *stubRemote {
	return &stubRemote{rows: cloneRows(rows)}
}

func (r *stubRemote) Upload(_ context.Context, fileName string, rd io.Reader) (*Dataset, error) {
	return nil, errors.New("stub: upload not supported")
}

func (r *stubRemote) GenerateAPIURL(ctx context.Context, datasetID string) (string, error) {
	r.mu.Lock()
	r.generateCalls++
	gen := r.generate
	r.mu.Unlock()

	if gen == nil {
		return "https://store.test/api/data/u/" + datasetID, nil
	}
	return gen(ctx, datasetID)
}

func (r *stubRemote) UpdateCell(ctx context.Context, apiURL string, rowIndex int, column string, value any) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.updates = append(r.updates, cellCall{apiURL, rowIndex, column, value})
	if r.updateErr != nil {
		r.mu.Unlock()
		return nil, r.updateErr
	}
	r.rows[rowIndex][column] = value
	out := cloneRows(r.rows)
	r.mu.Unlock()

	r.wait("update")
	return out, nil
}

func (r *stubRemote) AddRow(ctx context.Context, apiURL string, values Row) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.adds = append(r.adds, cloneRow(values))
	if r.addErr != nil {
		r.mu.Unlock()
		return nil, r.addErr
	}
	r.rows = append(r.rows, cloneRow(values))
	out := cloneRows(r.rows)
	r.mu.Unlock()

	r.wait("add")
	return out, nil
}

func (r *stubRemote) DeleteRow(ctx context.Context, apiURL string, rowIndex int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.deletes = append(r.deletes, rowIndex)
	if r.deleteErr != nil {
		r.mu.Unlock()
		return r.deleteErr
	}
	r.rows = append(r.rows[:rowIndex], r.rows[rowIndex+1:]...)
	r.mu.Unlock()

	r.wait("delete")
	return nil
}

func (r *stubRemote) wait(op string) {
	r.mu.Lock()
	hold := r.hold
	r.mu.Unlock()
	if hold != nil {
		hold(op)
	}
}

func (r *stubRemote) snapshot() []Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneRows(r.rows)
}

func (r *stubRemote) generateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generateCalls
}

func peopleDataset() Dataset {
	return Dataset{
		ID: "ds-people",
		Schema: Schema{
			Columns:  []string{"name", "age"},
			DTypes:   map[string]string{"name": "VARCHAR", "age": "VARCHAR"},
			RowCount: 3,
		},
		Rows: []Row{
			{"name": "ann", "age": "25"},
			{"name": "bob", "age": "30"},
			{"name": "cy", "age": "41"},
		},
	}
}

func lettersDataset() Dataset {
	return Dataset{
		ID:     "ds-letters",
		Schema: Schema{Columns: []string{"n"}, DTypes: map[string]string{"n": "VARCHAR"}, RowCount: 3},
		Rows:   []Row{{"n": "a"}, {"n": "b"}, {"n": "c"}},
	}
}

// newTestPipeline installs ds as session "s1" and returns a pipeline whose
// remote starts with the same rows.
func newTestPipeline(ds Dataset, policy EditPolicy) (*Pipeline, *MirrorStore, *stubRemote, *flakyStore) {
	store := newFlakyStore()
	mirrors := NewMirrorStore(store)
	if err := mirrors.SetCurrent(context.Background(), "s1", NewMirror(ds)); err != nil {
		panic(err)
	}
	remote := newStubRemote(ds.Rows)
	resolver := NewResolver(remote, "https://store.test", "")
	return NewPipeline(mirrors, resolver, remote, NewInFlight(), policy), mirrors, remote, store
}
