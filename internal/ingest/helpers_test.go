package ingest

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragingest/internal/notify"
	"github.com/Aman-CERP/ragingest/internal/objectstore"
	"github.com/Aman-CERP/ragingest/internal/registry"
)

const testBucket = "uploads"

type sent struct {
	Target string
	Text   string
	Level  notify.Level
}

// recordingNotifier captures notifications in order.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingNotifier) Notify(_ context.Context, target, _ string, text string, level notify.Level) {
	if target == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{Target: target, Text: text, Level: level})
}

func (r *recordingNotifier) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, s := range r.sent {
		out[i] = s.Text
	}
	return out
}

func (r *recordingNotifier) levels() []notify.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Level, len(r.sent))
	for i, s := range r.sent {
		out[i] = s.Level
	}
	return out
}

// staticResolver maps owners to connection ids.
type staticResolver struct {
	ids map[string]string
	err error
}

func (s staticResolver) ConnectionID(_ context.Context, owner string) (string, error) {
	return s.ids[owner], s.err
}

// fakeIndexer keeps rows per owner and source in memory.
type fakeIndexer struct {
	mu        sync.Mutex
	rows      map[string]map[string]int
	indexed   []Document
	indexErr  error
	deleteErr error
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{rows: make(map[string]map[string]int)}
}

func (f *fakeIndexer) IndexDocument(_ context.Context, owner string, doc Document) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, doc)
	if f.indexErr != nil {
		return 0, f.indexErr
	}
	if f.rows[owner] == nil {
		f.rows[owner] = make(map[string]int)
	}
	f.rows[owner][doc.Source] = 3
	return 3, nil
}

func (f *fakeIndexer) DeleteSource(_ context.Context, owner, source string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	n := f.rows[owner][source]
	delete(f.rows[owner], source)
	return n, nil
}

func (f *fakeIndexer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexed)
}

func (f *fakeIndexer) rowCount(owner, source string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[owner][source]
}

// faultyRegistry overrides selected registry operations.
type faultyRegistry struct {
	registry.Registry
	existsErr error
	claimErr  error
	deleteErr error
	lookupErr error
	// loseClaim reports the claim as taken by someone else.
	loseClaim bool
}

func (f *faultyRegistry) Exists(ctx context.Context, fp string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.Registry.Exists(ctx, fp)
}

func (f *faultyRegistry) Claim(ctx context.Context, e registry.Entry) (bool, error) {
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if f.loseClaim {
		return false, nil
	}
	return f.Registry.Claim(ctx, e)
}

func (f *faultyRegistry) Delete(ctx context.Context, fp, path string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Registry.Delete(ctx, fp, path)
}

func (f *faultyRegistry) LookupFingerprintByPath(ctx context.Context, path string) (string, bool, error) {
	if f.lookupErr != nil {
		return "", false, f.lookupErr
	}
	return f.Registry.LookupFingerprintByPath(ctx, path)
}

var errBoom = stderrors.New("boom")

type harness struct {
	objects  *objectstore.FileStore
	registry *faultyRegistry
	indexer  *fakeIndexer
	notifier *recordingNotifier
	alerts   []error
	cfg      Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	objects, err := objectstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		objects:  objects,
		registry: &faultyRegistry{Registry: registry.NewMemoryRegistry()},
		indexer:  newFakeIndexer(),
		notifier: &recordingNotifier{},
	}
	h.cfg = Config{
		Objects:  objects,
		Registry: h.registry,
		Indexer:  h.indexer,
		Notifier: h.notifier,
		Resolver: staticResolver{ids: map[string]string{"userA": "conn-A"}},
		Alert:    func(_ context.Context, err error) { h.alerts = append(h.alerts, err) },
	}
	return h
}

func (h *harness) put(t *testing.T, key string, content string) {
	t.Helper()
	require.NoError(t, h.objects.Put(testBucket, key, []byte(content)))
}
