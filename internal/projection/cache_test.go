package projection

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hanpama/protoproject/internal/eventbus"
	"github.com/hanpama/protoproject/internal/events"
	"github.com/hanpama/protoproject/internal/reqid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	compiles atomic.Int32
	hits     atomic.Int32
	finished atomic.Int32
	failed   atomic.Int32
	scopes   sync.Map // scope -> entries at finish
}

func recordEvents(t *testing.T) *recorder {
	t.Helper()
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })

	r := &recorder{}
	eventbus.On(func(_ context.Context, e events.CompileStart) { r.compiles.Add(1) })
	eventbus.On(func(_ context.Context, e events.CacheHit) { r.hits.Add(1) })
	eventbus.On(func(_ context.Context, e events.CompileFinish) {
		r.finished.Add(1)
		if e.Err != nil {
			r.failed.Add(1)
		}
	})
	eventbus.On(func(_ context.Context, e events.ScopeFinish) { r.scopes.Store(e.Scope, e.Entries) })
	return r
}

func TestCacheReusesProjector(t *testing.T) {
	f := newFixture(t)
	rec := recordEvents(t)
	ctx := context.Background()
	cache := f.engine.NewCache(ctx, nil)

	sel := f.selection(t, `{ node(id: "1") { id ... on Book { title } } }`, "node")
	first, err := cache.GetOrCompile(ctx, sel, "")
	require.NoError(t, err)
	again, err := cache.GetOrCompile(ctx, sel, "Node")
	require.NoError(t, err)
	require.Same(t, first, again)

	book, err := cache.GetOrCompile(ctx, sel, "Book")
	require.NoError(t, err)
	assert.NotSame(t, first, book)
	assert.Equal(t, "Book { id title }", book.Tree().String())

	// Same text, different document: keyed by selection identity.
	other := f.selection(t, `{ node(id: "1") { id ... on Book { title } } }`, "node")
	third, err := cache.GetOrCompile(ctx, other, "")
	require.NoError(t, err)
	assert.NotSame(t, first, third)

	assert.Equal(t, 3, cache.Len())
	assert.EqualValues(t, 3, rec.compiles.Load())
	assert.EqualValues(t, 1, rec.hits.Load())
}

func TestCacheConcurrentCompileOnce(t *testing.T) {
	f := newFixture(t)
	rec := recordEvents(t)
	ctx := context.Background()
	cache := f.engine.NewCache(ctx, nil)
	sel := f.selection(t, `{ books { nodes { title } edges { node { isbn } } } }`, "books")

	results := make([]*Projector, 32)
	errs := make([]error, len(results))
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = cache.GetOrCompile(ctx, sel, "")
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Same(t, results[0], results[i])
	}
	assert.EqualValues(t, 1, rec.compiles.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	f := newFixture(t)
	rec := recordEvents(t)
	cache := f.engine.NewCache(context.Background(), nil)
	sel := f.selection(t, `{ author(id: "1") { name } }`, "author")

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.GetOrCompile(canceled, sel, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, cache.Len())

	p, err := cache.GetOrCompile(context.Background(), sel, "")
	require.NoError(t, err)
	assert.Equal(t, "Author { name }", p.Tree().String())
	assert.EqualValues(t, 2, rec.finished.Load())
	assert.EqualValues(t, 1, rec.failed.Load())
}

func TestCacheWaiterOutlivesCanceledCompilation(t *testing.T) {
	f := newFixture(t)
	rec := recordEvents(t)
	cache := f.engine.NewCache(context.Background(), nil)
	sel := f.selection(t, `{ author(id: "1") { name } }`, "author")

	type result struct {
		p   *Projector
		err error
	}
	waiter := make(chan result, 1)
	first, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	eventbus.On(func(_ context.Context, e events.CompileStart) {
		once.Do(func() {
			cancel()
			go func() {
				p, err := cache.GetOrCompile(context.Background(), sel, "")
				waiter <- result{p: p, err: err}
			}()
			// Keep the canceled compilation in flight while the second caller joins it.
			time.Sleep(20 * time.Millisecond)
		})
	})

	_, err := cache.GetOrCompile(first, sel, "")
	require.ErrorIs(t, err, context.Canceled)

	got := <-waiter
	require.NoError(t, got.err)
	assert.Equal(t, "Author { name }", got.p.Tree().String())
	assert.Equal(t, 1, cache.Len())
	assert.EqualValues(t, 2, rec.compiles.Load())
	assert.EqualValues(t, 1, rec.failed.Load())
}

func TestCacheDoesNotStoreUnsupportedProjections(t *testing.T) {
	f := newFixture(t)
	rec := recordEvents(t)
	ctx := context.Background()
	cache := f.engine.NewCache(ctx, nil)
	sel := f.selection(t, `{ author(id: "1") { trophies { title } } }`, "author")

	for i := 0; i < 2; i++ {
		p, err := cache.GetOrCompile(ctx, sel, "")
		require.ErrorIs(t, err, ErrNotSupported)
		assert.Nil(t, p)
		assert.Equal(t, 0, cache.Len())
	}
	assert.EqualValues(t, 2, rec.compiles.Load())
	assert.EqualValues(t, 2, rec.failed.Load())
	assert.EqualValues(t, 0, rec.hits.Load())
}

func TestCacheScope(t *testing.T) {
	f := newFixture(t)
	rec := recordEvents(t)

	ctx, id := reqid.NewContext(context.Background())
	cache := f.engine.NewCache(ctx, map[string]any{"on": false})
	assert.Equal(t, id, cache.Scope())

	sel := f.selection(t, `query ($on: Boolean!) { author(id: "1") { name country @include(if: $on) { code } } }`, "author")
	p, err := cache.GetOrCompile(ctx, sel, "")
	require.NoError(t, err)
	assert.Equal(t, "Author { name }", p.Tree().String())

	cache.Close(ctx)
	assert.Equal(t, 0, cache.Len())
	entries, ok := rec.scopes.Load(id)
	require.True(t, ok)
	assert.Equal(t, 1, entries)
}

func TestStaticCache(t *testing.T) {
	f := newFixture(t)
	cache := f.engine.StaticCache()
	require.Same(t, cache, f.engine.StaticCache())
	assert.Equal(t, int64(0), cache.Scope())

	sel := f.selection(t, `query ($on: Boolean!) { author(id: "1") { name country @include(if: $on) { code } } }`, "author")
	p, err := cache.GetOrCompile(context.Background(), sel, "")
	require.NoError(t, err)
	assert.Equal(t, "Author { name country { Country { code } } }", p.Tree().String())
}
