package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hanpama/protoproject/internal/eventbus"
	"github.com/hanpama/protoproject/internal/events"
	"github.com/hanpama/protoproject/internal/language"
	"golang.org/x/sync/singleflight"
)

type cacheKey struct {
	sel      *language.Field
	rootType string
}

// Cache memoizes projectors per selection node and root type for one
// execution scope. Selections are keyed by pointer identity, so a cache must
// not outlive the query document it was filled from.
type Cache struct {
	engine *Engine
	vars   map[string]any
	scope  int64

	entries sync.Map // cacheKey -> *Projector
	size    atomic.Int64
	group   singleflight.Group
}

func newCache(e *Engine, scope int64, vars map[string]any) *Cache {
	return &Cache{engine: e, vars: vars, scope: scope}
}

// Scope returns the identifier of the execution scope the cache belongs to.
func (c *Cache) Scope() int64 { return c.scope }

// GetOrCompile returns the projector for sel and rootType, building and
// compiling it on first use. Concurrent callers for the same key share one
// compilation and each stops waiting when its own ctx is done. Failures are
// not stored; a caller whose ctx is still live retries when the shared
// compilation was canceled by another caller's ctx. An empty rootType
// selects the type declared by sel.
func (c *Cache) GetOrCompile(ctx context.Context, sel *language.Field, rootType string) (*Projector, error) {
	if sel == nil {
		return nil, &BuildError{Err: ErrEmptySelection}
	}
	if rootType == "" {
		rootType = c.engine.RootType(sel)
	}
	key := cacheKey{sel: sel, rootType: rootType}
	field := fieldName(sel)
	if v, ok := c.entries.Load(key); ok {
		eventbus.Publish(ctx, events.CacheHit{Scope: c.scope, Field: field, RootType: rootType})
		return v.(*Projector), nil
	}

	flight := fmt.Sprintf("%p\x00%s", sel, rootType)
	for {
		ch := c.group.DoChan(flight, func() (any, error) {
			return c.compile(ctx, key, field)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err == nil {
				return res.Val.(*Projector), nil
			}
			if res.Shared && ctx.Err() == nil && isContextErr(res.Err) {
				continue
			}
			return nil, res.Err
		}
	}
}

func (c *Cache) compile(ctx context.Context, key cacheKey, field string) (*Projector, error) {
	if v, ok := c.entries.Load(key); ok {
		return v.(*Projector), nil
	}
	start := time.Now()
	eventbus.Publish(ctx, events.CompileStart{Scope: c.scope, Field: field, RootType: key.rootType})
	p, err := c.engine.Projector(ctx, key.sel, key.rootType, c.vars)
	finish := events.CompileFinish{Scope: c.scope, Field: field, RootType: key.rootType, Err: err}
	if p != nil {
		finish.Types = p.Tree().Len()
	}
	finish.Duration = time.Since(start)
	eventbus.Publish(ctx, finish)
	if err != nil {
		return nil, err
	}
	c.entries.Store(key, p)
	c.size.Add(1)
	return p, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Len returns the number of cached projectors.
func (c *Cache) Len() int { return int(c.size.Load()) }

// Close discards every entry and ends the scope.
func (c *Cache) Close(ctx context.Context) {
	eventbus.Publish(ctx, events.ScopeFinish{Scope: c.scope, Entries: c.Len()})
	c.entries.Clear()
	c.size.Store(0)
}

func fieldName(sel *language.Field) string {
	if sel.ObjectDefinition != nil {
		return sel.ObjectDefinition.Name + "." + sel.Name
	}
	return sel.Name
}
