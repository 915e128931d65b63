package projection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hanpama/protoproject/internal/eventbus"
	"github.com/hanpama/protoproject/internal/events"
	"github.com/hanpama/protoproject/internal/language"
	"github.com/hanpama/protoproject/internal/reqid"
	"github.com/hanpama/protoproject/internal/schema"
)

// Engine ties a schema to the source messages describing its objects. It
// owns the sealed requirement registry and is safe for concurrent use.
type Engine struct {
	schema *schema.Schema
	acc    Accessors
	reqs   *Requirements
	static *Cache
}

type extraRequirement struct {
	id     FieldIdentity
	source string
}

type engineOptions struct {
	requirements []extraRequirement
}

// Option configures an Engine.
type Option func(*engineOptions)

// WithRequirement declares that resolving typ.field reads source from the
// parent value, in addition to what the schema declares. It takes precedence
// over a requirement the schema declares for the same field.
func WithRequirement(typ, field, source string) Option {
	return func(o *engineOptions) {
		o.requirements = append(o.requirements, extraRequirement{
			id:     FieldIdentity{Type: typ, Field: field},
			source: source,
		})
	}
}

// NewEngine registers the requirements of every object field and seals the
// registry. Any invalid requirement fails construction.
func NewEngine(s *schema.Schema, acc Accessors, opts ...Option) (*Engine, error) {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	reqs := NewRequirements(s, acc)
	for _, r := range o.requirements {
		if err := reqs.Register(r.id, r.source, r.id.Type); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(s.Types))
	for name, t := range s.Types {
		if t.Kind == schema.TypeKindObject && !s.IsRootType(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		for _, f := range s.Types[name].Fields {
			if f.Requires == "" {
				continue
			}
			if err := reqs.Register(FieldIdentity{Type: name, Field: f.Name}, f.Requires, name); err != nil {
				return nil, err
			}
		}
	}
	reqs.Seal()

	e := &Engine{schema: s, acc: acc, reqs: reqs}
	e.static = newCache(e, 0, nil)
	return e, nil
}

// Schema returns the engine's schema.
func (e *Engine) Schema() *schema.Schema { return e.schema }

// Requirements returns the sealed requirement registry.
func (e *Engine) Requirements() *Requirements { return e.reqs }

// RootType returns the type of the values projected at sel: the declared
// type, or the element type when sel returns a connection or segment.
func (e *Engine) RootType(sel *language.Field) string {
	if sel == nil || sel.Definition == nil {
		return ""
	}
	t := e.schema.Type(sel.Definition.Type.Name())
	if t == nil {
		return ""
	}
	switch t.Wrapper {
	case schema.WrapperSegment:
		if f := t.Field("items"); f != nil {
			return f.Type.GetNamedType()
		}
	case schema.WrapperConnection:
		if f := t.Field("nodes"); f != nil {
			return f.Type.GetNamedType()
		}
		if f := t.Field("edges"); f != nil {
			if edge := e.schema.Type(f.Type.GetNamedType()); edge != nil {
				if node := edge.Field("node"); node != nil {
					return node.Type.GetNamedType()
				}
			}
		}
	}
	return t.Name
}

// Build returns the sealed projection tree for the selection set of sel.
// vars resolves @skip and @include conditions.
func (e *Engine) Build(ctx context.Context, sel *language.Field, rootType string, vars map[string]any) (*TypeContainer, error) {
	if rootType == "" {
		rootType = e.RootType(sel)
	}
	b := &builder{ctx: ctx, schema: e.schema, acc: e.acc, reqs: e.reqs, vars: vars}
	return b.build(sel, rootType)
}

// Compile turns a sealed tree into a projector for values of rootType.
func (e *Engine) Compile(tree *TypeContainer, rootType string) (*Projector, error) {
	return Compile(tree, rootType, e.acc)
}

// Projector builds and compiles the projector for sel without caching it.
func (e *Engine) Projector(ctx context.Context, sel *language.Field, rootType string, vars map[string]any) (*Projector, error) {
	if rootType == "" {
		rootType = e.RootType(sel)
	}
	tree, err := e.Build(ctx, sel, rootType, vars)
	if err != nil {
		return nil, err
	}
	return e.Compile(tree, rootType)
}

// NewCache opens an execution scope. The scope takes the request ID of ctx
// when one is present.
func (e *Engine) NewCache(ctx context.Context, vars map[string]any) *Cache {
	ctx, scope := reqid.Ensure(ctx)
	eventbus.Publish(ctx, events.ScopeStart{Scope: scope})
	return newCache(e, scope, vars)
}

// StaticCache returns the cache shared for the lifetime of the engine. It
// must only be used with documents that are never released, and it resolves
// variable conditions as if no variables were given.
func (e *Engine) StaticCache() *Cache { return e.static }

// PlannedField is a field whose resolved value is projected before its
// sub-selection is completed.
type PlannedField struct {
	Path      language.Path
	Field     FieldIdentity
	Projector *Projector
}

// Plan compiles a projector for every resolver-backed field of an operation
// that returns objects from source messages. Fields that fail are reported
// together; the others are still planned.
func (e *Engine) Plan(ctx context.Context, cache *Cache, doc *language.QueryDocument, operationName string) ([]PlannedField, error) {
	op := language.FindOperation(doc, operationName)
	if op == nil {
		return nil, fmt.Errorf("operation %q not found", operationName)
	}
	start := time.Now()
	query := ""
	if op.Position != nil && op.Position.Src != nil {
		query = op.Position.Src.Input
	}
	eventbus.Publish(ctx, events.OperationStart{Query: query, OperationName: op.Name, OperationType: string(op.Operation)})

	p := planner{ctx: ctx, engine: e, cache: cache}
	p.walk(op.SelectionSet, nil)

	eventbus.Publish(ctx, events.OperationFinish{
		Query:         query,
		OperationName: op.Name,
		OperationType: string(op.Operation),
		Fields:        len(p.fields),
		Errors:        p.errs,
		Duration:      time.Since(start),
	})
	return p.fields, errors.Join(p.errs...)
}

type planner struct {
	ctx    context.Context
	engine *Engine
	cache  *Cache
	fields []PlannedField
	errs   []error
}

func (p *planner) walk(set language.SelectionSet, path language.Path) {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *language.Field:
			if sel.Definition == nil || sel.ObjectDefinition == nil || len(sel.SelectionSet) == 0 {
				continue
			}
			fieldPath := append(append(language.Path(nil), path...), language.PathName(responseName(sel)))
			parent := p.engine.schema.Type(sel.ObjectDefinition.Name)
			if parent == nil {
				continue
			}
			def := parent.Field(sel.Name)
			rootType := p.engine.RootType(sel)
			if def != nil && def.Async && p.engine.acc.GetSourceMessageDescriptor(rootType) != nil {
				proj, err := p.cache.GetOrCompile(p.ctx, sel, rootType)
				if err != nil {
					p.errs = append(p.errs, err)
				} else {
					p.fields = append(p.fields, PlannedField{
						Path:      fieldPath,
						Field:     FieldIdentity{Type: parent.Name, Field: sel.Name},
						Projector: proj,
					})
				}
			}
			p.walk(sel.SelectionSet, fieldPath)
		case *language.InlineFragment:
			p.walk(sel.SelectionSet, path)
		case *language.FragmentSpread:
			if sel.Definition != nil {
				p.walk(sel.Definition.SelectionSet, path)
			}
		}
	}
}
