package projection

import (
	"context"
	"fmt"
	"strings"

	"github.com/hanpama/protoproject/internal/language"
	"github.com/hanpama/protoproject/internal/schema"
)

// maxElementSelections bounds the element selections collected through one
// connection or segment wrapper.
const maxElementSelections = 16

type builder struct {
	ctx    context.Context
	schema *schema.Schema
	acc    Accessors
	reqs   *Requirements
	vars   map[string]any
}

type elementSelection struct {
	field *language.Field
	path  language.Path
}

// build turns the selection set of sel into a sealed projection tree for
// values of rootType.
func (b *builder) build(sel *language.Field, rootType string) (*TypeContainer, error) {
	if sel == nil {
		return nil, &BuildError{Err: ErrEmptySelection}
	}
	path := language.Path{language.PathName(responseName(sel))}
	fail := func(err error) error {
		return &BuildError{Path: path, Position: sel.Position, Err: err}
	}
	if sel.Definition == nil {
		return nil, fail(fmt.Errorf("field %s has no definition; load the query against the schema", sel.Name))
	}
	named := b.schema.Type(sel.Definition.Type.Name())
	if named == nil {
		return nil, fail(fmt.Errorf("unknown type %s", sel.Definition.Type.Name()))
	}
	if named.IsLeaf() || len(sel.SelectionSet) == 0 {
		return nil, fail(ErrEmptySelection)
	}

	root := NewTypeContainer()
	if named.Wrapper != schema.WrapperNone {
		elements, err := b.collectElements(sel, named, path)
		if err != nil {
			return nil, fail(err)
		}
		if len(elements) == 0 {
			return nil, fail(ErrEmptySelection)
		}
		if rootType == "" {
			rootType = elements[0].field.Definition.Type.Name()
		}
		if err := b.checkRoot(rootType); err != nil {
			return nil, fail(err)
		}
		for _, el := range elements {
			if err := b.buildSet(root, rootType, el.field.SelectionSet, el.path); err != nil {
				return nil, err
			}
		}
	} else {
		if rootType == "" {
			rootType = named.Name
		}
		if err := b.checkRoot(rootType); err != nil {
			return nil, fail(err)
		}
		if err := b.buildSet(root, rootType, sel.SelectionSet, path); err != nil {
			return nil, err
		}
	}

	if err := b.finish(root); err != nil {
		return nil, fail(err)
	}
	empty := true
	for _, n := range root.Nodes() {
		if n.Len() > 0 {
			empty = false
			break
		}
	}
	if empty {
		return nil, fail(fmt.Errorf("%w on %s", ErrEmptyProjection, rootType))
	}
	root.Seal()
	return root, nil
}

func (b *builder) checkRoot(rootType string) error {
	if b.acc.GetSourceMessageDescriptor(rootType) == nil {
		return fmt.Errorf("type %s has no source message", rootType)
	}
	return nil
}

// buildSet builds set once per concrete type of typeName and merges each
// result into c.
func (b *builder) buildSet(c *TypeContainer, typeName string, set language.SelectionSet, path language.Path) error {
	for _, pt := range b.schema.PossibleTypes(typeName) {
		node := NewTypeNode(pt)
		if err := b.fillNode(node, set, path); err != nil {
			return err
		}
		if _, err := c.TryAddNode(node); err != nil {
			return &BuildError{Path: path, Err: err}
		}
	}
	return nil
}

func (b *builder) fillNode(node *TypeNode, set language.SelectionSet, path language.Path) error {
	typeName := node.Tag()
	t := b.schema.Type(typeName)
	for _, sel := range set {
		if err := b.ctx.Err(); err != nil {
			return &BuildError{Path: path, Position: sel.GetPosition(), Err: err}
		}
		switch sel := sel.(type) {
		case *language.Field:
			if !b.shouldInclude(sel.Directives) || strings.HasPrefix(sel.Name, "__") {
				continue
			}
			def := t.Field(sel.Name)
			if def == nil || def.Internal {
				continue
			}
			fieldPath := append(append(language.Path(nil), path...), language.PathName(responseName(sel)))
			fail := func(err error) error {
				return &BuildError{Path: fieldPath, Position: sel.Position, Err: err}
			}

			id := FieldIdentity{Type: typeName, Field: sel.Name}
			if req, ok := b.reqs.Get(id); ok {
				if err := node.Merge(req); err != nil {
					return fail(err)
				}
			}
			if def.Async || b.acc.GetSourceFieldDescriptor(typeName, sel.Name) == nil {
				continue
			}

			named := b.schema.Type(def.Type.GetNamedType())
			switch {
			case named.IsLeaf():
				if _, err := node.AddField(id, Leaf); err != nil {
					return fail(err)
				}
			case def.Type.IsList():
				// Lists of objects are read whole by their resolver, not projected.
				continue
			default:
				fn, err := node.AddField(id, Object)
				if err != nil {
					return fail(err)
				}
				if err := b.buildSet(fn.Children(), named.Name, sel.SelectionSet, fieldPath); err != nil {
					return err
				}
			}

		case *language.InlineFragment:
			if !b.shouldInclude(sel.Directives) {
				continue
			}
			if sel.TypeCondition != "" && !b.schema.Implements(typeName, sel.TypeCondition) {
				continue
			}
			if err := b.fillNode(node, sel.SelectionSet, path); err != nil {
				return err
			}

		case *language.FragmentSpread:
			if !b.shouldInclude(sel.Directives) {
				continue
			}
			def := sel.Definition
			if def == nil {
				return &BuildError{Path: path, Position: sel.Position, Err: fmt.Errorf("fragment %s is not resolved", sel.Name)}
			}
			if !b.schema.Implements(typeName, def.TypeCondition) {
				continue
			}
			if err := b.fillNode(node, def.SelectionSet, path); err != nil {
				return err
			}
		}
	}
	return nil
}

// collectElements looks through a connection or segment wrapper and returns
// the selections of its elements: `nodes` and `edges { node }` for
// connections, `items` for segments.
func (b *builder) collectElements(sel *language.Field, wrapper *schema.Type, path language.Path) ([]elementSelection, error) {
	var buf [maxElementSelections]elementSelection
	n := 0
	add := func(f *language.Field, p language.Path) error {
		if n == len(buf) {
			return fmt.Errorf("%w: more than %d under %s", ErrTooManyElementSelections, len(buf), wrapper.Name)
		}
		buf[n] = elementSelection{field: f, path: p}
		n++
		return nil
	}

	var err error
	b.eachField(wrapper.Name, sel.SelectionSet, func(f *language.Field) bool {
		p := append(append(language.Path(nil), path...), language.PathName(responseName(f)))
		switch {
		case wrapper.Wrapper == schema.WrapperSegment && f.Name == "items",
			wrapper.Wrapper == schema.WrapperConnection && f.Name == "nodes":
			err = add(f, p)
		case wrapper.Wrapper == schema.WrapperConnection && f.Name == "edges" && f.Definition != nil:
			edgeType := f.Definition.Type.Name()
			b.eachField(edgeType, f.SelectionSet, func(ef *language.Field) bool {
				if ef.Name == "node" {
					err = add(ef, append(append(language.Path(nil), p...), language.PathName(responseName(ef))))
				}
				return err == nil
			})
		}
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// eachField visits the included fields of set that apply to typeName,
// flattening fragments. It stops when fn returns false.
func (b *builder) eachField(typeName string, set language.SelectionSet, fn func(*language.Field) bool) bool {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *language.Field:
			if b.shouldInclude(sel.Directives) && !fn(sel) {
				return false
			}
		case *language.InlineFragment:
			if !b.shouldInclude(sel.Directives) {
				continue
			}
			if sel.TypeCondition != "" && !b.schema.Implements(typeName, sel.TypeCondition) {
				continue
			}
			if !b.eachField(typeName, sel.SelectionSet, fn) {
				return false
			}
		case *language.FragmentSpread:
			if sel.Definition == nil || !b.shouldInclude(sel.Directives) {
				continue
			}
			if !b.schema.Implements(typeName, sel.Definition.TypeCondition) {
				continue
			}
			if !b.eachField(typeName, sel.Definition.SelectionSet, fn) {
				return false
			}
		}
	}
	return true
}

// finish adds a corrective field to every type node that selected nothing
// readable, so that the projected value is still present.
func (b *builder) finish(c *TypeContainer) error {
	for _, n := range c.Nodes() {
		for _, f := range n.Fields() {
			if f.Children() != nil {
				if err := b.finish(f.Children()); err != nil {
					return err
				}
			}
		}
		if n.Len() > 0 {
			continue
		}
		if name := b.correctiveField(n.Tag()); name != "" {
			if _, err := n.AddField(FieldIdentity{Type: n.Tag(), Field: name}, Leaf); err != nil {
				return err
			}
		}
	}
	return nil
}

// correctiveField picks `id` when it is a readable leaf, otherwise the first
// readable leaf in declaration order. It returns "" when there is none.
func (b *builder) correctiveField(typeName string) string {
	t := b.schema.Type(typeName)
	if t == nil {
		return ""
	}
	readableLeaf := func(f *schema.Field) bool {
		if f.Async || b.acc.GetSourceFieldDescriptor(typeName, f.Name) == nil {
			return false
		}
		named := b.schema.Type(f.Type.GetNamedType())
		return named != nil && named.IsLeaf()
	}
	if f := t.Field("id"); f != nil && readableLeaf(f) {
		return f.Name
	}
	for _, f := range t.Fields {
		if readableLeaf(f) {
			return f.Name
		}
	}
	return ""
}

// shouldInclude evaluates @skip and @include. Arguments that do not resolve
// to a boolean leave the selection included.
func (b *builder) shouldInclude(directives language.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if v, ok := b.directiveBool(skip); ok && v {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if v, ok := b.directiveBool(include); ok && !v {
			return false
		}
	}
	return true
}

func (b *builder) directiveBool(d *language.Directive) (bool, bool) {
	arg := d.Arguments.ForName("if")
	if arg == nil || arg.Value == nil {
		return false, false
	}
	v, err := arg.Value.Value(b.vars)
	if err != nil {
		return false, false
	}
	bv, ok := v.(bool)
	return bv, ok
}

func responseName(f *language.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}
