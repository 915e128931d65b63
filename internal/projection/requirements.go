package projection

import (
	"fmt"

	"github.com/hanpama/protoproject/internal/language"
	"github.com/hanpama/protoproject/internal/schema"
)

// Requirements maps fields to the sibling fields their resolution reads from
// the parent source message. It is filled while the engine is constructed,
// then sealed; after sealing it is read-only and safe for concurrent use.
// Register must not run concurrently with Get.
type Requirements struct {
	schema  *schema.Schema
	acc     Accessors
	entries map[FieldIdentity]*TypeNode
	order   []FieldIdentity
	sealed  bool
}

// NewRequirements returns an empty registry validating against s and acc.
func NewRequirements(s *schema.Schema, acc Accessors) *Requirements {
	return &Requirements{schema: s, acc: acc, entries: make(map[FieldIdentity]*TypeNode)}
}

// Register parses source, a selection of bare field names optionally nested
// with braces such as "authorId owner { id }", against entity and stores the
// resulting tree under id. Only the first registration of an identity takes
// effect.
func (r *Requirements) Register(id FieldIdentity, source string, entity string) error {
	if r.sealed {
		return ErrSealed
	}
	if _, ok := r.entries[id]; ok {
		return nil
	}

	doc, err := language.ParseQuery("{" + source + "}")
	if err != nil {
		return &SchemaError{Field: id, Source: source, Message: "invalid selection", Err: err}
	}
	if len(doc.Fragments) > 0 || len(doc.Operations) != 1 {
		return &SchemaError{Field: id, Source: source, Message: "expected a single selection set"}
	}
	if r.schema.Type(entity) == nil {
		return &SchemaError{Field: id, Source: source, Message: fmt.Sprintf("unknown type %s", entity)}
	}

	node := NewTypeNode(entity)
	if err := r.fill(id, source, node, doc.Operations[0].SelectionSet); err != nil {
		return err
	}
	node.Seal()
	r.entries[id] = node
	r.order = append(r.order, id)
	return nil
}

func (r *Requirements) fill(id FieldIdentity, source string, node *TypeNode, set language.SelectionSet) error {
	fail := func(pos *language.Position, format string, args ...any) error {
		return &SchemaError{Field: id, Source: source, Position: pos, Message: fmt.Sprintf(format, args...)}
	}

	typeName := node.Tag()
	t := r.schema.Type(typeName)
	for _, sel := range set {
		f, ok := sel.(*language.Field)
		if !ok {
			return fail(sel.GetPosition(), "fragments are not allowed")
		}
		if f.Alias != "" && f.Alias != f.Name {
			return fail(f.Position, "alias %s is not allowed", f.Alias)
		}
		if len(f.Arguments) > 0 {
			return fail(f.Position, "arguments on %s are not allowed", f.Name)
		}
		if len(f.Directives) > 0 {
			return fail(f.Position, "directives on %s are not allowed", f.Name)
		}
		def := t.Field(f.Name)
		if def == nil {
			return fail(f.Position, "field %s does not exist on type %s", f.Name, typeName)
		}
		if def.Async || r.acc.GetSourceFieldDescriptor(typeName, f.Name) == nil {
			return fail(f.Position, "field %s.%s is not read from the source message", typeName, f.Name)
		}

		named := r.schema.Type(def.Type.GetNamedType())
		fid := FieldIdentity{Type: typeName, Field: f.Name}
		if named.IsLeaf() {
			if len(f.SelectionSet) > 0 {
				return fail(f.Position, "leaf field %s cannot have a selection", f.Name)
			}
			if _, err := node.AddField(fid, Leaf); err != nil {
				return fail(f.Position, "%v", err)
			}
			continue
		}
		if len(f.SelectionSet) == 0 {
			return fail(f.Position, "field %s of type %s must have a selection", f.Name, named.Name)
		}
		kind := Object
		if def.Type.IsList() {
			kind = List
		}
		fn, err := node.AddField(fid, kind)
		if err != nil {
			return fail(f.Position, "%v", err)
		}
		for _, pt := range r.schema.PossibleTypes(named.Name) {
			child := NewTypeNode(pt)
			if err := r.fill(id, source, child, f.SelectionSet); err != nil {
				return err
			}
			if _, err := fn.Children().TryAddNode(child); err != nil {
				return fail(f.Position, "%v", err)
			}
		}
	}
	return nil
}

// Get returns the sealed requirement tree registered for id.
func (r *Requirements) Get(id FieldIdentity) (*TypeNode, bool) {
	n, ok := r.entries[id]
	return n, ok
}

// Identities returns the registered identities in registration order.
func (r *Requirements) Identities() []FieldIdentity { return r.order }

// Len returns the number of registered requirements.
func (r *Requirements) Len() int { return len(r.entries) }

// Seal forbids further registration. It is idempotent.
func (r *Requirements) Seal() { r.sealed = true }

// Sealed reports whether Seal has been called.
func (r *Requirements) Sealed() bool { return r.sealed }
