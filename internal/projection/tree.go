package projection

import (
	"fmt"
	"strings"
)

// TypeContainer holds the type nodes at one position of a projection tree,
// one per concrete type the value at that position may have. Nodes keep the
// order in which they were added; dispatch follows that order.
type TypeContainer struct {
	nodes  []*TypeNode
	sealed bool
}

// NewTypeContainer returns an empty, mutable container.
func NewTypeContainer() *TypeContainer { return &TypeContainer{} }

// Node returns the node for the given type tag or nil.
func (c *TypeContainer) Node(tag string) *TypeNode {
	for _, n := range c.nodes {
		if n.tag == tag {
			return n
		}
	}
	return nil
}

// Nodes returns the container's nodes in insertion order. The slice must not
// be modified.
func (c *TypeContainer) Nodes() []*TypeNode { return c.nodes }

// Len returns the number of type nodes.
func (c *TypeContainer) Len() int { return len(c.nodes) }

// IsPolymorphic reports whether the position may hold more than one type.
func (c *TypeContainer) IsPolymorphic() bool { return len(c.nodes) > 1 }

// Sealed reports whether the container has been sealed.
func (c *TypeContainer) Sealed() bool { return c.sealed }

// TryAddNode adds n to the container. If a node with the same tag exists, n is
// merged into it and the existing node is returned. A sealed n is copied
// rather than adopted.
func (c *TypeContainer) TryAddNode(n *TypeNode) (*TypeNode, error) {
	if c.sealed {
		return nil, ErrSealed
	}
	if existing := c.Node(n.tag); existing != nil {
		if existing == n {
			return n, nil
		}
		if err := existing.Merge(n); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if n.sealed {
		cp := NewTypeNode(n.tag)
		if err := cp.Merge(n); err != nil {
			return nil, err
		}
		n = cp
	}
	c.nodes = append(c.nodes, n)
	return n, nil
}

// Seal makes the container and everything below it immutable.
func (c *TypeContainer) Seal() {
	if c.sealed {
		return
	}
	c.sealed = true
	for _, n := range c.nodes {
		n.Seal()
	}
}

func (c *TypeContainer) String() string {
	var b strings.Builder
	c.write(&b)
	return b.String()
}

func (c *TypeContainer) write(b *strings.Builder) {
	for i, n := range c.nodes {
		if i > 0 {
			b.WriteString(" | ")
		}
		n.write(b)
	}
}

// TypeNode describes the fields to read from one concrete type.
type TypeNode struct {
	tag    string
	fields []*FieldNode
	sealed bool
}

// NewTypeNode returns an empty, mutable node for the given type tag.
func NewTypeNode(tag string) *TypeNode { return &TypeNode{tag: tag} }

// Tag returns the runtime type tag, the GraphQL object type name.
func (n *TypeNode) Tag() string { return n.tag }

// Fields returns the field nodes in insertion order. The slice must not be
// modified.
func (n *TypeNode) Fields() []*FieldNode { return n.fields }

// Len returns the number of field nodes.
func (n *TypeNode) Len() int { return len(n.fields) }

// Sealed reports whether the node has been sealed.
func (n *TypeNode) Sealed() bool { return n.sealed }

// Field returns the field node with the given name or nil.
func (n *TypeNode) Field(name string) *FieldNode {
	for _, f := range n.fields {
		if f.id.Field == name {
			return f
		}
	}
	return nil
}

// AddField returns the field node for id, inserting it if absent. Adding a
// name that is already present with a different identity or kind fails with
// ErrAmbiguousField.
func (n *TypeNode) AddField(id FieldIdentity, kind FieldKind) (*FieldNode, error) {
	if n.sealed {
		return nil, ErrSealed
	}
	if f := n.Field(id.Field); f != nil {
		if f.id != id || f.kind != kind {
			return nil, fmt.Errorf("%w: %s (%s) conflicts with %s (%s) on %s",
				ErrAmbiguousField, id, kind, f.id, f.kind, n.tag)
		}
		return f, nil
	}
	f := &FieldNode{id: id, kind: kind}
	if kind != Leaf {
		f.children = NewTypeContainer()
	}
	n.fields = append(n.fields, f)
	return f, nil
}

// Merge copies every field of other, recursively, into n. other is not
// modified and may be sealed.
func (n *TypeNode) Merge(other *TypeNode) error {
	if n.sealed {
		return ErrSealed
	}
	if other == n {
		return nil
	}
	for _, of := range other.fields {
		f, err := n.AddField(of.id, of.kind)
		if err != nil {
			return err
		}
		if of.children == nil {
			continue
		}
		for _, child := range of.children.nodes {
			if err := f.children.mergeCopy(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// mergeCopy merges a copy of n so that the container never shares nodes with
// another tree.
func (c *TypeContainer) mergeCopy(n *TypeNode) error {
	if c.sealed {
		return ErrSealed
	}
	existing := c.Node(n.tag)
	if existing == nil {
		existing = NewTypeNode(n.tag)
		c.nodes = append(c.nodes, existing)
	}
	return existing.Merge(n)
}

// Seal makes the node and everything below it immutable.
func (n *TypeNode) Seal() {
	if n.sealed {
		return
	}
	n.sealed = true
	for _, f := range n.fields {
		if f.children != nil {
			f.children.Seal()
		}
	}
}

func (n *TypeNode) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *TypeNode) write(b *strings.Builder) {
	b.WriteString(n.tag)
	b.WriteString(" {")
	for _, f := range n.fields {
		b.WriteByte(' ')
		b.WriteString(f.id.Field)
		switch f.kind {
		case Object:
			b.WriteString(" { ")
			f.children.write(b)
			b.WriteString(" }")
		case List:
			b.WriteString(" [ ")
			f.children.write(b)
			b.WriteString(" ]")
		}
	}
	if len(n.fields) > 0 {
		b.WriteByte(' ')
	}
	b.WriteString("}")
}

// FieldNode is a selected field of a type node.
type FieldNode struct {
	id       FieldIdentity
	kind     FieldKind
	children *TypeContainer
}

// Identity returns the field's identity.
func (f *FieldNode) Identity() FieldIdentity { return f.id }

// Kind returns the field's kind.
func (f *FieldNode) Kind() FieldKind { return f.kind }

// Children returns the container describing the field's value. It is nil for
// leaf fields.
func (f *FieldNode) Children() *TypeContainer { return f.children }
