package projection

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// envelopeOneof is the oneof holding the concrete value of an interface or
// union envelope message.
const envelopeOneof protoreflect.Name = "value"

type projectFunc func(src protoreflect.Message) protoreflect.Message

// Projector copies the projected fields of a source message into a new
// message of the same type. A Projector is immutable and safe for concurrent
// use.
type Projector struct {
	rootType string
	tree     *TypeContainer
	project  projectFunc
}

// RootType returns the GraphQL type the projector was compiled for.
func (p *Projector) RootType() string { return p.rootType }

// Tree returns the sealed tree the projector was compiled from.
func (p *Projector) Tree() *TypeContainer { return p.tree }

// Project returns a new message holding only the projected fields of src. It
// returns nil when src is nil or invalid, and when its message type is
// neither the root type's source message nor one the tree dispatches on.
func (p *Projector) Project(src protoreflect.Message) protoreflect.Message {
	if src == nil || !src.IsValid() {
		return nil
	}
	return p.project(src)
}

// Apply is Project for proto.Message values.
func (p *Projector) Apply(m proto.Message) proto.Message {
	if m == nil {
		return nil
	}
	out := p.Project(m.ProtoReflect())
	if out == nil {
		return nil
	}
	return out.Interface()
}

// Project applies p to v and reports whether a value was produced.
func Project[T proto.Message](p *Projector, v T) (T, bool) {
	var zero T
	out := p.Apply(v)
	if out == nil {
		return zero, false
	}
	t, ok := out.(T)
	return t, ok
}

// Compile turns a sealed tree into a Projector for values of rootType. The
// source messages are described by acc.
func Compile(tree *TypeContainer, rootType string, acc Accessors) (*Projector, error) {
	if !tree.Sealed() {
		return nil, ErrUnsealed
	}
	if tree.Len() == 0 {
		return nil, ErrEmptyProjection
	}
	md := acc.GetSourceMessageDescriptor(rootType)
	if md == nil {
		return nil, fmt.Errorf("projection: type %s has no source message", rootType)
	}
	c := compiler{acc: acc}
	fn, err := c.position(tree, md)
	if err != nil {
		return nil, err
	}
	if _, ok := c.direct(tree, md); ok {
		// Only the root is checked; nested values are typed by their field.
		inner, name := fn, md.FullName()
		fn = func(src protoreflect.Message) protoreflect.Message {
			if src.Descriptor().FullName() != name {
				return nil
			}
			return inner(src)
		}
	}
	return &Projector{rootType: rootType, tree: tree, project: fn}, nil
}

type compiler struct {
	acc Accessors
}

// direct returns the only node of tree when it describes messages of type md.
func (c *compiler) direct(tree *TypeContainer, md protoreflect.MessageDescriptor) (*TypeNode, bool) {
	nodes := tree.Nodes()
	if len(nodes) != 1 {
		return nil, false
	}
	nmd := c.acc.GetSourceMessageDescriptor(nodes[0].Tag())
	return nodes[0], nmd != nil && nmd.FullName() == md.FullName()
}

// position compiles the container found at a value of message type md. A
// single node of the same message type is projected directly; anything else
// dispatches on the concrete type in node order.
func (c *compiler) position(tree *TypeContainer, md protoreflect.MessageDescriptor) (projectFunc, error) {
	if n, ok := c.direct(tree, md); ok {
		return c.node(n, c.acc.GetSourceMessageDescriptor(n.Tag()))
	}
	nodes := tree.Nodes()

	oneof := md.Oneofs().ByName(envelopeOneof)
	type dispatchCase struct {
		choice  protoreflect.FieldDescriptor
		name    protoreflect.FullName
		project projectFunc
	}
	cases := make([]dispatchCase, 0, len(nodes))
	for _, n := range nodes {
		nmd := c.acc.GetSourceMessageDescriptor(n.Tag())
		if nmd == nil {
			return nil, fmt.Errorf("projection: type %s has no source message", n.Tag())
		}
		dc := dispatchCase{name: nmd.FullName()}
		if oneof != nil {
			fields := oneof.Fields()
			for i := 0; i < fields.Len(); i++ {
				if f := fields.Get(i); f.Message() != nil && f.Message().FullName() == nmd.FullName() {
					dc.choice = f
					break
				}
			}
		}
		if dc.choice == nil && nmd.FullName() != md.FullName() {
			return nil, fmt.Errorf("projection: %s cannot hold a value of type %s", md.FullName(), n.Tag())
		}
		fn, err := c.node(n, nmd)
		if err != nil {
			return nil, err
		}
		dc.project = fn
		cases = append(cases, dc)
	}

	envelope := md.FullName()
	return func(src protoreflect.Message) protoreflect.Message {
		sd := src.Descriptor()
		if sd.FullName() == envelope && oneof != nil {
			for _, dc := range cases {
				if dc.choice == nil {
					continue
				}
				choice := resolveField(sd, md, dc.choice)
				if choice == nil || !src.Has(choice) {
					continue
				}
				out := dc.project(src.Get(choice).Message())
				if out == nil {
					return nil
				}
				dst := src.New()
				dst.Set(choice, protoreflect.ValueOfMessage(out))
				return dst
			}
			return nil
		}
		for _, dc := range cases {
			if sd.FullName() == dc.name {
				return dc.project(src)
			}
		}
		return nil
	}, nil
}

type fieldStep struct {
	fd    protoreflect.FieldDescriptor
	child projectFunc
}

// node compiles a type node read from messages of type md.
func (c *compiler) node(n *TypeNode, md protoreflect.MessageDescriptor) (projectFunc, error) {
	if n.Len() == 0 {
		return nil, fmt.Errorf("%w on %s", ErrEmptyProjection, n.Tag())
	}
	steps := make([]fieldStep, 0, n.Len())
	for _, f := range n.Fields() {
		fd := c.acc.GetSourceFieldDescriptor(n.Tag(), f.Identity().Field)
		if fd == nil {
			return nil, fmt.Errorf("projection: field %s is not read from the source message", f.Identity())
		}
		step := fieldStep{fd: fd}
		switch f.Kind() {
		case List:
			return nil, &NotSupportedError{Field: f.Identity(), Reason: "projecting lists of objects"}
		case Object:
			if fd.Message() == nil || fd.IsList() || fd.IsMap() {
				return nil, fmt.Errorf("projection: field %s is not a singular message", f.Identity())
			}
			child, err := c.position(f.Children(), fd.Message())
			if err != nil {
				return nil, err
			}
			step.child = child
		}
		steps = append(steps, step)
	}

	return func(src protoreflect.Message) protoreflect.Message {
		sd := src.Descriptor()
		dst := src.New()
		for _, s := range steps {
			fd := resolveField(sd, md, s.fd)
			if fd == nil || !src.Has(fd) {
				continue
			}
			v := src.Get(fd)
			if s.child == nil {
				dst.Set(fd, copyValue(dst, fd, v))
				continue
			}
			if out := s.child(v.Message()); out != nil {
				dst.Set(fd, protoreflect.ValueOfMessage(out))
			}
		}
		return dst
	}, nil
}

// resolveField returns fd as declared by sd. Messages built from another copy
// of the descriptors are matched by field number.
func resolveField(sd, md protoreflect.MessageDescriptor, fd protoreflect.FieldDescriptor) protoreflect.FieldDescriptor {
	if sd == md {
		return fd
	}
	return sd.Fields().ByNumber(fd.Number())
}

func copyValue(dst protoreflect.Message, fd protoreflect.FieldDescriptor, v protoreflect.Value) protoreflect.Value {
	switch {
	case fd.IsList():
		src := v.List()
		out := dst.NewField(fd).List()
		for i := 0; i < src.Len(); i++ {
			out.Append(copyScalar(fd, src.Get(i)))
		}
		return protoreflect.ValueOfList(out)
	case fd.IsMap():
		out := dst.NewField(fd).Map()
		v.Map().Range(func(k protoreflect.MapKey, mv protoreflect.Value) bool {
			out.Set(k, copyScalar(fd.MapValue(), mv))
			return true
		})
		return protoreflect.ValueOfMap(out)
	}
	return copyScalar(fd, v)
}

func copyScalar(fd protoreflect.FieldDescriptor, v protoreflect.Value) protoreflect.Value {
	switch fd.Kind() {
	case protoreflect.BytesKind:
		return protoreflect.ValueOfBytes(append([]byte(nil), v.Bytes()...))
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return protoreflect.ValueOfMessage(proto.Clone(v.Message().Interface()).ProtoReflect())
	}
	return v
}
