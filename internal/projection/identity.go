package projection

import "google.golang.org/protobuf/reflect/protoreflect"

// FieldIdentity identifies a field by the type that declares it.
type FieldIdentity struct {
	Type  string
	Field string
}

func (id FieldIdentity) String() string { return id.Type + "." + id.Field }

// FieldKind classifies the value of a field node.
type FieldKind int

const (
	// Leaf values are copied whole, including lists of leaves.
	Leaf FieldKind = iota
	// List is a list of objects. It can be described but not compiled.
	List
	// Object values are projected recursively.
	Object
)

func (k FieldKind) String() string {
	switch k {
	case Leaf:
		return "leaf"
	case List:
		return "list"
	case Object:
		return "object"
	}
	return "unknown"
}

// Accessors resolves GraphQL types and fields to the descriptors used to read
// and construct source messages. It is implemented by protoreg.Registry.
type Accessors interface {
	// GetSourceMessageDescriptor returns the source message of an object
	// type, or the envelope message of an interface or union.
	GetSourceMessageDescriptor(objectType string) protoreflect.MessageDescriptor
	// GetSourceFieldDescriptor returns nil for fields that are not read
	// from the source message.
	GetSourceFieldDescriptor(objectType string, field string) protoreflect.FieldDescriptor
}
