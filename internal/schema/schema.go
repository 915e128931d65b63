package schema

import (
	"slices"

	"github.com/hanpama/protoproject/internal/language"
)

// Schema is the type system consulted when projecting selections.
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type // All named types keyed by name

	document *language.Schema
}

// NewSchema returns an empty schema bound to the validated document it was built from.
func NewSchema(doc *language.Schema) *Schema {
	return &Schema{Types: make(map[string]*Type), document: doc}
}

// Document returns the validated schema document. Queries must be loaded
// against it so that selections carry their field definitions.
func (s *Schema) Document() *language.Schema { return s.document }

// Type returns the named type or nil.
func (s *Schema) Type(name string) *Type { return s.Types[name] }

// AddType registers t by name.
func (s *Schema) AddType(t *Type) *Schema {
	s.Types[t.Name] = t
	return s
}

// IsRootType reports whether name is one of the operation root types.
// Root types have no source message; every field on them is resolved.
func (s *Schema) IsRootType(name string) bool {
	return name != "" && (name == s.QueryType || name == s.MutationType || name == s.SubscriptionType)
}

// PossibleTypes returns the concrete object types a value of the named type
// may have at runtime, in declaration order. Objects return themselves.
func (s *Schema) PossibleTypes(name string) []string {
	t := s.Types[name]
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TypeKindObject:
		return []string{t.Name}
	case TypeKindInterface, TypeKindUnion:
		return t.PossibleTypes
	}
	return nil
}

// Implements reports whether a value of object type obj satisfies a type
// condition on cond.
func (s *Schema) Implements(obj, cond string) bool {
	if obj == cond {
		return true
	}
	t := s.Types[obj]
	if t == nil {
		return false
	}
	if slices.Contains(t.Interfaces, cond) {
		return true
	}
	if c := s.Types[cond]; c != nil && c.Kind == TypeKindUnion {
		return slices.Contains(c.PossibleTypes, obj)
	}
	return false
}

// Type is a named GraphQL type (object, interface, union, scalar, enum, input)
type Type struct {
	Name          string
	Kind          TypeKind
	Description   string
	Fields        []*Field      // For OBJECT and INTERFACE, in declaration order
	Interfaces    []string      // For OBJECT and INTERFACE
	PossibleTypes []string      // For INTERFACE and UNION
	EnumValues    []*EnumValue  // For ENUM
	InputFields   []*InputValue // For INPUT_OBJECT
	IDFields      []string      // Fields marked with @id
	Wrapper       WrapperKind   // Paging wrapper shape for OBJECT
	ProtoScalar   string        // Protobuf scalar kind for SCALAR
}

// NewType creates a type of the given kind.
func NewType(name string, kind TypeKind, description string) *Type {
	return &Type{Name: name, Kind: kind, Description: description}
}

// AddField appends f to the type's fields.
func (t *Type) AddField(f *Field) *Type {
	t.Fields = append(t.Fields, f)
	return t
}

// Field returns the field with the given name or nil.
func (t *Type) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// IsLeaf reports whether values of t are serialized directly.
func (t *Type) IsLeaf() bool { return t.Kind == TypeKindScalar || t.Kind == TypeKindEnum }

// IsAbstract reports whether t is an interface or a union.
func (t *Type) IsAbstract() bool { return t.Kind == TypeKindInterface || t.Kind == TypeKindUnion }

// Field represents a field on an object or interface
type Field struct {
	Name        string
	Description string
	Type        *TypeRef
	Arguments   []*InputValue
	// Async is set for fields resolved by a resolver or loader. Only
	// non-async fields are members of the type's source message.
	Async bool
	// Internal fields exist on the source message but are hidden from clients.
	Internal bool
	// Requires holds the selection of sibling fields the field's resolution
	// reads from its parent, e.g. "authorId" or "owner { id }".
	Requires          string
	IsDeprecated      bool
	DeprecationReason string
}

// NewField creates a field of the given type.
func NewField(name, description string, typ *TypeRef) *Field {
	return &Field{Name: name, Description: description, Type: typ}
}

// WrapperKind classifies object types that wrap a paged collection.
type WrapperKind string

const (
	WrapperNone WrapperKind = ""
	// WrapperConnection is a cursor-paged wrapper exposing `nodes` and `edges { node }`.
	WrapperConnection WrapperKind = "CONNECTION"
	// WrapperSegment is an offset-paged wrapper exposing `items`.
	WrapperSegment WrapperKind = "SEGMENT"
)

// TypeKind represents the kind of GraphQL type
type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// TypeRef represents a reference to a type (can be wrapped)
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef // For List and NonNull
	Named  string   // For named types
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

func (t *TypeRef) IsNonNull() bool {
	return t != nil && t.Kind == TypeRefKindNonNull
}

func (t *TypeRef) IsList() bool {
	if t.Kind == TypeRefKindList {
		return true
	}
	if t.Kind == TypeRefKindNonNull && t.OfType != nil {
		return t.OfType.Kind == TypeRefKindList
	}
	return false
}

func (t *TypeRef) Unwrap() *TypeRef {
	if t.Kind == TypeRefKindNonNull || t.Kind == TypeRefKindList {
		return t.OfType
	}
	return t
}

func (t *TypeRef) GetNamedType() string {
	current := t
	for current != nil {
		if current.Named != "" {
			return current.Named
		}
		current = current.OfType
	}
	return ""
}

type EnumValue struct {
	Name              string
	Description       string
	IsDeprecated      bool
	DeprecationReason string
}

type InputValue struct {
	Name         string
	Description  string
	Type         *TypeRef
	DefaultValue string // raw GraphQL literal, empty when absent
}

func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }
