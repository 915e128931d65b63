package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hanpama/protoproject/internal/language"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// BuildFromSDL parses a single SDL document and returns the corresponding Schema.
func BuildFromSDL(sdl string) (*Schema, error) {
	return Build(&language.Source{Name: "schema.graphql", Input: sdl})
}

// Build validates the SDL sources and derives, per field, whether it is backed
// by the parent's source message and which sibling fields its resolution
// requires.
func Build(sources ...*language.Source) (*Schema, error) {
	all := append([]*language.Source{prelude}, sources...)
	doc, err := language.LoadSchema(all...)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	b := &builder{doc: doc, schema: NewSchema(doc)}
	if doc.Query != nil {
		b.schema.QueryType = doc.Query.Name
	}
	if doc.Mutation != nil {
		b.schema.MutationType = doc.Mutation.Name
	}
	if doc.Subscription != nil {
		b.schema.SubscriptionType = doc.Subscription.Name
	}

	names := make([]string, 0, len(doc.Types))
	for name := range doc.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		def := doc.Types[name]
		if strings.HasPrefix(name, "__") {
			continue
		}
		if def.BuiltIn {
			if _, ok := builtinScalars[name]; !ok {
				continue
			}
		}
		b.schema.AddType(b.buildType(def))
	}
	if len(b.errs) > 0 {
		return nil, b.errs
	}
	return b.schema, nil
}

type builder struct {
	doc    *language.Schema
	schema *Schema
	errs   gqlerror.List
}

func (b *builder) errorf(pos *language.Position, format string, args ...any) {
	b.errs = append(b.errs, gqlerror.ErrorPosf(pos, format, args...))
}

func (b *builder) buildType(def *language.Definition) *Type {
	switch def.Kind {
	case language.Object:
		return b.buildObject(def)
	case language.Interface:
		t := NewType(def.Name, TypeKindInterface, def.Description)
		t.Interfaces = append(t.Interfaces, def.Interfaces...)
		for _, pt := range b.doc.GetPossibleTypes(def) {
			t.PossibleTypes = append(t.PossibleTypes, pt.Name)
		}
		for _, fd := range def.Fields {
			if strings.HasPrefix(fd.Name, "__") {
				continue
			}
			f := b.buildField(fd)
			f.Async = len(fd.Arguments) > 0
			t.AddField(f)
		}
		return t
	case language.Union:
		t := NewType(def.Name, TypeKindUnion, def.Description)
		t.PossibleTypes = append(t.PossibleTypes, def.Types...)
		return t
	case language.Enum:
		t := NewType(def.Name, TypeKindEnum, def.Description)
		for _, v := range def.EnumValues {
			ev := &EnumValue{Name: v.Name, Description: v.Description}
			if d := v.Directives.ForName("deprecated"); d != nil {
				ev.IsDeprecated = true
				ev.DeprecationReason = stringArg(d, "reason")
			}
			t.EnumValues = append(t.EnumValues, ev)
		}
		return t
	case language.InputObject:
		t := NewType(def.Name, TypeKindInputObject, def.Description)
		for _, fd := range def.Fields {
			iv := &InputValue{Name: fd.Name, Description: fd.Description, Type: buildTypeRef(fd.Type)}
			if fd.DefaultValue != nil {
				iv.DefaultValue = fd.DefaultValue.String()
			}
			t.InputFields = append(t.InputFields, iv)
		}
		return t
	default:
		t := NewType(def.Name, TypeKindScalar, def.Description)
		t.ProtoScalar = defaultProtoScalar
		if mapped, ok := builtinScalars[def.Name]; ok {
			t.ProtoScalar = mapped
		}
		if d := def.Directives.ForName("mapScalar"); d != nil {
			t.ProtoScalar = stringArg(d, "toProtobuf")
		}
		return t
	}
}

func (b *builder) buildObject(def *language.Definition) *Type {
	t := NewType(def.Name, TypeKindObject, def.Description)
	t.Interfaces = append(t.Interfaces, def.Interfaces...)
	t.Wrapper = wrapperKind(def)
	isRoot := b.schema.IsRootType(def.Name)

	for _, fd := range def.Fields {
		if strings.HasPrefix(fd.Name, "__") {
			continue
		}
		if fd.Directives.ForName("id") != nil {
			t.IDFields = append(t.IDFields, fd.Name)
		}
	}
	for _, fd := range def.Fields {
		if strings.HasPrefix(fd.Name, "__") {
			continue
		}
		f := b.buildField(fd)
		f.Internal = fd.Directives.ForName("internal") != nil
		if !isRoot {
			b.resolveField(t, f, fd)
		} else {
			f.Async = true
		}
		t.AddField(f)
	}
	return t
}

// resolveField decides how f is backed. A field is resolved, not read from
// the source message, when it carries @resolve or @load, or declares
// arguments. Resolved fields require the parent fields named by their `with`
// mapping, or the type's @id fields when there is no mapping.
func (b *builder) resolveField(t *Type, f *Field, fd *language.FieldDefinition) {
	resolve := fd.Directives.ForName("resolve")
	load := fd.Directives.ForName("load")
	if resolve != nil && load != nil {
		b.errorf(fd.Position, "field %s.%s cannot use both @resolve and @load", t.Name, fd.Name)
		return
	}

	var requires []string
	if d := fd.Directives.ForName("requires"); d != nil {
		src := strings.TrimSpace(stringArg(d, "fields"))
		if src == "" {
			b.errorf(d.Position, "@requires on %s.%s must name at least one field", t.Name, fd.Name)
		} else {
			requires = append(requires, src)
		}
	}

	switch {
	case load != nil:
		if len(fd.Arguments) > 0 {
			b.errorf(fd.Position, "field %s.%s uses @load and must not declare arguments", t.Name, fd.Name)
			return
		}
		with, ok := fieldMapArg(load, "with")
		if !ok || len(with) == 0 {
			b.errorf(load.Position, "@load on %s.%s requires a non-empty `with` mapping", t.Name, fd.Name)
			return
		}
		f.Async = true
		requires = append(requires, with...)
	case resolve != nil:
		f.Async = true
		if with, ok := fieldMapArg(resolve, "with"); ok {
			requires = append(requires, with...)
		} else {
			requires = append(requires, t.IDFields...)
		}
	case len(fd.Arguments) > 0:
		f.Async = true
		requires = append(requires, t.IDFields...)
	}
	f.Requires = strings.Join(requires, " ")
}

func (b *builder) buildField(fd *language.FieldDefinition) *Field {
	f := NewField(fd.Name, fd.Description, buildTypeRef(fd.Type))
	for _, arg := range fd.Arguments {
		iv := &InputValue{Name: arg.Name, Description: arg.Description, Type: buildTypeRef(arg.Type)}
		if arg.DefaultValue != nil {
			iv.DefaultValue = arg.DefaultValue.String()
		}
		f.Arguments = append(f.Arguments, iv)
	}
	if d := fd.Directives.ForName("deprecated"); d != nil {
		f.IsDeprecated = true
		f.DeprecationReason = stringArg(d, "reason")
	}
	return f
}

func buildTypeRef(t *language.Type) *TypeRef {
	if t.NonNull {
		inner := *t
		inner.NonNull = false
		return NonNullType(buildTypeRef(&inner))
	}
	if t.Elem != nil {
		return ListType(buildTypeRef(t.Elem))
	}
	return NamedType(t.NamedType)
}

// wrapperKind classifies paged wrappers by directive, falling back to the
// Relay and offset-paging naming conventions.
func wrapperKind(def *language.Definition) WrapperKind {
	switch {
	case def.Directives.ForName("connection") != nil:
		return WrapperConnection
	case def.Directives.ForName("segment") != nil:
		return WrapperSegment
	case strings.HasSuffix(def.Name, "Connection") &&
		(def.Fields.ForName("nodes") != nil || def.Fields.ForName("edges") != nil):
		return WrapperConnection
	case strings.HasSuffix(def.Name, "CollectionSegment") && def.Fields.ForName("items") != nil:
		return WrapperSegment
	}
	return WrapperNone
}

func stringArg(d *language.Directive, name string) string {
	arg := d.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		return ""
	}
	return arg.Value.Raw
}

// fieldMapArg reads a `{ requestField: "parentField" }` mapping and returns
// the parent field names ordered by request field.
func fieldMapArg(d *language.Directive, name string) ([]string, bool) {
	arg := d.Arguments.ForName(name)
	if arg == nil || arg.Value == nil || arg.Value.Kind != language.ObjectValue {
		return nil, false
	}
	children := append([]*language.ChildValue(nil), arg.Value.Children...)
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	parents := make([]string, 0, len(children))
	for _, c := range children {
		if c.Value != nil && c.Value.Raw != "" {
			parents = append(parents, c.Value.Raw)
		}
	}
	return parents, true
}
