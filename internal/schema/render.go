package schema

import (
	"sort"
	"strconv"
	"strings"
)

// Render produces SDL from the Schema, annotated with the directives that
// describe how fields are backed. Loading the output with Build yields the
// same field backing and wrapper shapes.
// Deterministic ordering: type names sorted lexicographically.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	var b strings.Builder

	if s.MutationType != "" || s.SubscriptionType != "" || (s.QueryType != "" && s.QueryType != "Query") {
		b.WriteString("schema {\n")
		renderRoot(&b, "query", s.QueryType)
		renderRoot(&b, "mutation", s.MutationType)
		renderRoot(&b, "subscription", s.SubscriptionType)
		b.WriteString("}\n\n")
	}

	typeNames := make([]string, 0, len(s.Types))
	for name := range s.Types {
		if _, ok := builtinScalars[name]; ok {
			continue
		}
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)

	for _, name := range typeNames {
		typ := s.Types[name]
		switch typ.Kind {
		case TypeKindScalar:
			renderScalar(&b, typ)
		case TypeKindEnum:
			renderEnum(&b, typ)
		case TypeKindInputObject:
			renderInputObject(&b, typ)
		case TypeKindObject, TypeKindInterface:
			renderFielded(&b, s, typ)
		case TypeKindUnion:
			renderUnion(&b, typ)
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderRoot(b *strings.Builder, op, name string) {
	if name == "" {
		return
	}
	b.WriteString("  ")
	b.WriteString(op)
	b.WriteString(": ")
	b.WriteString(name)
	b.WriteString("\n")
}

func renderDescription(b *strings.Builder, indent, desc string) {
	if desc == "" {
		return
	}
	b.WriteString(indent)
	b.WriteString("\"\"\"\n")
	for _, line := range strings.Split(strings.ReplaceAll(desc, `"""`, `\"""`), "\n") {
		b.WriteString(indent)
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(indent)
	b.WriteString("\"\"\"\n")
}

func renderScalar(b *strings.Builder, typ *Type) {
	renderDescription(b, "", typ.Description)
	b.WriteString("scalar ")
	b.WriteString(typ.Name)
	if typ.ProtoScalar != "" && typ.ProtoScalar != defaultProtoScalar {
		b.WriteString(" @mapScalar(toProtobuf: ")
		b.WriteString(strconv.Quote(typ.ProtoScalar))
		b.WriteString(")")
	}
	b.WriteString("\n\n")
}

func renderEnum(b *strings.Builder, typ *Type) {
	renderDescription(b, "", typ.Description)
	b.WriteString("enum ")
	b.WriteString(typ.Name)
	b.WriteString(" {\n")
	for _, val := range typ.EnumValues {
		renderDescription(b, "  ", val.Description)
		b.WriteString("  ")
		b.WriteString(val.Name)
		renderDeprecated(b, val.IsDeprecated, val.DeprecationReason)
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
}

func renderInputObject(b *strings.Builder, typ *Type) {
	renderDescription(b, "", typ.Description)
	b.WriteString("input ")
	b.WriteString(typ.Name)
	b.WriteString(" {\n")
	for _, field := range typ.InputFields {
		renderDescription(b, "  ", field.Description)
		b.WriteString("  ")
		renderInputValue(b, field)
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
}

func renderFielded(b *strings.Builder, s *Schema, typ *Type) {
	renderDescription(b, "", typ.Description)
	if typ.Kind == TypeKindInterface {
		b.WriteString("interface ")
	} else {
		b.WriteString("type ")
	}
	b.WriteString(typ.Name)
	if len(typ.Interfaces) > 0 {
		b.WriteString(" implements ")
		b.WriteString(strings.Join(typ.Interfaces, " & "))
	}
	switch typ.Wrapper {
	case WrapperConnection:
		b.WriteString(" @connection")
	case WrapperSegment:
		b.WriteString(" @segment")
	}
	b.WriteString(" {\n")
	isRoot := s.IsRootType(typ.Name)
	for _, field := range typ.Fields {
		renderField(b, typ, field, isRoot)
	}
	b.WriteString("}\n\n")
}

func renderUnion(b *strings.Builder, typ *Type) {
	renderDescription(b, "", typ.Description)
	b.WriteString("union ")
	b.WriteString(typ.Name)
	b.WriteString(" = ")
	b.WriteString(strings.Join(typ.PossibleTypes, " | "))
	b.WriteString("\n\n")
}

func renderField(b *strings.Builder, typ *Type, field *Field, isRoot bool) {
	renderDescription(b, "  ", field.Description)
	b.WriteString("  ")
	b.WriteString(field.Name)
	if len(field.Arguments) > 0 {
		b.WriteString("(")
		for i, arg := range field.Arguments {
			if i > 0 {
				b.WriteString(", ")
			}
			renderInputValue(b, arg)
		}
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(renderTypeRef(field.Type))

	for _, id := range typ.IDFields {
		if id == field.Name {
			b.WriteString(" @id")
			break
		}
	}
	if field.Internal {
		b.WriteString(" @internal")
	}
	// An empty mapping keeps Requires as the only source of required fields.
	if field.Async && !isRoot && typ.Kind == TypeKindObject {
		b.WriteString(" @resolve(with: {})")
	}
	if field.Requires != "" && typ.Kind == TypeKindObject && !isRoot {
		b.WriteString(" @requires(fields: ")
		b.WriteString(strconv.Quote(field.Requires))
		b.WriteString(")")
	}
	renderDeprecated(b, field.IsDeprecated, field.DeprecationReason)
	b.WriteString("\n")
}

func renderInputValue(b *strings.Builder, v *InputValue) {
	b.WriteString(v.Name)
	b.WriteString(": ")
	b.WriteString(renderTypeRef(v.Type))
	if v.DefaultValue != "" {
		b.WriteString(" = ")
		b.WriteString(v.DefaultValue)
	}
}

func renderDeprecated(b *strings.Builder, deprecated bool, reason string) {
	if !deprecated {
		return
	}
	b.WriteString(" @deprecated")
	if reason != "" {
		b.WriteString("(reason: ")
		b.WriteString(strconv.Quote(reason))
		b.WriteString(")")
	}
}

func renderTypeRef(typeRef *TypeRef) string {
	if typeRef == nil {
		return ""
	}
	switch typeRef.Kind {
	case TypeRefKindNamed:
		return typeRef.Named
	case TypeRefKindList:
		return "[" + renderTypeRef(typeRef.OfType) + "]"
	case TypeRefKindNonNull:
		return renderTypeRef(typeRef.OfType) + "!"
	default:
		return ""
	}
}
