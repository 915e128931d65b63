package protoreg

import (
	"fmt"
	"strings"

	"github.com/hanpama/protoproject/internal/schema"
	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

func (b *builder) addMessage(t *schema.Type) *protobuilder.MessageBuilder {
	name := nameProtoSource(t.Name)
	mb := protobuilder.NewMessage(name)
	mb.SetComments(comment(t.Description))
	b.messages[t.Name] = mb
	b.types[name] = t.Name
	return mb
}

func (b *builder) addEnum(t *schema.Type) *protobuilder.EnumBuilder {
	eb := protobuilder.NewEnum(nameProtoSource(t.Name))
	eb.SetComments(comment(t.Description))
	b.enums[t.Name] = eb

	zero := protobuilder.NewEnumValue(nameProtoEnumValue(t.Name, "UNSPECIFIED"))
	zero.SetNumber(0)
	eb.AddValue(zero)

	values := make([]*protobuilder.EnumValueBuilder, 0, len(t.EnumValues))
	for _, v := range t.EnumValues {
		if strings.EqualFold(v.Name, "UNSPECIFIED") {
			continue
		}
		evb := protobuilder.NewEnumValue(nameProtoEnumValue(t.Name, v.Name))
		evb.SetComments(comment(v.Description))
		eb.AddValue(evb)
		values = append(values, evb)
	}
	allocateEnumValueNumbers(values)
	return eb
}

func (b *builder) addSourceFields(t *schema.Type) error {
	mb := b.messages[t.Name]
	fieldBuilders := make([]*protobuilder.FieldBuilder, 0, len(t.Fields))
	for _, f := range t.Fields {
		if f.Async {
			continue
		}
		ft, err := b.fieldType(f.Type.GetNamedType())
		if err != nil {
			return fmt.Errorf("field %s.%s: %w", t.Name, f.Name, err)
		}
		fb := protobuilder.NewField(nameProtoField(f.Name), ft)
		fb.SetComments(comment(f.Description))
		switch {
		case f.Type.IsList():
			fb.SetRepeated()
		case !f.Type.IsNonNull():
			fb.SetOptional()
		}
		mb.AddField(fb)
		fieldBuilders = append(fieldBuilders, fb)
		b.fields[[2]protoreflect.Name{mb.Name(), fb.Name()}] = [2]string{t.Name, f.Name}
	}
	allocateFieldNumbers(fieldBuilders)
	return nil
}

// addEnvelopeChoices fills the `value` oneof with one choice per possible
// object type, each holding that type's source message.
func (b *builder) addEnvelopeChoices(t *schema.Type) {
	mb := b.messages[t.Name]
	oneof := protobuilder.NewOneof(envelopeOneof)
	mb.AddOneOf(oneof)

	choices := make([]*protobuilder.FieldBuilder, 0, len(t.PossibleTypes))
	for _, pt := range t.PossibleTypes {
		target, ok := b.messages[pt]
		if !ok {
			continue
		}
		fb := protobuilder.NewField(nameProtoField(pt), protobuilder.FieldTypeMessage(target))
		oneof.AddChoice(fb)
		choices = append(choices, fb)
	}
	allocateFieldNumbers(choices)
}

func (b *builder) fieldType(named string) (*protobuilder.FieldType, error) {
	t := b.schema.Type(named)
	if t == nil {
		return nil, fmt.Errorf("unknown type %s", named)
	}
	switch t.Kind {
	case schema.TypeKindScalar:
		kind, ok := scalarKinds[t.ProtoScalar]
		if !ok {
			return nil, fmt.Errorf("scalar %s maps to unsupported protobuf type %q", named, t.ProtoScalar)
		}
		return protobuilder.FieldTypeScalar(kind), nil
	case schema.TypeKindEnum:
		return protobuilder.FieldTypeEnum(b.enums[named]), nil
	}
	if mb, ok := b.messages[named]; ok {
		return protobuilder.FieldTypeMessage(mb), nil
	}
	return nil, fmt.Errorf("type %s has no source message", named)
}

var scalarKinds = map[string]protoreflect.Kind{
	protoreflect.BoolKind.String():     protoreflect.BoolKind,
	protoreflect.Int32Kind.String():    protoreflect.Int32Kind,
	protoreflect.Sint32Kind.String():   protoreflect.Sint32Kind,
	protoreflect.Uint32Kind.String():   protoreflect.Uint32Kind,
	protoreflect.Int64Kind.String():    protoreflect.Int64Kind,
	protoreflect.Sint64Kind.String():   protoreflect.Sint64Kind,
	protoreflect.Uint64Kind.String():   protoreflect.Uint64Kind,
	protoreflect.Sfixed32Kind.String(): protoreflect.Sfixed32Kind,
	protoreflect.Fixed32Kind.String():  protoreflect.Fixed32Kind,
	protoreflect.FloatKind.String():    protoreflect.FloatKind,
	protoreflect.Sfixed64Kind.String(): protoreflect.Sfixed64Kind,
	protoreflect.Fixed64Kind.String():  protoreflect.Fixed64Kind,
	protoreflect.DoubleKind.String():   protoreflect.DoubleKind,
	protoreflect.StringKind.String():   protoreflect.StringKind,
	protoreflect.BytesKind.String():    protoreflect.BytesKind,
}

func comment(desc string) protobuilder.Comments {
	if desc == "" {
		return protobuilder.Comments{}
	}
	lines := strings.Split(desc, "\n")
	for i, line := range lines {
		lines[i] = " " + line
	}
	return protobuilder.Comments{LeadingComment: strings.Join(lines, "\n") + "\n"}
}
