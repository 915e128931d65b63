package protoreg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hanpama/protoproject/internal/schema"
	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// DefaultPackage is the proto package of generated source messages.
const DefaultPackage = "protoproject.source"

type options struct {
	pkg      string
	filePath string
}

// Option configures Build.
type Option func(*options)

// WithPackage sets the proto package of the generated file.
func WithPackage(pkg string) Option {
	return func(o *options) { o.pkg = pkg }
}

// WithFilePath sets the path of the generated file. It defaults to the
// package path followed by source.proto.
func WithFilePath(path string) Option {
	return func(o *options) { o.filePath = path }
}

// Build generates one source message per non-root object type, an envelope
// message per interface and union, and an enum per GraphQL enum. Only fields
// read from the parent's source (not resolved) become message fields.
func Build(s *schema.Schema, opts ...Option) (*Registry, error) {
	o := options{pkg: DefaultPackage}
	for _, opt := range opts {
		opt(&o)
	}
	if o.filePath == "" {
		o.filePath = strings.ReplaceAll(o.pkg, ".", "/") + "/source.proto"
	}

	fb := protobuilder.NewFile(o.filePath)
	fb.SetPackageName(protoreflect.FullName(o.pkg))
	fb.SetSyntax(protoreflect.Proto3)

	b := &builder{
		schema:   s,
		messages: make(map[string]*protobuilder.MessageBuilder),
		enums:    make(map[string]*protobuilder.EnumBuilder),
		types:    make(map[protoreflect.Name]string),
		fields:   make(map[[2]protoreflect.Name][2]string),
	}

	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	// Pass 1: declare messages and enums so that fields can reference them
	for _, name := range names {
		t := s.Types[name]
		switch t.Kind {
		case schema.TypeKindObject:
			if s.IsRootType(name) {
				continue
			}
			fb.AddMessage(b.addMessage(t))
		case schema.TypeKindInterface, schema.TypeKindUnion:
			fb.AddMessage(b.addMessage(t))
		case schema.TypeKindEnum:
			fb.AddEnum(b.addEnum(t))
		}
	}

	// Pass 2: source fields and envelope choices
	for _, name := range names {
		t := s.Types[name]
		switch t.Kind {
		case schema.TypeKindObject:
			if s.IsRootType(name) {
				continue
			}
			if err := b.addSourceFields(t); err != nil {
				return nil, err
			}
		case schema.TypeKindInterface, schema.TypeKindUnion:
			b.addEnvelopeChoices(t)
		}
	}

	fd, err := fb.Build()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", o.filePath, err)
	}

	reg := newRegistry()
	reg.files = append(reg.files, fd)
	msgs := fd.Messages()
	for i := 0; i < msgs.Len(); i++ {
		md := msgs.Get(i)
		gqlType, ok := b.types[md.Name()]
		if !ok {
			continue
		}
		reg.addMessage(gqlType, md)
		fields := md.Fields()
		for j := 0; j < fields.Len(); j++ {
			field := fields.Get(j)
			if gql, ok := b.fields[[2]protoreflect.Name{md.Name(), field.Name()}]; ok {
				reg.addField(gql[0], gql[1], field)
			}
		}
	}
	return reg, nil
}

type builder struct {
	schema   *schema.Schema
	messages map[string]*protobuilder.MessageBuilder
	enums    map[string]*protobuilder.EnumBuilder
	types    map[protoreflect.Name]string
	fields   map[[2]protoreflect.Name][2]string
}
