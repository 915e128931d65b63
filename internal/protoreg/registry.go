package protoreg

import (
	"fmt"
	"os"

	"github.com/hanpama/protoproject/internal/schema"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Registry maps GraphQL types and fields to the source message descriptors
// that carry them at runtime.
type Registry struct {
	files    []protoreflect.FileDescriptor
	messages map[string]protoreflect.MessageDescriptor
	fields   map[[2]string]protoreflect.FieldDescriptor
	types    map[protoreflect.FullName]string
}

func newRegistry() *Registry {
	return &Registry{
		messages: make(map[string]protoreflect.MessageDescriptor),
		fields:   make(map[[2]string]protoreflect.FieldDescriptor),
		types:    make(map[protoreflect.FullName]string),
	}
}

func (r *Registry) addMessage(gqlType string, md protoreflect.MessageDescriptor) {
	r.messages[gqlType] = md
	r.types[md.FullName()] = gqlType
}

func (r *Registry) addField(gqlType, gqlField string, fd protoreflect.FieldDescriptor) {
	r.fields[[2]string{gqlType, gqlField}] = fd
}

// Files returns the file descriptors the registry was built from.
func (r *Registry) Files() []protoreflect.FileDescriptor { return r.files }

// GetSourceMessageDescriptor returns the source message of a GraphQL type.
// Interfaces and unions return their envelope message.
func (r *Registry) GetSourceMessageDescriptor(objectType string) protoreflect.MessageDescriptor {
	return r.messages[objectType]
}

// GetSourceFieldDescriptor returns the source message field backing a GraphQL
// field, or nil when the field is resolved rather than read from the source.
func (r *Registry) GetSourceFieldDescriptor(objectType string, graphqlField string) protoreflect.FieldDescriptor {
	return r.fields[[2]string{objectType, graphqlField}]
}

// TypeOf returns the GraphQL type carried by a source message.
func (r *Registry) TypeOf(name protoreflect.FullName) (string, bool) {
	t, ok := r.types[name]
	return t, ok
}

// NewSource returns an empty dynamic source message for a GraphQL type.
func (r *Registry) NewSource(objectType string) (protoreflect.Message, error) {
	md := r.messages[objectType]
	if md == nil {
		return nil, fmt.Errorf("no source message for type %s", objectType)
	}
	return dynamicpb.NewMessage(md), nil
}

// Bind builds a registry from existing descriptors, for example ones compiled
// by protoc from a file previously generated with Build. Messages and fields
// are matched by the same naming rules Build uses.
func Bind(s *schema.Schema, files *protoregistry.Files, pkg string) (*Registry, error) {
	reg := newRegistry()
	seen := make(map[string]bool)
	for name, t := range s.Types {
		switch t.Kind {
		case schema.TypeKindObject, schema.TypeKindInterface, schema.TypeKindUnion:
		default:
			continue
		}
		if s.IsRootType(name) {
			continue
		}
		full := protoreflect.FullName(pkg).Append(nameProtoSource(name))
		d, err := files.FindDescriptorByName(full)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", name, err)
		}
		md, ok := d.(protoreflect.MessageDescriptor)
		if !ok {
			return nil, fmt.Errorf("type %s: %s is not a message", name, full)
		}
		reg.addMessage(name, md)
		if f := md.ParentFile(); !seen[f.Path()] {
			seen[f.Path()] = true
			reg.files = append(reg.files, f)
		}

		if t.Kind != schema.TypeKindObject {
			if md.Oneofs().ByName(envelopeOneof) == nil {
				return nil, fmt.Errorf("type %s: %s has no %q oneof", name, full, envelopeOneof)
			}
			continue
		}
		for _, f := range t.Fields {
			if f.Async {
				continue
			}
			fd := md.Fields().ByName(nameProtoField(f.Name))
			if fd == nil {
				return nil, fmt.Errorf("type %s: %s has no field %s for %s", name, full, nameProtoField(f.Name), f.Name)
			}
			reg.addField(name, f.Name, fd)
		}
	}
	return reg, nil
}

// LoadDescriptorSet reads a serialized FileDescriptorSet, as written by
// protoc --descriptor_set_out with --include_imports.
func LoadDescriptorSet(path string) (*protoregistry.Files, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", path, err)
	}
	return files, nil
}

// DescriptorSet returns the registry's files as a FileDescriptorSet.
func (r *Registry) DescriptorSet() *descriptorpb.FileDescriptorSet {
	set := &descriptorpb.FileDescriptorSet{}
	for _, fd := range r.files {
		set.File = append(set.File, protodesc.ToFileDescriptorProto(fd))
	}
	return set
}
