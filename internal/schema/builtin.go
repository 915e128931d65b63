package schema

import "github.com/hanpama/protoproject/internal/language"

// builtinScalars maps the GraphQL built-in scalars to protobuf scalar kinds.
var builtinScalars = map[string]string{
	"String":  "string",
	"Int":     "int32",
	"Float":   "double",
	"Boolean": "bool",
	"ID":      "string",
}

// defaultProtoScalar is used for custom scalars without @mapScalar.
const defaultProtoScalar = "string"

// prelude declares the directives that describe how each field is backed.
var prelude = &language.Source{
	Name:    "protoproject.graphql",
	BuiltIn: true,
	Input: `
scalar _FieldMap

directive @id on FIELD_DEFINITION
directive @internal on FIELD_DEFINITION
directive @resolve(with: _FieldMap, batch: Boolean) on FIELD_DEFINITION
directive @load(with: _FieldMap, batch: Boolean) on FIELD_DEFINITION
directive @requires(fields: String!) on FIELD_DEFINITION
directive @connection on OBJECT
directive @segment on OBJECT
directive @mapScalar(toProtobuf: String!) on SCALAR
`,
}
