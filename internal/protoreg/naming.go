package protoreg

import (
	"strings"
	"unicode"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// envelopeOneof names the oneof that carries the concrete value of an
// interface or union source message.
const envelopeOneof protoreflect.Name = "value"

func nameProtoSource(graphQLName string) protoreflect.Name {
	return protoreflect.Name(graphQLName + "Source")
}

func nameProtoField(graphQLName string) protoreflect.Name {
	return protoreflect.Name(snakeCase(graphQLName))
}

func nameProtoEnumValue(graphQLEnumName string, graphQLEnumValueName string) protoreflect.Name {
	prefix := strings.ToUpper(snakeCase(graphQLEnumName))
	return protoreflect.Name(prefix + "_" + strings.ToUpper(graphQLEnumValueName))
}

// snakeCase converts CamelCase or PascalCase to snake_case. Runs of capitals
// are kept together, so avatarURL becomes avatar_url.
func snakeCase(s string) string {
	rs := []rune(s)
	var b strings.Builder
	for i, r := range rs {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(rs[i-1]) || unicode.IsDigit(rs[i-1])
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if prevLower || (unicode.IsUpper(rs[i-1]) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
