package protoreg

import (
	"hash/fnv"
	"sort"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

const (
	maxFieldNumber = 31767
	reservedStart  = 19000
	reservedEnd    = 19999
)

func allocateFieldNumbers(fieldBuilders []*protobuilder.FieldBuilder) {
	names := make([]string, len(fieldBuilders))
	for i, fb := range fieldBuilders {
		names[i] = string(fb.Name())
	}
	for i, n := range hashNumbers(names) {
		fieldBuilders[i].SetNumber(protoreflect.FieldNumber(n))
	}
}

func allocateEnumValueNumbers(enumValueBuilders []*protobuilder.EnumValueBuilder) {
	names := make([]string, len(enumValueBuilders))
	for i, evb := range enumValueBuilders {
		names[i] = string(evb.Name())
	}
	for i, n := range hashNumbers(names) {
		enumValueBuilders[i].SetNumber(protoreflect.EnumNumber(n))
	}
}

// hashNumbers assigns stable tag numbers so that adding a field to a type
// does not renumber its siblings. Each name starts at FNV32a(name) mod
// 31767 + 1 and probes linearly past taken numbers and the reserved
// 19000-19999 block. Names are placed in sorted order so collisions resolve
// the same way regardless of declaration order.
func hashNumbers(names []string) []int {
	order := make([]int, len(names))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return names[order[i]] < names[order[j]] })

	out := make([]int, len(names))
	taken := make(map[int]bool, len(names))
	for _, idx := range order {
		start := int(fnv32(names[idx])%maxFieldNumber) + 1
		n := start
		for reserved(n) || taken[n] {
			n = nextNumber(n)
			if n == start {
				panic("protoreg: exhausted field number space")
			}
		}
		taken[n] = true
		out[idx] = n
	}
	return out
}

func reserved(n int) bool { return n >= reservedStart && n <= reservedEnd }

func nextNumber(n int) int {
	if n >= maxFieldNumber {
		return 1
	}
	return n + 1
}

func fnv32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
