package projection

import (
	"context"
	"os"
	"testing"

	"github.com/hanpama/protoproject/internal/language"
	"github.com/hanpama/protoproject/internal/protoreg"
	"github.com/hanpama/protoproject/internal/schema"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/reflect/protoreflect"
)

type fixture struct {
	schema *schema.Schema
	reg    *protoreg.Registry
	engine *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	sdl, err := os.ReadFile("testdata/library.graphql")
	require.NoError(t, err)
	s, err := schema.BuildFromSDL(string(sdl))
	require.NoError(t, err, "failed to build schema")
	reg, err := protoreg.Build(s, protoreg.WithPackage("library.source"))
	require.NoError(t, err, "failed to build source messages")
	e, err := NewEngine(s, reg, opts...)
	require.NoError(t, err, "failed to create engine")
	return &fixture{schema: s, reg: reg, engine: e}
}

// selection loads query and returns the field found by following path
// through response names, looking into fragments.
func (f *fixture) selection(t *testing.T, query string, path ...string) *language.Field {
	t.Helper()
	doc := loadDocument(t, f, query)
	op := language.FindOperation(doc, "")
	require.NotNil(t, op)
	sel := findField(op.SelectionSet, path)
	require.NotNil(t, sel, "no field at %v", path)
	return sel
}

func loadDocument(t *testing.T, f *fixture, query string) *language.QueryDocument {
	t.Helper()
	doc, err := language.LoadQuery(f.schema.Document(), query)
	require.NoError(t, err)
	return doc
}

func (f *fixture) build(t *testing.T, query string, path ...string) (*TypeContainer, error) {
	t.Helper()
	return f.engine.Build(context.Background(), f.selection(t, query, path...), "", nil)
}

func (f *fixture) tree(t *testing.T, query string, path ...string) string {
	t.Helper()
	c, err := f.build(t, query, path...)
	require.NoError(t, err)
	require.True(t, c.Sealed())
	return c.String()
}

func (f *fixture) projector(t *testing.T, query string, path ...string) *Projector {
	t.Helper()
	p, err := f.engine.Projector(context.Background(), f.selection(t, query, path...), "", nil)
	require.NoError(t, err)
	return p
}

func (f *fixture) source(t *testing.T, typ, data string) protoreflect.Message {
	t.Helper()
	msg, err := f.reg.NewSource(typ)
	require.NoError(t, err)
	require.NoError(t, protojson.Unmarshal([]byte(data), msg.Interface()))
	return msg
}

func findField(set language.SelectionSet, path []string) *language.Field {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *language.Field:
			if responseName(sel) != path[0] {
				continue
			}
			if len(path) == 1 {
				return sel
			}
			if f := findField(sel.SelectionSet, path[1:]); f != nil {
				return f
			}
		case *language.InlineFragment:
			if f := findField(sel.SelectionSet, path); f != nil {
				return f
			}
		case *language.FragmentSpread:
			if sel.Definition == nil {
				continue
			}
			if f := findField(sel.Definition.SelectionSet, path); f != nil {
				return f
			}
		}
	}
	return nil
}
