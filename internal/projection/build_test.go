package projection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTree(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		query string
		path  []string
		want  string
	}{
		{
			name:  "leaves and nested object",
			query: `{ author(id: "1") { name country { code } aliases } }`,
			path:  []string{"author"},
			want:  "Author { name country { Country { code } } aliases }",
		},
		{
			name:  "repeated and aliased fields merge",
			query: `{ author(id: "1") { name n: name country { code } c: country { name } } }`,
			path:  []string{"author"},
			want:  "Author { name country { Country { code name } } }",
		},
		{
			name:  "argument resolver requires its parent fields",
			query: `{ author(id: "1") { portrait(size: 32) } }`,
			path:  []string{"author"},
			want:  "Author { name id }",
		},
		{
			name:  "nested requirement",
			query: `{ author(id: "1") { bestseller { title } } }`,
			path:  []string{"author"},
			want:  "Author { country { Country { code } } id }",
		},
		{
			name:  "requirement merges with selection",
			query: `{ author(id: "1") { country { name } bestseller { title } } }`,
			path:  []string{"author"},
			want:  "Author { country { Country { name code } } id }",
		},
		{
			name:  "loader requires internal field",
			query: `{ books { nodes { title author { name } } } }`,
			path:  []string{"books"},
			want:  "Book { title authorId }",
		},
		{
			name:  "list of objects is left to its resolver",
			query: `{ author(id: "1") { name awards { title } } }`,
			path:  []string{"author"},
			want:  "Author { name }",
		},
		{
			name:  "interface root fans out",
			query: `{ node(id: "1") { id ... on Book { title } } }`,
			path:  []string{"node"},
			want:  "Author { id } | Book { id title }",
		},
		{
			name:  "union root with named fragment",
			query: `{ search(text: "x") { ...AuthorName ... on Book { isbn } } } fragment AuthorName on Author { name }`,
			path:  []string{"search"},
			want:  "Author { name } | Book { isbn }",
		},
		{
			name:  "interface field",
			query: `{ books { nodes { related { ... on Author { name } } } } }`,
			path:  []string{"books"},
			want:  "Book { related { Author { name } | Book { id } } }",
		},
		{
			name:  "typename only is corrected to id",
			query: `{ author(id: "1") { __typename } }`,
			path:  []string{"author"},
			want:  "Author { id }",
		},
		{
			name:  "correction without id picks first readable leaf",
			query: `{ node(id: "1") { ... on Book { reviews(first: 2) { items { __typename } totalCount } } } }`,
			path:  []string{"node", "reviews"},
			want:  "Review { stars }",
		},
		{
			name:  "segment items",
			query: `{ node(id: "1") { ... on Book { reviews(first: 2) { items { text } } } } }`,
			path:  []string{"node", "reviews"},
			want:  "Review { text }",
		},
		{
			name:  "connection returned by a resolver",
			query: `{ author(id: "1") { books { nodes { title } } } }`,
			path:  []string{"author", "books"},
			want:  "Book { title }",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.tree(t, tt.query, tt.path...))
		})
	}
}

func TestBuildConnectionLookThrough(t *testing.T) {
	f := newFixture(t)

	viaNodes := f.tree(t, `{ books { nodes { title isbn } } }`, "books")
	viaEdges := f.tree(t, `{ books { totalCount edges { cursor node { title isbn } } } }`, "books")
	viaFragment := f.tree(t, `{ books { ... on BookConnection { nodes { title } } edges { node { isbn } } } }`, "books")

	assert.Equal(t, "Book { title isbn }", viaNodes)
	assert.Equal(t, viaNodes, viaEdges)
	assert.Equal(t, viaNodes, viaFragment)
}

func TestBuildNodesAndEdgesMerge(t *testing.T) {
	f := newFixture(t)

	got := f.tree(t, `{ books {
		nodes { title author { id } }
		edges { node { isbn title } }
		more: nodes { cover }
	} }`, "books")
	assert.Equal(t, "Book { title authorId isbn cover }", got)
}

func TestBuildSkipInclude(t *testing.T) {
	f := newFixture(t)
	query := `query ($on: Boolean!) { author(id: "1") {
		name @skip(if: $on)
		country @include(if: $on) { code }
		aliases @skip(if: false)
		id @include(if: true)
	} }`
	sel := f.selection(t, query, "author")

	tests := []struct {
		vars map[string]any
		want string
	}{
		{map[string]any{"on": true}, "Author { country { Country { code } } aliases id }"},
		{map[string]any{"on": false}, "Author { name aliases id }"},
		{nil, "Author { name country { Country { code } } aliases id }"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.vars), func(t *testing.T) {
			c, err := f.engine.Build(context.Background(), sel, "", tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.String())
		})
	}
}

func TestBuildRootTypeOverride(t *testing.T) {
	f := newFixture(t)
	sel := f.selection(t, `{ node(id: "1") { id ... on Book { title } } }`, "node")

	c, err := f.engine.Build(context.Background(), sel, "Book", nil)
	require.NoError(t, err)
	assert.Equal(t, "Book { id title }", c.String())
}

func TestBuildErrors(t *testing.T) {
	f := newFixture(t)

	many := make([]string, 0, maxElementSelections+1)
	for i := range maxElementSelections + 1 {
		many = append(many, fmt.Sprintf("n%d: nodes { title }", i))
	}

	tests := []struct {
		name  string
		query string
		path  []string
		want  error
		at    string
	}{
		{
			name:  "leaf field",
			query: `{ author(id: "1") { name } }`,
			path:  []string{"author", "name"},
			want:  ErrEmptySelection,
			at:    "name",
		},
		{
			name:  "wrapper without elements",
			query: `{ books { totalCount } }`,
			path:  []string{"books"},
			want:  ErrEmptySelection,
			at:    "books",
		},
		{
			name:  "nothing readable",
			query: `{ shelf { books { totalCount } } }`,
			path:  []string{"shelf"},
			want:  ErrEmptyProjection,
			at:    "shelf",
		},
		{
			name:  "too many element selections",
			query: "{ books { " + strings.Join(many, " ") + " } }",
			path:  []string{"books"},
			want:  ErrTooManyElementSelections,
			at:    "books",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.build(t, tt.query, tt.path...)
			require.ErrorIs(t, err, tt.want)
			var be *BuildError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tt.at, be.Path.String())
		})
	}
}

func TestBuildMaxElementSelections(t *testing.T) {
	f := newFixture(t)

	many := make([]string, 0, maxElementSelections)
	for i := range maxElementSelections {
		many = append(many, fmt.Sprintf("n%d: nodes { title }", i))
	}
	got := f.tree(t, "{ books { "+strings.Join(many, " ")+" } }", "books")
	assert.Equal(t, "Book { title }", got)
}

func TestBuildCanceled(t *testing.T) {
	f := newFixture(t)
	sel := f.selection(t, `{ author(id: "1") { name } }`, "author")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine.Build(ctx, sel, "", nil)
	require.ErrorIs(t, err, context.Canceled)
}
