package projection

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequirementsFromSchema(t *testing.T) {
	f := newFixture(t)
	reqs := f.engine.Requirements()
	require.True(t, reqs.Sealed())

	tests := []struct {
		id   FieldIdentity
		want string
	}{
		{FieldIdentity{"Author", "portrait"}, "Author { name id }"},
		{FieldIdentity{"Author", "books"}, "Author { id }"},
		{FieldIdentity{"Author", "bestseller"}, "Author { country { Country { code } } id }"},
		{FieldIdentity{"Author", "trophies"}, "Author { awards [ Award { title } ] id }"},
		{FieldIdentity{"Book", "author"}, "Book { authorId }"},
		{FieldIdentity{"Book", "reviews"}, "Book { id }"},
	}
	for _, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			n, ok := reqs.Get(tt.id)
			require.True(t, ok)
			assert.True(t, n.Sealed())
			assert.Equal(t, tt.want, n.String())
		})
	}

	_, ok := reqs.Get(FieldIdentity{"Author", "name"})
	assert.False(t, ok)
	_, ok = reqs.Get(FieldIdentity{"Shelf", "books"})
	assert.False(t, ok, "no id fields means nothing to require")
	assert.Equal(t, len(tests), reqs.Len())
}

func TestRegisterInvalid(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		source  string
		entity  string
		message string
	}{
		{name: "syntax", source: "name {", entity: "Author", message: "invalid selection"},
		{name: "unknown field", source: "nickname", entity: "Author", message: "field nickname does not exist on type Author"},
		{name: "resolved field", source: "books { totalCount }", entity: "Author", message: "field Author.books is not read from the source message"},
		{name: "argument resolver", source: "portrait", entity: "Author", message: "field Author.portrait is not read from the source message"},
		{name: "object without selection", source: "country", entity: "Author", message: "field country of type Country must have a selection"},
		{name: "leaf with selection", source: "name { code }", entity: "Author", message: "leaf field name cannot have a selection"},
		{name: "alias", source: "n: name", entity: "Author", message: "alias n is not allowed"},
		{name: "directive", source: "name @skip(if: true)", entity: "Author", message: "directives on name are not allowed"},
		{name: "fragment", source: "... on Author { name }", entity: "Author", message: "fragments are not allowed"},
		{name: "unknown entity", source: "id", entity: "Publisher", message: "unknown type Publisher"},
		{name: "many operations", source: "id } query { id", entity: "Author", message: "expected a single selection set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs := NewRequirements(f.schema, f.reg)
			err := reqs.Register(FieldIdentity{"Author", "extra"}, tt.source, tt.entity)
			var se *SchemaError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.message, se.Message)
			assert.Equal(t, 0, reqs.Len())
		})
	}
}

func TestRegisterPosition(t *testing.T) {
	f := newFixture(t)
	reqs := NewRequirements(f.schema, f.reg)

	err := reqs.Register(FieldIdentity{"Author", "extra"}, "id nickname", "Author")
	require.EqualError(t, err, "requirement of Author.extra (col 4): field nickname does not exist on type Author")
}

func TestRegisterFirstWins(t *testing.T) {
	f := newFixture(t)
	reqs := NewRequirements(f.schema, f.reg)
	id := FieldIdentity{"Author", "extra"}

	require.NoError(t, reqs.Register(id, "name", "Author"))
	require.NoError(t, reqs.Register(id, "country { code }", "Author"))
	n, ok := reqs.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Author { name }", n.String())
	assert.Equal(t, []FieldIdentity{id}, reqs.Identities())

	reqs.Seal()
	err := reqs.Register(FieldIdentity{"Author", "other"}, "name", "Author")
	require.ErrorIs(t, err, ErrSealed)
}

func TestRegisterAbstract(t *testing.T) {
	f := newFixture(t)
	reqs := NewRequirements(f.schema, f.reg)
	id := FieldIdentity{"Book", "extra"}

	require.NoError(t, reqs.Register(id, "related { id }", "Book"))
	n, _ := reqs.Get(id)
	assert.Equal(t, "Book { related { Author { id } | Book { id } } }", n.String())
}
