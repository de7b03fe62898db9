package dynrecord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	schema, err := NewSchema("Event", []TypeDef{
		{
			Name: "Event",
			Fields: []Field{
				{Name: "title", ID: 1, Kind: KindString},
				{Name: "all_day", ID: 2, Kind: KindBool},
				{Name: "duration_min", ID: 3, Kind: KindInt},
				{Name: "confidence", ID: 4, Kind: KindFloat},
				{Name: "location", ID: 5, Kind: KindTable, Table: "Location"},
			},
		},
		{
			Name: "Location",
			Fields: []Field{
				{Name: "name", ID: 1, Kind: KindString},
				{Name: "lat", ID: 2, Kind: KindFloat},
				{Name: "lng", ID: 3, Kind: KindFloat},
			},
		},
	})
	require.NoError(t, err)
	return schema
}

func TestNewSchemaValidation(t *testing.T) {
	tests := []struct {
		name string
		root string
		defs []TypeDef
	}{
		{
			name: "unknown root",
			root: "Missing",
			defs: []TypeDef{{Name: "A", Fields: []Field{{Name: "x", ID: 1, Kind: KindInt}}}},
		},
		{
			name: "dangling table reference",
			root: "A",
			defs: []TypeDef{{Name: "A", Fields: []Field{{Name: "x", ID: 1, Kind: KindTable, Table: "Nope"}}}},
		},
		{
			name: "duplicate field id",
			root: "A",
			defs: []TypeDef{{Name: "A", Fields: []Field{
				{Name: "x", ID: 1, Kind: KindInt},
				{Name: "y", ID: 1, Kind: KindInt},
			}}},
		},
		{
			name: "duplicate field name",
			root: "A",
			defs: []TypeDef{{Name: "A", Fields: []Field{
				{Name: "x", ID: 1, Kind: KindInt},
				{Name: "x", ID: 2, Kind: KindInt},
			}}},
		},
		{
			name: "table field without type",
			root: "A",
			defs: []TypeDef{{Name: "A", Fields: []Field{{Name: "x", ID: 1, Kind: KindTable}}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchema(tt.root, tt.defs)
			assert.ErrorIs(t, err, ErrBadSchema)
		})
	}
}

func TestBuilderNewTable(t *testing.T) {
	builder := NewBuilder(testSchema(t))

	record, err := builder.NewTable("Location")
	require.NoError(t, err)
	assert.Equal(t, "Location", record.TypeName())

	_, err = builder.NewTable("Nonexistent")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestSetTypeChecking(t *testing.T) {
	record := NewBuilder(testSchema(t)).NewRoot()

	require.NoError(t, record.Set("title", "team sync"))
	require.NoError(t, record.Set("all_day", false))
	require.NoError(t, record.Set("duration_min", 30))
	require.NoError(t, record.Set("confidence", 0.75))

	// Mismatches are rejected, never coerced.
	assert.ErrorIs(t, record.Set("title", 42), ErrFieldType)
	assert.ErrorIs(t, record.Set("duration_min", "30"), ErrFieldType)
	assert.ErrorIs(t, record.Set("all_day", 1), ErrFieldType)
	assert.ErrorIs(t, record.Set("no_such_field", "x"), ErrUnknownField)

	// Set overwrites.
	require.NoError(t, record.Set("title", "standup"))
	v, ok, err := record.Get("title")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "standup", v.String())
}

func TestMutableReturnsSameInstance(t *testing.T) {
	record := NewBuilder(testSchema(t)).NewRoot()

	first, err := record.Mutable("location")
	require.NoError(t, err)
	second, err := record.Mutable("location")
	require.NoError(t, err)
	assert.Same(t, first, second)

	require.NoError(t, first.Set("name", "office"))
	v, ok, err := second.Get("name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "office", v.String())

	_, err = record.Mutable("title")
	assert.ErrorIs(t, err, ErrNotTable)
}

func TestSetPath(t *testing.T) {
	record := NewBuilder(testSchema(t)).NewRoot()

	require.NoError(t, record.SetPath("location.name", "cafe"))
	require.NoError(t, record.SetPath("title", "lunch"))

	location, err := record.Child("location")
	require.NoError(t, err)
	require.NotNil(t, location)
	v, ok, err := location.Get("name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cafe", v.String())

	assert.ErrorIs(t, record.SetPath("location.bogus", "x"), ErrUnknownField)
	assert.ErrorIs(t, record.SetPath("title.nested", "x"), ErrNotTable)
}

func TestSerializeRoundTrip(t *testing.T) {
	schema := testSchema(t)
	record := NewBuilder(schema).NewRoot()
	require.NoError(t, record.Set("title", "dinner at 8"))
	require.NoError(t, record.Set("all_day", true))
	require.NoError(t, record.Set("duration_min", 90))
	require.NoError(t, record.Set("confidence", 0.5))
	require.NoError(t, record.SetPath("location.name", "trattoria"))
	require.NoError(t, record.SetPath("location.lat", 47.36))

	buf := record.Serialize()

	restored := NewBuilder(schema).NewRoot()
	require.NoError(t, restored.MergeFromSerialized(buf))

	for _, field := range []string{"title", "all_day", "duration_min", "confidence"} {
		want, ok, err := record.Get(field)
		require.NoError(t, err)
		require.True(t, ok)
		got, ok, err := restored.Get(field)
		require.NoError(t, err)
		require.True(t, ok, field)
		assert.Equal(t, want, got, field)
	}
	location, err := restored.Child("location")
	require.NoError(t, err)
	require.NotNil(t, location)
	v, ok, err := location.Get("name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "trattoria", v.String())

	// Serialize is deterministic.
	assert.Equal(t, buf, restored.Serialize())
}

func TestSerializeEmptyRecord(t *testing.T) {
	schema := testSchema(t)
	buf := NewBuilder(schema).NewRoot().Serialize()
	require.NotEmpty(t, buf)

	restored := NewBuilder(schema).NewRoot()
	require.NoError(t, restored.MergeFromSerialized(buf))
	_, ok, err := restored.Get("title")
	require.NoError(t, err)
	assert.False(t, ok)
}

// Merged values seed the record; later Set calls win.
func TestMergeThenSetWins(t *testing.T) {
	schema := testSchema(t)

	seed := NewBuilder(schema).NewRoot()
	require.NoError(t, seed.Set("title", "default title"))
	require.NoError(t, seed.Set("duration_min", 60))
	buf := seed.Serialize()

	record := NewBuilder(schema).NewRoot()
	require.NoError(t, record.MergeFromSerialized(buf))
	require.NoError(t, record.Set("title", "extracted title"))

	v, ok, err := record.Get("title")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "extracted title", v.String())

	v, ok, err = record.Get("duration_min")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(60), v.Int())
}

func TestMergeRejectsGarbage(t *testing.T) {
	record := NewBuilder(testSchema(t)).NewRoot()

	assert.ErrorIs(t, record.MergeFromSerialized(nil), ErrBadWire)
	assert.ErrorIs(t, record.MergeFromSerialized([]byte{1, 2}), ErrBadWire)
	assert.ErrorIs(t, record.MergeFromSerialized([]byte{200, 0, 0, 0, 9, 9}), ErrBadWire)
}

func TestMergeRejectsKindMismatch(t *testing.T) {
	// Same ids, swapped kinds.
	other, err := NewSchema("Event", []TypeDef{{
		Name: "Event",
		Fields: []Field{
			{Name: "title", ID: 1, Kind: KindInt},
		},
	}})
	require.NoError(t, err)
	seed := NewBuilder(other).NewRoot()
	require.NoError(t, seed.Set("title", 7))
	buf := seed.Serialize()

	record := NewBuilder(testSchema(t)).NewRoot()
	assert.ErrorIs(t, record.MergeFromSerialized(buf), ErrFieldType)
}
