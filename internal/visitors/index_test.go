package visitors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildIndex(t *testing.T) {
	rows := []RawRow{
		{"007", "Bob", "Irregular", "missing badge"},
		{"7", "Bob", "Irregular", "missing badge"},
		{"7.0", "Ann", "ok", ""},
		{"abc", "Nobody", "ok"},
		{},
		{"12345", "Jane Doe", "ok", ""},
	}

	idx, stats := BuildIndex(rows, NewNormalizer(PolicyNumeric))

	assert.Equal(t, BuildStats{Rows: 6, Indexed: 3, Skipped: 2, Duplicates: 1}, stats)
	assert.Len(t, idx, 2)
	assert.Equal(t, []Record{
		{Visitor: "Bob", Status: IrregularStatus, Reason: "missing badge"},
		{Visitor: "Ann", Status: "ok", Reason: ""},
	}, idx.Lookup("7"))
	assert.Equal(t, []Record{{Visitor: "Jane Doe", Status: "ok"}}, idx.Lookup("12345"))
	assert.Nil(t, idx.Lookup("99999"))
}

func TestBuildIndex_PolicyAppliesToRows(t *testing.T) {
	rows := []RawRow{{"007", "Bob", "ok"}}

	opaque, _ := BuildIndex(rows, NewNormalizer(PolicyOpaque))
	assert.NotNil(t, opaque.Lookup("007"))
	assert.Nil(t, opaque.Lookup("7"))

	numeric, _ := BuildIndex(rows, NewNormalizer(PolicyNumeric))
	assert.NotNil(t, numeric.Lookup("7"))
}

func TestBuildIndex_Empty(t *testing.T) {
	idx, stats := BuildIndex(nil, NewNormalizer(PolicyNumeric))
	assert.Empty(t, idx)
	assert.Equal(t, BuildStats{}, stats)
}
