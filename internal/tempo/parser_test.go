package tempo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insdata/temposync/internal/domain/model"
)

func TestParseTable(t *testing.T) {
	body := "Ani;Judete;UM: Numar persoane;Valoare\n" +
		"Anul 2020;Alba;Numar persoane;323778\n" +
		"Anul 2020;Arad;Numar persoane;1 234,5\n" +
		"Anul 2021;Alba;Numar persoane;-\n" +
		"Anul 2021;Arad;Numar persoane;c\n" +
		"Anul 2022;Alba;Numar persoane;:\n"

	table, err := ParseTable(body, 3)
	require.NoError(t, err)
	require.Len(t, table.Rows, 5)

	r := table.Rows[0]
	assert.Equal(t, []string{"Anul 2020", "Alba", "Numar persoane"}, r.DimLabels)
	require.NotNil(t, r.Value)
	assert.Equal(t, float64(323778), *r.Value)
	assert.Equal(t, model.ValuePresent, r.Status)

	r = table.Rows[1]
	require.NotNil(t, r.Value, "spaces and decimal comma are normalized")
	assert.Equal(t, 1234.5, *r.Value)

	assert.Equal(t, model.ValueUnavailable, table.Rows[2].Status)
	assert.Nil(t, table.Rows[2].Value)
	assert.Equal(t, model.ValueConfidential, table.Rows[3].Status)
	assert.Equal(t, model.ValueNone, table.Rows[4].Status)
}

func TestParseValue_SeparatorVariants(t *testing.T) {
	cases := []struct {
		raw      string
		expected float64
	}{
		{"1,234.56", 1234.56},
		{"1.234,56", 1234.56},
		{"1,234,567", 1234567},
		{"3,14", 3.14},
		{"1 234 567", 1234567},
		{"-0,5", -0.5},
	}
	for _, tc := range cases {
		v, status := parseValue(tc.raw)
		require.NotNil(t, v, "raw=%q", tc.raw)
		assert.Equal(t, tc.expected, *v, "raw=%q", tc.raw)
		assert.Equal(t, model.ValuePresent, status, "raw=%q", tc.raw)
	}
}

func TestParseValue_NonNumericIsNone(t *testing.T) {
	v, status := parseValue("n/a")
	assert.Nil(t, v)
	assert.Equal(t, model.ValueNone, status)
}

func TestParseTable_MalformedRow(t *testing.T) {
	body := "Ani;Valoare\nAnul 2020;Alba;42\n"
	_, err := ParseTable(body, 1)
	assert.Error(t, err)
}

func TestParseTable_Empty(t *testing.T) {
	_, err := ParseTable("", 2)
	assert.Error(t, err)
}

func TestEncodeQuery(t *testing.T) {
	q := EncodeQuery([]model.DimensionSelection{
		{DimIndex: 0, ItemIDs: []string{"1", "2"}},
		{DimIndex: 1, ItemIDs: []string{"10"}},
		{DimIndex: 2, ItemIDs: []string{"7", "8", "9"}},
	})
	assert.Equal(t, "1,2:10:7,8,9", q)
}
