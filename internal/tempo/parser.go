package tempo

import (
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/support/exception"
)

// Row is one parsed line of the delimited response: one label per dataset
// dimension in request order, plus the observation value.
type Row struct {
	DimLabels []string
	RawValue  string
	Value     *float64
	Status    model.ValueStatus
}

// Table is the parsed response of one chunk request.
type Table struct {
	Header []string
	Rows   []Row
}

// Value sentinels used by the upstream table export.
const (
	sentinelUnavailable  = "-"
	sentinelConfidential = "c"
	sentinelSuppressed   = "*"
	sentinelEmpty        = ":"
)

// ParseTable decodes the delimited response body. The first record is the
// header; every data record carries dimCount label columns followed by the
// value column. A record with any other shape is a malformed response.
func ParseTable(body string, dimCount int) (*Table, error) {
	reader := csv.NewReader(strings.NewReader(body))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, exception.New("tempo", "failed to decode delimited response", err, false)
	}
	if len(records) == 0 {
		return nil, exception.Newf("tempo", "empty response body")
	}

	table := &Table{Header: records[0]}
	for i, record := range records[1:] {
		if len(record) != dimCount+1 {
			return nil, exception.Newf("tempo", "malformed response row %d: got %d columns, want %d", i+1, len(record), dimCount+1)
		}
		row := Row{
			DimLabels: record[:dimCount],
			RawValue:  strings.TrimSpace(record[dimCount]),
		}
		row.Value, row.Status = parseValue(row.RawValue)
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// parseValue classifies the observation cell. Numeric cells may carry spaces
// as thousands separators and a comma as decimal separator.
func parseValue(raw string) (*float64, model.ValueStatus) {
	switch raw {
	case "", sentinelEmpty:
		return nil, model.ValueNone
	case sentinelUnavailable:
		return nil, model.ValueUnavailable
	case sentinelConfidential, sentinelSuppressed:
		return nil, model.ValueConfidential
	}

	normalized := strings.ReplaceAll(raw, " ", "")
	normalized = strings.ReplaceAll(normalized, " ", "")
	normalized = normalizeDecimalSeparator(normalized)

	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		// Non-numeric, non-sentinel cells are treated as empty observations
		// rather than failing the whole chunk.
		return nil, model.ValueNone
	}
	return &v, model.ValuePresent
}

// normalizeDecimalSeparator rewrites a numeric literal that may use either
// comma or dot as the decimal mark, the other one grouping thousands. When
// both appear the rightmost is the decimal mark. Repeated commas without a
// dot are thousands groupers; a single comma is a decimal mark.
func normalizeDecimalSeparator(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			i := strings.LastIndex(s, ",")
			s = strings.ReplaceAll(s[:i], ",", "") + "." + s[i+1:]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	}
	return s
}
