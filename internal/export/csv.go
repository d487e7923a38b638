// Package export renders stored indicator values as CSV for reporting
// partners.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/jszwec/csvutil"

	"github.com/tkonate/mesuivi/internal/storage"
)

// row is one exported line. Dates are formatted as plain dates and the
// numeric value is left empty for qualitative observations.
type row struct {
	IndicatorCode    string `csv:"indicator_code"`
	IndicatorName    string `csv:"indicator_name"`
	PeriodStart      string `csv:"period_start"`
	PeriodEnd        string `csv:"period_end"`
	RegionCode       string `csv:"region_code"`
	Gender           string `csv:"gender"`
	Value            string `csv:"value"`
	QualitativeValue string `csv:"qualitative_value"`
	Source           string `csv:"source"`
	Validated        bool   `csv:"validated"`
	ValidatedBy      string `csv:"validated_by"`
}

// Exporter writes indicator values as CSV, enriched with the indicator
// names from the mirrored definitions.
type Exporter struct {
	values storage.ValueStore
	defs   storage.DefinitionStore
}

// NewExporter creates an exporter. The definition store is optional; without
// it the indicator_name column stays empty.
func NewExporter(values storage.ValueStore, defs storage.DefinitionStore) *Exporter {
	return &Exporter{values: values, defs: defs}
}

// WriteCSV streams the values matching the filter to w, one header line
// followed by one line per value.
func (e *Exporter) WriteCSV(ctx context.Context, w io.Writer, f storage.ValueFilter) (int, error) {
	values, err := e.values.ListValues(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("failed to list values: %w", err)
	}

	names := make(map[string]string)
	if e.defs != nil {
		defs, err := e.defs.ListDefinitions(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to list definitions: %w", err)
		}
		for _, def := range defs {
			names[def.Code] = def.Name
		}
	}

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	for _, v := range values {
		if err := enc.Encode(toRow(v, names)); err != nil {
			return 0, fmt.Errorf("failed to encode value %s: %w", v.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	return len(values), nil
}

func toRow(v storage.IndicatorValue, names map[string]string) row {
	out := row{
		IndicatorCode:    v.IndicatorCode,
		IndicatorName:    names[v.IndicatorCode],
		PeriodStart:      v.PeriodStart.Format("2006-01-02"),
		PeriodEnd:        v.PeriodEnd.Format("2006-01-02"),
		RegionCode:       v.RegionCode,
		Gender:           v.Gender,
		QualitativeValue: v.QualitativeValue,
		Source:           v.Source,
		Validated:        v.Validated,
		ValidatedBy:      v.ValidatedBy,
	}
	if v.Value != nil {
		out.Value = strconv.FormatFloat(*v.Value, 'f', -1, 64)
	}
	return out
}
