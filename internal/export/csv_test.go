package export

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkonate/mesuivi/internal/indicator"
	"github.com/tkonate/mesuivi/internal/storage"
	"github.com/tkonate/mesuivi/internal/storage/sqlite"
)

func setupExporter(t *testing.T) (*Exporter, *sqlite.Store) {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "test-*.db")
	require.NoError(t, err)
	tmpfile.Close()

	store, err := sqlite.NewStore(tmpfile.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		os.Remove(tmpfile.Name())
	})

	return NewExporter(store, store), store
}

func ptr(f float64) *float64 { return &f }

func TestWriteCSV(t *testing.T) {
	exporter, store := setupExporter(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDefinition(ctx, &indicator.Indicator{
		Code: "ODP_002", Name: "Beneficiaries of emergency cash transfers",
		Unit: "count", Frequency: indicator.FrequencyQuarterly,
		Method: indicator.MethodAutomatic, Automatic: true, Active: true,
	}))

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	_, err := store.UpsertComputed(ctx, storage.ComputedValue{
		Key:    storage.ValueKey{IndicatorCode: "ODP_002", PeriodStart: start, PeriodEnd: end},
		Value:  ptr(2),
		Source: "Payroll / Social Protection",
	})
	require.NoError(t, err)

	require.NoError(t, store.InsertManual(ctx, storage.IndicatorValue{
		IndicatorCode:    "PIP_020",
		PeriodStart:      start,
		PeriodEnd:        end,
		QualitativeValue: "Satisfaisant",
		Source:           "MANUAL",
	}))

	var buf bytes.Buffer
	count, err := exporter.WriteCSV(ctx, &buf, storage.ValueFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3, "header plus two rows")

	assert.Equal(t,
		"indicator_code,indicator_name,period_start,period_end,region_code,gender,value,qualitative_value,source,validated,validated_by",
		lines[0])

	assert.Contains(t, lines[1], "ODP_002")
	assert.Contains(t, lines[1], "Beneficiaries of emergency cash transfers")
	assert.Contains(t, lines[1], "2025-01-01")
	assert.Contains(t, lines[1], ",2,")

	assert.Contains(t, lines[2], "PIP_020")
	assert.Contains(t, lines[2], "Satisfaisant")
	// Unknown to the definition store and qualitative: empty name and value.
	assert.Contains(t, lines[2], "PIP_020,,")
}

func TestWriteCSV_FilterByIndicator(t *testing.T) {
	exporter, store := setupExporter(t)
	ctx := context.Background()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	for _, code := range []string{"ODP_002", "GRM_001"} {
		_, err := store.UpsertComputed(ctx, storage.ComputedValue{
			Key:    storage.ValueKey{IndicatorCode: code, PeriodStart: start, PeriodEnd: end},
			Value:  ptr(1),
			Source: storage.SourceSystem,
		})
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	count, err := exporter.WriteCSV(ctx, &buf, storage.ValueFilter{IndicatorCode: "GRM_001"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NotContains(t, buf.String(), "ODP_002")
}

func TestWriteCSV_Empty(t *testing.T) {
	exporter, _ := setupExporter(t)

	var buf bytes.Buffer
	count, err := exporter.WriteCSV(context.Background(), &buf, storage.ValueFilter{})
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, buf.String(), "no header without rows")
}
