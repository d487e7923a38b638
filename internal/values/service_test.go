package values

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkonate/mesuivi/internal/indicator"
	"github.com/tkonate/mesuivi/internal/storage"
	"github.com/tkonate/mesuivi/internal/storage/sqlite"
)

var (
	q1Start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q1End   = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	q2Start = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	q2End   = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
)

func ptr(f float64) *float64 { return &f }

func newTestService(t *testing.T) (*Service, *sqlite.Store) {
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

	defs := []indicator.Indicator{
		{
			Code: "PIP_020", Name: "Beneficiary perception", Unit: "qualitative",
			Frequency: indicator.FrequencySemiannual, Method: indicator.MethodManual, Active: true,
		},
		{
			Code: "ODP_004", Name: "Regular transfer beneficiaries", Unit: "count",
			Frequency: indicator.FrequencyQuarterly, Method: indicator.MethodManual,
			Active: true, Cumulative: true,
		},
		{
			Code: "PIP_015", Name: "Average savings", Unit: "currency",
			Frequency: indicator.FrequencyQuarterly, Method: indicator.MethodManual, Active: true,
		},
	}

	return NewService(store, defs), store
}

func TestCreate_Numeric(t *testing.T) {
	service, _ := newTestService(t)

	saved, err := service.Create(context.Background(), Entry{
		IndicatorCode: "ODP_004",
		PeriodStart:   q1Start,
		PeriodEnd:     q1End,
		Value:         ptr(200),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, 200.0, *saved.Value)
	assert.Equal(t, SourceManual, saved.Source)
	assert.False(t, saved.Validated, "manual entries start unvalidated")
}

func TestCreate_Qualitative(t *testing.T) {
	service, _ := newTestService(t)

	saved, err := service.Create(context.Background(), Entry{
		IndicatorCode:    "PIP_020",
		PeriodStart:      q1Start,
		PeriodEnd:        q1End,
		QualitativeValue: "Satisfaisant",
	})
	require.NoError(t, err)

	assert.Nil(t, saved.Value)
	assert.Equal(t, "Satisfaisant", saved.QualitativeValue)
}

func TestCreate_CollectsAllReasons(t *testing.T) {
	service, store := newTestService(t)

	_, err := service.Create(context.Background(), Entry{
		IndicatorCode:    "NOPE_001",
		PeriodStart:      q1End,
		PeriodEnd:        q1Start,
		Value:            ptr(5),
		QualitativeValue: "bien",
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Reasons, 3, "unknown code, inverted period, and both value kinds")

	rows, listErr := store.ListValues(context.Background(), storage.ValueFilter{})
	require.NoError(t, listErr)
	assert.Empty(t, rows, "nothing may be written on validation failure")
}

func TestCreate_RequiresExactlyOneValueKind(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Create(context.Background(), Entry{
		IndicatorCode: "PIP_015",
		PeriodStart:   q1Start,
		PeriodEnd:     q1End,
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Reasons[0], "required")
}

func TestCreate_DuplicateKeyRejected(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	entry := Entry{
		IndicatorCode: "PIP_015",
		PeriodStart:   q1Start,
		PeriodEnd:     q1End,
		Value:         ptr(6000),
	}

	_, err := service.Create(ctx, entry)
	require.NoError(t, err)

	_, err = service.Create(ctx, entry)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Reasons[0], "already recorded")
}

func TestCreate_DistinctDisaggregationAllowed(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Create(ctx, Entry{
		IndicatorCode: "PIP_015", PeriodStart: q1Start, PeriodEnd: q1End, Value: ptr(6000),
	})
	require.NoError(t, err)

	_, err = service.Create(ctx, Entry{
		IndicatorCode: "PIP_015", PeriodStart: q1Start, PeriodEnd: q1End,
		RegionCode: "LAB", Value: ptr(5200),
	})
	require.NoError(t, err, "a different region is a different observation")
}

func TestCreate_CumulativeRegression(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Create(ctx, Entry{
		IndicatorCode: "ODP_004", PeriodStart: q1Start, PeriodEnd: q1End, Value: ptr(200),
	})
	require.NoError(t, err)

	// A later period below the last recorded value must be rejected.
	_, err = service.Create(ctx, Entry{
		IndicatorCode: "ODP_004", PeriodStart: q2Start, PeriodEnd: q2End, Value: ptr(150),
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Reasons[0], "cannot regress")

	// Equal or higher is fine.
	_, err = service.Create(ctx, Entry{
		IndicatorCode: "ODP_004", PeriodStart: q2Start, PeriodEnd: q2End, Value: ptr(260),
	})
	require.NoError(t, err)
}

func TestCreate_NonCumulativeMayRegress(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Create(ctx, Entry{
		IndicatorCode: "PIP_015", PeriodStart: q1Start, PeriodEnd: q1End, Value: ptr(6000),
	})
	require.NoError(t, err)

	_, err = service.Create(ctx, Entry{
		IndicatorCode: "PIP_015", PeriodStart: q2Start, PeriodEnd: q2End, Value: ptr(4500),
	})
	require.NoError(t, err, "only cumulative indicators enforce monotonicity")
}

func TestValidate(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	saved, err := service.Create(ctx, Entry{
		IndicatorCode: "PIP_015", PeriodStart: q1Start, PeriodEnd: q1End, Value: ptr(6000),
	})
	require.NoError(t, err)

	require.NoError(t, service.Validate(ctx, saved.ID, "me-officer"))

	got, err := store.GetValue(ctx, saved.Key())
	require.NoError(t, err)
	assert.True(t, got.Validated)
	assert.Equal(t, "me-officer", got.ValidatedBy)

	err = service.Validate(ctx, "", "me-officer")
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
}
