package aggregate

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/tkonate/mesuivi/internal/indicator"
	"github.com/tkonate/mesuivi/internal/storage"
	"github.com/tkonate/mesuivi/internal/storage/sqlite"
)

func setupEngine(t *testing.T) (*Engine, *sqlite.Store) {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpfile.Close()

	store, err := sqlite.NewStore(tmpfile.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		os.Remove(tmpfile.Name())
	})

	return NewEngine(store.DB()), store
}

var (
	periodStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
)

func seedTickets(t *testing.T, store *sqlite.Store) {
	t.Helper()
	ctx := context.Background()

	tickets := []storage.Ticket{
		{ID: "t1", Status: storage.TicketResolved, DateCreated: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)},
		{ID: "t2", Status: storage.TicketClosed, DateCreated: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)},
		{ID: "t3", Status: storage.TicketOpen, DateCreated: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{ID: "t4", Status: storage.TicketResolved, DateCreated: time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC)},
	}
	for _, ticket := range tickets {
		if err := store.InsertTicket(ctx, ticket); err != nil {
			t.Fatalf("failed to seed ticket: %v", err)
		}
	}
}

func TestCompute_Count(t *testing.T) {
	engine, store := setupEngine(t)
	seedTickets(t, store)

	ds := &indicator.DataSource{
		Module:      "grievance",
		Model:       "ticket",
		DateField:   "date_created",
		Aggregation: indicator.AggregationCount,
		Active:      true,
	}

	got, err := engine.Compute(context.Background(), "GRM_001", ds, periodStart, periodEnd)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got != 3 {
		t.Errorf("expected 3 tickets in period, got %v", got)
	}
}

func TestCompute_CountWithFilters(t *testing.T) {
	engine, store := setupEngine(t)
	seedTickets(t, store)

	ds := &indicator.DataSource{
		Module:      "grievance",
		Model:       "ticket",
		DateField:   "date_created",
		Aggregation: indicator.AggregationCount,
		Filters:     map[string]any{"status__in": []any{"RESOLVED", "CLOSED"}},
		Active:      true,
	}

	got, err := engine.Compute(context.Background(), "GRM_001", ds, periodStart, periodEnd)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got != 2 {
		t.Errorf("expected 2 treated tickets in period, got %v", got)
	}
}

func TestCompute_CountDistinct(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()

	due := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	payments := []sqlite.Payment{
		{ID: "p1", IndividualID: "i1", Status: storage.PaymentAccepted, Amount: 100, DateDue: due},
		{ID: "p2", IndividualID: "i1", Status: storage.PaymentAccepted, Amount: 100, DateDue: due},
		{ID: "p3", IndividualID: "i2", Status: storage.PaymentAccepted, Amount: 100, DateDue: due},
	}
	for _, p := range payments {
		if err := store.InsertPayment(ctx, p); err != nil {
			t.Fatalf("failed to seed payment: %v", err)
		}
	}

	ds := &indicator.DataSource{
		Module:        "payroll",
		Model:         "payment",
		DateField:     "date_due",
		Aggregation:   indicator.AggregationCountDistinct,
		DistinctField: "individual_id",
		Active:        true,
	}

	got, err := engine.Compute(ctx, "PAY_002", ds, periodStart, periodEnd)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got != 2 {
		t.Errorf("expected 2 distinct individuals, got %v", got)
	}
}

func TestCompute_Sum(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()

	due := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	outside := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	payments := []sqlite.Payment{
		{ID: "p1", IndividualID: "i1", Status: storage.PaymentAccepted, Amount: 25000, DateDue: due},
		{ID: "p2", IndividualID: "i2", Status: storage.PaymentAccepted, Amount: 30000, DateDue: due},
		{ID: "p3", IndividualID: "i3", Status: storage.PaymentAccepted, Amount: 99999, DateDue: outside},
	}
	for _, p := range payments {
		if err := store.InsertPayment(ctx, p); err != nil {
			t.Fatalf("failed to seed payment: %v", err)
		}
	}

	ds := &indicator.DataSource{
		Module:      "payroll",
		Model:       "payment",
		DateField:   "date_due",
		Aggregation: indicator.AggregationSum,
		ValueField:  "amount",
		Active:      true,
	}

	got, err := engine.Compute(ctx, "PAY_001", ds, periodStart, periodEnd)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got != 55000 {
		t.Errorf("expected 55000, got %v", got)
	}
}

func TestCompute_SumEmptySetIsZero(t *testing.T) {
	engine, _ := setupEngine(t)

	ds := &indicator.DataSource{
		Module:      "payroll",
		Model:       "payment",
		DateField:   "date_due",
		Aggregation: indicator.AggregationSum,
		ValueField:  "amount",
		Active:      true,
	}

	got, err := engine.Compute(context.Background(), "PAY_001", ds, periodStart, periodEnd)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got != 0 {
		t.Errorf("empty SUM must be 0, got %v", got)
	}
}

func TestCompute_Percent(t *testing.T) {
	engine, store := setupEngine(t)
	seedTickets(t, store)

	ds := &indicator.DataSource{
		Module:             "grievance",
		Model:              "ticket",
		DateField:          "date_created",
		Aggregation:        indicator.AggregationPercent,
		DistinctField:      "id",
		NumeratorFilters:   map[string]any{"status__in": []any{"RESOLVED", "CLOSED"}},
		DenominatorFilters: map[string]any{"status__ne": ""},
		Active:             true,
	}

	got, err := engine.Compute(context.Background(), "GRM_002", ds, periodStart, periodEnd)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	// 2 of 3 in-period tickets are treated.
	if got != 66.67 {
		t.Errorf("expected 66.67, got %v", got)
	}
}

func TestCompute_PercentZeroDenominator(t *testing.T) {
	engine, _ := setupEngine(t)

	ds := &indicator.DataSource{
		Module:             "grievance",
		Model:              "ticket",
		DateField:          "date_created",
		Aggregation:        indicator.AggregationPercent,
		DistinctField:      "id",
		NumeratorFilters:   map[string]any{"status__in": []any{"RESOLVED"}},
		DenominatorFilters: map[string]any{"status__ne": ""},
		Active:             true,
	}

	got, err := engine.Compute(context.Background(), "GRM_002", ds, periodStart, periodEnd)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got != 0 {
		t.Errorf("zero denominator must yield 0.0, got %v", got)
	}
}

func TestCompute_ConfigErrors(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		ds   *indicator.DataSource
	}{
		{
			name: "unknown model",
			ds: &indicator.DataSource{
				Module: "payroll", Model: "salary", DateField: "date_due",
				Aggregation: indicator.AggregationCount,
			},
		},
		{
			name: "unknown aggregation",
			ds: &indicator.DataSource{
				Module: "grievance", Model: "ticket", DateField: "date_created",
				Aggregation: indicator.Aggregation("MEDIAN"),
			},
		},
		{
			name: "sum without value field",
			ds: &indicator.DataSource{
				Module: "payroll", Model: "payment", DateField: "date_due",
				Aggregation: indicator.AggregationSum,
			},
		},
		{
			name: "malformed filter column",
			ds: &indicator.DataSource{
				Module: "grievance", Model: "ticket", DateField: "date_created",
				Aggregation: indicator.AggregationCount,
				Filters:     map[string]any{"status; DROP TABLE tickets": "x"},
			},
		},
		{
			name: "malformed date field",
			ds: &indicator.DataSource{
				Module: "grievance", Model: "ticket", DateField: "date_created OR 1=1",
				Aggregation: indicator.AggregationCount,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Compute(ctx, "BAD_001", tt.ds, periodStart, periodEnd)
			var cfgErr indicator.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestBuildPredicates(t *testing.T) {
	sql, args, err := buildPredicates("X", map[string]any{
		"status":         "ACTIVE",
		"amount__gte":    100,
		"plan__contains": "TMU",
	})
	if err != nil {
		t.Fatalf("buildPredicates: %v", err)
	}

	// Keys are sorted, so the fragment order is stable.
	want := " AND amount >= ? AND plan LIKE '%' || ? || '%' AND status = ?"
	if sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
	if len(args) != 3 {
		t.Errorf("expected 3 args, got %d", len(args))
	}
}

func TestSafePercent(t *testing.T) {
	tests := []struct {
		num, den, want float64
	}{
		{0, 0, 0},
		{5, 0, 0},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{3, 3, 100},
		{1, 8, 12.5},
	}

	for _, tt := range tests {
		if got := SafePercent(tt.num, tt.den); got != tt.want {
			t.Errorf("SafePercent(%v, %v) = %v, want %v", tt.num, tt.den, got, tt.want)
		}
	}
}
