// Package aggregate executes data-source descriptors: declarative
// filter+aggregation configurations that produce one scalar per indicator
// and period without bespoke code.
package aggregate

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tkonate/mesuivi/internal/indicator"
)

// tableBindings maps a descriptor's module/model pair to the table it is
// allowed to read. Descriptors never name tables directly.
var tableBindings = map[string]string{
	"payroll/payment":                "payments",
	"social_protection/beneficiary":  "beneficiaries",
	"social_protection/benefit_plan": "benefit_plans",
	"grievance/ticket":               "tickets",
	"monitoring/submission":          "submissions",
}

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Engine executes descriptors against the transactional store.
type Engine struct {
	db *sqlx.DB
}

// NewEngine creates a new aggregation engine on the given database handle.
func NewEngine(db *sqlx.DB) *Engine {
	return &Engine{db: db}
}

// Compute resolves the descriptor's target collection, applies the date
// range and generic filters, and dispatches on the aggregation kind.
// A descriptor the engine cannot execute is a configuration fault for that
// indicator, not a silent default.
func (e *Engine) Compute(ctx context.Context, code string, ds *indicator.DataSource, start, end time.Time) (float64, error) {
	table, err := resolveTable(code, ds)
	if err != nil {
		return 0, err
	}

	if !identifierPattern.MatchString(ds.DateField) {
		return 0, indicator.ConfigError{Code: code,
			Message: fmt.Sprintf("invalid date field %q", ds.DateField)}
	}

	// Inclusive period range plus the descriptor's generic filters.
	where := fmt.Sprintf("%s >= ? AND %s <= ?", ds.DateField, ds.DateField)
	args := []interface{}{start, end}

	filterSQL, filterArgs, err := buildPredicates(code, ds.Filters)
	if err != nil {
		return 0, err
	}
	where += filterSQL
	args = append(args, filterArgs...)

	switch ds.Aggregation {
	case indicator.AggregationCount:
		return e.scalar(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where), args)

	case indicator.AggregationCountDistinct:
		field, err := requireField(code, "distinctField", ds.DistinctField)
		if err != nil {
			return 0, err
		}
		return e.scalar(ctx, fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s WHERE %s", field, table, where), args)

	case indicator.AggregationSum:
		field, err := requireField(code, "valueField", ds.ValueField)
		if err != nil {
			return 0, err
		}
		// Empty set sums to 0, never NULL.
		return e.scalar(ctx, fmt.Sprintf("SELECT COALESCE(SUM(%s), 0) FROM %s WHERE %s", field, table, where), args)

	case indicator.AggregationPercent:
		return e.percent(ctx, code, table, where, args, ds)

	default:
		return 0, indicator.ConfigError{Code: code,
			Message: fmt.Sprintf("unknown aggregation kind %q", ds.Aggregation)}
	}
}

// percent computes round(100 * numerator/denominator, 2) over distinct
// counts, 0.0 when the denominator set is empty.
func (e *Engine) percent(ctx context.Context, code, table, where string, args []interface{}, ds *indicator.DataSource) (float64, error) {
	field, err := requireField(code, "distinctField", ds.DistinctField)
	if err != nil {
		return 0, err
	}
	if len(ds.NumeratorFilters) == 0 || len(ds.DenominatorFilters) == 0 {
		return 0, indicator.ConfigError{Code: code,
			Message: "PERCENT requires both numeratorFilters and denominatorFilters"}
	}

	numSQL, numArgs, err := buildPredicates(code, ds.NumeratorFilters)
	if err != nil {
		return 0, err
	}
	denSQL, denArgs, err := buildPredicates(code, ds.DenominatorFilters)
	if err != nil {
		return 0, err
	}

	num, err := e.scalar(ctx,
		fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s WHERE %s%s", field, table, where, numSQL),
		append(append([]interface{}{}, args...), numArgs...))
	if err != nil {
		return 0, err
	}

	den, err := e.scalar(ctx,
		fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s WHERE %s%s", field, table, where, denSQL),
		append(append([]interface{}{}, args...), denArgs...))
	if err != nil {
		return 0, err
	}

	return SafePercent(num, den), nil
}

// scalar runs a single-value aggregate query.
func (e *Engine) scalar(ctx context.Context, query string, args []interface{}) (float64, error) {
	var value float64
	if err := e.db.GetContext(ctx, &value, query, args...); err != nil {
		return 0, fmt.Errorf("aggregate query failed: %w", err)
	}
	return value, nil
}

// buildPredicates converts a descriptor filter map into conjunctive WHERE
// fragments. Keys are a column name with an optional operator suffix;
// map iteration order is hidden by sorting so queries stay deterministic.
func buildPredicates(code string, filters map[string]any) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sql strings.Builder
	var args []interface{}

	for _, key := range keys {
		column, op := key, "eq"
		if idx := strings.LastIndex(key, "__"); idx > 0 {
			column, op = key[:idx], key[idx+2:]
		}

		if !identifierPattern.MatchString(column) {
			return "", nil, indicator.ConfigError{Code: code,
				Message: fmt.Sprintf("invalid filter field %q", column)}
		}

		value := filters[key]
		switch op {
		case "eq":
			sql.WriteString(fmt.Sprintf(" AND %s = ?", column))
			args = append(args, value)
		case "ne":
			sql.WriteString(fmt.Sprintf(" AND %s != ?", column))
			args = append(args, value)
		case "gte":
			sql.WriteString(fmt.Sprintf(" AND %s >= ?", column))
			args = append(args, value)
		case "lte":
			sql.WriteString(fmt.Sprintf(" AND %s <= ?", column))
			args = append(args, value)
		case "gt":
			sql.WriteString(fmt.Sprintf(" AND %s > ?", column))
			args = append(args, value)
		case "lt":
			sql.WriteString(fmt.Sprintf(" AND %s < ?", column))
			args = append(args, value)
		case "contains":
			sql.WriteString(fmt.Sprintf(" AND %s LIKE '%%' || ? || '%%'", column))
			args = append(args, value)
		case "in":
			values, err := toSlice(value)
			if err != nil || len(values) == 0 {
				return "", nil, indicator.ConfigError{Code: code,
					Message: fmt.Sprintf("filter %s requires a non-empty list", key)}
			}
			sql.WriteString(fmt.Sprintf(" AND %s IN (?%s)", column, strings.Repeat(", ?", len(values)-1)))
			args = append(args, values...)
		default:
			return "", nil, indicator.ConfigError{Code: code,
				Message: fmt.Sprintf("unknown filter operator %q in %q", op, key)}
		}
	}

	return sql.String(), args, nil
}

func toSlice(value any) ([]interface{}, error) {
	switch v := value.(type) {
	case []interface{}:
		return v, nil
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("not a list: %T", value)
	}
}

func resolveTable(code string, ds *indicator.DataSource) (string, error) {
	key := ds.Module + "/" + ds.Model
	table, ok := tableBindings[key]
	if !ok {
		return "", indicator.ConfigError{Code: code,
			Message: fmt.Sprintf("no table binding for %q", key)}
	}
	return table, nil
}

func requireField(code, name, value string) (string, error) {
	if value == "" {
		return "", indicator.ConfigError{Code: code,
			Message: fmt.Sprintf("missing required descriptor field %s", name)}
	}
	if !identifierPattern.MatchString(value) {
		return "", indicator.ConfigError{Code: code,
			Message: fmt.Sprintf("invalid %s %q", name, value)}
	}
	return value, nil
}

// SafePercent returns 100*num/den rounded to 2 decimals, 0 when den is 0.
func SafePercent(num, den float64) float64 {
	if den == 0 {
		return 0.0
	}
	return Round2(100 * num / den)
}

// Round2 rounds to 2 decimal places.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
