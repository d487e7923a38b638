// Package batch orchestrates periodic indicator computation runs: it
// selects the active automatic indicators, dispatches each one to its
// formula or descriptor aggregation, and writes a single audit log per run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tkonate/mesuivi/internal/aggregate"
	"github.com/tkonate/mesuivi/internal/formula"
	"github.com/tkonate/mesuivi/internal/indicator"
	"github.com/tkonate/mesuivi/internal/storage"
)

var (
	// ErrInvalidPeriod is returned when the period bounds are out of order.
	// No side effect happens in that case.
	ErrInvalidPeriod = errors.New("period start must not be after period end")

	// ErrBatchInProgress is returned when a run for the same period is
	// already executing in this process.
	ErrBatchInProgress = errors.New("a batch for this period is already running")
)

// Runner executes indicator computation batches.
type Runner struct {
	registry     *formula.Registry
	engine       *aggregate.Engine
	env          *formula.Env
	logs         storage.LogStore
	definitions  storage.DefinitionStore
	indicatorDir string
	schemaPath   string

	locks       *periodLocks
	concurrency int64
	logger      *slog.Logger

	mu         sync.RWMutex
	indicators []indicator.Indicator
}

// NewRunner creates a runner over the given computation backends.
func NewRunner(registry *formula.Registry, engine *aggregate.Engine, env *formula.Env, logs storage.LogStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry:    registry,
		engine:      engine,
		env:         env,
		logs:        logs,
		locks:       newPeriodLocks(),
		concurrency: 1,
		logger:      logger,
	}
}

// SetDefinitionStore sets the optional store that definitions are mirrored
// to on load.
func (r *Runner) SetDefinitionStore(defs storage.DefinitionStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions = defs
}

// SetConcurrency bounds how many indicators compute at once. Values below
// one mean sequential.
func (r *Runner) SetConcurrency(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < 1 {
		n = 1
	}
	r.concurrency = int64(n)
}

// SetIndicators replaces the loaded definition set.
func (r *Runner) SetIndicators(defs []indicator.Indicator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indicators = defs
}

// LoadIndicators loads and validates indicator definitions from a directory,
// then mirrors them to the definition store when one is configured.
func (r *Runner) LoadIndicators(ctx context.Context, dir, schemaPath string) error {
	files, loadErrs := indicator.LoadFromDirectory(dir)
	if len(loadErrs) > 0 {
		return fmt.Errorf("failed to load indicators: %d errors", len(loadErrs))
	}
	if len(files) == 0 {
		return fmt.Errorf("no indicators found in %s", dir)
	}

	validator, err := indicator.NewValidator(schemaPath, r.registry.Keys())
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}
	if validationErrs := validator.ValidateDirectory(dir); len(validationErrs) > 0 {
		return fmt.Errorf("indicator validation failed: %d errors", len(validationErrs))
	}

	defs := make([]indicator.Indicator, 0, len(files))
	for _, f := range files {
		defs = append(defs, *f.Indicator)
	}

	r.mu.Lock()
	r.indicators = defs
	r.indicatorDir = dir
	r.schemaPath = schemaPath
	store := r.definitions
	r.mu.Unlock()

	if store != nil {
		for _, def := range defs {
			if err := store.UpsertDefinition(ctx, &def); err != nil {
				r.logger.Warn("failed to mirror indicator definition",
					"indicator", def.Code, "error", err)
			}
		}
	}

	r.logger.Info("loaded indicators", "count", len(defs), "dir", dir)
	return nil
}

// ComputeBatch runs every active automatic indicator for the period and
// appends one audit log describing the outcome. Individual indicator
// failures are recorded in the log but never abort the run; the returned
// count is the number of indicators that computed successfully.
func (r *Runner) ComputeBatch(ctx context.Context, start, end time.Time, actor string) (int, error) {
	if start.After(end) {
		return 0, ErrInvalidPeriod
	}

	key := periodKey(start, end)
	if !r.locks.tryAcquire(key) {
		return 0, ErrBatchInProgress
	}
	defer r.locks.release(key)

	candidates := r.candidates()
	r.logger.Info("starting batch",
		"period_start", start.Format("2006-01-02"),
		"period_end", end.Format("2006-01-02"),
		"indicators", len(candidates),
		"actor", actor)

	var (
		mu        sync.Mutex
		succeeded int
		failures  []string
	)
	record := func(code string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", code, err))
			return
		}
		succeeded++
	}

	r.mu.RLock()
	workers := r.concurrency
	r.mu.RUnlock()

	sem := semaphore.NewWeighted(workers)
	var wg sync.WaitGroup
	for _, ind := range candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			record(ind.Code, err)
			continue
		}
		wg.Add(1)
		go func(ind indicator.Indicator) {
			defer wg.Done()
			defer sem.Release(1)
			err := r.computeOne(ctx, ind, start, end)
			if err != nil {
				r.logger.Error("indicator computation failed",
					"indicator", ind.Code, "error", err)
			}
			record(ind.Code, err)
		}(ind)
	}
	wg.Wait()

	sort.Strings(failures)

	logEntry := storage.MonitoringLog{
		PeriodStart:     start,
		PeriodEnd:       end,
		ExecutedBy:      actor,
		IndicatorsCount: succeeded,
		Success:         len(failures) == 0,
		ErrorDetails:    strings.Join(failures, "\n"),
	}
	if err := r.logs.AppendLog(ctx, &logEntry); err != nil {
		return succeeded, fmt.Errorf("failed to write monitoring log: %w", err)
	}

	r.logger.Info("batch finished",
		"succeeded", succeeded, "failed", len(failures))
	return succeeded, nil
}

// candidates returns the active automatic indicators, sorted by code.
func (r *Runner) candidates() []indicator.Indicator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]indicator.Indicator, 0, len(r.indicators))
	for _, ind := range r.indicators {
		if ind.Active && ind.Automatic {
			out = append(out, ind)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// computeOne dispatches a single indicator. An indicator carrying both a
// formula key and an active descriptor is computed once, by its formula.
func (r *Runner) computeOne(ctx context.Context, ind indicator.Indicator, start, end time.Time) error {
	if ind.FormulaKey != "" {
		fn, ok := r.registry.Resolve(ind.FormulaKey)
		if !ok {
			return indicator.ConfigError{
				Code:    ind.Code,
				Message: fmt.Sprintf("unknown formula key %q", ind.FormulaKey),
			}
		}
		return fn(ctx, r.env, &ind, start, end)
	}

	if ind.DataSource != nil && ind.DataSource.Active {
		value, err := r.engine.Compute(ctx, ind.Code, ind.DataSource, start, end)
		if err != nil {
			return err
		}
		_, err = r.env.Values.UpsertComputed(ctx, storage.ComputedValue{
			Key: storage.ValueKey{
				IndicatorCode: ind.Code,
				PeriodStart:   start,
				PeriodEnd:     end,
			},
			Value:  &value,
			Source: storage.SourceSystem,
		})
		return err
	}

	return indicator.ConfigError{
		Code:    ind.Code,
		Message: "no computation path: indicator has neither a formula key nor an active data source",
	}
}
