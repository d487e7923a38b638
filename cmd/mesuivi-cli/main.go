package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tkonate/mesuivi/internal/aggregate"
	"github.com/tkonate/mesuivi/internal/batch"
	"github.com/tkonate/mesuivi/internal/config"
	"github.com/tkonate/mesuivi/internal/export"
	"github.com/tkonate/mesuivi/internal/formula"
	"github.com/tkonate/mesuivi/internal/indicator"
	"github.com/tkonate/mesuivi/internal/storage"
	"github.com/tkonate/mesuivi/internal/storage/sqlite"
	"github.com/tkonate/mesuivi/internal/values"
)

const dateLayout = "2006-01-02"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		os.Exit(runValidate(os.Args[2:]))
	case "compute":
		os.Exit(runCompute(os.Args[2:]))
	case "export":
		os.Exit(runExport(os.Args[2:]))
	case "record":
		os.Exit(runRecord(os.Args[2:]))
	case "approve":
		os.Exit(runApprove(os.Args[2:]))
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: mesuivi <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  validate --dir <path>                 Validate indicator YAML files in a directory")
	fmt.Println("  compute --start <date> --end <date>   Run the indicator batch for a period")
	fmt.Println("  export [--indicator <code>]           Export stored values as CSV")
	fmt.Println("  record --indicator <code> ...         Record a manual indicator value")
	fmt.Println("  approve --id <value-id> --by <actor>  Mark a value as validated")
	fmt.Println()
}

func runValidate(args []string) int {
	cmd := flag.NewFlagSet("validate", flag.ExitOnError)
	dir := cmd.String("dir", "", "directory containing indicator YAML files")
	schema := cmd.String("schema", "", "path to the indicator JSON schema")
	cmd.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		return 1
	}
	if *dir == "" {
		*dir = cfg.IndicatorDirectory
	}
	if *schema == "" {
		*schema = cfg.SchemaPath
	}

	validator, err := indicator.NewValidator(*schema, formula.NewRegistry().Keys())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize validator: %v\n", err)
		return 1
	}

	errors := validator.ValidateDirectory(*dir)
	if len(errors) == 0 {
		fmt.Println("✓ All indicator files are valid")
		return 0
	}

	errorsByFile := make(map[string][]indicator.ValidationError)
	for _, err := range errors {
		errorsByFile[err.File] = append(errorsByFile[err.File], err)
	}

	var files []string
	for file := range errorsByFile {
		files = append(files, file)
	}
	sort.Strings(files)

	fmt.Fprintf(os.Stderr, "✗ Validation failed with %d error(s):\n\n", len(errors))
	for _, file := range files {
		for _, err := range errorsByFile[file] {
			if err.Path != "" {
				fmt.Fprintf(os.Stderr, "%s: %s: %s\n", filepath.Base(err.File), err.Path, err.Message)
			} else {
				fmt.Fprintf(os.Stderr, "%s: %s\n", filepath.Base(err.File), err.Message)
			}
		}
	}
	return 1
}

func runCompute(args []string) int {
	cmd := flag.NewFlagSet("compute", flag.ExitOnError)
	startStr := cmd.String("start", "", "period start date (YYYY-MM-DD)")
	endStr := cmd.String("end", "", "period end date (YYYY-MM-DD)")
	actor := cmd.String("actor", "cli", "who triggered this run")
	cmd.Parse(args)

	if *startStr == "" || *endStr == "" {
		fmt.Fprintln(os.Stderr, "Error: --start and --end flags are required")
		cmd.Usage()
		return 1
	}
	start, err := time.Parse(dateLayout, *startStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --start date: %v\n", err)
		return 1
	}
	end, err := time.Parse(dateLayout, *endStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --end date: %v\n", err)
		return 1
	}

	cfg, store, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	ctx := context.Background()
	runner := buildRunner(cfg, store)
	if err := runner.LoadIndicators(ctx, cfg.IndicatorDirectory, cfg.SchemaPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	succeeded, err := runner.ComputeBatch(ctx, start, end, *actor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logs, err := store.ListLogs(ctx, 1)
	if err == nil && len(logs) > 0 && !logs[0].Success {
		fmt.Fprintf(os.Stderr, "✗ Batch finished with failures (%d succeeded):\n%s\n", succeeded, logs[0].ErrorDetails)
		return 1
	}

	fmt.Printf("✓ Computed %d indicator(s) for %s to %s\n", succeeded, *startStr, *endStr)
	return 0
}

func runExport(args []string) int {
	cmd := flag.NewFlagSet("export", flag.ExitOnError)
	indicatorCode := cmd.String("indicator", "", "restrict to one indicator code")
	startStr := cmd.String("start", "", "restrict to periods starting on or after (YYYY-MM-DD)")
	endStr := cmd.String("end", "", "restrict to periods ending on or before (YYYY-MM-DD)")
	out := cmd.String("out", "", "output file (default stdout)")
	cmd.Parse(args)

	filter := storage.ValueFilter{IndicatorCode: *indicatorCode}
	if *startStr != "" {
		start, err := time.Parse(dateLayout, *startStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --start date: %v\n", err)
			return 1
		}
		filter.PeriodStart = &start
	}
	if *endStr != "" {
		end, err := time.Parse(dateLayout, *endStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --end date: %v\n", err)
			return 1
		}
		filter.PeriodEnd = &end
	}

	_, store, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	dest := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create output file: %v\n", err)
			return 1
		}
		defer f.Close()
		dest = f
	}

	exporter := export.NewExporter(store, store)
	count, err := exporter.WriteCSV(context.Background(), dest, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *out != "" {
		fmt.Printf("✓ Exported %d value(s) to %s\n", count, *out)
	}
	return 0
}

func runRecord(args []string) int {
	cmd := flag.NewFlagSet("record", flag.ExitOnError)
	indicatorCode := cmd.String("indicator", "", "indicator code")
	startStr := cmd.String("start", "", "period start date (YYYY-MM-DD)")
	endStr := cmd.String("end", "", "period end date (YYYY-MM-DD)")
	valueStr := cmd.String("value", "", "numeric value")
	qualitative := cmd.String("qualitative", "", "qualitative value")
	region := cmd.String("region", "", "region code")
	gender := cmd.String("gender", "", "gender disaggregation")
	cmd.Parse(args)

	if *indicatorCode == "" || *startStr == "" || *endStr == "" {
		fmt.Fprintln(os.Stderr, "Error: --indicator, --start and --end flags are required")
		cmd.Usage()
		return 1
	}
	start, err := time.Parse(dateLayout, *startStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --start date: %v\n", err)
		return 1
	}
	end, err := time.Parse(dateLayout, *endStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --end date: %v\n", err)
		return 1
	}

	entry := values.Entry{
		IndicatorCode:    *indicatorCode,
		PeriodStart:      start,
		PeriodEnd:        end,
		RegionCode:       *region,
		Gender:           *gender,
		QualitativeValue: *qualitative,
	}
	if *valueStr != "" {
		var v float64
		if _, err := fmt.Sscanf(*valueStr, "%g", &v); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --value: %q\n", *valueStr)
			return 1
		}
		entry.Value = &v
	}

	cfg, store, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	defs, loadErrs := indicator.LoadFromDirectory(cfg.IndicatorDirectory)
	if len(loadErrs) > 0 {
		fmt.Fprintf(os.Stderr, "Error: failed to load indicators: %d errors\n", len(loadErrs))
		return 1
	}
	inds := make([]indicator.Indicator, 0, len(defs))
	for _, d := range defs {
		inds = append(inds, *d.Indicator)
	}

	service := values.NewService(store, inds)
	saved, err := service.Create(context.Background(), entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("✓ Recorded value %s for %s\n", saved.ID, saved.IndicatorCode)
	return 0
}

func runApprove(args []string) int {
	cmd := flag.NewFlagSet("approve", flag.ExitOnError)
	id := cmd.String("id", "", "value id to validate")
	by := cmd.String("by", "", "who validates the value")
	cmd.Parse(args)

	if *id == "" || *by == "" {
		fmt.Fprintln(os.Stderr, "Error: --id and --by flags are required")
		cmd.Usage()
		return 1
	}

	_, store, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	defs, err := store.ListDefinitions(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	service := values.NewService(store, defs)
	if err := service.Validate(context.Background(), *id, *by); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("✓ Value %s validated by %s\n", *id, *by)
	return 0
}

func openStore() (config.Config, *sqlite.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	store, err := sqlite.NewStore(cfg.DBPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return cfg, store, nil
}

func buildRunner(cfg config.Config, store *sqlite.Store) *batch.Runner {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	registry := formula.NewRegistry()
	engine := aggregate.NewEngine(store.DB())
	env := &formula.Env{
		Values:      store,
		Submissions: store,
		Program:     store,
		Now:         time.Now,
		SLA: formula.SLAPolicy{
			Days:       cfg.SLADays,
			WarnWindow: cfg.SLAWarnWindow,
		},
	}
	runner := batch.NewRunner(registry, engine, env, store, logger)
	runner.SetDefinitionStore(store)
	runner.SetConcurrency(cfg.Concurrency)
	return runner
}
