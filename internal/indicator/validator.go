package indicator

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// Validator handles indicator definition validation.
type Validator struct {
	schema        *jsonschema.Schema
	knownFormulas map[string]struct{}
}

// NewValidator creates a new validator with the given schema file and the
// set of formula keys the registry can resolve. Unknown formula keys are
// rejected here, at configuration time, not when a batch runs.
func NewValidator(schemaPath string, formulaKeys []string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	known := make(map[string]struct{}, len(formulaKeys))
	for _, k := range formulaKeys {
		known[k] = struct{}{}
	}

	return &Validator{schema: schema, knownFormulas: known}, nil
}

// ValidateDirectory loads and validates all indicator files in a directory.
func (v *Validator) ValidateDirectory(dirPath string) []ValidationError {
	defs, loadErrors := LoadFromDirectory(dirPath)

	var allErrors []ValidationError
	allErrors = append(allErrors, loadErrors...)

	if len(defs) == 0 {
		return allErrors
	}

	for _, def := range defs {
		schemaErrors := v.validateSchema(def.File, def.Indicator)
		allErrors = append(allErrors, schemaErrors...)
	}

	allErrors = append(allErrors, v.ValidateDefinitions(defs)...)

	return allErrors
}

// ValidateDefinitions applies the rules that go beyond the JSON schema:
// duplicate codes, descriptor field requirements, and the invariant that an
// active automatic indicator resolves to exactly one computation path.
func (v *Validator) ValidateDefinitions(defs []WithFile) []ValidationError {
	var errors []ValidationError

	codeSeen := make(map[string]string)
	for _, def := range defs {
		code := def.Indicator.Code
		if prevFile, exists := codeSeen[code]; exists {
			errors = append(errors, ValidationError{
				File:    def.File,
				Path:    "code",
				Message: fmt.Sprintf("duplicate code %q (also in %s)", code, filepath.Base(prevFile)),
			})
		} else {
			codeSeen[code] = def.File
		}

		errors = append(errors, v.validateComputationPath(def.File, def.Indicator)...)

		if def.Indicator.DataSource != nil {
			errors = append(errors, validateDataSource(def.File, def.Indicator.DataSource)...)
		}
	}

	return errors
}

// validateSchema validates a single indicator against the JSON schema
func (v *Validator) validateSchema(file string, ind *Indicator) []ValidationError {
	var errors []ValidationError

	// Convert to a generic tree for schema validation
	yamlBytes, err := yaml.Marshal(ind)
	if err != nil {
		errors = append(errors, ValidationError{
			File:    file,
			Message: fmt.Sprintf("failed to marshal indicator: %v", err),
		})
		return errors
	}

	var jsonData interface{}
	if err := yaml.Unmarshal(yamlBytes, &jsonData); err != nil {
		errors = append(errors, ValidationError{
			File:    file,
			Message: fmt.Sprintf("failed to convert to JSON: %v", err),
		})
		return errors
	}

	if err := v.schema.Validate(jsonData); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			errors = append(errors, extractSchemaErrors(file, validationErr)...)
		} else {
			errors = append(errors, ValidationError{
				File:    file,
				Message: err.Error(),
			})
		}
	}

	return errors
}

// extractSchemaErrors converts JSON schema validation errors to ValidationErrors
func extractSchemaErrors(file string, err *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	path := strings.Join(err.InstanceLocation, ".")
	if path == "" {
		path = "(root)"
	}

	errors = append(errors, ValidationError{
		File:    file,
		Path:    path,
		Message: err.Error(),
	})

	for _, cause := range err.Causes {
		errors = append(errors, extractSchemaErrors(file, cause)...)
	}

	return errors
}

// validateComputationPath enforces that a non-manual active indicator has a
// usable computation path, and that a declared formula key is one the
// registry knows about.
func (v *Validator) validateComputationPath(file string, ind *Indicator) []ValidationError {
	var errors []ValidationError

	if ind.FormulaKey != "" {
		if _, ok := v.knownFormulas[ind.FormulaKey]; !ok {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    "formulaKey",
				Message: fmt.Sprintf("unknown formula key %q (known: %s)", ind.FormulaKey, strings.Join(v.sortedKeys(), ", ")),
			})
		}
	}

	if ind.Method == MethodManual || !ind.Automatic || !ind.Active {
		return errors
	}

	hasDescriptor := ind.DataSource != nil && ind.DataSource.Active
	if ind.FormulaKey == "" && !hasDescriptor {
		errors = append(errors, ValidationError{
			File:    file,
			Path:    "code",
			Message: fmt.Sprintf("indicator %q is automatic and active but has neither a formula key nor an active data source", ind.Code),
		})
	}

	return errors
}

// validateDataSource checks descriptor field requirements per aggregation kind.
func validateDataSource(file string, ds *DataSource) []ValidationError {
	var errors []ValidationError

	addErr := func(path, format string, args ...any) {
		errors = append(errors, ValidationError{
			File:    file,
			Path:    "dataSource." + path,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if ds.Module == "" || ds.Model == "" {
		addErr("model", "module and model are required")
	}
	if ds.DateField == "" {
		addErr("dateField", "dateField is required")
	}

	switch ds.Aggregation {
	case AggregationCount:
		// no extra fields required
	case AggregationCountDistinct:
		if ds.DistinctField == "" {
			addErr("distinctField", "COUNT_DISTINCT requires distinctField")
		}
	case AggregationSum:
		if ds.ValueField == "" {
			addErr("valueField", "SUM requires valueField")
		}
	case AggregationPercent:
		if ds.DistinctField == "" {
			addErr("distinctField", "PERCENT requires distinctField")
		}
		if len(ds.NumeratorFilters) == 0 {
			addErr("numeratorFilters", "PERCENT requires numeratorFilters")
		}
		if len(ds.DenominatorFilters) == 0 {
			addErr("denominatorFilters", "PERCENT requires denominatorFilters")
		}
	default:
		addErr("aggregation", "unknown aggregation kind %q", ds.Aggregation)
	}

	return errors
}

func (v *Validator) sortedKeys() []string {
	keys := make([]string, 0, len(v.knownFormulas))
	for k := range v.knownFormulas {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
