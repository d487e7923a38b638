package indicator

// Frequency is how often an indicator is expected to be refreshed.
type Frequency string

const (
	FrequencyMonthly    Frequency = "MONTHLY"
	FrequencyQuarterly  Frequency = "QUARTERLY"
	FrequencySemiannual Frequency = "SEMIANNUAL"
	FrequencyAnnual     Frequency = "ANNUAL"
)

// Method distinguishes system-computed indicators from manually entered ones.
type Method string

const (
	MethodAutomatic Method = "AUTOMATIC"
	MethodManual    Method = "MANUAL"
)

// Aggregation selects the declarative computation applied by a data source.
type Aggregation string

const (
	AggregationCount         Aggregation = "COUNT"
	AggregationCountDistinct Aggregation = "COUNT_DISTINCT"
	AggregationSum           Aggregation = "SUM"
	AggregationPercent       Aggregation = "PERCENT"
)

// Indicator is a parsed indicator definition.
type Indicator struct {
	Code        string      `yaml:"code"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Unit        string      `yaml:"unit"`
	Frequency   Frequency   `yaml:"frequency"`
	Method      Method      `yaml:"method"`
	Automatic   bool        `yaml:"automatic"`
	Active      bool        `yaml:"active"`
	Cumulative  bool        `yaml:"cumulative,omitempty"`
	FormulaKey  string      `yaml:"formulaKey,omitempty"`
	DataSource  *DataSource `yaml:"dataSource,omitempty"`
}

// DataSource declares where and how to read input data for one indicator.
// Filters use the same key syntax the aggregation engine understands:
// plain column names for equality, or a column with an operator suffix
// (field__in, field__gte, field__lte, field__ne, field__contains).
type DataSource struct {
	Module             string         `yaml:"module"`
	Model              string         `yaml:"model"`
	DateField          string         `yaml:"dateField"`
	Aggregation        Aggregation    `yaml:"aggregation"`
	ValueField         string         `yaml:"valueField,omitempty"`
	DistinctField      string         `yaml:"distinctField,omitempty"`
	Filters            map[string]any `yaml:"filters,omitempty"`
	NumeratorFilters   map[string]any `yaml:"numeratorFilters,omitempty"`
	DenominatorFilters map[string]any `yaml:"denominatorFilters,omitempty"`
	Active             bool           `yaml:"active"`
}

// WithFile pairs an indicator with its source file path.
type WithFile struct {
	Indicator *Indicator
	File      string
}

// ValidationError represents a validation error for a specific file.
type ValidationError struct {
	File    string
	Path    string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path != "" {
		return e.File + ": " + e.Path + ": " + e.Message
	}
	return e.File + ": " + e.Message
}

// ConfigError marks an indicator whose configuration cannot be executed:
// no resolvable computation path, or a malformed descriptor. It is fatal for
// that indicator only and ends up in the batch error list.
type ConfigError struct {
	Code    string
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
