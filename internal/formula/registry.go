// Package formula implements the bespoke indicator computations that are
// not expressible as a declarative aggregation, and the closed registry
// that dispatches indicator formula keys to them.
package formula

import (
	"context"
	"sort"
	"time"

	"github.com/tkonate/mesuivi/internal/indicator"
	"github.com/tkonate/mesuivi/internal/storage"
)

// Formula keys. One key per indicator code in the program results framework.
const (
	KeySLACompliance        = "IRI_012"
	KeyPaidEmergency        = "ODP_002"
	KeyPaidEmergencyWomen   = "ODP_003"
	KeyPaidRegular          = "ODP_004"
	KeyPaidRegularWomen     = "ODP_005"
	KeyTotalBeneficiaries   = "ODP_006"
	KeyRegisteredHouseholds = "PIP_011"
	KeyGroupsFormed         = "PIP_013"
	KeyGroupsFunctioning    = "PIP_014"
	KeyAverageSavings       = "PIP_015"
	KeyProjectedSavings     = "PIP_016"
	KeyCreditGranted        = "PIP_017"
	KeyCreditAccessRate     = "PIP_018"
)

// Env carries everything a formula may touch: the value sink, the read-only
// data sources, the clock, and the SLA policy. Formulas have no state of
// their own.
type Env struct {
	Values      storage.ValueStore
	Submissions storage.SubmissionSource
	Program     storage.ProgramSource
	Now         func() time.Time
	SLA         SLAPolicy
}

// Func computes an indicator over a period and writes zero or more
// disaggregated value rows through the Env's value store.
type Func func(ctx context.Context, env *Env, ind *indicator.Indicator, start, end time.Time) error

// Registry maps formula keys to their handlers. It is built once at process
// start from a static table; there is no dynamic registration.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry builds the registry from the static key table.
func NewRegistry() *Registry {
	return &Registry{
		funcs: map[string]Func{
			KeySLACompliance:        grievanceSLACompliance,
			KeyPaidEmergency:        paidEmergencyBeneficiaries,
			KeyPaidEmergencyWomen:   paidEmergencyWomenShare,
			KeyPaidRegular:          paidRegularBeneficiaries,
			KeyPaidRegularWomen:     paidRegularWomenShare,
			KeyTotalBeneficiaries:   directAndIndirectBeneficiaries,
			KeyRegisteredHouseholds: registeredHouseholds,
			KeyGroupsFormed:         savingsGroupsFormed,
			KeyGroupsFunctioning:    savingsGroupsFunctioning,
			KeyAverageSavings:       averageSavingsPerMember,
			KeyProjectedSavings:     projectedCumulativeSavings,
			KeyCreditGranted:        creditGrantedToMembers,
			KeyCreditAccessRate:     creditAccessRate,
		},
	}
}

// Resolve returns the handler for a formula key.
func (r *Registry) Resolve(key string) (Func, bool) {
	fn, ok := r.funcs[key]
	return fn, ok
}

// Keys returns all known formula keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.funcs))
	for k := range r.funcs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// saveNumber writes one numeric value row for an indicator and period.
func saveNumber(ctx context.Context, env *Env, code string, start, end time.Time, value float64, source, region, gender string) error {
	v := value
	_, err := env.Values.UpsertComputed(ctx, storage.ComputedValue{
		Key: storage.ValueKey{
			IndicatorCode: code,
			PeriodStart:   start,
			PeriodEnd:     end,
			RegionCode:    region,
			Gender:        gender,
		},
		Value:  &v,
		Source: source,
	})
	return err
}
