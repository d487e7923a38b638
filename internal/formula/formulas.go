package formula

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tkonate/mesuivi/internal/aggregate"
	"github.com/tkonate/mesuivi/internal/indicator"
	"github.com/tkonate/mesuivi/internal/storage"
)

// Form types of the mapped survey submissions. The identifiers come from
// the upstream collection forms and are part of the data contract.
const (
	FormBeneficiaryRegistration  = "FICHE_ENREG_BENEFICIAIRE"
	FormSavingsGroupConstitution = "CONSTITUTION_SERE_NAFA"
	FormSavingsGroupFollowup     = "FICHE_SUIVI_SERE_NAFA"
)

// Provenance labels written with computed values.
const (
	sourcePayroll          = "Payroll / Social Protection"
	sourceGrievance        = "Grievance / Social Protection"
	sourceIndividual       = "Social Protection / Individual"
	sourceRegistrationForm = "Beneficiary registration form"
	sourceConstitutionForm = "Savings group constitution form"
	sourceFollowupForm     = "Savings group monitoring form"
)

// Savings cycle parameters: a nine-month cycle of weekly contributions with
// the program's assumed participation rate, and the credit fund multiplier
// applied to collected savings.
const (
	savingsCycleWeeks        = 36
	savingsParticipationRate = 0.8
	creditFundMultiplier     = 1.5
)

const genderFemale = "F"

// grievanceSLACompliance computes the share of grievance tickets treated
// within the SLA window.
func grievanceSLACompliance(ctx context.Context, env *Env, ind *indicator.Indicator, start, end time.Time) error {
	tickets, err := env.Program.ListTickets(ctx, storage.TicketFilter{
		CreatedFrom: &start,
		CreatedTo:   &end,
	})
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}

	total := len(tickets)
	if total == 0 {
		return saveNumber(ctx, env, ind.Code, start, end, 0, sourceGrievance, "", "")
	}

	now := env.Now()
	treatedOnTime := 0
	for _, t := range tickets {
		if !isTreated(t.Status) {
			continue
		}
		if env.SLA.Classify(ticketSubmittedAt(t), now) == SLAOnTime {
			treatedOnTime++
		}
	}

	value := aggregate.SafePercent(float64(treatedOnTime), float64(total))
	return saveNumber(ctx, env, ind.Code, start, end, value, sourceGrievance, "", "")
}

func isTreated(status string) bool {
	for _, s := range storage.TreatedTicketStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// paidEmergencyBeneficiaries counts the distinct emergency-transfer (TMU)
// beneficiaries that actually received a payment in the period.
func paidEmergencyBeneficiaries(ctx context.Context, env *Env, ind *indicator.Indicator, start, end time.Time) error {
	paid, err := env.Program.PaidIndividuals(ctx, storage.PaymentFilter{
		PlanCodeContains: "TMU",
		Statuses:         storage.ReceivedPaymentStatuses,
		DueFrom:          start,
		DueTo:            end,
	})
	if err != nil {
		return fmt.Errorf("query paid TMU beneficiaries: %w", err)
	}

	return saveNumber(ctx, env, ind.Code, start, end, float64(len(paid)), sourcePayroll, "", "")
}

// paidEmergencyWomenShare computes the share of women among paid
// emergency-transfer beneficiaries, stored disaggregated by gender.
func paidEmergencyWomenShare(ctx context.Context, env *Env, ind *indicator.Indicator, start, end time.Time) error {
	paid, err := env.Program.PaidIndividuals(ctx, storage.PaymentFilter{
		PlanCodeContains: "TMU",
		Statuses:         storage.ReceivedPaymentStatuses,
		DueFrom:          start,
		DueTo:            end,
	})
	if err != nil {
		return fmt.Errorf("query paid TMU beneficiaries: %w", err)
	}

	value := womenShare(paid)
	return saveNumber(ctx, env, ind.Code, start, end, value, sourcePayroll, "", genderFemale)
}

// paidRegularBeneficiaries counts the distinct regular-transfer (TMR)
// beneficiaries paid in the period.
func paidRegularBeneficiaries(ctx context.Context, env *Env, ind *indicator.Indicator, start, end time.Time) error {
	paid, err := env.Program.PaidIndividuals(ctx, storage.PaymentFilter{
		PlanCode: "TMR",
		Statuses: storage.ReceivedPaymentStatuses,
		DueFrom:  start,
		DueTo:    end,
	})
	if err != nil {
		return fmt.Errorf("query paid TMR beneficiaries: %w", err)
	}

	return saveNumber(ctx, env, ind.Code, start, end, float64(len(paid)), sourcePayroll, "", "")
}

// paidRegularWomenShare computes the share of women among paid
// regular-transfer beneficiaries.
func paidRegularWomenShare(ctx context.Context, env *Env, ind *indicator.Indicator, start, end time.Time) error {
	paid, err := env.Program.PaidIndividuals(ctx, storage.PaymentFilter{
		PlanCode: "TMR",
		Statuses: storage.ReceivedPaymentStatuses,
		DueFrom:  start,
		DueTo:    end,
	})
	if err != nil {
		return fmt.Errorf("query paid TMR beneficiaries: %w", err)
	}

	value := womenShare(paid)
	return saveNumber(ctx, env, ind.Code, start, end, value, sourcePayroll, "", genderFemale)
}

func womenShare(paid []storage.PaidIndividual) float64 {
	total := len(paid)
	if total == 0 {
		return 0
	}
	women := 0
	for _, p := range paid {
		if p.Ext().String("sexe_bp", "") == genderFemale {
			women++
		}
	}
	return aggregate.SafePercent(float64(women), float64(total))
}

// directAndIndirectBeneficiaries counts registered beneficiaries plus their
// household members: each direct beneficiary contributes
// max(household_size - 1, 0) indirect ones.
func directAndIndirectBeneficiaries(ctx context.Context, env *Env, ind *indicator.Indicator, start, end time.Time) error {
	bens, err := env.Program.ActiveBeneficiaries(ctx, end)
	if err != nil {
		return fmt.Errorf("query active beneficiaries: %w", err)
	}

	direct := len(bens)
	indirect := 0
	for _, b := range bens {
		householdSize := b.Ext().Int("n_membres", 1)
		if householdSize > 1 {
			indirect += householdSize - 1
		}
	}

	return saveNumber(ctx, env, ind.Code, start, end, float64(direct+indirect), sourceIndividual, "", "")
}

// registeredHouseholds counts the distinct household codes appearing in
// registration form submissions up to the end of the period.
func registeredHouseholds(ctx context.Context, env *Env, ind *indicator.Indicator, start, end time.Time) error {
	subs, err := env.Submissions.ListSubmissions(ctx, storage.SubmissionFilter{
		FormType:    FormBeneficiaryRegistration,
		SubmittedTo: &end,
	})
	if err != nil {
		return fmt.Errorf("list registration submissions: %w", err)
	}

	households := make(map[string]struct{})
	for _, sub := range subs {
		code := sub.Ext().String("groupe_ben.groupe_ajoute_preload.code_menage", "")
		if code == "" {
			continue
		}
		households[code] = struct{}{}
	}

	return saveNumber(ctx, env, ind.Code, start, end, float64(len(households)), sourceRegistrationForm, "", "")
}

// savingsGroupsFormed counts constitution forms submitted up to the end of
// the period. The indicator is cumulative.
func savingsGroupsFormed(ctx context.Context, env *Env, ind *indicator.Indicator, start, end time.Time) error {
	subs, err := env.Submissions.ListSubmissions(ctx, storage.SubmissionFilter{
		FormType:    FormSavingsGroupConstitution,
		SubmittedTo: &end,
	})
	if err != nil {
		return fmt.Errorf("list constitution submissions: %w", err)
	}

	return saveNumber(ctx, env, ind.Code, start, end, float64(len(subs)), sourceConstitutionForm, "", "")
}

// savingsGroupsFunctioning computes the share of monitored savings groups
// functioning satisfactorily: internal rules respected and effective
// attendance reported.
func savingsGroupsFunctioning(ctx context.Context, env *Env, ind *indicator.Indicator, start, end time.Time) error {
	subs, err := env.Submissions.ListSubmissions(ctx, storage.SubmissionFilter{
		FormType: FormSavingsGroupFollowup,
	})
	if err != nil {
		return fmt.Errorf("list followup submissions: %w", err)
	}

	total := len(subs)
	if total == 0 {
		return saveNumber(ctx, env, ind.Code, start, end, 0, sourceFollowupForm, "", "")
	}

	functioning := 0
	for _, sub := range subs {
		ext := sub.Ext()
		rules := ext.String("reglement_sere.reglementInterieur", "")
		attendance := ext.Int("groupe_presence.nbre_homme", 0)
		if strings.Contains(rules, "Oui") && attendance > 0 {
			functioning++
		}
	}

	value := aggregate.SafePercent(float64(functioning), float64(total))
	return saveNumber(ctx, env, ind.Code, start, end, value, sourceFollowupForm, "", "")
}

// averageSavingsPerMember computes the average savings collected per
// savings-group member across monitored groups.
func averageSavingsPerMember(ctx context.Context, env *Env, ind *indicator.Indicator, start, end time.Time) error {
	subs, err := env.Submissions.ListSubmissions(ctx, storage.SubmissionFilter{
		FormType: FormSavingsGroupFollowup,
	})
	if err != nil {
		return fmt.Errorf("list followup submissions: %w", err)
	}

	var totalSavings float64
	var totalMembers int
	for _, sub := range subs {
		ext := sub.Ext()
		savings := ext.Float("groupe_epargne.montant_total_epargne", 0)
		members := ext.Int("groupe_identite.groupe_ajoute_preload.sere_nbre", 0)
		if members > 0 {
			totalSavings += savings
			totalMembers += members
		}
	}

	value := 0.0
	if totalMembers > 0 {
		value = aggregate.Round2(totalSavings / float64(totalMembers))
	}

	return saveNumber(ctx, env, ind.Code, start, end, value, sourceFollowupForm, "", "")
}

// projectedCumulativeSavings projects the savings each group collects over
// a full cycle: members x participation rate x weekly share x cycle weeks,
// summed across qualifying groups. Non-positive member counts or share
// values disqualify a group.
func projectedCumulativeSavings(ctx context.Context, env *Env, ind *indicator.Indicator, start, end time.Time) error {
	subs, err := env.Submissions.ListSubmissions(ctx, storage.SubmissionFilter{
		FormType: FormSavingsGroupFollowup,
	})
	if err != nil {
		return fmt.Errorf("list followup submissions: %w", err)
	}

	var projected float64
	for _, sub := range subs {
		ext := sub.Ext()
		members := ext.Int("groupe_identite.groupe_ajoute_preload.sere_nbre", 0)
		weeklyShare := ext.Float("groupe_epargne.valeur_epargne", 0)
		if members <= 0 || weeklyShare <= 0 {
			continue
		}
		projected += float64(members) * savingsParticipationRate * weeklyShare * savingsCycleWeeks
	}

	return saveNumber(ctx, env, ind.Code, start, end, aggregate.Round2(projected), sourceFollowupForm, "", "")
}

// creditGrantedToMembers computes the credit fund available to group
// members: collected savings times the credit fund multiplier.
func creditGrantedToMembers(ctx context.Context, env *Env, ind *indicator.Indicator, start, end time.Time) error {
	subs, err := env.Submissions.ListSubmissions(ctx, storage.SubmissionFilter{
		FormType: FormSavingsGroupFollowup,
	})
	if err != nil {
		return fmt.Errorf("list followup submissions: %w", err)
	}

	var totalCredit float64
	for _, sub := range subs {
		savings := sub.Ext().Float("groupe_epargne.montant_total_epargne", 0)
		if savings <= 0 {
			continue
		}
		totalCredit += savings * creditFundMultiplier
	}

	return saveNumber(ctx, env, ind.Code, start, end, aggregate.Round2(totalCredit), sourceFollowupForm, "", "")
}

// creditAccessRate computes the share of group members with access to
// credit: a group reporting at least one running credit counts all its
// members as having access.
func creditAccessRate(ctx context.Context, env *Env, ind *indicator.Indicator, start, end time.Time) error {
	subs, err := env.Submissions.ListSubmissions(ctx, storage.SubmissionFilter{
		FormType: FormSavingsGroupFollowup,
	})
	if err != nil {
		return fmt.Errorf("list followup submissions: %w", err)
	}

	totalMembers := 0
	membersWithCredit := 0
	for _, sub := range subs {
		ext := sub.Ext()
		members := ext.Int("groupe_identite.groupe_ajoute_preload.sere_nbre", 0)
		runningCredits := ext.Int("groupe_epargne.nb_credit_en_cours", 0)
		if members <= 0 {
			continue
		}
		totalMembers += members
		if runningCredits > 0 {
			membersWithCredit += members
		}
	}

	value := aggregate.SafePercent(float64(membersWithCredit), float64(totalMembers))
	return saveNumber(ctx, env, ind.Code, start, end, value, sourceFollowupForm, "", "")
}
