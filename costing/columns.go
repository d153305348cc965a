package costing

import (
	"fmt"

	"github.com/warp/scheme-engine/scheme"
)

// =============================================================================
// COLUMN GROUPS - Presence bitmap over the canonical columns
// =============================================================================

// Group tags every result column with the config section it belongs to.
// A Group value may hold several bits.
type Group uint64

const (
	GroupIdentity Group = 1 << iota
	GroupBase1
	GroupBase2
	GroupBase
	GroupActual
	GroupSlab
	GroupEstimate
	GroupStrata
	GroupPayout
	GroupPayoutProduct
	GroupMandatory
	GroupPhasing1
	GroupPhasing2
	GroupPhasing3
	GroupPhasingBonus1
	GroupPhasingBonus2
	GroupPhasingBonus3
	GroupPhasingTotal
	GroupBonusScheme1
	GroupBonusScheme2
	GroupBonusScheme3
	GroupBonusScheme4
	GroupBonusSchemeMP1
	GroupBonusSchemeMP2
	GroupBonusSchemeMP3
	GroupBonusSchemeMP4

	groupEnd
)

// GroupAll holds every group bit.
const GroupAll = groupEnd - 1

// GroupBasePeriod returns the group of base period i (1-based).
func GroupBasePeriod(i int) Group { return GroupBase1 << (i - 1) }

// GroupPhasing returns the group of phasing period i (1-based).
func GroupPhasing(i int) Group { return GroupPhasing1 << (i - 1) }

// GroupPhasingBonus returns the bonus-tier group of phasing period i (1-based).
func GroupPhasingBonus(i int) Group { return GroupPhasingBonus1 << (i - 1) }

// GroupBonusScheme returns the group of bonus scheme k (1-based).
func GroupBonusScheme(k int) Group { return GroupBonusScheme1 << (k - 1) }

// GroupBonusSchemeMP returns the mandatory-product group of bonus scheme k.
func GroupBonusSchemeMP(k int) Group { return GroupBonusSchemeMP1 << (k - 1) }

func (g Group) Has(o Group) bool { return g&o != 0 }

// PresentGroups derives the presence bitmap of cfg.
func PresentGroups(cfg *scheme.Config) Group {
	g := GroupIdentity | GroupBase | GroupActual | GroupSlab | GroupEstimate | GroupPayout
	for i, bp := range cfg.BasePeriods {
		if bp.Present() {
			g |= GroupBasePeriod(i + 1)
		}
	}
	if cfg.EnableStrataGrowth {
		g |= GroupStrata
	}
	if cfg.PayoutProductsEnabled() {
		g |= GroupPayoutProduct
	}
	if cfg.MandatoryEnabled() {
		g |= GroupMandatory
	}
	for i, p := range cfg.PhasingPeriods {
		g |= GroupPhasing(i + 1)
		if p.IsBonus {
			g |= GroupPhasingBonus(i + 1)
		}
	}
	if len(cfg.PhasingPeriods) > 0 {
		g |= GroupPhasingTotal
	}
	for k := range cfg.BonusSchemes {
		g |= GroupBonusScheme(k + 1)
		if cfg.MandatoryEnabled() {
			g |= GroupBonusSchemeMP(k + 1)
		}
	}
	return g
}

// =============================================================================
// CANONICAL LABELS
// =============================================================================

// GrandTotalLabel marks the synthetic summary row.
const GrandTotalLabel = "GRAND TOTAL"

const (
	LabelCreditAccount = "Credit Account"
	LabelCustomerName  = "Customer Name"
	LabelSOName        = "SO Name"
	LabelState         = "State"
	LabelRegion        = "Region"
	LabelAreaHead      = "Area Head"
	LabelDivision      = "Division"
	LabelDealerType    = "Dealer Type"
	LabelDistributor   = "Distributor"

	LabelSlabStart         = "Slab Start"
	LabelSlabEnd           = "Slab End"
	LabelGrowthRate        = "Growth Rate"
	LabelQualificationRate = "Qualification Rate"
	LabelRebatePerUnit     = "Rebate Per Unit"
	LabelRebatePercent     = "Rebate Percent"
	LabelAdditionalRebate  = "Additional Rebate On Growth"
	LabelFixedRebate       = "Fixed Rebate"
	LabelPercentAchieved   = "% Achieved"
	LabelStrataGrowth      = "Strata Growth %"

	LabelBasicPayout      = "Basic Payout"
	LabelAdditionalPayout = "Additional Payout"
	LabelFixedPayout      = "Fixed Rebate Payout"
	LabelTotalPayout      = "Total Payout"

	LabelMPActualPPI          = "Mandatory Product Actual PPI"
	LabelMPGrowthRate         = "Mandatory Product Growth Rate"
	LabelMPTarget             = "Mandatory Product Target"
	LabelMPTargetToActualRate = "Mandatory Product Target To Actual Rate"
	LabelMPMinShadesPPI       = "Mandatory Min Shades PPI"
	LabelMPRebate             = "Mandatory Product Rebate"
	LabelMPAchieved           = "% Mandatory Product Achieved"
	LabelMPToActual           = "% MP To Actual"
	LabelMPPPIAchieved        = "% PPI Achieved"
	LabelMPGrowthAchieved     = "% MP Growth Achieved"
	LabelMPTargetAchieved     = "% MP Target Achieved"
	LabelMPQualified          = "Mandatory Product Qualified"
	LabelMPPayout             = "Mandatory Product Payout"

	LabelFinalPhasingPayout = "Final Phasing Payout"
)

// Measure-qualified labels take the measure label ("Volume" or "Value").

func LabelBase(i int, m scheme.Mode) string      { return fmt.Sprintf("Base %d %s", i, m.Label()) }
func LabelBaseFinal(i int, m scheme.Mode) string { return fmt.Sprintf("Base %d %s Final", i, m.Label()) }
func LabelBaseMonths(i int) string               { return fmt.Sprintf("Base %d Months Count", i) }
func LabelTotalBase(m scheme.Mode) string        { return "Total Base " + m.Label() }
func LabelActual(m scheme.Mode) string           { return "Actual " + m.Label() }
func LabelTarget(m scheme.Mode) string           { return "Target " + m.Label() }
func LabelEstimated(m scheme.Mode) string        { return "Estimated " + m.Label() }

func LabelPayoutProductActual(m scheme.Mode) string { return "Payout Product Actual " + m.Label() }

func LabelMPBase(m scheme.Mode) string         { return "Mandatory Product Base " + m.Label() }
func LabelMPActual(m scheme.Mode) string       { return "Mandatory Product Actual " + m.Label() }
func LabelMPGrowthTarget(m scheme.Mode) string { return "Mandatory Product Growth Target " + m.Label() }
func LabelMPFinalTarget(m scheme.Mode) string  { return "Mandatory Product Final Target " + m.Label() }

func LabelPhasingTargetRate(i int) string { return fmt.Sprintf("Phasing Target %% %d", i) }
func LabelPhasingTarget(i int, m scheme.Mode) string {
	return fmt.Sprintf("Phasing Target %s %d", m.Label(), i)
}
func LabelPhasingActual(i int, m scheme.Mode) string {
	return fmt.Sprintf("Phasing Period %s %d", m.Label(), i)
}
func LabelPhasingAchieved(i int) string { return fmt.Sprintf("%% Phasing Achieved %d", i) }
func LabelPhasingPayoutBase(i int, m scheme.Mode) string {
	return fmt.Sprintf("Phasing Payout Period %s %d", m.Label(), i)
}
func LabelPhasingPayout(i int) string { return fmt.Sprintf("Phasing Payout %d", i) }

func LabelBonusPhasingTargetRate(i int) string { return fmt.Sprintf("Bonus Phasing Target %% %d", i) }
func LabelBonusPhasingTarget(i int, m scheme.Mode) string {
	return fmt.Sprintf("Bonus Phasing Target %s %d", m.Label(), i)
}
func LabelBonusPhasingActual(i int, m scheme.Mode) string {
	return fmt.Sprintf("Bonus Phasing Period %s %d", m.Label(), i)
}
func LabelBonusPhasingAchieved(i int) string { return fmt.Sprintf("%% Bonus Phasing Achieved %d", i) }
func LabelBonusPhasingPayoutBase(i int, m scheme.Mode) string {
	return fmt.Sprintf("Bonus Payout Period %s %d", m.Label(), i)
}
func LabelBonusPhasingPayout(i int) string { return fmt.Sprintf("Bonus Phasing Payout %d", i) }

func LabelBonusSchemeTarget(k int) string     { return fmt.Sprintf("Bonus Scheme %d Target", k) }
func LabelBonusSchemeActual(k int) string     { return fmt.Sprintf("Bonus Scheme %d Actual", k) }
func LabelBonusSchemeAchieved(k int) string   { return fmt.Sprintf("%% Bonus Scheme %d Achieved", k) }
func LabelBonusSchemePayoutBase(k int) string { return fmt.Sprintf("Bonus Scheme %d Payout Base", k) }
func LabelBonusSchemePayout(k int) string     { return fmt.Sprintf("Bonus Scheme %d Payout", k) }

func LabelBonusSchemeMPTarget(k int) string     { return fmt.Sprintf("Bonus Scheme %d MP Target", k) }
func LabelBonusSchemeMPActual(k int) string     { return fmt.Sprintf("Bonus Scheme %d MP Actual", k) }
func LabelBonusSchemeMPAchieved(k int) string   { return fmt.Sprintf("%% Bonus Scheme %d MP Achieved", k) }
func LabelBonusSchemeMPPayoutBase(k int) string { return fmt.Sprintf("Bonus Scheme %d MP Payout Base", k) }
func LabelBonusSchemeMPPayout(k int) string     { return fmt.Sprintf("Bonus Scheme %d MP Payout", k) }
