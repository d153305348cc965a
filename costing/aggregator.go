package costing

import (
	"github.com/shopspring/decimal"

	"github.com/warp/scheme-engine/frame"
	"github.com/warp/scheme-engine/scheme"
)

// =============================================================================
// RUN STATE
// =============================================================================

// run is the per-request working set shared by every evaluator. Columns on
// it run over the frame's full account axis; the assembler selects the
// result accounts at the end.
type run struct {
	cfg  *scheme.Config
	fr   *frame.Frame
	mode scheme.Mode
	n    int

	// Row masks. mandatory and payout are empty when their section is off.
	products  frame.Mask
	mandatory frame.Mask
	payout    frame.Mask

	// strata holds whole-number growth percentages per account.
	strata frame.Column
}

func newRun(cfg *scheme.Config, fr *frame.Frame) *run {
	r := &run{
		cfg:       cfg,
		fr:        fr,
		mode:      cfg.Mode,
		n:         fr.NumAccounts(),
		products:  fr.ProductsAny(cfg.Products),
		mandatory: make(frame.Mask, fr.Rows()),
		payout:    make(frame.Mask, fr.Rows()),
		strata:    frame.Zeros(fr.NumAccounts()),
	}
	if cfg.MandatoryEnabled() {
		r.mandatory = fr.ProductsAll(cfg.MandatoryProducts)
	}
	if cfg.PayoutProductsEnabled() {
		r.payout = fr.ProductsAll(cfg.PayoutProducts)
	}
	return r
}

// payoutRows is the row mask payout bases sum over: payout products when
// enabled, scheme products otherwise.
func (r *run) payoutRows() frame.Mask {
	if r.cfg.PayoutProductsEnabled() {
		return r.payout
	}
	return r.products
}

// =============================================================================
// SUM PLAN - Every period sum of a request in one frame pass
// =============================================================================

// sumPlan collects sums from every evaluator before touching the frame.
// Slots returned by add are filled by exec.
type sumPlan struct {
	specs []frame.SumSpec
	slots []*frame.Column
}

func (p *sumPlan) add(rows frame.Mask, w scheme.Window, m scheme.Mode) *frame.Column {
	slot := new(frame.Column)
	p.specs = append(p.specs, frame.SumSpec{Rows: rows, Window: w, Measure: m})
	p.slots = append(p.slots, slot)
	return slot
}

func (p *sumPlan) exec(fr *frame.Frame) {
	out := fr.Sums(p.specs)
	for i, slot := range p.slots {
		*slot = out[i]
	}
}

// measures is a volume/value pair of per-account columns.
type measures struct {
	volume, value *frame.Column
}

func (p *sumPlan) addBoth(rows frame.Mask, w scheme.Window) measures {
	return measures{
		volume: p.add(rows, w, scheme.ModeVolume),
		value:  p.add(rows, w, scheme.ModeValue),
	}
}

func (m measures) of(mode scheme.Mode) frame.Column {
	if mode == scheme.ModeValue {
		return *m.value
	}
	return *m.volume
}

// =============================================================================
// PERIOD AGGREGATOR
// =============================================================================

// basePeriod holds one base slot. metric divides by the month count once,
// final divides again; both round to 2 places. Summed periods keep raw.
type basePeriod struct {
	present bool
	months  int
	avg     bool

	raw   measures
	mpRaw *frame.Column
}

func (b basePeriod) metric(c frame.Column) frame.Column {
	if !b.avg {
		return c
	}
	return c.DivScalar(decimal.NewFromInt(int64(b.months))).Round(2)
}

func (b basePeriod) final(c frame.Column) frame.Column {
	return b.metric(b.metric(c))
}

type periods struct {
	base [scheme.MaxBasePeriods]basePeriod

	actual       measures
	payoutActual measures
	mpActual     measures
	ppi          frame.Column
}

func planPeriods(r *run, p *sumPlan) *periods {
	out := &periods{}
	for i, bp := range r.cfg.BasePeriods {
		if !bp.Present() {
			continue
		}
		out.base[i] = basePeriod{
			present: true,
			months:  bp.MonthsCount,
			avg:     bp.Averaged(),
			raw:     p.addBoth(r.products, bp.Window),
			mpRaw:   p.add(r.mandatory, bp.Window, r.mode),
		}
	}
	sp := r.cfg.SchemePeriod
	out.actual = p.addBoth(r.products, sp)
	out.payoutActual = p.addBoth(r.payout, sp)
	out.mpActual = p.addBoth(r.mandatory, sp)
	return out
}

// finish runs the steps that need the sums: PPI needs mp actual for its floor.
func (ps *periods) finish(r *run) {
	ppi := r.fr.DistinctMaterials(r.mandatory, r.cfg.SchemePeriod)
	ps.ppi = frame.Zeros(r.n).Where(ps.mpActual.of(r.mode).LTScalar(decimal.Zero), ppi)
}

// total is the combined base: the larger final metric of the two base
// periods in the active measure. A missing period counts as 0.
func (ps *periods) total(r *run) frame.Column {
	out := frame.Zeros(r.n)
	for _, b := range ps.base {
		if b.present {
			out = out.Max(b.final(b.raw.of(r.mode)))
		}
	}
	return out
}

// mpBase is total for mandatory products.
func (ps *periods) mpBase(r *run) frame.Column {
	out := frame.Zeros(r.n)
	for _, b := range ps.base {
		if b.present {
			out = out.Max(b.final(*b.mpRaw))
		}
	}
	return out
}

// payoutBase selects the payout multiplicand: payout-product actual when
// payout products are enabled, scheme actual otherwise.
func (ps *periods) payoutBase(r *run) frame.Column {
	if r.cfg.PayoutProductsEnabled() {
		return ps.payoutActual.of(r.mode)
	}
	return ps.actual.of(r.mode)
}
