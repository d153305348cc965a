package scheme

// =============================================================================
// WINDOW - Inclusive date range
// =============================================================================

// Window is an inclusive date range [From, To]. A zero Window is "absent":
// it contains nothing and is skipped by every aggregation.
//
// Examples:
//   - Scheme period: Apr 1 - Jun 30
//   - Phasing window: Apr 1 - Apr 30
//   - Base period: last year's Apr 1 - Jun 30
type Window struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

func NewWindow(from, to Date) Window { return Window{From: from, To: to} }

// IsZero reports whether the window is absent.
func (w Window) IsZero() bool { return w.From.IsZero() || w.To.IsZero() }

// Valid reports whether a present window is well ordered.
func (w Window) Valid() bool { return !w.IsZero() && w.From.BeforeOrEqual(w.To) }

// Contains returns true if d is within [From, To]. Absent windows contain nothing.
func (w Window) Contains(d Date) bool {
	if w.IsZero() {
		return false
	}
	return d.AfterOrEqual(w.From) && d.BeforeOrEqual(w.To)
}

// Days returns the number of calendar days covered, inclusive.
func (w Window) Days() int {
	if !w.Valid() {
		return 0
	}
	return DaysBetween(w.From, w.To) + 1
}

// Span returns the smallest window covering w and every other present window.
func (w Window) Span(others ...Window) Window {
	out := w
	for _, o := range others {
		if o.IsZero() {
			continue
		}
		if out.IsZero() {
			out = o
			continue
		}
		if o.From.Before(out.From) {
			out.From = o.From
		}
		if o.To.After(out.To) {
			out.To = o.To
		}
	}
	return out
}

// Shift moves both ends by n days. Absent windows stay absent.
func (w Window) Shift(n int) Window {
	if w.IsZero() {
		return w
	}
	return Window{From: w.From.AddDays(n), To: w.To.AddDays(n)}
}

func (w Window) String() string {
	if w.IsZero() {
		return "[]"
	}
	return "[" + w.From.String() + ", " + w.To.String() + "]"
}
