package costing

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/scheme-engine/frame"
)

// =============================================================================
// RESULT TABLE
// =============================================================================

// Kind says how a column behaves in the GRAND TOTAL row.
type Kind int

const (
	// KindText columns carry account attributes; the GRAND TOTAL row leaves
	// them empty except for the first, which holds the label.
	KindText Kind = iota
	// KindSum columns are summed.
	KindSum
	// KindParam columns are per-account rates and bounds, left empty.
	KindParam
	// KindRatio columns are recomputed from their summed numerator and
	// denominator columns.
	KindRatio
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindSum:
		return "sum"
	case KindParam:
		return "param"
	case KindRatio:
		return "ratio"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// NoRounding disables ratio rounding.
const NoRounding int32 = -1

// TableColumn is one labelled column of the result table.
type TableColumn struct {
	Label string
	Group Group
	Kind  Kind
	// Num and Den name the columns a ratio divides; Places rounds it.
	Num, Den string
	Places   int32

	text []string
	nums []decimal.NullDecimal
}

// Cell is a single value: Text for text columns, Num otherwise. An invalid
// Num is an empty cell.
type Cell struct {
	Kind Kind
	Text string
	Num  decimal.NullDecimal
}

func (c Cell) MarshalJSON() ([]byte, error) {
	if c.Kind == KindText {
		return json.Marshal(c.Text)
	}
	if !c.Num.Valid {
		return []byte("null"), nil
	}
	return []byte(c.Num.Decimal.String()), nil
}

// Table is the assembled per-account result. Rows follow the account order
// with the GRAND TOTAL row, when present, last. Tables are immutable once
// returned by the engine; Drop and Summary return new tables.
type Table struct {
	cols  []*TableColumn
	index map[string]int
	rows  int
	total bool
}

func newTable(rows int) *Table {
	return &Table{index: make(map[string]int), rows: rows}
}

func (t *Table) add(c *TableColumn) {
	if _, dup := t.index[c.Label]; dup {
		panic("costing: duplicate column " + c.Label)
	}
	t.index[c.Label] = len(t.cols)
	t.cols = append(t.cols, c)
}

func (t *Table) addText(label string, g Group, vals []string) {
	t.add(&TableColumn{Label: label, Group: g, Kind: KindText, text: vals})
}

func (t *Table) addNum(label string, g Group, k Kind, c frame.Column) {
	nums := make([]decimal.NullDecimal, len(c))
	for i, v := range c {
		nums[i] = decimal.NewNullDecimal(v)
	}
	t.add(&TableColumn{Label: label, Group: g, Kind: k, nums: nums})
}

func (t *Table) addSum(label string, g Group, c frame.Column) { t.addNum(label, g, KindSum, c) }

func (t *Table) addParam(label string, g Group, c frame.Column) { t.addNum(label, g, KindParam, c) }

// addParamWhere adds a parameter column whose cells are empty where valid is unset.
func (t *Table) addParamWhere(label string, g Group, c frame.Column, valid frame.Mask) {
	t.addNum(label, g, KindParam, c)
	nums := t.cols[len(t.cols)-1].nums
	for i := range nums {
		if !valid[i] {
			nums[i] = decimal.NullDecimal{}
		}
	}
}

// addRatio derives a ratio column from two existing columns, row by row.
func (t *Table) addRatio(label string, g Group, num, den string, places int32) {
	n, d := t.mustColumn(num), t.mustColumn(den)
	nums := make([]decimal.NullDecimal, t.rows)
	for i := range nums {
		nums[i] = ratio(n.nums[i], d.nums[i], places)
	}
	t.add(&TableColumn{Label: label, Group: g, Kind: KindRatio, Num: num, Den: den, Places: places, nums: nums})
}

func ratio(n, d decimal.NullDecimal, places int32) decimal.NullDecimal {
	if !n.Valid || !d.Valid {
		return decimal.NullDecimal{}
	}
	r := frame.SafeDiv(n.Decimal, d.Decimal)
	if places >= 0 {
		r = r.Round(places)
	}
	return decimal.NewNullDecimal(r)
}

func (t *Table) mustColumn(label string) *TableColumn {
	i, ok := t.index[label]
	if !ok {
		panic("costing: unknown column " + label)
	}
	return t.cols[i]
}

// =============================================================================
// GRAND TOTAL & SUPPRESSION
// =============================================================================

// appendGrandTotal adds the synthetic summary row. Sums first, then ratios,
// since a ratio reads the summed cells of its operands.
func (t *Table) appendGrandTotal() {
	firstText := true
	for _, c := range t.cols {
		switch c.Kind {
		case KindText:
			label := ""
			if firstText {
				label, firstText = GrandTotalLabel, false
			}
			c.text = append(c.text, label)
		case KindSum:
			total := decimal.Zero
			for _, v := range c.nums {
				if v.Valid {
					total = total.Add(v.Decimal)
				}
			}
			c.nums = append(c.nums, decimal.NewNullDecimal(total))
		default:
			c.nums = append(c.nums, decimal.NullDecimal{})
		}
	}
	t.rows++
	t.total = true

	last := t.rows - 1
	for _, c := range t.cols {
		if c.Kind != KindRatio {
			continue
		}
		n, d := t.mustColumn(c.Num), t.mustColumn(c.Den)
		if n.Kind != KindSum || d.Kind != KindSum {
			continue
		}
		c.nums[last] = ratio(n.nums[last], d.nums[last], c.Places)
	}
}

// Drop returns a table without the columns of groups.
func (t *Table) Drop(groups Group) *Table {
	out := newTable(t.rows)
	out.total = t.total
	for _, c := range t.cols {
		if c.Group.Has(groups) {
			continue
		}
		out.add(c)
	}
	return out
}

// Project keeps only the columns of present groups.
func (t *Table) Project(present Group) *Table {
	return t.Drop(GroupAll &^ present)
}

// Summary returns the GRAND TOTAL row alone.
func (t *Table) Summary() *Table {
	out := newTable(0)
	if !t.total {
		for _, c := range t.cols {
			out.add(&TableColumn{Label: c.Label, Group: c.Group, Kind: c.Kind, Num: c.Num, Den: c.Den, Places: c.Places})
		}
		return out
	}
	last := t.rows - 1
	out.rows, out.total = 1, true
	for _, c := range t.cols {
		cp := *c
		if c.Kind == KindText {
			cp.text = c.text[last:]
		} else {
			cp.nums = c.nums[last:]
		}
		out.add(&cp)
	}
	return out
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Len returns the number of rows, including the GRAND TOTAL row.
func (t *Table) Len() int { return t.rows }

// HasGrandTotal reports whether the last row is the GRAND TOTAL row.
func (t *Table) HasGrandTotal() bool { return t.total }

// AccountRows returns the number of per-account rows.
func (t *Table) AccountRows() int {
	if t.total {
		return t.rows - 1
	}
	return t.rows
}

// Labels returns the column labels in order.
func (t *Table) Labels() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Label
	}
	return out
}

// Column looks a column up by label.
func (t *Table) Column(label string) (*TableColumn, bool) {
	i, ok := t.index[label]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Has reports whether a column exists.
func (t *Table) Has(label string) bool {
	_, ok := t.index[label]
	return ok
}

// Cell returns the cell at row, col.
func (t *Table) Cell(row, col int) Cell {
	c := t.cols[col]
	if c.Kind == KindText {
		return Cell{Kind: c.Kind, Text: c.text[row]}
	}
	return Cell{Kind: c.Kind, Num: c.nums[row]}
}

// Value returns a numeric cell by label. ok is false for missing columns,
// text columns and empty cells.
func (t *Table) Value(row int, label string) (decimal.Decimal, bool) {
	c, ok := t.Column(label)
	if !ok || c.Kind == KindText || !c.nums[row].Valid {
		return decimal.Zero, false
	}
	return c.nums[row].Decimal, true
}

// Text returns a text cell by label.
func (t *Table) Text(row int, label string) string {
	c, ok := t.Column(label)
	if !ok || c.Kind != KindText {
		return ""
	}
	return c.text[row]
}

// Row returns the cells of one row in column order.
func (t *Table) Row(row int) []Cell {
	out := make([]Cell, len(t.cols))
	for i := range t.cols {
		out[i] = t.Cell(row, i)
	}
	return out
}

// MarshalJSON writes {"columns": [...], "rows": [{...}, ...]} with each row
// object keyed in column order.
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	labels, err := json.Marshal(t.Labels())
	if err != nil {
		return nil, err
	}
	buf.WriteString(`{"columns":`)
	buf.Write(labels)
	buf.WriteString(`,"rows":[`)
	for r := 0; r < t.rows; r++ {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for i, c := range t.cols {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(c.Label)
			buf.Write(key)
			buf.WriteByte(':')
			cell, err := t.Cell(r, i).MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(cell)
		}
		buf.WriteByte('}')
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}
