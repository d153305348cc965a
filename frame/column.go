package frame

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// COLUMN - Element-wise decimal vector
// =============================================================================

// Column is one decimal per account (or per row). Every binary operation
// expects equal lengths and returns a new Column; nothing mutates in place.
type Column []decimal.Decimal

// Zeros returns a Column of n zeros.
func Zeros(n int) Column {
	c := make(Column, n)
	for i := range c {
		c[i] = decimal.Zero
	}
	return c
}

// Fill returns a Column of n copies of v.
func Fill(n int, v decimal.Decimal) Column {
	c := make(Column, n)
	for i := range c {
		c[i] = v
	}
	return c
}

func (c Column) Len() int { return len(c) }

func (c Column) zip(o Column, f func(a, b decimal.Decimal) decimal.Decimal) Column {
	out := make(Column, len(c))
	for i := range c {
		out[i] = f(c[i], o[i])
	}
	return out
}

func (c Column) each(f func(a decimal.Decimal) decimal.Decimal) Column {
	out := make(Column, len(c))
	for i := range c {
		out[i] = f(c[i])
	}
	return out
}

func (c Column) Add(o Column) Column {
	return c.zip(o, func(a, b decimal.Decimal) decimal.Decimal { return a.Add(b) })
}

func (c Column) Sub(o Column) Column {
	return c.zip(o, func(a, b decimal.Decimal) decimal.Decimal { return a.Sub(b) })
}

func (c Column) Mul(o Column) Column {
	return c.zip(o, func(a, b decimal.Decimal) decimal.Decimal { return a.Mul(b) })
}

// Div divides element-wise. A zero divisor yields 0.
func (c Column) Div(o Column) Column {
	return c.zip(o, SafeDiv)
}

func (c Column) MulScalar(v decimal.Decimal) Column {
	return c.each(func(a decimal.Decimal) decimal.Decimal { return a.Mul(v) })
}

func (c Column) AddScalar(v decimal.Decimal) Column {
	return c.each(func(a decimal.Decimal) decimal.Decimal { return a.Add(v) })
}

// DivScalar divides every element by v; a zero v yields zeros.
func (c Column) DivScalar(v decimal.Decimal) Column {
	return c.each(func(a decimal.Decimal) decimal.Decimal { return SafeDiv(a, v) })
}

func (c Column) Max(o Column) Column {
	return c.zip(o, func(a, b decimal.Decimal) decimal.Decimal { return decimal.Max(a, b) })
}

func (c Column) MaxScalar(v decimal.Decimal) Column {
	return c.each(func(a decimal.Decimal) decimal.Decimal { return decimal.Max(a, v) })
}

// Round rounds half away from zero to places decimals.
func (c Column) Round(places int32) Column {
	return c.each(func(a decimal.Decimal) decimal.Decimal { return a.Round(places) })
}

// Sum adds every element.
func (c Column) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, v := range c {
		total = total.Add(v)
	}
	return total
}

// Where picks c where m is set and o elsewhere.
func (c Column) Where(m Mask, o Column) Column {
	out := make(Column, len(c))
	for i := range c {
		if m[i] {
			out[i] = c[i]
		} else {
			out[i] = o[i]
		}
	}
	return out
}

// Keep zeroes every element where m is unset.
func (c Column) Keep(m Mask) Column {
	return c.Where(m, Zeros(len(c)))
}

// Select gathers the elements at idx.
func (c Column) Select(idx []int) Column {
	out := make(Column, len(idx))
	for i, j := range idx {
		out[i] = c[j]
	}
	return out
}

// GTE is c >= o element-wise.
func (c Column) GTE(o Column) Mask {
	m := make(Mask, len(c))
	for i := range c {
		m[i] = c[i].GreaterThanOrEqual(o[i])
	}
	return m
}

func (c Column) GTEScalar(v decimal.Decimal) Mask {
	m := make(Mask, len(c))
	for i := range c {
		m[i] = c[i].GreaterThanOrEqual(v)
	}
	return m
}

func (c Column) GTScalar(v decimal.Decimal) Mask {
	m := make(Mask, len(c))
	for i := range c {
		m[i] = c[i].GreaterThan(v)
	}
	return m
}

func (c Column) LTScalar(v decimal.Decimal) Mask {
	m := make(Mask, len(c))
	for i := range c {
		m[i] = c[i].LessThan(v)
	}
	return m
}

// IsZero marks elements equal to zero.
func (c Column) IsZero() Mask {
	m := make(Mask, len(c))
	for i := range c {
		m[i] = c[i].IsZero()
	}
	return m
}

// SafeDiv is a/b, or 0 when b is zero.
func SafeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}

// =============================================================================
// MASK
// =============================================================================

// Mask is one flag per account (or per row).
type Mask []bool

// All returns a Mask of n set flags.
func All(n int) Mask {
	m := make(Mask, n)
	for i := range m {
		m[i] = true
	}
	return m
}

func (m Mask) And(o Mask) Mask {
	out := make(Mask, len(m))
	for i := range m {
		out[i] = m[i] && o[i]
	}
	return out
}

func (m Mask) Or(o Mask) Mask {
	out := make(Mask, len(m))
	for i := range m {
		out[i] = m[i] || o[i]
	}
	return out
}

func (m Mask) Not() Mask {
	out := make(Mask, len(m))
	for i := range m {
		out[i] = !m[i]
	}
	return out
}

// Any reports whether any flag is set.
func (m Mask) Any() bool {
	for _, v := range m {
		if v {
			return true
		}
	}
	return false
}

// Indices lists the positions of set flags.
func (m Mask) Indices() []int {
	var idx []int
	for i, v := range m {
		if v {
			idx = append(idx, i)
		}
	}
	return idx
}

// Flag converts m to a 0/1 Column.
func (m Mask) Flag() Column {
	out := make(Column, len(m))
	for i, v := range m {
		if v {
			out[i] = decimal.NewFromInt(1)
		} else {
			out[i] = decimal.Zero
		}
	}
	return out
}
