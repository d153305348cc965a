package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LENIENT SCALARS - What stored documents actually contain
// =============================================================================

var hundred = decimal.NewFromInt(100)

// Number is a numeric field as stored: a JSON number, a numeric string, a
// "85%" string, "" or null. Unmarshalling never fails; garbage is remembered
// and reported by the factory with the field path.
type Number struct {
	raw     string
	quoted  bool
	set     bool
	percent bool
	invalid bool
	value   decimal.Decimal
}

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	text := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			n.invalid, n.raw = true, text
			return nil
		}
		n.quoted = true
		text = strings.TrimSpace(s)
	}
	n.raw = text
	if text == "" {
		return nil
	}
	if strings.HasSuffix(text, "%") {
		n.percent = true
		text = strings.TrimSpace(strings.TrimSuffix(text, "%"))
	}
	text = strings.ReplaceAll(text, ",", "")
	d, err := decimal.NewFromString(text)
	if err != nil {
		n.invalid = true
		return nil
	}
	n.set, n.value = true, d
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.set {
		return []byte("null"), nil
	}
	if n.quoted {
		return json.Marshal(n.raw)
	}
	return []byte(n.raw), nil
}

// IsSet reports a usable numeric value was present.
func (n Number) IsSet() bool { return n.set }

// Amount is the value as written, ignoring any percent sign. Unset is 0.
func (n Number) Amount() decimal.Decimal {
	if !n.set {
		return decimal.Zero
	}
	return n.value
}

// Rate reads the value as a fraction. "85%" and 85 both mean 0.85. Without a
// percent sign the magnitude alone decides: below 1 is already a fraction, 1
// and above is a whole percent, so "1" and "1.0" both mean 0.01.
func (n Number) Rate() decimal.Decimal {
	if !n.set {
		return decimal.Zero
	}
	if n.percent || n.value.Abs().GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return n.value.Div(hundred)
	}
	return n.value
}

// Int truncates the value.
func (n Number) Int() int { return int(n.Amount().IntPart()) }

// NumberOf writes d as a plain JSON number.
func NumberOf(d decimal.Decimal) Number {
	return Number{raw: d.String(), set: true, value: d}
}

// PercentOf writes a fraction as a "N%" string so it reads back unchanged.
func PercentOf(rate decimal.Decimal) Number {
	whole := rate.Mul(hundred)
	return Number{raw: whole.String() + "%", quoted: true, set: true, percent: true, value: whole}
}

// IntOf writes n as a plain JSON number.
func IntOf(n int) Number { return NumberOf(decimal.NewFromInt(int64(n))) }

// =============================================================================
// FLEX BOOL / STRING LIST
// =============================================================================

// FlexBool accepts true/false, "yes"/"no", "1"/"0", 1/0 and null.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(b)), `"`))
	switch s {
	case "true", "yes", "y", "1", "on":
		*f = true
	case "false", "no", "n", "0", "off", "", "null":
		*f = false
	default:
		return fmt.Errorf("not a boolean: %s", string(b))
	}
	return nil
}

// StringList accepts an array of scalars, a comma-separated string or null.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	*l = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				*l = append(*l, part)
			}
		}
		return nil
	}
	var items []any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return err
	}
	for _, it := range items {
		if it == nil {
			continue
		}
		*l = append(*l, strings.TrimSpace(fmt.Sprint(it)))
	}
	return nil
}
