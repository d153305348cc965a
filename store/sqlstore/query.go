package sqlstore

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"text/template"

	"github.com/warp/scheme-engine/scheme"
)

// salesSQL is the one broad fetch: sales joined with the material master,
// restricted to a date range and the applicable account filters. Filter
// clauses appear only for non-empty dimensions.
const salesSQL = `
SELECT
    s.credit_account, s.customer_name, s.so_name, s.state, s.region,
    s.area_head, s.division, s.dealer_type, s.distributor,
    m.material_id, m.category, m.material_group, m.wanda_group, m.thinner_group,
    s.sale_date, s.volume, s.value
FROM sales s
JOIN materials m ON m.material_id = s.material_id
WHERE s.sale_date BETWEEN {{.Param "fromDate"}} AND {{.Param "toDate"}}
	{{- if .Has "states"}} AND s.state IN ({{.List "states"}}){{- end}}
	{{- if .Has "regions"}} AND s.region IN ({{.List "regions"}}){{- end}}
	{{- if .Has "areaHeads"}} AND s.area_head IN ({{.List "areaHeads"}}){{- end}}
	{{- if .Has "divisions"}} AND s.division IN ({{.List "divisions"}}){{- end}}
	{{- if .Has "dealerTypes"}} AND s.dealer_type IN ({{.List "dealerTypes"}}){{- end}}
	{{- if .Has "distributors"}} AND s.distributor IN ({{.List "distributors"}}){{- end}}
ORDER BY s.sale_date, s.id`

var salesTmpl = template.Must(template.New("sql").Parse(salesSQL))

// Args collects query parameters while a template renders. Positional args
// render as "?" and accumulate in order; named args render as "@name" for
// drivers that bind by name (gorm).
type Args struct {
	named      bool
	values     map[string]any
	Positional []any
}

func newArgs(named bool, values map[string]any) *Args {
	return &Args{named: named, values: values}
}

// Has reports whether name holds a non-empty list.
func (a *Args) Has(name string) bool {
	v, ok := a.values[name]
	if !ok {
		return false
	}
	if l, isList := v.([]string); isList {
		return len(l) > 0
	}
	return true
}

func (a *Args) Param(name string) string {
	if a.named {
		return "@" + name
	}
	a.Positional = append(a.Positional, a.values[name])
	return "?"
}

func (a *Args) List(name string) string {
	if a.named {
		return "@" + name
	}
	l, _ := a.values[name].([]string)
	marks := make([]string, len(l))
	for i, v := range l {
		marks[i] = "?"
		a.Positional = append(a.Positional, v)
	}
	return strings.Join(marks, ", ")
}

// Values returns the named parameter map.
func (a *Args) Values() map[string]any { return a.values }

func salesValues(q scheme.SalesQuery) map[string]any {
	f := q.Applicable
	return map[string]any{
		"fromDate":     q.Window.From.String(),
		"toDate":       q.Window.To.String(),
		"states":       []string(f.States),
		"regions":      []string(f.Regions),
		"areaHeads":    []string(f.AreaHeads),
		"divisions":    []string(f.Divisions),
		"dealerTypes":  []string(f.DealerTypes),
		"distributors": []string(f.Distributors),
	}
}

// SalesQuery renders the sales fetch for q. With named set, placeholders are
// "@name" and the caller binds Args.Values(); otherwise they are "?" and the
// caller binds Args.Positional.
func SalesQuery(q scheme.SalesQuery, named bool) (string, *Args, error) {
	if q.Window.IsZero() {
		return "", nil, errors.New("sales query needs a date range")
	}
	args := newArgs(named, salesValues(q))
	var b bytes.Buffer
	if err := salesTmpl.Execute(&b, args); err != nil {
		return "", nil, errors.New("failed to execute sql template: " + err.Error())
	}
	return b.String(), args, nil
}

// Rebind rewrites "?" placeholders to "$1", "$2", ... The queries here never
// carry "?" inside literals.
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// inList returns "?, ?, ?" for n items.
func inList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
