package scheme

import (
	"sort"
	"strings"
)

// =============================================================================
// SET - Sorted, de-duplicated string set
// =============================================================================

// Set is a sorted string set. The empty Set means "no filter" wherever it is
// used as a filter axis. Sorted storage keeps JSON and content hashes stable.
type Set []string

// NewSet trims, drops empties, de-duplicates and sorts.
func NewSet(values ...string) Set {
	seen := make(map[string]struct{}, len(values))
	out := make(Set, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s Set) IsEmpty() bool { return len(s) == 0 }

func (s Set) Contains(v string) bool {
	i := sort.SearchStrings(s, v)
	return i < len(s) && s[i] == v
}

// Pass is the filter reading of a set: empty passes everything.
func (s Set) Pass(v string) bool { return s.IsEmpty() || s.Contains(v) }

// =============================================================================
// APPLICABILITY - Who the scheme applies to
// =============================================================================

// AccountAttrs are the geographic and dealer attributes of a sales row.
type AccountAttrs struct {
	CreditAccount string `json:"credit_account"`
	CustomerName  string `json:"customer_name"`
	SOName        string `json:"so_name"`
	State         string `json:"state"`
	Region        string `json:"region"`
	AreaHead      string `json:"area_head"`
	Division      string `json:"division"`
	DealerType    string `json:"dealer_type"`
	Distributor   string `json:"distributor"`
}

// ApplicableFilters restrict which accounts a scheme covers. Conjunctive across
// dimensions; an empty dimension passes everything.
type ApplicableFilters struct {
	States       Set `json:"states,omitempty"`
	Regions      Set `json:"regions,omitempty"`
	AreaHeads    Set `json:"area_heads,omitempty"`
	Divisions    Set `json:"divisions,omitempty"`
	DealerTypes  Set `json:"dealer_types,omitempty"`
	Distributors Set `json:"distributors,omitempty"`
}

func (f ApplicableFilters) Match(a AccountAttrs) bool {
	return f.States.Pass(a.State) &&
		f.Regions.Pass(a.Region) &&
		f.AreaHeads.Pass(a.AreaHead) &&
		f.Divisions.Pass(a.Division) &&
		f.DealerTypes.Pass(a.DealerType) &&
		f.Distributors.Pass(a.Distributor)
}

func (f ApplicableFilters) IsEmpty() bool {
	return f.States.IsEmpty() && f.Regions.IsEmpty() && f.AreaHeads.IsEmpty() &&
		f.Divisions.IsEmpty() && f.DealerTypes.IsEmpty() && f.Distributors.IsEmpty()
}

// =============================================================================
// PRODUCT FILTERS - Which materials count
// =============================================================================

// ProductAttrs are the material-master attributes joined onto a sales row.
type ProductAttrs struct {
	MaterialID   string `json:"material_id"`
	Category     string `json:"category"`
	Group        string `json:"group"`
	WandaGroup   string `json:"wanda_group"`
	ThinnerGroup string `json:"thinner_group"`
}

// ProductFilter holds the five product axes. The same shape serves three
// roles with two different readings:
//
//	scheme products    -> MatchAny (disjunctive: any non-empty axis matching qualifies)
//	mandatory products -> MatchAll (conjunctive: every non-empty axis must match)
//	payout products    -> MatchAll
type ProductFilter struct {
	Materials     Set `json:"materials,omitempty"`
	Categories    Set `json:"categories,omitempty"`
	Groups        Set `json:"groups,omitempty"`
	WandaGroups   Set `json:"wanda_groups,omitempty"`
	ThinnerGroups Set `json:"thinner_groups,omitempty"`
}

func (f ProductFilter) IsEmpty() bool {
	return f.Materials.IsEmpty() && f.Categories.IsEmpty() && f.Groups.IsEmpty() &&
		f.WandaGroups.IsEmpty() && f.ThinnerGroups.IsEmpty()
}

// MatchAny is the disjunctive reading. A filter with no axes set passes everything.
func (f ProductFilter) MatchAny(p ProductAttrs) bool {
	if f.IsEmpty() {
		return true
	}
	return f.Materials.Contains(p.MaterialID) ||
		f.Categories.Contains(p.Category) ||
		f.Groups.Contains(p.Group) ||
		f.WandaGroups.Contains(p.WandaGroup) ||
		f.ThinnerGroups.Contains(p.ThinnerGroup)
}

// MatchAll is the conjunctive reading. A filter with no axes set passes everything;
// callers gate on IsEmpty where an empty set means "section disabled".
func (f ProductFilter) MatchAll(p ProductAttrs) bool {
	return f.Materials.Pass(p.MaterialID) &&
		f.Categories.Pass(p.Category) &&
		f.Groups.Pass(p.Group) &&
		f.WandaGroups.Pass(p.WandaGroup) &&
		f.ThinnerGroups.Pass(p.ThinnerGroup)
}
