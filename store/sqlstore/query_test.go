package sqlstore_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scheme-engine/scheme"
	"github.com/warp/scheme-engine/store/sqlstore"
)

var q2 = scheme.NewWindow(scheme.MustParseDate("2025-04-01"), scheme.MustParseDate("2025-06-30"))

func TestSalesQuery_Positional(t *testing.T) {
	query, args, err := sqlstore.SalesQuery(scheme.SalesQuery{
		Window:     q2,
		Applicable: scheme.ApplicableFilters{States: scheme.NewSet("Kerala", "Goa"), DealerTypes: scheme.NewSet("Retail")},
	}, false)

	require.NoError(t, err)
	assert.Contains(t, query, "s.state IN (?, ?)")
	assert.Contains(t, query, "s.dealer_type IN (?)")
	assert.NotContains(t, query, "s.region IN")
	assert.Equal(t, []any{"2025-04-01", "2025-06-30", "Goa", "Kerala", "Retail"}, args.Positional)
}

func TestSalesQuery_Named(t *testing.T) {
	query, args, err := sqlstore.SalesQuery(scheme.SalesQuery{
		Window:     q2,
		Applicable: scheme.ApplicableFilters{Regions: scheme.NewSet("South")},
	}, true)

	require.NoError(t, err)
	assert.Contains(t, query, "BETWEEN @fromDate AND @toDate")
	assert.Contains(t, query, "s.region IN (@regions)")
	assert.Empty(t, args.Positional)
	assert.Equal(t, []string{"South"}, args.Values()["regions"])
}

func TestSalesQuery_NeedsWindow(t *testing.T) {
	_, _, err := sqlstore.SalesQuery(scheme.SalesQuery{}, false)
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	got := sqlstore.Rebind("SELECT 1 WHERE a = ? AND b IN (?, ?)")

	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b IN ($2, $3)", got)
	assert.False(t, strings.Contains(got, "?"))
}
