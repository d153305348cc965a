package cache

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/warp/scheme-engine/scheme"
)

// Key is the content hash of everything that shapes a scheme's sales frame.
type Key uint64

func (k Key) String() string { return strconv.FormatUint(uint64(k), 16) }

type keyContent struct {
	SchemeID   string                   `json:"scheme_id"`
	Window     scheme.Window            `json:"window"`
	Applicable scheme.ApplicableFilters `json:"applicable"`
	Products   []scheme.ProductFilter   `json:"products"`
}

// KeyOf hashes the scheme id, the fetch window, the applicable filters and the
// product filters of the main scheme and every additional scheme. Sets are kept
// sorted by the parser, so equal configs encode to equal bytes.
func KeyOf(cfg *scheme.Config) Key {
	kc := keyContent{
		SchemeID:   cfg.SchemeID,
		Window:     cfg.DateRange(),
		Applicable: cfg.Applicable,
	}
	add := func(c *scheme.Config) {
		kc.Products = append(kc.Products, c.Products, c.MandatoryProducts, c.PayoutProducts)
	}
	add(cfg)
	for i := range cfg.Additional {
		add(&cfg.Additional[i])
	}

	b, err := json.Marshal(kc)
	if err != nil {
		// Plain strings and dates only; cannot fail.
		panic(err)
	}
	return Key(xxhash.Sum64(b))
}
