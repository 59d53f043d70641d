package plans

import (
	"errors"
	"fmt"
	"strings"
)

type Tier string

const (
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

// Tiers lists every tier in ascending order.
var Tiers = []Tier{TierSilver, TierGold, TierPlatinum}

func ParseTier(raw string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(raw)))
	switch t {
	case TierSilver, TierGold, TierPlatinum:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTier, raw)
}

func (t Tier) token() string {
	return strings.ToLower(string(t))
}

type Cycle string

const (
	CycleMonthly Cycle = "monthly"
	CycleYearly  Cycle = "yearly"
)

func ParseCycle(raw string) (Cycle, error) {
	c := Cycle(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case CycleMonthly, CycleYearly:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCycle, raw)
}

// token is the fragment searched for in catalog entry names.
func (c Cycle) token() string {
	if c == CycleYearly {
		return "year"
	}
	return "month"
}

var (
	ErrUnknownTier     = errors.New("unknown tier")
	ErrUnknownCycle    = errors.New("unknown billing cycle")
	ErrPlanUnavailable = errors.New("plan unavailable")
)

// CatalogMismatchError reports a tier/cycle pair without exactly one catalog entry.
type CatalogMismatchError struct {
	Tier    Tier
	Cycle   Cycle
	Matches int
}

func (e *CatalogMismatchError) Error() string {
	if e.Matches == 0 {
		return fmt.Sprintf("plan unavailable: no catalog entry for %s/%s", e.Tier, e.Cycle)
	}
	return fmt.Sprintf("plan unavailable: %d catalog entries match %s/%s", e.Matches, e.Tier, e.Cycle)
}

func (e *CatalogMismatchError) Unwrap() error { return ErrPlanUnavailable }

// CatalogEntry is one sellable price. Price is in minor units.
type CatalogEntry struct {
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	ProductID string `json:"product_id"`
	PriceID   string `json:"price_id"`
}

// Catalog is an immutable snapshot of the price list.
type Catalog struct {
	entries []CatalogEntry
}

func NewCatalog(entries []CatalogEntry) Catalog {
	cp := make([]CatalogEntry, len(entries))
	copy(cp, entries)
	return Catalog{entries: cp}
}

// Entries returns a copy of the snapshot.
func (c Catalog) Entries() []CatalogEntry {
	cp := make([]CatalogEntry, len(c.entries))
	copy(cp, c.entries)
	return cp
}

func (c Catalog) Len() int { return len(c.entries) }

// Lookup finds the single entry whose name contains both the tier and the cycle
// token, case-insensitively. Zero or several matches fail with a CatalogMismatchError.
func (c Catalog) Lookup(tier Tier, cycle Cycle) (CatalogEntry, error) {
	var found []CatalogEntry
	for _, e := range c.entries {
		name := strings.ToLower(e.Name)
		if strings.Contains(name, tier.token()) && strings.Contains(name, cycle.token()) {
			found = append(found, e)
		}
	}
	if len(found) != 1 {
		return CatalogEntry{}, &CatalogMismatchError{Tier: tier, Cycle: cycle, Matches: len(found)}
	}
	return found[0], nil
}

// YearlySavings is monthly*12 - yearly for the tier. ok is false unless
// both prices resolve.
func (c Catalog) YearlySavings(tier Tier) (savings int64, ok bool) {
	monthly, err := c.Lookup(tier, CycleMonthly)
	if err != nil {
		return 0, false
	}
	yearly, err := c.Lookup(tier, CycleYearly)
	if err != nil {
		return 0, false
	}
	return monthly.Price*12 - yearly.Price, true
}

// TierOffer is the catalog view of one tier used for display.
type TierOffer struct {
	Tier          Tier          `json:"tier"`
	Monthly       *CatalogEntry `json:"monthly,omitempty"`
	Yearly        *CatalogEntry `json:"yearly,omitempty"`
	YearlySavings *int64        `json:"yearly_savings,omitempty"`
}

// Offers groups the catalog by tier.
func (c Catalog) Offers() []TierOffer {
	out := make([]TierOffer, 0, len(Tiers))
	for _, t := range Tiers {
		o := TierOffer{Tier: t}
		if e, err := c.Lookup(t, CycleMonthly); err == nil {
			o.Monthly = &e
		}
		if e, err := c.Lookup(t, CycleYearly); err == nil {
			o.Yearly = &e
		}
		if s, ok := c.YearlySavings(t); ok {
			o.YearlySavings = &s
		}
		out = append(out, o)
	}
	return out
}
