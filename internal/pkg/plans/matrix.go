package plans

import (
	"errors"
	"fmt"
	"sort"
)

var ErrTierRequired = errors.New("select a tier before choosing a billing cycle")

// SelectionIncompleteError names one category without a resolved plan.
type SelectionIncompleteError struct {
	Category string
}

func (e *SelectionIncompleteError) Error() string {
	return fmt.Sprintf("category %q has no plan selected", e.Category)
}

// ResolvedPlan is the catalog entry bound to a category selection.
type ResolvedPlan struct {
	PriceID   string `json:"price_id"`
	Price     int64  `json:"price"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
}

// Selection is the plan state of a single category. Cycle and Resolved are
// only meaningful once Tier is set.
type Selection struct {
	Tier     Tier          `json:"tier,omitempty"`
	Cycle    Cycle         `json:"cycle,omitempty"`
	Resolved *ResolvedPlan `json:"resolved,omitempty"`
}

// Line is a resolved plan for a category, ready for submission.
type Line struct {
	Category  string `json:"category"`
	Tier      Tier   `json:"tier"`
	Cycle     Cycle  `json:"cycle"`
	PriceID   string `json:"price_id"`
	ProductID string `json:"product_id"`
	Price     int64  `json:"price"`
}

// Matrix tracks an independent plan selection per category against one catalog
// snapshot. A Matrix is owned by a single workflow and is not safe for
// concurrent use.
type Matrix struct {
	catalog    Catalog
	selections map[string]*Selection
}

func NewMatrix(catalog Catalog) *Matrix {
	return &Matrix{
		catalog:    catalog,
		selections: make(map[string]*Selection),
	}
}

func (m *Matrix) Catalog() Catalog { return m.catalog }

// Ensure creates an empty selection for every category that has none yet.
func (m *Matrix) Ensure(categories ...string) {
	for _, c := range categories {
		if _, ok := m.selections[c]; !ok {
			m.selections[c] = &Selection{}
		}
	}
}

// SelectTier sets the tier and clears cycle and resolved plan of that category only.
func (m *Matrix) SelectTier(category string, tier Tier) error {
	if _, err := ParseTier(string(tier)); err != nil {
		return err
	}
	m.selections[category] = &Selection{Tier: tier}
	return nil
}

// SelectBilling resolves the catalog entry for the category's tier and cycle.
// On a catalog mismatch the tier is kept but the cycle and the resolved plan
// are cleared, so the category is incomplete until a payable cycle is chosen.
func (m *Matrix) SelectBilling(category string, cycle Cycle) error {
	if _, err := ParseCycle(string(cycle)); err != nil {
		return err
	}
	sel, ok := m.selections[category]
	if !ok || sel.Tier == "" {
		return ErrTierRequired
	}
	entry, err := m.catalog.Lookup(sel.Tier, cycle)
	if err != nil {
		sel.Cycle, sel.Resolved = "", nil
		return err
	}
	sel.Cycle = cycle
	sel.Resolved = &ResolvedPlan{
		PriceID:   entry.PriceID,
		Price:     entry.Price,
		ProductID: entry.ProductID,
		Name:      entry.Name,
	}
	return nil
}

// Selection returns a copy of the category's state.
func (m *Matrix) Selection(category string) Selection {
	sel, ok := m.selections[category]
	if !ok {
		return Selection{}
	}
	out := *sel
	if sel.Resolved != nil {
		r := *sel.Resolved
		out.Resolved = &r
	}
	return out
}

// IsComplete is true iff every listed category has a resolved plan.
func (m *Matrix) IsComplete(categories []string) bool {
	return len(m.Missing(categories)) == 0
}

// Missing returns the listed categories lacking a resolved plan, in list order.
func (m *Matrix) Missing(categories []string) []string {
	var missing []string
	for _, c := range dedupe(categories) {
		sel, ok := m.selections[c]
		if !ok || sel.Resolved == nil {
			missing = append(missing, c)
		}
	}
	return missing
}

// Validate returns one SelectionIncompleteError per missing category, joined.
func (m *Matrix) Validate(categories []string) error {
	var errs []error
	for _, c := range m.Missing(categories) {
		errs = append(errs, &SelectionIncompleteError{Category: c})
	}
	return errors.Join(errs...)
}

// Total sums the resolved prices of the listed categories. Selections of
// categories outside the list are ignored.
func (m *Matrix) Total(categories []string) int64 {
	var total int64
	for _, l := range m.Resolved(categories) {
		total += l.Price
	}
	return total
}

// Resolved returns the resolved lines of the listed categories in list order.
func (m *Matrix) Resolved(categories []string) []Line {
	var lines []Line
	for _, c := range dedupe(categories) {
		sel, ok := m.selections[c]
		if !ok || sel.Resolved == nil {
			continue
		}
		lines = append(lines, Line{
			Category:  c,
			Tier:      sel.Tier,
			Cycle:     sel.Cycle,
			PriceID:   sel.Resolved.PriceID,
			ProductID: sel.Resolved.ProductID,
			Price:     sel.Resolved.Price,
		})
	}
	return lines
}

// State is the serialisable form of a Matrix, catalog snapshot included.
type State struct {
	Catalog    []CatalogEntry       `json:"catalog"`
	Selections map[string]Selection `json:"selections"`
}

func (m *Matrix) State() State {
	st := State{
		Catalog:    m.catalog.Entries(),
		Selections: make(map[string]Selection, len(m.selections)),
	}
	for c := range m.selections {
		st.Selections[c] = m.Selection(c)
	}
	return st
}

// Categories lists every category the matrix holds, orphans included.
func (m *Matrix) Categories() []string {
	out := make([]string, 0, len(m.selections))
	for c := range m.selections {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func RestoreMatrix(st State) *Matrix {
	m := NewMatrix(NewCatalog(st.Catalog))
	for c, sel := range st.Selections {
		s := sel
		m.selections[c] = &s
	}
	return m
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
