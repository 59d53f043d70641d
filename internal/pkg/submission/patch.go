package submission

import "sort"

// Patch maps changed columns to their new values. The "discounts" key holds
// the complete replacement list.
type Patch map[string]any

// Columns returns the patched column names sorted.
func (p Patch) Columns() []string {
	out := make([]string, 0, len(p))
	for k := range p {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Diff returns the columns of cur that differ from prev.
func Diff(prev, cur Fields) Patch {
	p := Patch{}
	setIf := func(col, a, b string) {
		if a != b {
			p[col] = b
		}
	}
	setIf("name", prev.Name, cur.Name)
	setIf("tagline", prev.Tagline, cur.Tagline)
	setIf("address", prev.Address, cur.Address)
	setIf("phone", prev.Phone, cur.Phone)
	setIf("email", prev.Email, cur.Email)
	setIf("website", prev.Website, cur.Website)
	setIf("category", prev.Category, cur.Category)

	if !sameCoord(prev.Latitude, cur.Latitude) {
		p["latitude"] = cur.Latitude
	}
	if !sameCoord(prev.Longitude, cur.Longitude) {
		p["longitude"] = cur.Longitude
	}
	if !sameDiscounts(prev.Discounts, cur.Discounts) {
		d := make([]Discount, len(cur.Discounts))
		copy(d, cur.Discounts)
		p["discounts"] = d
	}
	return p
}

func sameCoord(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameDiscounts(a, b []Discount) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
