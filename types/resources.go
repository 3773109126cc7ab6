package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// Unit names a metered resource such as "image" or "frame".
// The set of units is open; callers may restrict it with a UnitSet.
type Unit string

const maxUnitLen = 64

// Valid reports whether u is a well-formed unit name: 1 to 64 characters
// drawn from lowercase ASCII letters, digits, '_', '-' and '.'.
func (u Unit) Valid() bool {
	if len(u) == 0 || len(u) > maxUnitLen {
		return false
	}
	for i := 0; i < len(u); i++ {
		c := u[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '-', c == '.':
		default:
			return false
		}
	}
	return true
}

// UnitSet is an allow-list of units. A nil set allows every valid unit.
type UnitSet map[Unit]struct{}

// NewUnitSet builds an allow-list from the given units.
func NewUnitSet(units ...Unit) UnitSet {
	if len(units) == 0 {
		return nil
	}
	s := make(UnitSet, len(units))
	for _, u := range units {
		s[u] = struct{}{}
	}
	return s
}

// Allows reports whether u is valid and, for a non-nil set, listed.
func (s UnitSet) Allows(u Unit) bool {
	if !u.Valid() {
		return false
	}
	if s == nil {
		return true
	}
	_, ok := s[u]
	return ok
}

// Resources maps a unit to a non-negative integer amount of credits.
type Resources map[Unit]int64

// Total returns the sum of all positive amounts.
func (r Resources) Total() int64 {
	var total int64
	for _, v := range r {
		if v > 0 {
			total += v
		}
	}
	return total
}

// Units returns the units with a positive amount in ascending name order.
func (r Resources) Units() []Unit {
	units := make([]Unit, 0, len(r))
	for u, v := range r {
		if v > 0 {
			units = append(units, u)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })
	return units
}

// Clone returns a copy of r. A nil map clones to nil.
func (r Resources) Clone() Resources {
	if r == nil {
		return nil
	}
	out := make(Resources, len(r))
	for u, v := range r {
		out[u] = v
	}
	return out
}

// Add accumulates o into r and returns r. A nil receiver is allocated.
func (r Resources) Add(o Resources) Resources {
	if r == nil {
		r = make(Resources, len(o))
	}
	for u, v := range o {
		r[u] += v
	}
	return r
}

// Normalize returns a copy holding only allowed units with positive
// amounts. Unknown units are dropped rather than rejected.
func (r Resources) Normalize(allowed UnitSet) Resources {
	out := make(Resources, len(r))
	for u, v := range r {
		if v <= 0 || !allowed.Allows(u) {
			continue
		}
		out[u] = v
	}
	return out
}

// Validate rejects negative amounts and malformed or disallowed unit names.
// Zero amounts are accepted and later dropped by Normalize.
func (r Resources) Validate(allowed UnitSet) error {
	for _, u := range sortedKeys(r) {
		if !allowed.Allows(u) {
			return fmt.Errorf("unknown resource unit %q", u)
		}
		if r[u] < 0 {
			return fmt.Errorf("negative amount %d for unit %q", r[u], u)
		}
	}
	return nil
}

// Value implements driver.Valuer, storing resources as a JSON object.
func (r Resources) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil //nolint:nilnil // NULL column
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("types: marshal resources: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSON or JSONB columns.
func (r *Resources) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("types: cannot scan %T into Resources", src)
	}
	if len(data) == 0 {
		*r = nil
		return nil
	}
	out := Resources{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("types: unmarshal resources: %w", err)
	}
	*r = out
	return nil
}

func sortedKeys(r Resources) []Unit {
	units := make([]Unit, 0, len(r))
	for u := range r {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })
	return units
}
