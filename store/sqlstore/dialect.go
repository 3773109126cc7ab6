// Package sqlstore implements store.Store over database/sql. Backends
// differ only in their Dialect: placeholders, JSON handling, timestamps and
// how a unit of work locks an organization.
package sqlstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect captures what differs between SQL backends.
type Dialect struct {
	// Name prefixes every error, e.g. "credits/postgres".
	Name string
	// Numbered rewrites '?' placeholders to $1, $2, ...
	Numbered bool
	// LockOrg, when set, runs first in every unit of work with the
	// organization id as its only argument.
	LockOrg string
	// LocalLock serializes units of work per organization in process,
	// before the database transaction begins.
	LocalLock bool
	// JSONText renders a select expression that reads a JSON column as text.
	JSONText func(column string) string
	// HasKey renders a predicate testing whether a JSON object column has
	// the key bound to the next placeholder.
	HasKey func(column string) string
	// Time converts a timestamp to its column representation.
	Time func(t time.Time) any
	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(err error) bool
	// Migrations are applied in order by Store.Migrate.
	Migrations []Migration
}

// Migration is one forward-only schema change.
type Migration struct {
	Version string
	Name    string
	Up      string
}

func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d Dialect) timeArg(t time.Time) any {
	if d.Time == nil {
		return t.UTC()
	}
	return d.Time(t)
}

func (d Dialect) jsonText(column string) string {
	if d.JSONText == nil {
		return column
	}
	return d.JSONText(column)
}

// nullTime scans timestamps stored natively, as unix nanoseconds or as
// RFC 3339 text.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (t *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time = v.UTC()
	case int64:
		t.Time = time.Unix(0, v).UTC()
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("sqlstore: cannot scan %T into time", src)
	}
	t.Valid = true
	return nil
}

func (t *nullTime) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("sqlstore: parse time %q: %w", s, err)
	}
	t.Time, t.Valid = parsed.UTC(), true
	return nil
}

// idList stores account ids as a JSON array.
type idList []string

func (l idList) Value() (driver.Value, error) {
	if l == nil {
		l = idList{}
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *idList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("sqlstore: cannot scan %T into id list", src)
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("sqlstore: unmarshal id list: %w", err)
	}
	*l = out
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
