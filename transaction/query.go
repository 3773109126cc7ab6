package transaction

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Page size bounds for transaction listings.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// Sort orders accepted by Query.
const (
	SortCreated     = "created"
	SortCreatedDesc = "-created"
	SortCredits     = "credits"
	SortCreditsDesc = "-credits"
)

// ErrInvalidQuery is returned for malformed queries.
var ErrInvalidQuery = errors.New("transaction: invalid query")

// Query filters the completed transactions of an organization.
type Query struct {
	From      time.Time  `json:"from"`
	To        time.Time  `json:"to"`
	Skip      int        `json:"skip"`
	Limit     int        `json:"limit"`
	Sort      string     `json:"sort"`
	ProjectID string     `json:"project_id,omitempty"`
	Unit      types.Unit `json:"unit,omitempty"`
}

// Normalize applies defaults and rejects out-of-range values.
func (q Query) Normalize() (Query, error) {
	if q.Sort == "" {
		q.Sort = SortCreatedDesc
	}
	if _, _, err := ParseSort(q.Sort); err != nil {
		return q, err
	}
	if q.Skip < 0 {
		return q, fmt.Errorf("%w: skip must not be negative", ErrInvalidQuery)
	}
	switch {
	case q.Limit < 0:
		return q, fmt.Errorf("%w: limit must not be negative", ErrInvalidQuery)
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return q, fmt.Errorf("%w: from must be before to", ErrInvalidQuery)
	}
	if q.Unit != "" && !q.Unit.Valid() {
		return q, fmt.Errorf("%w: unknown unit %q", ErrInvalidQuery, q.Unit)
	}
	return q, nil
}

// ParseSort splits a sort expression into its field and direction.
func ParseSort(s string) (field string, desc bool, err error) {
	desc = strings.HasPrefix(s, "-")
	field = strings.TrimPrefix(s, "-")
	if field != SortCreated && field != SortCredits {
		return "", false, fmt.Errorf("%w: unsupported sort %q", ErrInvalidQuery, s)
	}
	return field, desc, nil
}

// Filter is the store-level row selection behind Query and AggregateQuery.
type Filter struct {
	AccountID  id.AccountID
	Operation  Operation
	From       time.Time
	To         time.Time
	ProjectIDs []string
	Unit       types.Unit
	Sort       string
	Skip       int
	// Limit of zero returns every matching row.
	Limit int
}

// Matches reports whether t passes every predicate of the filter.
func (f Filter) Matches(t *Transaction) bool {
	if !f.AccountID.IsNil() && t.AccountID != f.AccountID {
		return false
	}
	if f.Operation != "" && t.Operation != f.Operation {
		return false
	}
	if !f.From.IsZero() && t.Created.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !t.Created.Before(f.To) {
		return false
	}
	if len(f.ProjectIDs) > 0 && !contains(f.ProjectIDs, t.ProjectID) {
		return false
	}
	if f.Unit != "" {
		if _, ok := t.Requests[f.Unit]; !ok {
			return false
		}
	}
	return true
}

// Apply filters, sorts and pages rows in memory. It returns the page and the
// number of rows that matched before paging.
func (f Filter) Apply(rows []*Transaction) ([]*Transaction, int) {
	matched := make([]*Transaction, 0, len(rows))
	for _, r := range rows {
		if f.Matches(r) {
			matched = append(matched, r)
		}
	}
	SortRows(matched, f.Sort)

	total := len(matched)
	if f.Skip >= total {
		return nil, total
	}
	matched = matched[f.Skip:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total
}

// SortRows orders rows by a sort expression, breaking ties by transfer id.
// An empty or unknown expression sorts by creation time, newest first.
func SortRows(rows []*Transaction, expr string) {
	field, desc, err := ParseSort(expr)
	if err != nil {
		field, desc = SortCreated, true
	}
	less := func(a, b *Transaction) bool {
		if field == SortCredits {
			if a.Credit != b.Credit {
				return a.Credit < b.Credit
			}
		} else if !a.Created.Equal(b.Created) {
			return a.Created.Before(b.Created)
		}
		return a.TxID.String() < b.TxID.String()
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
}

// Record is a completed consumption as reported to callers.
type Record struct {
	TxID        id.TransferID   `json:"tx_id"`
	LeaseID     id.LeaseID      `json:"lease_id"`
	Created     time.Time       `json:"created"`
	Credits     int64           `json:"credits"`
	ProjectID   string          `json:"project_id,omitempty"`
	ServiceName string          `json:"service_name,omitempty"`
	Resources   types.Resources `json:"resources,omitempty"`
}

// NewRecord converts a lease-side consumption row into a Record.
func NewRecord(t *Transaction) Record {
	return Record{
		TxID:        t.TxID,
		LeaseID:     t.GroupID,
		Created:     t.Created,
		Credits:     t.Credit,
		ProjectID:   t.ProjectID,
		ServiceName: t.ServiceName,
		Resources:   t.Requests,
	}
}

// Page is one page of completed transactions.
type Page struct {
	Total   int      `json:"total"`
	Records []Record `json:"records"`
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
