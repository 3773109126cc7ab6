package transaction

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xraph/credits/types"
)

// Dimension is a grouping key for aggregation.
type Dimension string

const (
	DimensionProject Dimension = "project"
	DimensionService Dimension = "service"
	// DimensionDate buckets by UTC calendar day.
	DimensionDate Dimension = "date"
)

// DateLayout formats DimensionDate group values.
const DateLayout = "2006-01-02"

// AggregateQuery groups an organization's completed transactions.
type AggregateQuery struct {
	Keys     []Dimension `json:"keys"`
	From     time.Time   `json:"from"`
	To       time.Time   `json:"to"`
	Projects []string    `json:"projects,omitempty"`
}

// Validate rejects empty, unknown or repeated keys and inverted ranges.
func (q AggregateQuery) Validate() error {
	if len(q.Keys) == 0 {
		return fmt.Errorf("%w: at least one aggregation key is required", ErrInvalidQuery)
	}
	seen := make(map[Dimension]bool, len(q.Keys))
	for _, k := range q.Keys {
		switch k {
		case DimensionProject, DimensionService, DimensionDate:
		default:
			return fmt.Errorf("%w: unknown aggregation key %q", ErrInvalidQuery, k)
		}
		if seen[k] {
			return fmt.Errorf("%w: duplicate aggregation key %q", ErrInvalidQuery, k)
		}
		seen[k] = true
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return fmt.Errorf("%w: from must be before to", ErrInvalidQuery)
	}
	return nil
}

// AggregateRow is the sum of all records sharing one group.
type AggregateRow struct {
	Group     map[Dimension]string `json:"group"`
	Credits   int64                `json:"credits"`
	Resources types.Resources      `json:"resources"`
}

// Aggregate sums records per group. Resource units outside allowed are
// dropped. Rows are returned ordered by their group values in key order.
func Aggregate(records []Record, keys []Dimension, allowed types.UnitSet) []AggregateRow {
	index := make(map[string]*AggregateRow)
	order := make([][]string, 0)

	for _, rec := range records {
		values := make([]string, len(keys))
		for i, k := range keys {
			values[i] = groupValue(rec, k)
		}
		key := strings.Join(values, "\x00")

		row, ok := index[key]
		if !ok {
			group := make(map[Dimension]string, len(keys))
			for i, k := range keys {
				group[k] = values[i]
			}
			row = &AggregateRow{Group: group, Resources: types.Resources{}}
			index[key] = row
			order = append(order, values)
		}
		row.Credits += rec.Credits
		row.Resources.Add(rec.Resources.Normalize(allowed))
	}

	sort.Slice(order, func(i, j int) bool {
		for k := range order[i] {
			if order[i][k] != order[j][k] {
				return order[i][k] < order[j][k]
			}
		}
		return false
	})

	out := make([]AggregateRow, 0, len(order))
	for _, values := range order {
		out = append(out, *index[strings.Join(values, "\x00")])
	}
	return out
}

func groupValue(rec Record, k Dimension) string {
	switch k {
	case DimensionProject:
		return rec.ProjectID
	case DimensionService:
		return rec.ServiceName
	case DimensionDate:
		return rec.Created.UTC().Format(DateLayout)
	}
	return ""
}
