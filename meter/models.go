// Package meter defines the metering report that finalizes a lease.
package meter

import (
	"sort"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Usage is one metered amount of a resource unit. A report may carry the
// same unit more than once; the amounts add up.
type Usage struct {
	Unit   types.Unit `json:"unit" validate:"required"`
	Amount int64      `json:"amount" validate:"gte=0"`
}

// Report carries the measured consumption of a lease.
type Report struct {
	LeaseID     id.LeaseID `json:"lease_id" validate:"required"`
	Consumption []Usage    `json:"consumption" validate:"dive"`
	ProjectID   string     `json:"project_id,omitempty" validate:"omitempty,max=128"`
	ServiceName string     `json:"service_name,omitempty" validate:"omitempty,max=128"`
}

// Consumed is the total metered amount across every entry.
func (r *Report) Consumed() int64 {
	var total int64
	for _, u := range r.Consumption {
		if u.Amount > 0 {
			total += u.Amount
		}
	}
	return total
}

// Resources sums the consumption per unit.
func (r *Report) Resources() types.Resources {
	out := make(types.Resources, len(r.Consumption))
	for _, u := range r.Consumption {
		if u.Amount > 0 {
			out[u.Unit] += u.Amount
		}
	}
	return out
}

// UsageOf lists the positive amounts of res in ascending unit order.
func UsageOf(res types.Resources) []Usage {
	out := make([]Usage, 0, len(res))
	for u, v := range res {
		if v > 0 {
			out = append(out, Usage{Unit: u, Amount: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Unit < out[j].Unit })
	return out
}
