package metrics

import (
	"math"

	"github.com/rendis/vsm/internal/registry"
	"github.com/rendis/vsm/pkg/schema"
)

// ComputeEPEI derives Every-Part-Every-Interval from the single customer
// node and the bottleneck process, which acts as pacemaker. It returns nil
// when there is no unique customer or no process node, so callers can tell
// "not applicable" apart from a zero interval.
func ComputeEPEI(g schema.Graph) *schema.EPEI {
	customer, ok := Customer(g)
	if !ok {
		return nil
	}
	pacemaker := Bottleneck(g)
	if pacemaker == nil {
		return nil
	}

	demand := nonNegative(registry.Float(customer.Data, schema.FieldDemandPerDay))
	available := AvailableTimePerDay(customer)
	production := demand * CycleSeconds(pacemaker)
	spare := available - production
	changeover := nonNegative(registry.Float(pacemaker.Data, schema.FieldChangeoverTime)) * 60

	days := math.Inf(1)
	if spare > 0 {
		days = changeover / spare
	}

	return &schema.EPEI{
		Days:                 days,
		IsHealthy:            days <= 1,
		PacemakerNodeID:      pacemaker.ID,
		AvailableTimePerDay:  available,
		ProductionTimeNeeded: production,
		SpareTime:            spare,
		ChangeoverSeconds:    changeover,
	}
}
