package emtaggregator

import (
	"context"
	"fmt"
	"time"

	interfaces "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Repository/Interfaces"
)

// ConsumedKwh is the cumulative consumption over a range, taken as the
// difference between the last and first counter values inside it.
type ConsumedKwh struct {
	TotalConsumedKwh float64  `json:"totalConsumedKwh"`
	FirstRecord      *float64 `json:"firstRecord,omitempty"`
	LastRecord       *float64 `json:"lastRecord,omitempty"`
}

// TotalConsumedKwh computes consumption for a chip or device over a local
// time window. An empty range yields zero consumption.
func (a *Aggregator) TotalConsumedKwh(ctx context.Context, chipId string, deviceId *int, start, end time.Time) (ConsumedKwh, error) {
	readings, err := a.repo.FindRange(ctx, interfaces.RangeQuery{
		ChipId:    chipId,
		DeviceId:  deviceId,
		Start:     start,
		End:       end,
		SortOrder: "asc",
	})
	if err != nil {
		return ConsumedKwh{}, fmt.Errorf("query readings for consumption: %w", err)
	}
	if len(readings) == 0 {
		return ConsumedKwh{}, nil
	}

	first := readings[0].Kwh
	last := readings[len(readings)-1].Kwh
	return ConsumedKwh{
		TotalConsumedKwh: last - first,
		FirstRecord:      &first,
		LastRecord:       &last,
	}, nil
}
