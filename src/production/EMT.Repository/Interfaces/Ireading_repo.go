package interfaces

import (
	"context"
	"time"

	emtmodels "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Models"
)

// RangeQuery selects readings by chip or numeric device id over a local-time
// window. Exactly one of ChipId and DeviceId is expected to be set.
type RangeQuery struct {
	ChipId   string
	DeviceId *int
	Start    time.Time
	End      time.Time

	// SortOrder is "asc" or "desc" on the UTC timestamp; Top limits the
	// result when greater than zero.
	SortOrder string
	Top       int
}

type ReadingRepository interface {
	// Append persists one enriched reading. Appended readings are never
	// mutated afterwards.
	Append(ctx context.Context, reading emtmodels.Reading) error

	// FindLatest returns the most recent reading for a chip by device
	// timestamp, or nil when the chip has no readings yet.
	FindLatest(ctx context.Context, chipId string) (*emtmodels.Reading, error)

	// FindRange returns readings whose local timestamp falls in the query
	// window.
	FindRange(ctx context.Context, q RangeQuery) ([]emtmodels.Reading, error)

	// ListUnprocessedMaxDemand returns readings not yet folded into the
	// maximum demand collection, oldest first.
	ListUnprocessedMaxDemand(ctx context.Context, limit int) ([]emtmodels.Reading, error)

	// MarkMaxDemandProcessed flags the given readings as processed.
	MarkMaxDemandProcessed(ctx context.Context, ids []interface{}) error
}

type MaximumDemandRepository interface {
	Insert(ctx context.Context, record emtmodels.MaximumDemand) error

	// ListByDevice returns the demand history for a device, newest first.
	ListByDevice(ctx context.Context, deviceId int) ([]emtmodels.MaximumDemand, error)

	// FindHighest returns the single record with the largest MaxDemand for a
	// device, or nil when none exists.
	FindHighest(ctx context.Context, deviceId int) (*emtmodels.MaximumDemand, error)
}
