package emtaggregator

import (
	"context"
	"fmt"
	"time"

	logger "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Logger"
	emtmodels "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Models"
	interfaces "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Repository/Interfaces"
)

// MaxDemandProcessor folds persisted readings into the maximum demand
// collection: for each unprocessed reading it records the largest of the
// three channel rates, then flags the reading so it is never folded twice.
type MaxDemandProcessor struct {
	readings interfaces.ReadingRepository
	demand   interfaces.MaximumDemandRepository
	log      *logger.Logger
}

func NewMaxDemandProcessor(readings interfaces.ReadingRepository, demand interfaces.MaximumDemandRepository, log *logger.Logger) *MaxDemandProcessor {
	return &MaxDemandProcessor{
		readings: readings,
		demand:   demand,
		log:      log.WithComponent("max-demand"),
	}
}

// ProcessOnce folds up to batchSize unprocessed readings and returns how many
// it handled.
func (p *MaxDemandProcessor) ProcessOnce(ctx context.Context, batchSize int) (int, error) {
	readings, err := p.readings.ListUnprocessedMaxDemand(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list unprocessed readings: %w", err)
	}
	if len(readings) == 0 {
		return 0, nil
	}

	processed := make([]interface{}, 0, len(readings))
	for _, rd := range readings {
		record := emtmodels.MaximumDemand{
			DeviceId:        rd.DeviceId,
			MaxDemand:       maxRate(rd),
			Timestamp:       rd.DeviceTimeStampDateUTC.Format(time.RFC3339),
			DeviceTimeStamp: rd.DeviceTimeStamp,
		}
		if err := p.demand.Insert(ctx, record); err != nil {
			p.log.WithField("device_id", rd.DeviceId).ErrorWithError(err, "Failed to insert maximum demand record")
			continue
		}
		processed = append(processed, rd.ID)
	}

	if err := p.readings.MarkMaxDemandProcessed(ctx, processed); err != nil {
		return len(processed), fmt.Errorf("mark readings processed: %w", err)
	}
	return len(processed), nil
}

// Run processes batches on the given interval until the context is canceled.
func (p *MaxDemandProcessor) Run(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.ProcessOnce(ctx, batchSize)
			if err != nil {
				p.log.ErrorWithError(err, "Maximum demand processing failed")
				continue
			}
			if n > 0 {
				p.log.Info(fmt.Sprintf("Processed %d readings into maximum demand", n))
			}
		}
	}
}

func maxRate(rd emtmodels.Reading) float64 {
	max := rd.KwhPerN
	if rd.KwhPerN2 > max {
		max = rd.KwhPerN2
	}
	if rd.KwhPerN3 > max {
		max = rd.KwhPerN3
	}
	return max
}
