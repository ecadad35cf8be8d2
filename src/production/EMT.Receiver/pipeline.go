package emtreceiver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	logger "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Logger"
	emtmodels "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Models"
	interfaces "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Repository/Interfaces"
)

// Publisher abstracts the transport's publish call.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Broadcaster pushes events to viewer subscriptions.
type Broadcaster interface {
	BroadcastData(chipId string, reading emtmodels.Reading, status string)
	BroadcastStatus(chipId, status string)
}

// Membership answers whether a device id belongs to the active subscription
// set; the Pool implements it.
type Membership interface {
	Contains(chipId string) bool
}

// PipelineConfig holds the ingestion policy of a pipeline instance.
type PipelineConfig struct {
	MinGapSeconds         int64
	TimezoneOffsetMinutes int
}

// Pipeline handles one inbound data message end to end: parse, gate, enrich,
// persist, track liveness, broadcast, acknowledge. One instance serves both
// deployment variants; the identity scheme and the optional enricher carry
// the differences.
type Pipeline struct {
	repo    interfaces.ReadingRepository
	pool    Membership
	tracker *Tracker
	hub     Broadcaster
	pub     Publisher
	scheme  IdentityScheme
	enrich  Enricher
	cfg     PipelineConfig
	log     *logger.Logger

	// Per-device locks serialize the read-latest-then-append sequence so two
	// near-simultaneous messages for one device cannot both read the same
	// "latest" record and compute a doubled rate.
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewPipeline(
	repo interfaces.ReadingRepository,
	pool Membership,
	tracker *Tracker,
	hub Broadcaster,
	pub Publisher,
	scheme IdentityScheme,
	enrich Enricher,
	cfg PipelineConfig,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		repo:    repo,
		pool:    pool,
		tracker: tracker,
		hub:     hub,
		pub:     pub,
		scheme:  scheme,
		enrich:  enrich,
		cfg:     cfg,
		log:     log.WithComponent("pipeline"),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Handle processes one inbound message. Every failure is terminal for this
// message only: it is logged and the remaining steps are suppressed, but the
// pipeline keeps serving subsequent messages.
func (p *Pipeline) Handle(ctx context.Context, topic string, body []byte) {
	chipId, ok := p.scheme.Match(topic)
	if !ok {
		p.log.Debug("Ignoring message on unrecognized topic " + topic)
		return
	}

	var payload emtmodels.ReadingPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		p.log.WithChipId(chipId).ErrorWithError(err, "Dropping malformed payload")
		return
	}
	if payload.DeviceTimeStamp == nil {
		p.log.WithChipId(chipId).Warn("DeviceTimeStamp not found in payload, dropping message")
		return
	}

	if !p.pool.Contains(chipId) {
		p.log.WithChipId(chipId).Warn("Device not in subscription pool, dropping message")
		return
	}

	lock := p.lockFor(chipId)
	lock.Lock()
	defer lock.Unlock()

	reading, skipped, err := p.buildReading(ctx, chipId, payload)
	if err != nil {
		p.log.WithChipId(chipId).ErrorWithError(err, "Failed to enrich reading")
		return
	}
	if skipped {
		// The sample is downsampled away, but the device was still heard
		// from; only persistence, broadcast and ack are suppressed.
		p.tracker.Touch(chipId)
		return
	}

	if err := p.repo.Append(ctx, *reading); err != nil {
		p.log.WithChipId(chipId).ErrorWithError(err, "Failed to persist reading")
		return
	}

	p.tracker.Touch(chipId)
	p.hub.BroadcastData(chipId, *reading, StatusOnline)

	if err := p.pub.Publish(p.scheme.AckTopic(chipId), []byte("dataReceived=true")); err != nil {
		p.log.WithChipId(chipId).ErrorWithError(err, "Failed to send acknowledgment")
	}
}

// buildReading derives the timestamps and per-minute rates for a payload. It
// reports skipped=true when the sample arrived closer than the minimum gap to
// the previous persisted reading; that sample is intentionally dropped.
func (p *Pipeline) buildReading(ctx context.Context, chipId string, payload emtmodels.ReadingPayload) (*emtmodels.Reading, bool, error) {
	deviceTs := *payload.DeviceTimeStamp
	utc := time.Unix(deviceTs, 0).UTC()
	local := utc.Add(time.Duration(p.cfg.TimezoneOffsetMinutes) * time.Minute)

	latest, err := p.repo.FindLatest(ctx, chipId)
	if err != nil {
		return nil, false, fmt.Errorf("look up latest reading: %w", err)
	}

	reading := p.newReading(chipId, payload, deviceTs, utc, local)

	if latest != nil {
		elapsed := deviceTs - latest.DeviceTimeStamp
		if elapsed < p.cfg.MinGapSeconds {
			p.log.WithChipId(chipId).Debug(fmt.Sprintf(
				"Skipping save: time difference (%d seconds) is less than %d seconds",
				elapsed, p.cfg.MinGapSeconds))
			return nil, true, nil
		}

		elapsedSeconds := float64(elapsed)
		reading.KwhPerN = KwhPerMinute(latest.Kwh, payload.Kwh, elapsedSeconds)

		if payload.Kwh2 != nil && *payload.Kwh2 != 0 {
			var prev float64
			if latest.Kwh2 != nil {
				prev = *latest.Kwh2
			}
			reading.KwhPerN2 = KwhPerMinute(prev, *payload.Kwh2, elapsedSeconds)
		}
		if payload.Kwh3 != nil && *payload.Kwh3 != 0 {
			var prev float64
			if latest.Kwh3 != nil {
				prev = *latest.Kwh3
			}
			reading.KwhPerN3 = KwhPerMinute(prev, *payload.Kwh3, elapsedSeconds)
		}
	}

	if p.enrich != nil {
		reading.Anomalies = p.enrich(payload)
	}
	return reading, false, nil
}

func (p *Pipeline) newReading(chipId string, payload emtmodels.ReadingPayload, deviceTs int64, utc, local time.Time) *emtmodels.Reading {
	deviceId := 0
	if payload.DeviceId != nil {
		deviceId = *payload.DeviceId
	} else {
		p.log.WithChipId(chipId).Warn("DeviceId not provided in payload, defaulting to 0")
	}

	return &emtmodels.Reading{
		Voltage:  payload.Voltage,
		Current:  payload.Current,
		Power:    payload.Power,
		Kwh:      payload.Kwh,
		PF:       payload.PF,
		Hertz:    payload.Hertz,
		Voltage2: payload.Voltage2,
		Current2: payload.Current2,
		Power2:   payload.Power2,
		Kwh2:     payload.Kwh2,
		PF2:      payload.PF2,
		Hertz2:   payload.Hertz2,
		Voltage3: payload.Voltage3,
		Current3: payload.Current3,
		Power3:   payload.Power3,
		Kwh3:     payload.Kwh3,
		PF3:      payload.PF3,
		Hertz3:   payload.Hertz3,

		ChipId:                   chipId,
		DeviceId:                 deviceId,
		DeviceTimeStamp:          deviceTs,
		DeviceTimeStampDateUTC:   utc,
		DeviceTimeStampDateLocal: local,
		CreatedDateUTC:           time.Now().UTC(),
	}
}

func (p *Pipeline) lockFor(chipId string) *sync.Mutex {
	p.lockMu.Lock()
	defer p.lockMu.Unlock()
	lock, ok := p.locks[chipId]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[chipId] = lock
	}
	return lock
}
