package emtreceiver

import (
	"context"
	"fmt"
	"sync"

	logger "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Logger"
	interfaces "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Repository/Interfaces"
)

// TopicSubscriber abstracts the transport's subscribe call so the pool can be
// tested without a broker.
type TopicSubscriber interface {
	Subscribe(topic string) error
}

// Pool tracks the device ids this process actively listens for and keeps the
// per-device topic subscriptions in step with the external registry.
type Pool struct {
	mu       sync.Mutex
	active   map[string]bool
	registry interfaces.DeviceRegistry
	scheme   IdentityScheme
	log      *logger.Logger
}

func NewPool(registry interfaces.DeviceRegistry, scheme IdentityScheme, log *logger.Logger) *Pool {
	return &Pool{
		active:   make(map[string]bool),
		registry: registry,
		scheme:   scheme,
		log:      log.WithComponent("subscription-pool"),
	}
}

// Reload fetches the authoritative chip id list and subscribes to the data
// topic of each id not already subscribed. Reloading with an unchanged
// registry result is a no-op. A registry failure leaves the existing
// subscription set untouched.
func (p *Pool) Reload(ctx context.Context, sub TopicSubscriber) error {
	chipIds, err := p.registry.ListActiveChipIds(ctx)
	if err != nil {
		p.log.ErrorWithError(err, "Failed to fetch chip ids from registry, keeping existing subscriptions")
		return fmt.Errorf("reload device subscriptions: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, chipId := range chipIds {
		if p.active[chipId] {
			continue
		}
		topic := p.scheme.DataTopic(chipId)
		if err := sub.Subscribe(topic); err != nil {
			p.log.WithChipId(chipId).ErrorWithError(err, "Failed to subscribe to data topic")
			continue
		}
		p.active[chipId] = true
		p.log.WithChipId(chipId).Info("Subscribed to topic " + topic)
	}
	return nil
}

// Resubscribe re-issues every active subscription, used after a reconnect.
func (p *Pool) Resubscribe(sub TopicSubscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for chipId := range p.active {
		topic := p.scheme.DataTopic(chipId)
		if err := sub.Subscribe(topic); err != nil {
			p.log.WithChipId(chipId).ErrorWithError(err, "Failed to resubscribe to data topic")
		}
	}
}

// Contains reports whether the chip id is in the active set.
func (p *Pool) Contains(chipId string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active[chipId]
}

// ChipIds returns a snapshot of the active set.
func (p *Pool) ChipIds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.active))
	for chipId := range p.active {
		ids = append(ids, chipId)
	}
	return ids
}

// Size returns the number of active subscriptions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}
