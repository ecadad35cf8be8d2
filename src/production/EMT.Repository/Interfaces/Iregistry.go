package interfaces

import "context"

// DeviceRegistry is the external authority for which devices this process
// should listen to. Failures must never be fatal to the caller.
type DeviceRegistry interface {
	ListActiveChipIds(ctx context.Context) ([]string, error)
}
