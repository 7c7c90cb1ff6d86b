package onboard

import (
	"context"

	"github.com/ryanmadzima/onboarder/internal/inventory"
)

// Session is one transactional management connection to a single device.
// The lifecycle is Connect, Apply (stage into the candidate configuration),
// Commit (activate and hang up). Close must be called on every exit path.
type Session interface {
	Connect(ctx context.Context) error
	Apply(ctx context.Context, commands []string) error
	Commit(ctx context.Context) error
	Close() error
}

// Factory builds a fresh Session for a device. Sessions are never shared
// or reused across devices.
type Factory func(dev inventory.Device) Session
