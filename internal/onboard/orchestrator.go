// Package onboard drives the onboarding batch: one transactional
// management session per inventory device, applying the shared Mist
// command set and collecting a status for every device.
package onboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ryanmadzima/onboarder/internal/inventory"
)

// CommandProvider fetches the shared onboarding command set.
type CommandProvider interface {
	FetchCommands(ctx context.Context) ([]string, error)
}

// Orchestrator applies a command set to a batch of devices with a bounded
// worker pool. Device failures are isolated: every device ends with
// exactly one terminal status regardless of what happened to the others.
type Orchestrator struct {
	factory Factory
	workers int
	logger  *slog.Logger
}

// NewOrchestrator creates an Orchestrator. workers of 1 processes devices
// strictly in sequence.
func NewOrchestrator(factory Factory, workers int, logger *slog.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		factory: factory,
		workers: workers,
		logger:  logger.With(slog.String("component", "orchestrator")),
	}
}

// Onboard fetches the command set once and applies it to every device.
// A fetch failure is fatal: no device session is attempted and the error
// is returned as-is. Per-device failures are reported in the Report only.
func (o *Orchestrator) Onboard(ctx context.Context, provider CommandProvider, devices []inventory.Device) (Report, error) {
	commands, err := provider.FetchCommands(ctx)
	if err != nil {
		return Report{}, err
	}
	return o.Run(ctx, devices, commands), nil
}

// Run applies commands to every device in inventory order. The returned
// Report always holds one status per device, in input order. Cancelling
// ctx stops launching new sessions; in-flight sessions run to a terminal
// state bounded by their per-phase timeouts.
func (o *Orchestrator) Run(ctx context.Context, devices []inventory.Device, commands []string) Report {
	report := Report{
		RunID:    uuid.NewString(),
		Statuses: make([]DeviceStatus, len(devices)),
	}
	for i, dev := range devices {
		report.Statuses[i] = DeviceStatus{Device: dev.Address, Outcome: Pending}
	}

	o.logger.InfoContext(ctx, "Preparing to send onboarding commands to devices",
		slog.String("run_id", report.RunID),
		slog.Int("devices", len(devices)),
		slog.Int("workers", o.workers),
	)

	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup

	for i, dev := range devices {
		if err := o.acquire(ctx, sem); err != nil {
			report.Statuses[i].markFailed(fmt.Errorf("run cancelled before device was attempted: %w", err))
			o.logger.WarnContext(ctx, "Skipping device, run cancelled",
				slog.String("device", dev.Address),
			)
			continue
		}

		wg.Add(1)
		go func(i int, dev inventory.Device) {
			defer wg.Done()
			defer func() { <-sem }()
			// Each slot is written by exactly this goroutine.
			o.onboardDevice(dev, commands, &report.Statuses[i])
		}(i, dev)
	}

	wg.Wait()
	return report
}

// acquire takes a worker slot unless the run has been cancelled.
func (o *Orchestrator) acquire(ctx context.Context, sem chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onboardDevice runs the full session lifecycle for one device and records
// its terminal status. It deliberately ignores run cancellation: a session
// that already started is allowed to finish rather than leaving the device
// with a staged-but-uncommitted candidate configuration. The per-phase
// timeouts inside the session bound how long that can take.
func (o *Orchestrator) onboardDevice(dev inventory.Device, commands []string, status *DeviceStatus) {
	ctx := context.Background()
	logger := o.logger.With(slog.String("device", dev.Address))

	defer func() {
		if r := recover(); r != nil {
			status.markFailed(fmt.Errorf("unexpected failure: %v", r))
			logger.Error("Device onboarding panicked", slog.Any("panic", r))
		}
	}()

	logger.Info("Sending commands to device")

	sess := o.factory(dev)
	defer sess.Close()

	if err := o.runLifecycle(ctx, sess, commands); err != nil {
		status.markFailed(err)

		var ce *CommitError
		if errors.As(err, &ce) && ce.StateUnknown {
			logger.Error("Commit interrupted, device state requires manual verification",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Error("Failed sending commands to device",
				slog.String("error", err.Error()),
			)
		}
		return
	}

	status.markSuccess()
	logger.Info("Successfully sent commands to device")
}

func (o *Orchestrator) runLifecycle(ctx context.Context, sess Session, commands []string) error {
	if err := sess.Connect(ctx); err != nil {
		return err
	}
	if err := sess.Apply(ctx, commands); err != nil {
		return err
	}
	return sess.Commit(ctx)
}
