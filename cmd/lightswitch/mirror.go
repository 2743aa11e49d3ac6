package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/lightswitch/internal/state"
)

// statePublisher is the part of the MQTT client the mirror uses.
type statePublisher interface {
	PublishDeviceState(device string, on bool) error
}

// mqttMirror publishes every persisted snapshot as one retained message per
// device. It implements state.Mirror.
type mqttMirror struct {
	publisher statePublisher
	catalog   state.Catalog
}

// PublishSnapshot implements state.Mirror. Every device is attempted and the
// failures are joined. Publishes run in the background and PublishSnapshot
// returns when they finish or ctx is done, whichever is first. Abandoned
// publishes end at the client's own publish timeout.
func (m *mqttMirror) PublishSnapshot(ctx context.Context, snap state.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		var errs []error
		for _, key := range m.catalog.Keys() {
			if err := m.publisher.PublishDeviceState(key, snap[key]); err != nil {
				errs = append(errs, fmt.Errorf("publishing %s: %w", key, err))
			}
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("mirror publish abandoned: %w", ctx.Err())
	}
}
