package internal

import (
	"context"
	"sync"
	"time"

	"golang.org/x/exp/slog"
)

// Observer receives relay events after the relay lock is released. It may
// block; the relay does not.
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// Relay routes decoded messages between the device and the monitors. All
// registry access and every enqueue happens under mu, so a message is handled
// to completion before the next one is looked at.
type Relay struct {
	mu        sync.Mutex
	logger    *slog.Logger
	registry  *Registry
	instance  string
	observers []Observer
	started   time.Time
	now       func() time.Time
}

func NewRelay(logger *slog.Logger, instanceID string, observers ...Observer) *Relay {
	return &Relay{
		logger:    logger,
		registry:  NewRegistry(),
		instance:  instanceID,
		observers: observers,
		started:   time.Now(),
		now:       time.Now,
	}
}

func (r *Relay) Handle(ctx context.Context, c Conn, raw string) {
	cmd := Decode(raw)
	log := r.logger.With(slog.String("id", c.ID()))

	r.mu.Lock()
	events := r.route(log, c, cmd)
	r.mu.Unlock()

	r.notify(ctx, events)
}

func (r *Relay) route(log *slog.Logger, c Conn, cmd Command) []Event {
	// frames still in flight when the socket died must not touch the registry
	if !c.Alive() {
		log.Debug("ignoring message from closed connection", slog.String("message", cmd.Raw))
		return nil
	}

	role := r.registry.RoleOf(c)
	isDevice := r.registry.IsDevice(c)

	switch {
	case cmd.Kind == KindIdentifyDevice:
		if role == RoleMonitor {
			log.Warn("monitor cannot become the device", slog.String("message", cmd.Raw))
			return nil
		}

		if prev := r.registry.Device(); prev != nil && prev.ID() != c.ID() {
			log.Info("replacing device", slog.String("previous", prev.ID()))
		}

		r.registry.AssignDevice(c)
		log.Info("device connected", slog.String("identity", cmd.Raw))
		r.broadcast(log, DeviceConnected)

		var events []Event
		if role == RoleUnassigned {
			events = append(events, Event{Type: EventTypeRole, ID: c.ID(), Role: RoleDevice.String()})
		}

		return append(events, Event{Type: EventTypeDeviceConnected, ID: c.ID(), Payload: cmd.Raw})

	case cmd.Kind == KindIdentifyMonitor:
		if role == RoleDevice {
			log.Warn("device cannot become a monitor", slog.String("message", cmd.Raw))
			return nil
		}

		r.registry.AddMonitor(c)
		log.Info("monitor connected", slog.Int("monitors", r.registry.MonitorCount()))

		if err := c.Send(MonitorConnected); err != nil {
			log.Error("failed to confirm monitor", err)
		}

		if role == RoleUnassigned {
			return []Event{{Type: EventTypeRole, ID: c.ID(), Role: RoleMonitor.String()}}
		}

		return nil

	case cmd.Kind.Directional():
		if isDevice {
			log.Debug("device acknowledged command", slog.String("command", cmd.Raw))
			r.broadcast(log, cmd.Raw)
			return nil
		}

		log.Debug("forwarding command to device", slog.String("command", cmd.Raw))
		r.unicast(log, cmd.Raw)
		return nil

	case cmd.Kind == KindStatusReport:
		log.Info("status report",
			slog.Int("value", int(cmd.Status)),
			slog.String("bits", cmd.Status.String()),
			slog.Bool("from_device", isDevice),
		)

		if isDevice {
			r.broadcast(log, cmd.Raw)
			return []Event{{Type: EventTypeStatus, ID: c.ID(), Payload: cmd.Raw}}
		}

		r.unicast(log, cmd.Raw)
		return nil
	}

	log.Debug("ignoring message", slog.String("message", cmd.Raw))
	return nil
}

// Drop forgets a closed connection. Losing the device is announced to every
// monitor, even when a sweep already cleared the slot.
func (r *Relay) Drop(ctx context.Context, c Conn) {
	log := r.logger.With(slog.String("id", c.ID()))

	r.mu.Lock()
	wasDevice := r.registry.Remove(c)
	// observers already heard about a swept device
	swept := !wasDevice && r.registry.ClaimSwept(c)
	if wasDevice || swept {
		log.Info("device disconnected", slog.Bool("swept", swept))
		r.broadcast(log, DeviceDisconnected)
	}
	r.mu.Unlock()

	if wasDevice {
		r.notify(ctx, []Event{{Type: EventTypeDeviceDisconnected, ID: c.ID()}})
	}
}

// Sweep evicts dead entries without telling the monitors.
func (r *Relay) Sweep(ctx context.Context) {
	r.mu.Lock()
	var deviceID string
	if d := r.registry.Device(); d != nil {
		deviceID = d.ID()
	}
	monitors, cleared := r.registry.Sweep()
	r.mu.Unlock()

	if monitors > 0 || cleared {
		r.logger.Debug("swept stale connections",
			slog.Int("monitors", monitors),
			slog.Bool("device", cleared),
		)
	}

	if cleared {
		r.notify(ctx, []Event{{Type: EventTypeDeviceDisconnected, ID: deviceID}})
	}
}

func (r *Relay) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	return Snapshot{
		DeviceConnected: r.registry.IsDeviceConnected(),
		WebClientsCount: r.registry.LiveMonitorCount(),
		ServerUptime:    now.Sub(r.started).Seconds(),
		Timestamp:       now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// broadcast queues payload on every live monitor. One failed recipient never
// stops the rest. Dead monitors are pruned afterwards.
func (r *Relay) broadcast(log *slog.Logger, payload string) int {
	sent := 0
	for _, m := range r.registry.Monitors() {
		if !m.Alive() {
			continue
		}

		if err := m.Send(payload); err != nil {
			log.Error("failed to deliver to monitor", err, slog.String("monitor", m.ID()))
			continue
		}

		sent++
	}

	if n := r.registry.Prune(); n > 0 {
		log.Debug("pruned monitors", slog.Int("count", n))
	}

	log.Debug("broadcast", slog.String("payload", payload), slog.Int("recipients", sent))
	return sent
}

func (r *Relay) unicast(log *slog.Logger, payload string) bool {
	device := r.registry.Device()
	if device == nil || !device.Alive() {
		log.Info("device not connected, dropping", slog.String("payload", payload))
		return false
	}

	if err := device.Send(payload); err != nil {
		log.Error("failed to deliver to device", err, slog.String("device", device.ID()))
		return false
	}

	return true
}

func (r *Relay) notify(ctx context.Context, events []Event) {
	for _, event := range events {
		event.Instance = r.instance
		event.Time = r.now()
		for _, o := range r.observers {
			o.Observe(ctx, event)
		}
	}
}
